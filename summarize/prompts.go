package summarize

// summaryPrompt is the system prompt for summarizing a slice of conversation.
const summaryPrompt = `You are an expert at summarizing conversations accurately and concisely.

Summarize the conversation you are given according to these rules:

**Principles:**
1. Keep only essential information: concrete code changes, decisions made, important context.
2. Preserve chronological structure so the flow of the conversation stays clear.
3. Preserve code and file details: file names, function names and variable names must be kept.
4. Drop greetings, repetition and filler explanations.
5. Extract the core of the user's original requests and the assistant's final answers.

**Output format:**
## Key discussion points
- (point 1)
- (point 2)
...

## Decisions and changes
- (concrete decisions or code changes)

## Important context
- (background needed for the rest of the conversation)

Follow the format above and be concise. Aim for 20-30% of the original length or less.`

// mergePrompt is the system prompt for folding existing summaries and new
// material (or several partial summaries) into one.
const mergePrompt = `Combine the existing summary and the new conversation into a single, more concise summary.

**Rules:**
- Always keep the key information from the existing summary.
- Remove duplicated content.
- Prefer the most recent information.
- Compress to 50% of the original length or less.

Use this output format:
## Key discussion points
## Decisions and changes
## Important context`

const (
	summarizeRequest = "Summarize the following conversation:\n\n"
	mergeRequest     = "Merge the following partial summaries into one:\n\n"
)
