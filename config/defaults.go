package config

const (
	DefaultProvider      = "openai"
	DefaultModel         = "gpt-4o"
	DefaultContextLength = 128000
	DefaultTrustLevel    = "read_only"
)

func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		DataDirectory: "~/.local/share/gptcli",
	}
}

// DefaultConfig is the configuration before any file or environment
// variable is applied.
func DefaultConfig() *Config {
	u := DefaultUserConfig()
	cfg := &Config{
		DataDirectory: GetDefaultDataDir(),
		Security:      SecurityPlainText,
	}
	cfg.applyUserConfig(u)
	return cfg
}

func DefaultUserConfig() *UserConfig {
	return &UserConfig{
		DefaultProvider: DefaultProvider,
		DefaultModel:    DefaultModel,
		ContextLength:   DefaultContextLength,
		PrettyPrint:     true,
		Providers:       DefaultProviders(),
		Tools: ToolsConfig{
			Enabled:    true,
			TrustLevel: DefaultTrustLevel,
		},
		Summarization: SummarizationConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			CredentialStorage: string(SecurityPlainText),
		},
	}
}

func GenerateSystemConfigTemplate() string {
	return `# gptcli System Configuration
# Location: ~/.config/gptcli/settings.toml
# This file uses TOML format: https://toml.io

# Directory where sessions, history and user config are stored
data_directory = "~/.local/share/gptcli"
`
}

func GenerateUserConfigTemplate() string {
	return `# gptcli User Configuration
# Location: <data_directory>/config.toml
# This file uses TOML format: https://toml.io

# Provider and model used when none is given on the command line.
# Providers: openai, anthropic, openrouter, gemini, ollama
default_provider = "openai"
default_model = "gpt-4o"

# Context window of the default model, in tokens
context_length = 128000

# Render markdown and highlight code (toggle at runtime with /raw)
pretty_print = true

# System prompt sent with every request (optional)
system_prompt = ""

[tools]
# Let the model read, write and edit files and run shell commands
enabled = true
# Require a tool call every round until the model writes something
force = false
# full: run everything without asking
# read_only: run Read/Grep/Glob, ask for the rest
# none: ask for every tool
trust_level = "read_only"

[summarization]
# Summarize old messages when the context is 80% full
enabled = true
# Model used for summaries (defaults to the chat model)
model = ""

[security]
# plaintext: credentials.toml (0600)
# ssh_key: credentials.enc, encrypted with a key derived from an SSH key
credential_storage = "plaintext"
ssh_key_path = ""

# API keys are read from OPENAI_API_KEY, ANTHROPIC_API_KEY,
# OPENROUTER_API_KEY and GEMINI_API_KEY, or set with "gptcli auth set".

[[providers]]
id = "openai"
name = "OpenAI"
enabled = true

[[providers]]
id = "anthropic"
name = "Anthropic"
enabled = true

[[providers]]
id = "openrouter"
name = "OpenRouter"
enabled = false

[[providers]]
id = "gemini"
name = "Gemini"
enabled = false

[[providers]]
id = "ollama"
name = "Ollama"
base_url = "http://localhost:11434"
enabled = false
`
}
