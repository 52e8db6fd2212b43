// Package tools implements the built-in file and shell tools the model can
// call, and their schemas.
package tools

import (
	mcptypes "github.com/mark3labs/mcp-go/mcp"
)

// Tool names
const (
	Read  = "Read"
	Write = "Write"
	Edit  = "Edit"
	Bash  = "Bash"
	Grep  = "Grep"
	Glob  = "Glob"
)

// ReadOnlyTools never modify the filesystem.
var ReadOnlyTools = map[string]bool{Read: true, Grep: true, Glob: true}

// WriteTools can modify the filesystem or run arbitrary commands.
var WriteTools = map[string]bool{Write: true, Edit: true, Bash: true}

// IsReadOnly reports whether name is a read-only tool.
func IsReadOnly(name string) bool { return ReadOnlyTools[name] }

// IsWrite reports whether name is a write-class tool.
func IsWrite(name string) bool { return WriteTools[name] }

// Definitions returns the schemas of all built-in tools in a stable order.
func Definitions() []mcptypes.Tool {
	return []mcptypes.Tool{
		mcptypes.NewTool(Read,
			mcptypes.WithDescription("Read a file. Output is numbered like `cat -n`. "+
				"Use offset and limit to read a range of a large file."),
			mcptypes.WithString("file_path", mcptypes.Required(),
				mcptypes.Description("Absolute or relative path of the file to read")),
			mcptypes.WithNumber("offset",
				mcptypes.Description("Line number to start from, 1-based (default 1)")),
			mcptypes.WithNumber("limit",
				mcptypes.Description("Maximum number of lines to read (default 2000)")),
			mcptypes.WithReadOnlyHintAnnotation(true),
		),
		mcptypes.NewTool(Write,
			mcptypes.WithDescription("Write content to a file, replacing it if it exists. "+
				"Missing parent directories are created."),
			mcptypes.WithString("file_path", mcptypes.Required(),
				mcptypes.Description("Absolute or relative path of the file to write")),
			mcptypes.WithString("content", mcptypes.Required(),
				mcptypes.Description("Full content of the file")),
			mcptypes.WithDestructiveHintAnnotation(true),
		),
		mcptypes.NewTool(Edit,
			mcptypes.WithDescription("Replace old_string with new_string in a file. "+
				"old_string must occur exactly once unless replace_all is set. Preserve indentation exactly."),
			mcptypes.WithString("file_path", mcptypes.Required(),
				mcptypes.Description("Absolute or relative path of the file to edit")),
			mcptypes.WithString("old_string", mcptypes.Required(),
				mcptypes.Description("Exact text to replace")),
			mcptypes.WithString("new_string", mcptypes.Required(),
				mcptypes.Description("Replacement text")),
			mcptypes.WithBoolean("replace_all",
				mcptypes.Description("Replace every occurrence (default false)")),
			mcptypes.WithDestructiveHintAnnotation(true),
		),
		mcptypes.NewTool(Bash,
			mcptypes.WithDescription("Run a shell command in the working directory and return stdout and stderr. "+
				"Dangerous commands require explicit user confirmation."),
			mcptypes.WithString("command", mcptypes.Required(),
				mcptypes.Description("Shell command to run")),
			mcptypes.WithString("description",
				mcptypes.Description("Short description of what the command does (5-10 words)")),
			mcptypes.WithNumber("timeout",
				mcptypes.Description("Timeout in seconds (default 120, max 600)")),
			mcptypes.WithDestructiveHintAnnotation(true),
		),
		mcptypes.NewTool(Grep,
			mcptypes.WithDescription("Search file contents with a regular expression. "+
				"Uses ripgrep when available."),
			mcptypes.WithString("pattern", mcptypes.Required(),
				mcptypes.Description("Regular expression to search for")),
			mcptypes.WithString("path",
				mcptypes.Description("File or directory to search (default: working directory)")),
			mcptypes.WithString("glob",
				mcptypes.Description("Only search files matching this glob, e.g. '*.go'")),
			mcptypes.WithString("output_mode",
				mcptypes.Enum("files_with_matches", "content", "count"),
				mcptypes.Description("files_with_matches (default), content or count")),
			mcptypes.WithBoolean("case_insensitive",
				mcptypes.Description("Ignore case (default false)")),
			mcptypes.WithReadOnlyHintAnnotation(true),
		),
		mcptypes.NewTool(Glob,
			mcptypes.WithDescription("Find files by glob pattern. `**` matches any number of directories. "+
				"Results are sorted by modification time, newest first."),
			mcptypes.WithString("pattern", mcptypes.Required(),
				mcptypes.Description("Glob pattern, e.g. '**/*.go' or 'src/**/*.ts'")),
			mcptypes.WithString("path",
				mcptypes.Description("Directory to search from (default: working directory)")),
			mcptypes.WithReadOnlyHintAnnotation(true),
		),
	}
}
