package tools

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultReadLimit   = 2000
	MaxLineLength      = 2000
	DefaultBashTimeout = 120 * time.Second
	MaxBashTimeout     = 600 * time.Second
	MaxOutputLength    = 30000
	MaxGlobResults     = 500
	grepTimeout        = 60 * time.Second
)

// Executor runs the built-in tools relative to a base directory. Execute
// never panics and never returns an error; failures are described in the
// result text.
type Executor struct {
	baseDir string
	logger  *zap.Logger
	rgPath  func() string
}

// NewExecutor creates an executor rooted at baseDir.
func NewExecutor(baseDir string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(baseDir)
	if err == nil {
		baseDir = abs
	}
	return &Executor{
		baseDir: baseDir,
		logger:  logger.Named("tools"),
		rgPath:  lookupRipgrep(),
	}
}

// BaseDir returns the directory relative paths resolve against.
func (e *Executor) BaseDir() string {
	return e.baseDir
}

// Execute runs tool name with args and reports success and the text result.
func (e *Executor) Execute(ctx context.Context, name string, args map[string]any) (ok bool, result string) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("tool panicked", zap.String("tool", name), zap.Any("panic", r))
			ok, result = false, fmt.Sprintf("Error: %s failed: %v", name, r)
		}
		e.logger.Debug("tool executed",
			zap.String("tool", name),
			zap.Bool("ok", ok),
			zap.Int("result_len", len(result)),
			zap.Duration("elapsed", time.Since(start)))
	}()

	switch name {
	case Read:
		ok, result = e.read(stringArg(args, "file_path"), intArg(args, "offset", 1), intArg(args, "limit", DefaultReadLimit))
	case Write:
		ok, result = e.write(stringArg(args, "file_path"), stringArg(args, "content"))
	case Edit:
		ok, result = e.edit(stringArg(args, "file_path"), stringArg(args, "old_string"),
			stringArg(args, "new_string"), boolArg(args, "replace_all"))
	case Bash:
		timeout := DefaultBashTimeout
		if secs := intArg(args, "timeout", 0); secs > 0 {
			timeout = min(time.Duration(secs)*time.Second, MaxBashTimeout)
		}
		ok, result = e.bash(ctx, stringArg(args, "command"), timeout)
	case Grep:
		ok, result = e.grep(ctx, grepRequest{
			pattern:         stringArg(args, "pattern"),
			path:            stringArg(args, "path"),
			glob:            stringArg(args, "glob"),
			mode:            stringArg(args, "output_mode"),
			caseInsensitive: boolArg(args, "case_insensitive"),
		})
	case Glob:
		ok, result = e.glob(stringArg(args, "pattern"), stringArg(args, "path"))
	default:
		return false, fmt.Sprintf("Error: unknown tool: %s", name)
	}
	return ok, truncateOutput(result)
}

func (e *Executor) resolve(path string) string {
	if path == "" {
		return e.baseDir
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(e.baseDir, path)
	}
	return filepath.Clean(path)
}

// display returns path relative to the base dir when it is inside it.
func (e *Executor) display(path string) string {
	rel, err := filepath.Rel(e.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return rel
}

func truncateOutput(s string) string {
	if len(s) <= MaxOutputLength {
		return s
	}
	return s[:MaxOutputLength] + fmt.Sprintf("\n\n... (truncated, total %d chars)", len(s))
}

func stringArg(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// intArg accepts JSON numbers and numeric strings; models send both.
func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolArg(args map[string]any, key string) bool {
	switch v := args[key].(type) {
	case bool:
		return v
	case string:
		b, _ := strconv.ParseBool(v)
		return b
	}
	return false
}
