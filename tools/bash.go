package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

func (e *Executor) bash(ctx context.Context, command string, timeout time.Duration) (bool, string) {
	if strings.TrimSpace(command) == "" {
		return false, "Error: command is required"
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	cmd.Dir = e.baseDir
	// Background children may keep the pipes open after bash exits.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("running command", zap.String("command", command), zap.Duration("timeout", timeout))
	err := cmd.Run()

	var parts []string
	if stdout.Len() > 0 {
		parts = append(parts, stdout.String())
	}
	if stderr.Len() > 0 {
		parts = append(parts, "[stderr]\n"+stderr.String())
	}
	output := strings.Join(parts, "\n")
	if output == "" {
		output = "(no output)"
	}

	if err == nil {
		return true, output
	}
	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		return false, fmt.Sprintf("Error: command timed out after %s\n%s", timeout, output)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return false, "Error: command cancelled"
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return false, fmt.Sprintf("%s\n\n[exit code: %d]", output, exitErr.ExitCode())
	}
	return false, fmt.Sprintf("Error: failed to run command: %v", err)
}
