// Package permission decides whether a tool call may run, asking the user
// when the trust level requires it.
package permission

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gptcli/model"
	"gptcli/tools"
)

// Verdict is the outcome of Decide.
type Verdict int

const (
	Allow Verdict = iota
	Deny
	AskUser
)

func (v Verdict) String() string {
	switch v {
	case Allow:
		return "allow"
	case Deny:
		return "deny"
	case AskUser:
		return "ask"
	default:
		return "unknown"
	}
}

const reasonBlocked = "dangerous command blocked"

// Decision is the gate's ruling on one tool call.
type Decision struct {
	Verdict Verdict
	// RequireTypedConfirmation means a plain yes/no is not enough; the user
	// must type "yes".
	RequireTypedConfirmation bool
	Reason                   string
}

// Prompter asks the user to approve a tool call.
type Prompter interface {
	// Confirm asks a yes/no question. Empty input counts as yes.
	Confirm(ctx context.Context, p Prompt) (bool, error)
	// ConfirmTyped requires the user to type "yes" exactly.
	ConfirmTyped(ctx context.Context, p Prompt) (bool, error)
}

// Gate holds the trust level and resolves tool permissions. It is safe for
// concurrent use; SetTrustLevel is the only writer.
type Gate struct {
	mu       sync.RWMutex
	level    TrustLevel
	prompter Prompter
	baseDir  string
	logger   *zap.Logger
}

// NewGate creates a gate. A nil prompter makes the gate non-interactive:
// anything that would ask the user is denied.
func NewGate(level TrustLevel, prompter Prompter, baseDir string, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{level: level, prompter: prompter, baseDir: baseDir, logger: logger.Named("permission")}
}

// TrustLevel returns the current trust level.
func (g *Gate) TrustLevel() TrustLevel {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.level
}

// SetTrustLevel changes the trust level.
func (g *Gate) SetTrustLevel(level TrustLevel) {
	g.mu.Lock()
	g.level = level
	g.mu.Unlock()
	g.logger.Info("trust level changed", zap.String("level", string(level)))
}

// Interactive reports whether the gate can ask the user.
func (g *Gate) Interactive() bool {
	return g.prompter != nil
}

// Status is a one-line description for the status bar.
func (g *Gate) Status() string {
	level := g.TrustLevel()
	return fmt.Sprintf("Trust: %s (%s)", level, level.Describe())
}

// Decide rules on a call without prompting.
func (g *Gate) Decide(toolName string, args map[string]any) Decision {
	if toolName == tools.Bash {
		if cmd, _ := args["command"].(string); IsDangerousCommand(cmd) {
			if !g.Interactive() {
				return Decision{Verdict: Deny, Reason: reasonBlocked}
			}
			return Decision{Verdict: AskUser, RequireTypedConfirmation: true, Reason: "dangerous command"}
		}
	}

	level := g.TrustLevel()
	var d Decision
	switch level {
	case TrustFull:
		d = Decision{Verdict: Allow, Reason: "full trust"}
	case TrustReadOnly:
		if tools.IsReadOnly(toolName) {
			d = Decision{Verdict: Allow, Reason: "read-only tool"}
		} else {
			d = Decision{Verdict: AskUser, Reason: "write tool under read-only trust"}
		}
	default:
		d = Decision{Verdict: AskUser, Reason: "confirmation required"}
	}
	if d.Verdict == AskUser && !g.Interactive() {
		d.Verdict = Deny
		d.Reason = fmt.Sprintf("trust level %s requires confirmation", level)
	}
	return d
}

// Authorize decides and, when needed, asks the user. It returns whether
// the call may run and, if not, the text to return to the model.
func (g *Gate) Authorize(ctx context.Context, call model.ToolCall, args map[string]any) (bool, string) {
	d := g.Decide(call.Name, args)
	g.logger.Debug("permission decision",
		zap.String("tool", call.Name),
		zap.Stringer("verdict", d.Verdict),
		zap.String("reason", d.Reason))

	switch d.Verdict {
	case Allow:
		return true, ""
	case Deny:
		if d.Reason == reasonBlocked {
			cmd, _ := args["command"].(string)
			return false, fmt.Sprintf("Blocked dangerous command: %s", cmd)
		}
		return false, DeclinedMessage(call.Name)
	}

	prompt := BuildPrompt(call.Name, args, g.baseDir)
	prompt.Dangerous = d.RequireTypedConfirmation

	var ok bool
	var err error
	if d.RequireTypedConfirmation {
		ok, err = g.prompter.ConfirmTyped(ctx, prompt)
	} else {
		ok, err = g.prompter.Confirm(ctx, prompt)
	}
	if err != nil {
		g.logger.Warn("permission prompt failed", zap.String("tool", call.Name), zap.Error(err))
		return false, DeclinedMessage(call.Name)
	}
	if !ok {
		return false, DeclinedMessage(call.Name)
	}
	return true, ""
}

// DeclinedMessage is the tool result sent back when the user refuses.
func DeclinedMessage(toolName string) string {
	return fmt.Sprintf("User declined to run %s.", toolName)
}
