// Package agent runs one conversational turn: it calls the model, executes
// the tools it asks for, feeds the results back and repeats until the
// model answers in plain text or a safety limit trips.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcptypes "github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"gptcli/model"
	"gptcli/stream"
	"gptcli/tools"
)

// Defaults for Options.
const (
	MaxIterations     = 50
	MaxRepeats        = 2
	MaxReadOnlyRounds = 5
)

// ErrTurnAborted wraps transport failures and cancellations. Nothing from
// an aborted turn is persisted.
var ErrTurnAborted = errors.New("turn aborted")

// Authorizer decides whether a tool call may run.
type Authorizer interface {
	Authorize(ctx context.Context, call model.ToolCall, args map[string]any) (bool, string)
}

// ToolRunner executes a tool and describes the outcome.
type ToolRunner interface {
	Execute(ctx context.Context, name string, args map[string]any) (bool, string)
}

// Hooks let the caller follow a turn. Every field is optional.
type Hooks struct {
	// Sink receives the parsed stream of every model call.
	Sink stream.Sink
	// BeforeCall runs before each model call; round is 0-based.
	BeforeCall func(round int)
	// AfterCall runs when a model call returns, successfully or not.
	AfterCall func()
	ToolStart func(call model.ToolCall, args map[string]any)
	ToolEnd   func(inv Invocation)
	Warning   func(msg string)
}

// Options configures a Loop. Zero values take the defaults.
type Options struct {
	MaxIterations     int
	MaxRepeats        int
	MaxReadOnlyRounds int
	Logger            *zap.Logger
}

// TurnRequest is the input of one turn.
type TurnRequest struct {
	System       string
	Conversation []model.Message
	Model        string
	ToolsEnabled bool
	// ForceTools requires a tool call every round and ends the turn after
	// too many rounds without a write-class tool.
	ForceTools bool
	MaxTokens  int
	Hooks      Hooks
}

// TurnResult is the outcome of a completed turn.
type TurnResult struct {
	Text          string
	Reasoning     string
	Segments      []stream.Segment
	Usage         model.Usage
	Iterations    int
	ToolCalls     []Invocation
	Steps         []Step
	Warnings      []string
	SafetyTripped bool
}

// Loop is the tool-calling agent loop.
type Loop struct {
	provider model.Provider
	gate     Authorizer
	runner   ToolRunner
	defs     []mcptypes.Tool
	logger   *zap.Logger

	maxIterations     int
	maxRepeats        int
	maxReadOnlyRounds int
}

// NewLoop creates a loop calling p, checking calls with gate and running
// them with runner. defs are the tool schemas offered to the model.
func NewLoop(p model.Provider, gate Authorizer, runner ToolRunner, defs []mcptypes.Tool, opts Options) *Loop {
	l := &Loop{
		provider:          p,
		gate:              gate,
		runner:            runner,
		defs:              defs,
		logger:            opts.Logger,
		maxIterations:     opts.MaxIterations,
		maxRepeats:        opts.MaxRepeats,
		maxReadOnlyRounds: opts.MaxReadOnlyRounds,
	}
	if l.logger == nil {
		l.logger = zap.NewNop()
	}
	l.logger = l.logger.Named("agent")
	if l.maxIterations <= 0 {
		l.maxIterations = MaxIterations
	}
	if l.maxRepeats <= 0 {
		l.maxRepeats = MaxRepeats
	}
	if l.maxReadOnlyRounds <= 0 {
		l.maxReadOnlyRounds = MaxReadOnlyRounds
	}
	return l
}

// SetProvider swaps the model provider between turns.
func (l *Loop) SetProvider(p model.Provider) {
	l.provider = p
}

// Tools returns the tool schemas offered to the model.
func (l *Loop) Tools() []mcptypes.Tool {
	return l.defs
}

// RunTurn runs one turn over a working copy of req.Conversation. The
// conversation itself is never modified; the caller commits res.Text.
func (l *Loop) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	working := model.CloneMessages(req.Conversation)
	res := &TurnResult{}
	h := req.Hooks

	var lastSignature string
	repeats, readOnlyRounds := 0, 0

	for round := 0; res.Iterations < l.maxIterations; round++ {
		choice := model.ToolChoiceAuto
		if !req.ToolsEnabled {
			choice = model.ToolChoiceNone
		} else if req.ForceTools {
			choice = model.ToolChoiceRequired
		}

		resp, err := l.call(ctx, req, working, choice, round)
		if err != nil {
			return nil, err
		}
		res.Usage.Add(resp.Usage)
		res.Text, res.Reasoning, res.Segments = resp.Text, resp.Reasoning, resp.Segments

		if !resp.HasToolCalls() || !req.ToolsEnabled {
			return res, nil
		}

		sig := Signature(resp.ToolCalls)
		if sig == lastSignature {
			repeats++
		} else {
			repeats = 0
			lastSignature = sig
		}
		if repeats >= l.maxRepeats {
			l.logger.Warn("identical tool calls repeated, forcing a final answer", zap.Int("repeats", repeats+1))
			return l.finish(ctx, req, working, res, round+1,
				fmt.Sprintf("The model repeated the same tool calls %d times; asked it to answer without tools.", repeats+1))
		}

		if req.ForceTools {
			if hasWriteCall(resp.ToolCalls) {
				readOnlyRounds = 0
			} else {
				readOnlyRounds++
			}
			if readOnlyRounds >= l.maxReadOnlyRounds {
				l.logger.Warn("too many read-only rounds in force mode", zap.Int("rounds", readOnlyRounds))
				return l.finish(ctx, req, working, res, round+1,
					fmt.Sprintf("%d consecutive rounds without a write tool; asked the model to answer.", readOnlyRounds))
			}
		}

		step := Step{
			Number:  res.Iterations + 1,
			Purpose: extractPurpose(resp.Text, resp.ToolCalls),
			Started: time.Now(),
		}
		working = append(working, model.Message{
			Role:      model.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
			Timestamp: time.Now(),
		})
		for _, call := range resp.ToolCalls {
			inv := l.runCall(ctx, call, h)
			res.ToolCalls = append(res.ToolCalls, inv)
			working = append(working, model.NewToolResult(call, inv.Result))
			step.Tools = append(step.Tools, call.Name)
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
			}
		}
		step.Duration = time.Since(step.Started)
		res.Steps = append(res.Steps, step)
		res.Iterations++
	}

	msg := fmt.Sprintf("Reached the maximum of %d tool iterations; the answer may be incomplete.", l.maxIterations)
	l.logger.Warn("max iterations reached", zap.Int("max", l.maxIterations))
	res.Warnings = append(res.Warnings, msg)
	if h.Warning != nil {
		h.Warning(msg)
	}
	return res, nil
}

func (l *Loop) call(ctx context.Context, req TurnRequest, msgs []model.Message, choice model.ToolChoice, round int) (*stream.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}
	chat := model.ChatRequest{
		Model:      req.Model,
		System:     req.System,
		Messages:   msgs,
		ToolChoice: choice,
		MaxTokens:  req.MaxTokens,
	}
	if req.ToolsEnabled {
		chat.Tools = l.defs
	}

	if req.Hooks.BeforeCall != nil {
		req.Hooks.BeforeCall(round)
	}
	resp, err := stream.Collect(ctx, l.provider, chat, req.Hooks.Sink)
	if req.Hooks.AfterCall != nil {
		req.Hooks.AfterCall()
	}
	if err != nil {
		l.logger.Error("model call failed", zap.Int("round", round), zap.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrTurnAborted, err)
	}
	l.logger.Debug("model call complete",
		zap.Int("round", round),
		zap.String("tool_choice", string(choice)),
		zap.Int("tool_calls", len(resp.ToolCalls)),
		zap.Int("text_len", len(resp.Text)))
	return resp, nil
}

// finish makes one last call with tool use disabled and ends the turn.
func (l *Loop) finish(ctx context.Context, req TurnRequest, working []model.Message, res *TurnResult, round int, warning string) (*TurnResult, error) {
	res.SafetyTripped = true
	res.Warnings = append(res.Warnings, warning)
	if req.Hooks.Warning != nil {
		req.Hooks.Warning(warning)
	}
	resp, err := l.call(ctx, req, working, model.ToolChoiceNone, round)
	if err != nil {
		return nil, err
	}
	res.Usage.Add(resp.Usage)
	res.Text, res.Reasoning, res.Segments = resp.Text, resp.Reasoning, resp.Segments
	return res, nil
}

func (l *Loop) runCall(ctx context.Context, call model.ToolCall, h Hooks) Invocation {
	inv := Invocation{Call: call}
	args, err := call.ParseArguments()
	if err != nil {
		inv.Result = fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
		l.logger.Warn("malformed tool arguments", zap.String("tool", call.Name), zap.Error(err))
		if h.ToolEnd != nil {
			h.ToolEnd(inv)
		}
		return inv
	}

	allowed, reason := l.gate.Authorize(ctx, call, args)
	if !allowed {
		inv.Result = reason
		l.logger.Info("tool call denied", zap.String("tool", call.Name))
		if h.ToolEnd != nil {
			h.ToolEnd(inv)
		}
		return inv
	}
	inv.Allowed = true

	if h.ToolStart != nil {
		h.ToolStart(call, args)
	}
	inv.OK, inv.Result = l.runner.Execute(ctx, call.Name, args)
	if h.ToolEnd != nil {
		h.ToolEnd(inv)
	}
	return inv
}

func hasWriteCall(calls []model.ToolCall) bool {
	for _, c := range calls {
		if tools.IsWrite(c.Name) {
			return true
		}
	}
	return false
}
