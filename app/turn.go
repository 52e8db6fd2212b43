package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"gptcli/agent"
	"gptcli/model"
	"gptcli/storage"
	"gptcli/stream"
	"gptcli/tokens"
)

// Send runs one user turn. The user message is appended optimistically and
// removed again when the turn fails; only a completed turn is saved.
func (a *App) Send(ctx context.Context, text string) (*agent.TurnResult, error) {
	msg, err := a.buildUserMessage(text)
	if err != nil {
		return nil, err
	}
	if a.transcript.Len() == 0 && a.session.Name == "" {
		a.session.Name = storage.GenerateSessionName(text)
	}

	a.transcript.AppendUser(msg)
	res, err := a.turn(ctx)
	if err != nil {
		a.transcript.Rollback()
		a.logger.Info("turn aborted", zap.Error(err))
		return nil, err
	}

	a.transcript.Commit(res.Text)
	a.attachments = nil
	a.lastCode = nil
	for _, seg := range res.Segments {
		if seg.Kind == stream.KindCode {
			a.lastCode = append(a.lastCode, seg)
		}
	}
	a.recordUsage(res.Usage)
	if err := a.save(); err != nil {
		a.renderer.Warning(fmt.Sprintf("Failed to save session: %v", err))
	}
	return res, nil
}

func (a *App) turn(ctx context.Context) (*agent.TurnResult, error) {
	budget := a.budget()
	msgs := a.transcript.Messages()

	if a.summarizeEnabled {
		out, summarized, err := a.engine.CheckAndSummarize(ctx, msgs, a.modelName, budget)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, fmt.Errorf("%w: %w", agent.ErrTurnAborted, ctx.Err())
		case err != nil:
			a.renderer.Warning(fmt.Sprintf("Summarization failed, older messages will be dropped instead: %v", err))
		case summarized:
			a.transcript.Replace(out)
			msgs = out
		}
	}

	fitted, err := tokens.Truncate(msgs, budget, a.estimator)
	if err != nil {
		return nil, err
	}
	if dropped := len(msgs) - len(fitted); dropped > 0 {
		a.renderer.Info(fmt.Sprintf("Context is full: %d older messages are not sent.", dropped))
	}
	if n := len(fitted); n > 0 && msgs[len(msgs)-1].HasNonText() && !fitted[n-1].HasNonText() {
		a.renderer.Warning("Attachments did not fit the context window and were dropped from this message.")
	}

	res, err := a.loop.RunTurn(ctx, agent.TurnRequest{
		System:       a.systemPrompt,
		Conversation: fitted,
		Model:        a.modelName,
		ToolsEnabled: a.toolsEnabled,
		ForceTools:   a.forceTools,
		Hooks:        a.hooks(),
	})
	a.renderer.EndLine()
	if a.spinner != nil {
		a.spinner.Stop()
	}
	if err != nil {
		return nil, err
	}
	a.renderer.Usage(res.Usage)
	return res, nil
}

func (a *App) hooks() agent.Hooks {
	return agent.Hooks{
		Sink: a.renderer,
		BeforeCall: func(round int) {
			if a.spinner == nil {
				return
			}
			a.renderer.EndLine()
			if round == 0 {
				a.spinner.Start(" Thinking...")
			} else {
				a.spinner.Start(fmt.Sprintf(" Working (step %d)...", round+1))
			}
		},
		AfterCall: func() {
			if a.spinner != nil {
				a.spinner.Stop()
			}
			a.renderer.EndLine()
		},
		ToolStart: a.renderer.ToolStart,
		ToolEnd:   a.renderer.ToolEnd,
		Warning:   a.renderer.Warning,
	}
}

// budget is the token budget of the next call: the model's window minus
// the system prompt and, when tools are on, their schemas.
func (a *App) budget() tokens.Budget {
	toolsTokens := 0
	if a.toolsEnabled {
		toolsTokens = tokens.CountTools(a.estimator, a.loop.Tools())
	}
	return tokens.NewBudget(a.modelName, a.contextLength, a.estimator.CountText(a.systemPrompt), toolsTokens)
}

func (a *App) recordUsage(u model.Usage) {
	if u.TotalTokens == 0 && u.PromptTokens == 0 && u.CompletionTokens == 0 {
		return
	}
	rec := storage.NewUsageRecord(a.modelName, u)
	a.session.UsageHistory = append(a.session.UsageHistory, rec)
	if a.history == nil {
		return
	}
	if a.session.ID == "" {
		if err := a.save(); err != nil {
			a.logger.Warn("failed to save session before recording usage", zap.Error(err))
			return
		}
	}
	if err := a.history.AppendUsage(a.session.ID, rec); err != nil {
		a.logger.Warn("failed to record usage", zap.Error(err))
	}
}
