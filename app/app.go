// Package app is the interactive command loop. It owns the session, wires
// the agent loop to the terminal and routes slash commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"go.uber.org/zap"

	"gptcli/agent"
	"gptcli/config"
	"gptcli/model"
	"gptcli/permission"
	"gptcli/storage"
	"gptcli/stream"
	"gptcli/summarize"
	"gptcli/tokens"
	"gptcli/tools"
	"gptcli/ui"
)

// DefaultSystemPrompt is used when the configuration sets none.
const DefaultSystemPrompt = `You are a helpful assistant working in the user's terminal.
Answer concisely and use fenced code blocks with a language tag for code.
When tools are available, use them to inspect files before changing them and
prefer small, targeted edits.`

// ErrSessionLocked means another running instance holds the session.
var ErrSessionLocked = errors.New("session is in use by another process")

// Options configures an App.
type Options struct {
	Config *config.Config
	// Providers holds the usable providers by config ID. ProviderID selects
	// the active one.
	Providers  map[string]model.Provider
	ProviderID string

	Sessions *storage.SessionStorage
	// History is optional; without it summaries are kept in memory only.
	History *storage.HistoryStore

	In  io.Reader
	Out io.Writer
	// Interactive enables the line editor, spinner and approval prompts.
	Interactive bool
	// OneShot disables approval prompts: anything that would ask is denied.
	OneShot bool
	Width   int
	WorkDir string

	SessionName string
	Logger      *zap.Logger
}

// App is one interactive gptcli instance.
type App struct {
	cfg       *config.Config
	providers map[string]model.Provider

	provider      model.Provider
	providerID    string
	modelName     string
	contextLength int
	systemPrompt  string

	sessions *storage.SessionStorage
	history  *storage.HistoryStore
	session  *storage.Session
	locked   bool

	transcript *agent.Transcript
	loop       *agent.Loop
	gate       *permission.Gate
	executor   *tools.Executor
	engine     *summarize.Engine
	estimator  *tokens.Estimator

	editor   *ui.LineEditor
	renderer *ui.Renderer
	spinner  *ui.Spinner

	toolsEnabled     bool
	forceTools       bool
	summarizeEnabled bool

	attachments []string
	lastCode    []stream.Segment

	commands []command
	logger   *zap.Logger
}

// New builds an App and opens the starting session.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("app: session storage is required")
	}
	p, ok := opts.Providers[opts.ProviderID]
	if !ok || p == nil {
		return nil, fmt.Errorf("provider %q is not available", opts.ProviderID)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		opts.WorkDir = wd
	}

	cfg := opts.Config
	a := &App{
		cfg:              cfg,
		providers:        opts.Providers,
		provider:         p,
		providerID:       opts.ProviderID,
		modelName:        p.GetModel(),
		contextLength:    cfg.ContextLength,
		systemPrompt:     cfg.SystemPrompt,
		sessions:         opts.Sessions,
		history:          opts.History,
		toolsEnabled:     cfg.Tools.Enabled,
		forceTools:       cfg.Tools.Force,
		summarizeEnabled: cfg.Summarization.Enabled,
		logger:           opts.Logger.Named("app"),
	}
	if a.systemPrompt == "" {
		a.systemPrompt = DefaultSystemPrompt
	}
	if a.contextLength <= 0 {
		a.contextLength = config.DefaultContextLength
	}

	a.renderer = ui.NewRenderer(opts.Out, opts.Width, cfg.PrettyPrint)
	a.editor = ui.NewLineEditor(opts.In, opts.Out, opts.Interactive)
	if opts.Interactive {
		a.spinner = ui.NewSpinner(opts.Out)
		a.renderer.AttachSpinner(a.spinner)
	}

	level, err := permission.ParseTrustLevel(cfg.Tools.TrustLevel)
	if err != nil {
		a.logger.Warn("invalid trust level in config, using read_only", zap.Error(err))
		level = permission.TrustReadOnly
	}
	if opts.OneShot {
		a.gate = permission.NewGate(level, nil, opts.WorkDir, opts.Logger)
	} else {
		a.gate = permission.NewGate(level, ui.NewPrompter(a.editor, a.renderer), opts.WorkDir, opts.Logger)
	}

	a.executor = tools.NewExecutor(opts.WorkDir, opts.Logger)
	a.loop = agent.NewLoop(p, a.gate, a.executor, tools.Definitions(), agent.Options{Logger: opts.Logger})
	a.estimator = tokens.NewEstimator(a.modelName)
	a.engine = summarize.NewEngine(p, a.estimator, a.engineOptions())
	a.commands = a.buildCommands()
	a.editor.SetSuggestions(a.commandNames())

	if err := a.openSession(opts.SessionName); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) engineOptions() summarize.Options {
	opts := summarize.Options{
		Model:  a.cfg.Summarization.Model,
		Logger: a.logger,
		Progress: func(status string) {
			a.renderer.Info(status)
		},
	}
	if a.history != nil && a.session != nil && a.session.ID != "" {
		opts.History = a.history.ForSession(a.session.ID)
	}
	return opts
}

// Run reads lines until /exit, end of input or ctx is done.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()
	for {
		line, err := a.editor.ReadLine(ctx, a.promptLabel())
		switch {
		case errors.Is(err, io.EOF):
			a.renderer.Println("")
			return nil
		case errors.Is(err, ui.ErrInterrupted):
			a.renderer.Info("(use /exit or Ctrl-D to quit)")
			continue
		case ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := a.dispatch(ctx, line); quit {
				return nil
			}
			continue
		}

		turnCtx, stop := signal.NotifyContext(ctx, os.Interrupt)
		_, err = a.Send(turnCtx, line)
		stop()
		a.reportTurnError(err)
	}
}

// Close saves the session and releases its lock.
func (a *App) Close() error {
	if a.spinner != nil {
		a.spinner.Stop()
	}
	err := a.save()
	if a.session != nil && a.session.ID != "" && a.locked {
		if uerr := a.sessions.UnlockSession(a.session.ID); uerr != nil && err == nil {
			err = uerr
		}
	}
	return err
}

// Transcript returns the persisted messages of the current session.
func (a *App) Transcript() []model.Message {
	return a.transcript.Messages()
}

// Session returns the current session.
func (a *App) Session() *storage.Session {
	return a.session
}

// Renderer returns the terminal renderer, e.g. to print a one-shot answer.
func (a *App) Renderer() *ui.Renderer {
	return a.renderer
}

func (a *App) printBanner() {
	toolState := "off"
	if a.toolsEnabled {
		toolState = "on"
		if a.forceTools {
			toolState = "forced"
		}
	}
	a.renderer.Println(ui.TitleStyle.Render("gptcli") + " " + ui.DimStyle.Render(fmt.Sprintf("%s · %s", a.providerID, a.modelName)))
	a.renderer.Info(fmt.Sprintf("session %q · %d messages · tools %s · %s",
		a.session.Name, a.transcript.Len(), toolState, a.gate.Status()))
	a.renderer.Println(ui.FormatHint("/commands", "help", "Ctrl-C", "cancel reply", "Ctrl-D", "quit"))
}

func (a *App) promptLabel() string {
	if n := len(a.attachments); n > 0 {
		return fmt.Sprintf("[%d files] > ", n)
	}
	return "> "
}

// reportTurnError prints why a turn did not complete.
func (a *App) reportTurnError(err error) {
	switch {
	case err == nil:
	case errors.Is(err, tokens.ErrBudgetExhausted):
		a.renderer.Error("The message does not fit the context window. Remove attachments or use /reset.")
	case errors.Is(err, context.Canceled):
		a.renderer.Warning("Cancelled; the message was not saved.")
	default:
		a.renderer.Error(err.Error())
	}
}
