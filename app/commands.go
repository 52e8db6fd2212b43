package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"gptcli/model"
	"gptcli/permission"
	"gptcli/storage"
	"gptcli/summarize"
	"gptcli/tokens"
	"gptcli/ui"
)

type command struct {
	name    string
	aliases []string
	usage   string
	help    string
	run     func(ctx context.Context, args []string) bool
}

func (a *App) buildCommands() []command {
	return []command{
		{name: "/exit", aliases: []string{"/quit"}, help: "Quit", run: a.cmdExit},
		{name: "/commands", aliases: []string{"/help"}, help: "List commands", run: a.cmdCommands},
		{name: "/reset", usage: "[--no-snapshot|--hard]", help: "Clear the conversation (backs it up first unless told otherwise)", run: a.cmdReset},
		{name: "/raw", help: "Toggle markdown rendering and highlighting", run: a.cmdRaw},
		{name: "/model", usage: "[query]", help: "Search models and switch", run: a.cmdModel},
		{name: "/tools", help: "Toggle tool use", run: a.cmdTools},
		{name: "/trust", usage: "[full|read_only|none]", help: "Show or set which tools run without asking", run: a.cmdTrust},
		{name: "/toolforce", help: "Toggle forcing a tool call every round", run: a.cmdToolForce},
		{name: "/summarize", usage: "[--force]", help: "Summarize older messages now", run: a.cmdSummarize},
		{name: "/summary", help: "Show the current summary", run: a.cmdSummary},
		{name: "/context", usage: "[-v] [--top N]", help: "Show token usage of the context", run: a.cmdContext},
		{name: "/copy", usage: "[n]", help: "Copy code block n of the last reply", run: a.cmdCopy},
		{name: "/last", help: "Show the last reply again", run: a.cmdLast},
		{name: "/session", usage: "[name]", help: "Switch to or create a session", run: a.cmdSession},
		{name: "/sessions", usage: "[query]", help: "List sessions or search their messages", run: a.cmdSessions},
		{name: "/backup", help: "Back up the current session", run: a.cmdBackup},
		{name: "/restore", help: "Restore the newest backup of this session", run: a.cmdRestore},
		{name: "/files", usage: "<paths...>", help: "Attach files to the next message", run: a.cmdFiles},
		{name: "/clearfiles", help: "Drop pending attachments", run: a.cmdClearFiles},
	}
}

func (a *App) commandNames() []string {
	var names []string
	for _, c := range a.commands {
		names = append(names, c.name)
	}
	return names
}

func (a *App) lookup(name string) (command, bool) {
	for _, c := range a.commands {
		if c.name == name {
			return c, true
		}
		for _, alias := range c.aliases {
			if alias == name {
				return c, true
			}
		}
	}
	return command{}, false
}

// dispatch runs a slash command line and reports whether to quit.
func (a *App) dispatch(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	name, args := strings.ToLower(fields[0]), fields[1:]
	c, ok := a.lookup(name)
	if !ok {
		a.renderer.Error(fmt.Sprintf("Unknown command %s. Type /commands for the list.", name))
		return false
	}
	a.logger.Debug("command", zap.String("name", c.name), zap.Strings("args", args))
	return c.run(ctx, args)
}

func (a *App) cmdExit(context.Context, []string) bool {
	return true
}

func (a *App) cmdCommands(context.Context, []string) bool {
	var b strings.Builder
	for _, c := range a.commands {
		left := c.name
		if c.usage != "" {
			left += " " + c.usage
		}
		fmt.Fprintf(&b, "%-34s %s\n", left, ui.DimStyle.Render(c.help))
	}
	a.renderer.Println(strings.TrimRight(b.String(), "\n"))
	return false
}

func (a *App) cmdReset(_ context.Context, args []string) bool {
	hard := hasFlag(args, "--hard")
	noSnapshot := hasFlag(args, "--no-snapshot")

	switch {
	case hard:
		n, err := a.sessions.DeleteBackups(a.session.ID)
		if err != nil {
			a.renderer.Error(err.Error())
			return false
		}
		if a.history != nil {
			if err := a.history.DeleteSession(a.session.ID); err != nil {
				a.logger.Warn("failed to clear session history", zap.Error(err))
			}
		}
		a.renderer.Info(fmt.Sprintf("Deleted %d backups.", n))
	case !noSnapshot && a.transcript.Len() > 0:
		if err := a.save(); err == nil {
			if _, err := a.sessions.Backup(a.session.ID); err != nil {
				a.renderer.Warning(fmt.Sprintf("Backup failed, /restore will not undo this reset: %v", err))
			}
		}
	}

	a.transcript.Reset()
	a.session.UsageHistory = nil
	a.lastCode = nil
	if err := a.save(); err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	mode := "soft"
	if hard {
		mode = "hard"
	} else if noSnapshot {
		mode = "no snapshot"
	}
	a.renderer.Success(fmt.Sprintf("Session %q cleared (%s).", a.session.Name, mode))
	return false
}

func (a *App) cmdRaw(context.Context, []string) bool {
	a.renderer.SetPretty(!a.renderer.Pretty())
	if a.renderer.Pretty() {
		a.renderer.Info("Pretty output on.")
	} else {
		a.renderer.Info("Raw output on.")
	}
	return false
}

func (a *App) cmdModel(ctx context.Context, args []string) bool {
	models := a.listModels(ctx)
	if len(models) == 0 {
		a.renderer.Error("No models available.")
		return false
	}

	query := strings.Join(args, " ")
	for _, m := range models {
		if query != "" && (m.Name == query || m.DisplayName() == query) {
			a.applyModel(m)
			return false
		}
	}
	matches := ui.FilterModels(models, query)
	switch len(matches) {
	case 0:
		a.renderer.Warning(fmt.Sprintf("No model matches %q.", query))
		return false
	case 1:
		if query != "" {
			a.applyModel(matches[0])
			return false
		}
	}
	if len(matches) > 30 {
		matches = matches[:30]
	}
	a.renderer.Println(ui.RenderModelList(matches, a.modelName))

	answer, err := a.editor.ReadLine(ctx, "Model number (Enter to cancel): ")
	if err != nil || strings.TrimSpace(answer) == "" {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(answer))
	if err != nil || n < 1 || n > len(matches) {
		a.renderer.Error(fmt.Sprintf("Enter a number between 1 and %d.", len(matches)))
		return false
	}
	a.applyModel(matches[n-1])
	return false
}

// listModels gathers the models of every provider. Unreachable providers
// are skipped.
func (a *App) listModels(ctx context.Context) []model.ModelInfo {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if a.spinner != nil {
		a.spinner.Start(" Fetching models...")
		defer a.spinner.Stop()
	}

	ids := make([]string, 0, len(a.providers))
	for id := range a.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var all []model.ModelInfo
	for _, id := range ids {
		models, err := a.providers[id].ListModels(ctx)
		if err != nil {
			a.logger.Warn("failed to list models", zap.String("provider", id), zap.Error(err))
			continue
		}
		for _, m := range models {
			if m.Provider == "" {
				m.Provider = id
			}
			all = append(all, m)
		}
	}
	return all
}

// applyModel switches to m and its provider.
func (a *App) applyModel(m model.ModelInfo) {
	id, p := a.providerFor(m)
	if p == nil {
		a.renderer.Error(fmt.Sprintf("No configured provider serves %s.", m.Name))
		return
	}
	p.SetModel(m.Name)
	a.provider, a.providerID, a.modelName = p, id, m.Name
	if m.ContextLength > 0 {
		a.contextLength = m.ContextLength
	}
	a.loop.SetProvider(p)
	a.estimator = tokens.NewEstimator(m.Name)
	history := a.engine.History()
	a.engine = summarize.NewEngine(p, a.estimator, a.engineOptions())
	a.engine.SetHistory(history)
	if err := a.save(); err != nil {
		a.logger.Warn("failed to save session after model switch", zap.Error(err))
	}
	a.renderer.Success(fmt.Sprintf("Model: %s (%s, %d token context)", m.DisplayName(), id, a.contextLength))
}

func (a *App) providerFor(m model.ModelInfo) (string, model.Provider) {
	if p, ok := a.providers[m.Provider]; ok {
		return m.Provider, p
	}
	for id, p := range a.providers {
		if p.Name() == m.Provider {
			return id, p
		}
	}
	return "", nil
}

func (a *App) cmdTools(context.Context, []string) bool {
	a.toolsEnabled = !a.toolsEnabled
	if a.toolsEnabled {
		a.renderer.Success("Tools on: the model may read, write and edit files and run commands.")
		a.renderer.Info(a.gate.Status())
	} else {
		a.renderer.Info("Tools off: the model answers with text only.")
	}
	return false
}

func (a *App) cmdTrust(_ context.Context, args []string) bool {
	if len(args) == 0 {
		a.renderer.Println(a.gate.Status())
		for _, l := range []permission.TrustLevel{permission.TrustFull, permission.TrustReadOnly, permission.TrustNone} {
			a.renderer.Info(fmt.Sprintf("  %-10s %s", l, l.Describe()))
		}
		return false
	}
	level, err := permission.ParseTrustLevel(args[0])
	if err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.gate.SetTrustLevel(level)
	a.renderer.Success(a.gate.Status())
	return false
}

func (a *App) cmdToolForce(context.Context, []string) bool {
	a.forceTools = !a.forceTools
	if a.forceTools {
		if !a.toolsEnabled {
			a.toolsEnabled = true
			a.renderer.Info("Tools turned on.")
		}
		a.renderer.Success("Force mode on: the model must call a tool every round.")
	} else {
		a.renderer.Info("Force mode off.")
	}
	return false
}

func (a *App) cmdSummarize(ctx context.Context, args []string) bool {
	msgs := a.transcript.Messages()
	if len(msgs) == 0 {
		a.renderer.Warning("Nothing to summarize.")
		return false
	}
	force := hasFlag(args, "--force") || hasFlag(args, "-f")

	used, ratio := a.engine.Usage(msgs, a.budget())
	a.renderer.Info(fmt.Sprintf("Context: %d tokens (%.1f%% of available), %d messages", used, ratio*100, len(msgs)))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if a.spinner != nil {
		a.spinner.Start(" Summarizing...")
	}
	out, done, err := a.engine.Summarize(ctx, msgs, a.modelName, force)
	if a.spinner != nil {
		a.spinner.Stop()
	}
	switch {
	case errors.Is(err, summarize.ErrTooFewMessages), errors.Is(err, summarize.ErrMaxLevel):
		a.renderer.Warning(err.Error() + "; use /summarize --force to override.")
		return false
	case err != nil:
		a.renderer.Error(err.Error())
		return false
	case !done:
		a.renderer.Info("Nothing was summarized.")
		return false
	}

	a.transcript.Replace(out)
	if err := a.save(); err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.renderer.Success("Summary saved to the session.")
	return false
}

func (a *App) cmdSummary(context.Context, []string) bool {
	msg, ok := summarize.LatestSummary(a.transcript.Messages())
	if !ok {
		a.renderer.Warning("This session has no summary. Use /summarize to create one.")
		return false
	}
	a.renderer.Message(msg)

	meta := msg.Summary
	rows := [][2]string{
		{"Created", meta.CreatedAt.Format("2006-01-02 15:04:05")},
		{"Messages summarized", strconv.Itoa(meta.SummarizedMessageCount)},
		{"Original tokens", strconv.Itoa(meta.SummarizedTokens)},
		{"Summary tokens", strconv.Itoa(meta.SummaryTokens)},
		{"Compression", fmt.Sprintf("%.1f%%", meta.CompressionRatio*100)},
		{"Model", meta.ModelUsed},
		{"Level", strconv.Itoa(meta.Level)},
	}
	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%-22s %s\n", r[0], r[1])
	}
	a.renderer.Println(ui.PanelStyle.Render(strings.TrimRight(b.String(), "\n")))

	if history, err := a.engine.History().List(); err == nil && len(history) > 1 {
		a.renderer.Info(fmt.Sprintf("%d summaries made in this session.", len(history)))
	}
	return false
}

func (a *App) cmdContext(_ context.Context, args []string) bool {
	verbose := hasFlag(args, "-v") || hasFlag(args, "--verbose")
	top := 5
	for i, arg := range args {
		if arg == "--top" && i+1 < len(args) {
			n, err := strconv.Atoi(args[i+1])
			if err != nil || n <= 0 {
				a.renderer.Error("--top needs a positive number.")
				return false
			}
			top = n
			verbose = true
		}
	}

	msgs := a.transcript.Messages()
	report := tokens.BuildReport(msgs, a.budget(), a.estimator, top)
	a.renderer.Println(ui.RenderContextReport(report, msgs, verbose, a.renderer.Width()))

	if pending := len(a.attachments); pending > 0 {
		total := 0
		for _, path := range a.attachments {
			if part, err := loadAttachment(path); err == nil {
				total += attachmentTokens(a.estimator, part)
			}
		}
		a.renderer.Info(fmt.Sprintf("Pending attachments: %d files, ~%d tokens", pending, total))
	}

	u := a.session.TotalUsage()
	if a.history != nil {
		if totals, err := a.history.UsageTotals(a.session.ID); err == nil && totals.TotalTokens > u.TotalTokens {
			u = totals
		}
	}
	if u.TotalTokens > 0 {
		a.renderer.Info(fmt.Sprintf("Billed this session: %d prompt · %d completion · %d total tokens",
			u.PromptTokens, u.CompletionTokens, u.TotalTokens))
	}
	return false
}

func (a *App) cmdCopy(_ context.Context, args []string) bool {
	if len(a.lastCode) == 0 {
		a.renderer.Warning("The last reply has no code blocks.")
		return false
	}
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil {
			a.renderer.Error("Usage: /copy [n]")
			return false
		}
	}
	if n < 1 || n > len(a.lastCode) {
		a.renderer.Error(fmt.Sprintf("Enter a number between 1 and %d.", len(a.lastCode)))
		return false
	}

	code := a.lastCode[n-1].Text
	if err := ui.CopyToClipboard(code); err != nil {
		a.renderer.Warning(fmt.Sprintf("Copy failed (%v). The code is below:", err))
		a.renderer.Println(code)
		return false
	}
	a.renderer.Success(fmt.Sprintf("Copied code block #%d.", n))
	return false
}

func (a *App) cmdLast(context.Context, []string) bool {
	msg, ok := a.transcript.LastAssistant()
	if !ok {
		a.renderer.Warning("No reply yet.")
		return false
	}
	a.renderer.Message(msg)
	return false
}

func (a *App) cmdSession(_ context.Context, args []string) bool {
	if len(args) == 0 {
		metas, err := a.sessions.List()
		if err != nil {
			a.renderer.Error(err.Error())
			return false
		}
		a.renderer.Println(ui.RenderSessionList(metas, a.session.Name))
		a.renderer.Info("Use /session <name> to switch.")
		return false
	}

	name := strings.Join(args, " ")
	if err := a.switchSession(name); err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.renderer.Success(fmt.Sprintf("Session %q (%d messages).", a.session.Name, a.transcript.Len()))
	return false
}

func (a *App) cmdSessions(_ context.Context, args []string) bool {
	if len(args) == 0 {
		metas, err := a.sessions.List()
		if err != nil {
			a.renderer.Error(err.Error())
			return false
		}
		a.renderer.Println(ui.RenderSessionList(metas, a.session.Name))
		return false
	}
	if err := a.save(); err != nil {
		a.logger.Warn("failed to save before search", zap.Error(err))
	}
	matches, err := storage.NewSearchIndex(a.sessions).SearchAllSessions(strings.Join(args, " "))
	if err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.renderer.Println(ui.RenderSearchResults(matches))
	return false
}

func (a *App) cmdBackup(context.Context, []string) bool {
	if err := a.save(); err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	path, err := a.sessions.Backup(a.session.ID)
	if err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.renderer.Success("Backup written to " + path)
	return false
}

func (a *App) cmdRestore(context.Context, []string) bool {
	session, err := a.sessions.RestoreBackup(a.session.ID)
	if errors.Is(err, storage.ErrNoBackup) {
		a.renderer.Warning("This session has no backup.")
		return false
	}
	if err != nil {
		a.renderer.Error(err.Error())
		return false
	}
	a.setSession(session)
	a.renderer.Success(fmt.Sprintf("Restored %q (%d messages).", session.Name, a.transcript.Len()))
	return false
}

func (a *App) cmdFiles(_ context.Context, args []string) bool {
	if len(args) == 0 {
		if len(a.attachments) == 0 {
			a.renderer.Info("No attachments. Usage: /files <paths...>")
			return false
		}
		for _, f := range a.attachments {
			a.renderer.Println("  " + f)
		}
		return false
	}

	files, missing := expandAttachments(a.executor.BaseDir(), args)
	for _, m := range missing {
		a.renderer.Warning(fmt.Sprintf("%s not found.", m))
	}

	var ok []string
	total := 0
	for _, f := range files {
		part, err := loadAttachment(f)
		if err != nil {
			a.renderer.Warning(err.Error())
			continue
		}
		n := attachmentTokens(a.estimator, part)
		total += n
		ok = append(ok, f)
		a.renderer.Info(fmt.Sprintf("  %s  ~%d tokens", relPath(a.executor.BaseDir(), f), n))
	}
	a.attachments = mergeAttachments(a.attachments, ok)
	if len(a.attachments) > 0 {
		a.renderer.Success(fmt.Sprintf("%d files attached (~%d tokens added).", len(a.attachments), total))
	}
	return false
}

func (a *App) cmdClearFiles(context.Context, []string) bool {
	a.attachments = nil
	a.renderer.Success("Attachments cleared.")
	return false
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

func relPath(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
