package app

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptcli/config"
	"gptcli/model"
	"gptcli/provider/testutil"
	"gptcli/storage"
	"gptcli/tokens"
	"gptcli/ui"
)

type testEnv struct {
	app      *App
	out      *bytes.Buffer
	dataDir  string
	workDir  string
	sessions *storage.SessionStorage
	history  *storage.HistoryStore
}

func newTestEnv(t *testing.T, p *testutil.MockProvider, input string, mutate func(*config.Config)) *testEnv {
	t.Helper()
	env := &testEnv{dataDir: t.TempDir(), workDir: t.TempDir(), out: &bytes.Buffer{}}

	cfg := config.DefaultConfig()
	cfg.DataDirectory = env.dataDir
	cfg.PrettyPrint = false
	cfg.Tools.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	var err error
	env.sessions, err = storage.NewSessionStorage(env.dataDir)
	require.NoError(t, err)
	env.history, err = storage.NewHistoryStore(env.dataDir)
	require.NoError(t, err)
	t.Cleanup(func() { env.history.Close() })

	env.app, err = New(Options{
		Config:     cfg,
		Providers:  map[string]model.Provider{"openai": p},
		ProviderID: "openai",
		Sessions:   env.sessions,
		History:    env.history,
		In:         strings.NewReader(input),
		Out:        env.out,
		WorkDir:    env.workDir,
	})
	require.NoError(t, err)
	t.Cleanup(func() { env.app.Close() })
	return env
}

func (e *testEnv) output() string {
	return ui.StripANSI(e.out.String())
}

func TestSendCommitsAndSaves(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.TextTurn("Here:\n```go\nx := 1\n```\n"))
	env := newTestEnv(t, p, "", nil)

	res, err := env.app.Send(context.Background(), "show me code")
	require.NoError(t, err)
	assert.Equal(t, 110, res.Usage.TotalTokens)

	msgs := env.app.Transcript()
	require.Len(t, msgs, 2)
	assert.Equal(t, model.RoleUser, msgs[0].Role)
	assert.Equal(t, "show me code", msgs[0].Content)
	assert.Equal(t, model.RoleAssistant, msgs[1].Role)
	require.Len(t, env.app.lastCode, 1)
	assert.Equal(t, "x := 1", env.app.lastCode[0].Text)

	saved, err := env.sessions.LoadByName(DefaultSessionName)
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2)
	require.Len(t, saved.UsageHistory, 1)
	assert.Equal(t, "gpt-4o", saved.UsageHistory[0].Model)

	totals, err := env.history.UsageTotals(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, 110, totals.TotalTokens)

	assert.Contains(t, env.output(), "x := 1")
	assert.Contains(t, env.output(), "110 total")

	req := p.Requests()[0]
	assert.Equal(t, DefaultSystemPrompt, req.System)
	assert.Empty(t, req.Tools)
}

func TestSendRollsBackOnTransportFailure(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.ErrTurn(errors.New("connection reset")))
	env := newTestEnv(t, p, "", nil)

	_, err := env.app.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Empty(t, env.app.Transcript())

	saved, err := env.sessions.LoadByName(DefaultSessionName)
	require.NoError(t, err)
	assert.Empty(t, saved.Messages)
	assert.Empty(t, saved.UsageHistory)
}

func TestSendRefusesWhenBudgetExhausted(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o")
	env := newTestEnv(t, p, "", func(c *config.Config) { c.ContextLength = 1000 })

	_, err := env.app.Send(context.Background(), "hello")
	require.ErrorIs(t, err, tokens.ErrBudgetExhausted)
	assert.Zero(t, p.CallCount())
	assert.Empty(t, env.app.Transcript())
}

func TestSendRunsApprovedTools(t *testing.T) {
	call := model.ToolCall{ID: "call_1", Name: "Write", Arguments: `{"file_path":"out.txt","content":"written"}`}
	p := testutil.NewScriptedProvider("gpt-4o",
		testutil.ToolTurn("Writing the file.", call),
		testutil.TextTurn("Done."),
	)
	env := newTestEnv(t, p, "", func(c *config.Config) {
		c.Tools.Enabled = true
		c.Tools.TrustLevel = "full"
	})

	res, err := env.app.Send(context.Background(), "write out.txt")
	require.NoError(t, err)
	assert.Equal(t, "Done.", res.Text)

	data, err := os.ReadFile(filepath.Join(env.workDir, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "written", string(data))

	// Tool rounds never reach the persisted transcript.
	msgs := env.app.Transcript()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Done.", msgs[1].Content)
	assert.NotEmpty(t, p.Requests()[0].Tools)
	assert.Contains(t, env.output(), "⏺ Write(out.txt)")
}

func TestSendDeclinedWrite(t *testing.T) {
	call := model.ToolCall{ID: "call_1", Name: "Write", Arguments: `{"file_path":"out.txt","content":"x"}`}
	p := testutil.NewScriptedProvider("gpt-4o",
		testutil.ToolTurn("", call),
		testutil.TextTurn("Okay, I will not write it."),
	)
	env := newTestEnv(t, p, "n\n", func(c *config.Config) {
		c.Tools.Enabled = true
		c.Tools.TrustLevel = "read_only"
	})

	_, err := env.app.Send(context.Background(), "write out.txt")
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(env.workDir, "out.txt"))

	second := p.Requests()[1].Messages
	last := second[len(second)-1]
	assert.Equal(t, model.RoleTool, last.Role)
	assert.Equal(t, "User declined to run Write.", last.Content)
	assert.Contains(t, env.output(), "Allow? [Y/n]")
}

func TestRunDispatchesCommands(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.TextTurn("pong"))
	input := strings.Join([]string{
		"/commands",
		"/tools",
		"/trust full",
		"/trust bogus",
		"/toolforce",
		"/nope",
		"ping",
		"/last",
		"/exit",
		"never read",
	}, "\n") + "\n"
	env := newTestEnv(t, p, input, nil)

	require.NoError(t, env.app.Run(context.Background()))

	out := env.output()
	assert.Contains(t, out, "/summarize [--force]")
	assert.Contains(t, out, "Tools on")
	assert.Contains(t, out, "Trust: full")
	assert.Contains(t, out, `unknown trust level "bogus"`)
	assert.Contains(t, out, "Force mode on")
	assert.Contains(t, out, "Unknown command /nope")
	assert.Equal(t, 2, strings.Count(out, "pong"), "answer and /last")
	assert.True(t, env.app.toolsEnabled)
	assert.True(t, env.app.forceTools)
	assert.Equal(t, 1, p.CallCount())
}

func TestRunStopsAtEOF(t *testing.T) {
	env := newTestEnv(t, testutil.NewScriptedProvider("gpt-4o"), "/raw\n", nil)
	require.NoError(t, env.app.Run(context.Background()))
	assert.True(t, env.app.renderer.Pretty())
}

func TestFilesAttachToNextMessage(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.TextTurn("seen"))
	env := newTestEnv(t, p, "", nil)

	require.NoError(t, os.WriteFile(filepath.Join(env.workDir, "notes.md"), []byte("# Notes\nremember\n"), 0600))
	f, err := os.Create(filepath.Join(env.workDir, "pic.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))))
	require.NoError(t, f.Close())
	require.NoError(t, os.WriteFile(filepath.Join(env.workDir, "blob.bin"), []byte{0, 1, 2, 0xff}, 0600))

	ctx := context.Background()
	env.app.dispatch(ctx, "/files notes.md pic.png blob.bin missing.txt")
	assert.Len(t, env.app.attachments, 2)
	assert.Contains(t, env.output(), "missing.txt not found")
	assert.Contains(t, env.output(), "blob.bin is not a text, image or PDF file")
	assert.Equal(t, "[2 files] > ", env.app.promptLabel())

	_, err = env.app.Send(ctx, "what is in these?")
	require.NoError(t, err)
	assert.Empty(t, env.app.attachments)

	sent := p.Requests()[0].Messages[0]
	require.Len(t, sent.Parts, 3)
	assert.Equal(t, "what is in these?", sent.Parts[0].Text)
	assert.Contains(t, sent.Parts[1].Text, "remember")
	assert.Equal(t, model.PartImage, sent.Parts[2].Type)
	assert.Equal(t, "image/png", sent.Parts[2].MediaType)

	env.app.dispatch(ctx, "/files notes.md")
	env.app.dispatch(ctx, "/clearfiles")
	assert.Empty(t, env.app.attachments)
}

func TestSessionSwitchAndSearch(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o",
		testutil.TextTurn("first answer"),
		testutil.TextTurn("second answer"),
	)
	env := newTestEnv(t, p, "", nil)
	ctx := context.Background()

	_, err := env.app.Send(ctx, "alpha question")
	require.NoError(t, err)
	firstID := env.app.Session().ID

	env.app.dispatch(ctx, "/session work")
	assert.Equal(t, "work", env.app.Session().Name)
	assert.Empty(t, env.app.Transcript())

	_, err = env.app.Send(ctx, "beta question")
	require.NoError(t, err)

	name, err := env.sessions.LoadCurrentSessionName()
	require.NoError(t, err)
	assert.Equal(t, "work", name)

	// The previous session was released and backed up.
	locked, _, err := env.sessions.CheckSessionLock(firstID)
	require.NoError(t, err)
	assert.False(t, locked)
	backups, err := env.sessions.Backups(firstID)
	require.NoError(t, err)
	assert.Len(t, backups, 1)

	env.app.dispatch(ctx, "/sessions alpha")
	assert.Contains(t, env.output(), "alpha question")

	env.app.dispatch(ctx, "/session default")
	assert.Len(t, env.app.Transcript(), 2)

	env.app.dispatch(ctx, "/session")
	assert.Contains(t, env.output(), "▸ default")
}

func TestResetAndRestore(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.TextTurn("answer"))
	env := newTestEnv(t, p, "", nil)
	ctx := context.Background()

	env.app.dispatch(ctx, "/restore")
	assert.Contains(t, env.output(), "no backup")

	_, err := env.app.Send(ctx, "keep me")
	require.NoError(t, err)

	env.app.dispatch(ctx, "/reset")
	assert.Empty(t, env.app.Transcript())
	assert.Empty(t, env.app.Session().UsageHistory)

	env.app.dispatch(ctx, "/restore")
	msgs := env.app.Transcript()
	require.Len(t, msgs, 2)
	assert.Equal(t, "keep me", msgs[0].Content)

	env.app.dispatch(ctx, "/reset --hard")
	assert.Empty(t, env.app.Transcript())
	backups, err := env.sessions.Backups(env.app.Session().ID)
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestManualSummarize(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o",
		testutil.TextTurn("one"),
		testutil.TextTurn("two"),
		testutil.TextTurn("three"),
		testutil.TextTurn("They talked about numbers."),
	)
	env := newTestEnv(t, p, "", nil)
	ctx := context.Background()

	env.app.dispatch(ctx, "/summary")
	assert.Contains(t, env.output(), "no summary")

	for _, q := range []string{"q1", "q2", "q3"} {
		_, err := env.app.Send(ctx, q)
		require.NoError(t, err)
	}
	env.app.dispatch(ctx, "/summarize")
	require.Len(t, env.app.Transcript(), 5)

	msgs := env.app.Transcript()
	require.True(t, msgs[0].IsSummary())
	assert.Contains(t, msgs[0].Content, "They talked about numbers.")
	assert.Equal(t, 1, msgs[0].Summary.Level)

	summaries, err := env.history.Summaries(env.app.Session().ID)
	require.NoError(t, err)
	assert.Len(t, summaries, 1)

	env.app.dispatch(ctx, "/summary")
	assert.Contains(t, env.output(), "Messages summarized")

	env.app.dispatch(ctx, "/context -v")
	assert.Contains(t, env.output(), "1 summaries")
	assert.Contains(t, env.output(), "Billed this session")
}

func TestCopyCommand(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o", testutil.TextTurn("```\nx := 1\n```\n"))
	env := newTestEnv(t, p, "", nil)
	ctx := context.Background()

	env.app.dispatch(ctx, "/copy")
	assert.Contains(t, env.output(), "no code blocks")

	_, err := env.app.Send(ctx, "code please")
	require.NoError(t, err)

	env.app.dispatch(ctx, "/copy 2")
	assert.Contains(t, env.output(), "between 1 and 1")

	env.out.Reset()
	env.app.dispatch(ctx, "/copy 1")
	out := env.output()
	assert.True(t, strings.Contains(out, "Copied code block #1") || strings.Contains(out, "x := 1"), out)
}

func TestModelCommand(t *testing.T) {
	p := testutil.NewScriptedProvider("gpt-4o")
	env := newTestEnv(t, p, "2\n", nil)
	ctx := context.Background()

	env.app.dispatch(ctx, "/model mock-model-1")
	assert.Equal(t, "mock-model-1", env.app.modelName)
	assert.Equal(t, "mock-model-1", p.GetModel())
	assert.Equal(t, 8192, env.app.contextLength)

	env.app.dispatch(ctx, "/model")
	assert.Equal(t, "mock-model-2", env.app.modelName)
	assert.Equal(t, 128000, env.app.contextLength)

	env.app.dispatch(ctx, "/model zzzz")
	assert.Contains(t, env.output(), `No model matches "zzzz"`)
}

func TestSessionLockedByAnotherProcess(t *testing.T) {
	dataDir := t.TempDir()
	sessions, err := storage.NewSessionStorage(dataDir)
	require.NoError(t, err)
	busy := storage.NewSession("busy", "gpt-4o", 0)
	require.NoError(t, sessions.Save(busy))
	lock := filepath.Join(dataDir, "sessions", busy.ID+".lock")
	require.NoError(t, os.WriteFile(lock, []byte(strconv.Itoa(os.Getppid())), 0600))

	cfg := config.DefaultConfig()
	cfg.DataDirectory = dataDir
	_, err = New(Options{
		Config:      cfg,
		Providers:   map[string]model.Provider{"openai": testutil.NewMockProvider("gpt-4o")},
		ProviderID:  "openai",
		Sessions:    sessions,
		In:          strings.NewReader(""),
		Out:         &bytes.Buffer{},
		WorkDir:     t.TempDir(),
		SessionName: "busy",
	})
	assert.ErrorIs(t, err, ErrSessionLocked)
}

func TestNewRequiresProvider(t *testing.T) {
	sessions, err := storage.NewSessionStorage(t.TempDir())
	require.NoError(t, err)
	_, err = New(Options{Config: config.DefaultConfig(), Sessions: sessions, ProviderID: "openai"})
	assert.Error(t, err)
}
