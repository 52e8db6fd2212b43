package permission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gptcli/model"
)

// scriptedPrompter answers prompts from a fixed queue and records them.
type scriptedPrompter struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts []Prompt
	typed   []bool
}

func (s *scriptedPrompter) next(p Prompt, typed bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, p)
	s.typed = append(s.typed, typed)
	if s.err != nil {
		return "", s.err
	}
	if len(s.answers) == 0 {
		return "n", nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

func (s *scriptedPrompter) Confirm(_ context.Context, p Prompt) (bool, error) {
	a, err := s.next(p, false)
	return AcceptsConfirm(a), err
}

func (s *scriptedPrompter) ConfirmTyped(_ context.Context, p Prompt) (bool, error) {
	a, err := s.next(p, true)
	return AcceptsTyped(a), err
}

func TestDecideDangerousCommand(t *testing.T) {
	for _, level := range []TrustLevel{TrustFull, TrustReadOnly, TrustNone} {
		t.Run(string(level), func(t *testing.T) {
			g := NewGate(level, &scriptedPrompter{}, "", nil)
			d := g.Decide("Bash", map[string]any{"command": "rm -rf /"})
			assert.Equal(t, AskUser, d.Verdict)
			assert.True(t, d.RequireTypedConfirmation)
		})
	}

	g := NewGate(TrustFull, nil, "", nil)
	d := g.Decide("Bash", map[string]any{"command": "rm -rf /"})
	assert.Equal(t, Deny, d.Verdict)
}

func TestDecideByTrustLevel(t *testing.T) {
	tests := []struct {
		level       TrustLevel
		tool        string
		interactive bool
		want        Verdict
	}{
		{TrustFull, "Write", true, Allow},
		{TrustFull, "Bash", false, Allow},
		{TrustReadOnly, "Read", true, Allow},
		{TrustReadOnly, "Grep", false, Allow},
		{TrustReadOnly, "Edit", true, AskUser},
		{TrustReadOnly, "Edit", false, Deny},
		{TrustNone, "Glob", true, AskUser},
		{TrustNone, "Glob", false, Deny},
	}
	for _, tt := range tests {
		t.Run(string(tt.level)+"/"+tt.tool, func(t *testing.T) {
			var p Prompter
			if tt.interactive {
				p = &scriptedPrompter{}
			}
			g := NewGate(tt.level, p, "", nil)
			d := g.Decide(tt.tool, map[string]any{"command": "ls"})
			assert.Equal(t, tt.want, d.Verdict)
			assert.False(t, d.RequireTypedConfirmation)
		})
	}
}

func TestDangerousPatterns(t *testing.T) {
	dangerous := []string{
		"rm -rf /",
		"rm -rf ~",
		"RM -RF /etc",
		"rm -r *",
		"mkfs.ext4 /dev/sda1",
		"dd if=/dev/zero of=/dev/sda",
		"echo x > /dev/sda",
		"chmod -R 777 /",
		"chown -R me /",
		":(){ :|:& };:",
		"sudo rm file",
		"sudo dd if=a of=b",
		"cat x > /etc/passwd",
		"echo > /etc/shadow",
		"git push origin main --force",
		"git reset --hard HEAD~3",
	}
	for _, cmd := range dangerous {
		assert.True(t, IsDangerousCommand(cmd), cmd)
	}
	safe := []string{"ls -la", "rm build/out.o", "git push origin main", "git reset --hard origin/main", "echo hi"}
	for _, cmd := range safe {
		assert.False(t, IsDangerousCommand(cmd), cmd)
	}
}

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	call := func(name string) model.ToolCall { return model.ToolCall{ID: "c1", Name: name} }

	t.Run("typed confirmation accepted", func(t *testing.T) {
		p := &scriptedPrompter{answers: []string{"yes"}}
		g := NewGate(TrustFull, p, "", nil)
		ok, msg := g.Authorize(ctx, call("Bash"), map[string]any{"command": "rm -rf /"})
		assert.True(t, ok)
		assert.Empty(t, msg)
		require.Len(t, p.prompts, 1)
		assert.True(t, p.typed[0])
		assert.True(t, p.prompts[0].Dangerous)
		assert.Equal(t, "rm -rf /", p.prompts[0].Preview)
	})

	t.Run("typed confirmation needs the word", func(t *testing.T) {
		p := &scriptedPrompter{answers: []string{"y"}}
		g := NewGate(TrustFull, p, "", nil)
		ok, msg := g.Authorize(ctx, call("Bash"), map[string]any{"command": "rm -rf /"})
		assert.False(t, ok)
		assert.Equal(t, "User declined to run Bash.", msg)
	})

	t.Run("empty answer approves", func(t *testing.T) {
		p := &scriptedPrompter{answers: []string{""}}
		g := NewGate(TrustNone, p, "", nil)
		ok, _ := g.Authorize(ctx, call("Read"), map[string]any{"file_path": "a"})
		assert.True(t, ok)
		assert.False(t, p.typed[0])
	})

	t.Run("prompt error declines", func(t *testing.T) {
		p := &scriptedPrompter{err: errors.New("eof")}
		g := NewGate(TrustNone, p, "", nil)
		ok, msg := g.Authorize(ctx, call("Write"), map[string]any{})
		assert.False(t, ok)
		assert.Equal(t, DeclinedMessage("Write"), msg)
	})

	t.Run("non-interactive dangerous", func(t *testing.T) {
		g := NewGate(TrustFull, nil, "", nil)
		ok, msg := g.Authorize(ctx, call("Bash"), map[string]any{"command": "sudo rm x"})
		assert.False(t, ok)
		assert.Equal(t, "Blocked dangerous command: sudo rm x", msg)
	})

	t.Run("allowed without prompting", func(t *testing.T) {
		p := &scriptedPrompter{}
		g := NewGate(TrustReadOnly, p, "", nil)
		ok, _ := g.Authorize(ctx, call("Glob"), map[string]any{"pattern": "*"})
		assert.True(t, ok)
		assert.Empty(t, p.prompts)
	})
}

func TestSetTrustLevel(t *testing.T) {
	g := NewGate(TrustFull, nil, "", nil)
	assert.Equal(t, Allow, g.Decide("Write", nil).Verdict)
	g.SetTrustLevel(TrustNone)
	assert.Equal(t, TrustNone, g.TrustLevel())
	assert.Equal(t, Deny, g.Decide("Write", nil).Verdict)
	assert.Contains(t, g.Status(), "none")
}

func TestParseTrustLevel(t *testing.T) {
	for in, want := range map[string]TrustLevel{
		"full": TrustFull, "READ_ONLY": TrustReadOnly, "read-only": TrustReadOnly, " none ": TrustNone,
	} {
		got, err := ParseTrustLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseTrustLevel("sometimes")
	assert.Error(t, err)
}

func TestBuildPromptEdit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc a() {}\n"), 0o644))

	p := BuildPrompt("Edit", map[string]any{
		"file_path":  "main.go",
		"old_string": "func a() {}",
		"new_string": "func a() {\n\treturn\n}",
	}, dir)
	assert.Equal(t, "diff", p.Language)
	assert.Equal(t, "main.go L3  -1 +3 lines (+2)", p.Header)
	assert.Contains(t, p.Preview, "--- a/main.go")
	assert.Contains(t, p.Preview, "+++ b/main.go")
	assert.Contains(t, p.Preview, "-func a() {}")
	assert.Contains(t, p.Preview, "+\treturn")
}

func TestBuildPromptWrite(t *testing.T) {
	content := strings.Repeat("line\n", 100)
	p := BuildPrompt("Write", map[string]any{"file_path": "x.py", "content": content}, "")
	assert.Equal(t, "py", p.Language)
	assert.Contains(t, p.Header, "101 lines")
	assert.Contains(t, p.Preview, "lines omitted")
	assert.LessOrEqual(t, strings.Count(p.Preview, "\n"), 30)
}

func TestBuildPromptOther(t *testing.T) {
	p := BuildPrompt("Grep", map[string]any{"pattern": "x", "path": strings.Repeat("p", 150)}, "")
	lines := strings.Split(p.Preview, "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "path: "+strings.Repeat("p", 100)+"...", lines[0])
	assert.Equal(t, "pattern: x", lines[1])
}
