package tools

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"
)

const (
	modeFiles   = "files_with_matches"
	modeContent = "content"
	modeCount   = "count"
	noMatches   = "(no matches)"
)

// skipDirs are never descended into by the built-in search.
var skipDirs = map[string]bool{".git": true, "node_modules": true, ".venv": true, "__pycache__": true}

type grepRequest struct {
	pattern         string
	path            string
	glob            string
	mode            string
	caseInsensitive bool
}

func lookupRipgrep() func() string {
	return sync.OnceValue(func() string {
		path, err := exec.LookPath("rg")
		if err != nil {
			return ""
		}
		return path
	})
}

func (e *Executor) grep(ctx context.Context, req grepRequest) (bool, string) {
	if req.pattern == "" {
		return false, "Error: pattern is required"
	}
	switch req.mode {
	case "":
		req.mode = modeFiles
	case modeFiles, modeContent, modeCount:
	default:
		return false, fmt.Sprintf("Error: unknown output_mode %q", req.mode)
	}
	root := e.resolve(req.path)
	if _, err := os.Stat(root); err != nil {
		return false, fmt.Sprintf("Error: path not found: %s", root)
	}
	if rg := e.rgPath(); rg != "" {
		return e.ripgrep(ctx, rg, root, req)
	}
	return e.walkGrep(ctx, root, req)
}

func (e *Executor) ripgrep(ctx context.Context, rg, root string, req grepRequest) (bool, string) {
	args := []string{"--color=never"}
	switch req.mode {
	case modeFiles:
		args = append(args, "-l")
	case modeCount:
		args = append(args, "-c")
	default:
		args = append(args, "-n")
	}
	if req.caseInsensitive {
		args = append(args, "-i")
	}
	if req.glob != "" {
		args = append(args, "--glob", req.glob)
	}
	args = append(args, "-e", req.pattern, root)

	runCtx, cancel := context.WithTimeout(ctx, grepTimeout)
	defer cancel()
	cmd := exec.CommandContext(runCtx, rg, args...)
	cmd.Dir = e.baseDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return true, noMatches
	}
	if err != nil {
		e.logger.Debug("ripgrep failed", zap.Error(err), zap.String("stderr", stderr.String()))
		return false, fmt.Sprintf("Error: search failed: %s", strings.TrimSpace(stderr.String()+" "+err.Error()))
	}
	if stdout.Len() == 0 {
		return true, noMatches
	}
	return true, strings.TrimRight(stdout.String(), "\n")
}

// walkGrep is the fallback used when ripgrep is not installed.
func (e *Executor) walkGrep(ctx context.Context, root string, req grepRequest) (bool, string) {
	expr := req.pattern
	if req.caseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Sprintf("Error: invalid pattern: %v", err)
	}

	var out []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if req.glob != "" && !matchGlob(req.glob, root, path) {
			return nil
		}
		out = append(out, grepFile(re, path, e.display(path), req.mode)...)
		return nil
	})
	if walkErr != nil {
		return false, fmt.Sprintf("Error: search failed: %v", walkErr)
	}
	if len(out) == 0 {
		return true, noMatches
	}
	return true, strings.Join(out, "\n")
}

func matchGlob(pattern, root, path string) bool {
	if ok, _ := doublestar.Match(pattern, filepath.Base(path)); ok {
		return true
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	ok, _ := doublestar.Match(pattern, filepath.ToSlash(rel))
	return ok
}

func grepFile(re *regexp.Regexp, path, name, mode string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	head := make([]byte, 8000)
	n, _ := f.Read(head)
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil
	}

	var lines []string
	count := 0
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for lineNo := 1; sc.Scan(); lineNo++ {
		if !re.MatchString(sc.Text()) {
			continue
		}
		count++
		switch mode {
		case modeFiles:
			return []string{name}
		case modeContent:
			lines = append(lines, fmt.Sprintf("%s:%d:%s", name, lineNo, sc.Text()))
		}
	}
	if mode == modeCount && count > 0 {
		return []string{fmt.Sprintf("%s:%d", name, count)}
	}
	return lines
}

func (e *Executor) glob(pattern, dir string) (bool, string) {
	if pattern == "" {
		return false, "Error: pattern is required"
	}
	root := e.resolve(dir)
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		return false, fmt.Sprintf("Error: directory not found: %s", root)
	}

	var matches []string
	var err error
	if filepath.IsAbs(pattern) {
		matches, err = doublestar.FilepathGlob(pattern)
	} else {
		var rel []string
		rel, err = doublestar.Glob(os.DirFS(root), filepath.ToSlash(pattern))
		for _, m := range rel {
			matches = append(matches, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	if err != nil {
		return false, fmt.Sprintf("Error: invalid glob pattern: %v", err)
	}
	if len(matches) == 0 {
		return true, noMatches
	}

	type entry struct {
		path  string
		mtime int64
	}
	entries := make([]entry, 0, len(matches))
	for _, m := range matches {
		var mt int64
		if info, err := os.Stat(m); err == nil {
			mt = info.ModTime().UnixNano()
		}
		entries = append(entries, entry{path: m, mtime: mt})
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].mtime > entries[j].mtime })

	shown := min(len(entries), MaxGlobResults)
	lines := make([]string, 0, shown+2)
	for _, en := range entries[:shown] {
		lines = append(lines, e.display(en.path))
	}
	lines = append(lines, "", fmt.Sprintf("[%d/%d files]", shown, len(entries)))
	return true, strings.Join(lines, "\n")
}
