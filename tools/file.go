package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (e *Executor) read(filePath string, offset, limit int) (bool, string) {
	if filePath == "" {
		return false, "Error: file_path is required"
	}
	path := e.resolve(filePath)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("Error: file not found: %s", path)
		}
		return false, fmt.Sprintf("Error: failed to read file: %v", err)
	}
	if info.IsDir() {
		return false, fmt.Sprintf("Error: not a file: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("Error: failed to read file: %v", err)
	}

	if offset < 1 {
		offset = 1
	}
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	content := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	if content == "" {
		lines = nil
	}

	start := min(offset-1, len(lines))
	end := min(start+limit, len(lines))
	var b strings.Builder
	for i, line := range lines[start:end] {
		if len(line) > MaxLineLength {
			line = line[:MaxLineLength] + "..."
		}
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%6d\t%s", offset+i, line)
	}
	fmt.Fprintf(&b, "\n\n[%s] %d/%d lines (offset: %d)", filepath.Base(path), end-start, len(lines), offset)
	return true, b.String()
}

func (e *Executor) write(filePath, content string) (bool, string) {
	if filePath == "" {
		return false, "Error: file_path is required"
	}
	path := e.resolve(filePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Sprintf("Error: failed to create directory: %v", err)
	}
	_, statErr := os.Stat(path)
	existed := statErr == nil
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Sprintf("Error: failed to write file: %v", err)
	}

	action := "Created"
	if existed {
		action = "Overwrote"
	}
	return true, fmt.Sprintf("%s file: %s (%d lines, %d chars)", action, path, lineCount(content), len(content))
}

func (e *Executor) edit(filePath, oldString, newString string, replaceAll bool) (bool, string) {
	if filePath == "" {
		return false, "Error: file_path is required"
	}
	if oldString == "" {
		return false, "Error: old_string must not be empty"
	}
	if oldString == newString {
		return false, "Error: old_string and new_string are identical"
	}
	path := e.resolve(filePath)
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, fmt.Sprintf("Error: file not found: %s", path)
		}
		return false, fmt.Sprintf("Error: failed to edit file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Sprintf("Error: failed to edit file: %v", err)
	}
	content := string(data)

	count := strings.Count(content, oldString)
	switch {
	case count == 0:
		preview := oldString
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return false, fmt.Sprintf("Error: old_string not found in %s\nSearched for:\n%s", path, preview)
	case count > 1 && !replaceAll:
		return false, fmt.Sprintf("Error: old_string occurs %d times in %s. "+
			"Include more surrounding context to make it unique, or set replace_all.", count, path)
	}

	n := 1
	if replaceAll {
		n = -1
	}
	updated := strings.Replace(content, oldString, newString, n)
	if err := os.WriteFile(path, []byte(updated), info.Mode().Perm()); err != nil {
		return false, fmt.Sprintf("Error: failed to write file: %v", err)
	}

	oldLines, newLines := strings.Count(oldString, "\n")+1, strings.Count(newString, "\n")+1
	replaced := 1
	if replaceAll {
		replaced = count
	}
	return true, fmt.Sprintf("Edited file: %s (%d replacement(s), %d -> %d lines, %+d)",
		path, replaced, oldLines, newLines, newLines-oldLines)
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(strings.TrimSuffix(s, "\n"), "\n") + 1
}
