package app

import (
	"encoding/base64"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"gptcli/model"
	"gptcli/tokens"
)

// maxTextAttachment caps inlined text files.
const maxTextAttachment = 512 * 1024

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
}

var skipAttachDirs = map[string]bool{
	".git": true, "node_modules": true, ".venv": true, "__pycache__": true, "vendor": true,
}

// expandAttachments resolves args to absolute file paths. Directories are
// walked; hidden and dependency directories are skipped.
func expandAttachments(baseDir string, args []string) ([]string, []string) {
	var files, missing []string
	for _, arg := range args {
		path := arg
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		info, err := os.Stat(path)
		if err != nil {
			missing = append(missing, arg)
			continue
		}
		if !info.IsDir() {
			files = append(files, filepath.Clean(path))
			continue
		}
		_ = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if p != path && (skipAttachDirs[d.Name()] || strings.HasPrefix(d.Name(), ".")) {
					return filepath.SkipDir
				}
				return nil
			}
			files = append(files, p)
			return nil
		})
	}
	return files, missing
}

// mergeAttachments adds files to current, dropping duplicates, sorted.
func mergeAttachments(current, files []string) []string {
	seen := make(map[string]bool, len(current)+len(files))
	var out []string
	for _, f := range append(append([]string{}, current...), files...) {
		if !seen[f] {
			seen[f] = true
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// loadAttachment reads one file as a content part: images and PDFs are
// base64 parts, anything else must be text and is inlined in a fence.
func loadAttachment(path string) (model.ContentPart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.ContentPart{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	name := filepath.Base(path)
	ext := strings.ToLower(filepath.Ext(path))

	if mt, ok := imageTypes[ext]; ok {
		return model.ImagePart(mt, base64.StdEncoding.EncodeToString(data), "auto"), nil
	}
	if ext == ".pdf" {
		return model.FilePart(name, "application/pdf", base64.StdEncoding.EncodeToString(data)), nil
	}

	if len(data) > maxTextAttachment {
		return model.ContentPart{}, fmt.Errorf("%s is larger than %d KiB", name, maxTextAttachment/1024)
	}
	if !utf8.Valid(data) || !strings.HasPrefix(http.DetectContentType(data), "text/") {
		return model.ContentPart{}, fmt.Errorf("%s is not a text, image or PDF file", name)
	}
	lang := strings.TrimPrefix(ext, ".")
	return model.TextPart(fmt.Sprintf("File: %s\n```%s\n%s\n```", path, lang, strings.TrimRight(string(data), "\n"))), nil
}

// buildUserMessage wraps text and the pending attachments into one message.
func (a *App) buildUserMessage(text string) (model.Message, error) {
	msg := model.NewUserMessage(text)
	if len(a.attachments) == 0 {
		return msg, nil
	}
	parts := []model.ContentPart{model.TextPart(text)}
	for _, path := range a.attachments {
		part, err := loadAttachment(path)
		if err != nil {
			return model.Message{}, err
		}
		parts = append(parts, part)
	}
	msg.Parts = parts
	return msg, nil
}

// attachmentTokens estimates the prompt cost of one attachment.
func attachmentTokens(est *tokens.Estimator, part model.ContentPart) int {
	switch part.Type {
	case model.PartImage:
		return tokens.ImageTokens(part.Data, part.Detail)
	case model.PartFile:
		return tokens.DocumentTokens(part.Data)
	default:
		return est.CountText(part.Text)
	}
}
