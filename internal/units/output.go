package units

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/ShayCichocki/forge/pkg/models"
)

// ParseOutput extracts a unit output from model text. The JSON object is
// located between the first '{' and the last '}' so surrounding prose and
// code fences are tolerated.
func ParseOutput(text string) (*models.UnitOutput, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		preview := text
		if len(preview) > 200 {
			preview = preview[:200] + "... (truncated)"
		}
		return nil, fmt.Errorf("no JSON object found in response (got %d chars): %q", len(text), preview)
	}

	var out models.UnitOutput
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return nil, fmt.Errorf("unmarshal unit output: %w", err)
	}
	if len(out.Files) == 0 {
		return nil, fmt.Errorf("unit output has no files")
	}
	for i := range out.Files {
		clean, err := CleanPath(out.Files[i].Path)
		if err != nil {
			return nil, err
		}
		out.Files[i].Path = clean
	}
	return &out, nil
}

// CleanPath normalizes a generated file path and rejects paths that are
// empty, absolute, or escape the output root.
func CleanPath(p string) (string, error) {
	p = strings.TrimSpace(strings.ReplaceAll(p, "\\", "/"))
	if p == "" {
		return "", fmt.Errorf("empty file path")
	}
	if strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("absolute file path %q", p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("file path %q escapes the output root", p)
	}
	return clean, nil
}
