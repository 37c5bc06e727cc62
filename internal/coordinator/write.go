package coordinator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ShayCichocki/forge/internal/units"
	"github.com/ShayCichocki/forge/pkg/models"
)

// WriteFiles writes every generated file under dir, then the manifest,
// README and environment template. A generated README or env template does
// not overwrite a unit-produced file at the same path. It returns the paths
// written, relative to dir.
func WriteFiles(dir string, out *models.GeneratedOutput) ([]string, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	files := append([]models.FileArtifact(nil), out.Files...)
	taken := make(map[string]bool, len(files))
	for _, f := range files {
		taken[f.Path] = true
	}
	for _, extra := range []models.FileArtifact{
		{Path: ManifestFile, Content: out.Manifest},
		{Path: ReadmeFile, Content: out.Readme},
		{Path: EnvTemplateFile, Content: out.EnvTemplate},
	} {
		if extra.Content != "" && !taken[extra.Path] {
			files = append(files, extra)
		}
	}

	var written []string
	for _, f := range files {
		rel, err := units.CleanPath(f.Path)
		if err != nil {
			return written, err
		}
		target := filepath.Join(root, filepath.FromSlash(rel))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return written, fmt.Errorf("file path %q escapes the output directory", f.Path)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return written, fmt.Errorf("create directory for %s: %w", rel, err)
		}
		if err := os.WriteFile(target, []byte(f.Content), 0644); err != nil {
			return written, fmt.Errorf("write %s: %w", rel, err)
		}
		written = append(written, rel)
	}
	return written, nil
}
