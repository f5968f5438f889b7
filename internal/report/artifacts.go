package report

import (
	"os"
	"path/filepath"
)

// ArtifactsDir returns <workdir>/.usagi/artifacts.
func ArtifactsDir(workdir string) string {
	return filepath.Join(workdir, ".usagi", "artifacts")
}

// WriteArtifact writes name (e.g. "10-boss-plan.md") under the workdir's artifact directory.
func WriteArtifact(workdir, name, content string) (string, error) {
	dir := ArtifactsDir(workdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	p := filepath.Join(dir, name)
	return p, os.WriteFile(p, []byte(content), 0o644)
}
