// Package report writes run artefacts to disk.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/tidwall/pretty"
)

var unsafeName = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// WriteJSON marshals v, pretty-prints it and writes <dir>/<name>.json.
// The returned path is the file written.
func WriteJSON(dir, name string, v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, unsafeName.ReplaceAllString(name, "_")+".json")
	if err := os.WriteFile(path, pretty.Pretty(raw), 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
