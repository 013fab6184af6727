package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fleetpulse/fleetpulse/pkg/types"
)

// JSONExport writes each report to a file as indented JSON, replacing the
// previous contents atomically.
type JSONExport struct {
	path string
}

// NewJSONExport returns an emitter writing to path.
func NewJSONExport(path string) *JSONExport {
	return &JSONExport{path: path}
}

func (e *JSONExport) Emit(_ context.Context, r *types.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("export: marshal report: %w", err)
	}
	data = append(data, '\n')

	if err := writeAtomic(e.path, data); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	slog.Info("export: report written", "path", e.path, "bytes", len(data), "cycle", r.Cycle)
	return nil
}

// writeAtomic writes data to a temp file in the target directory and renames
// it over path so readers never observe a partial file.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
