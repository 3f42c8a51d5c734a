// Package sink writes exported documents to the local filesystem.
package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"pdf-text-overlay/internal/domain"
)

// Directory implements domain.DownloadSink by writing into a directory.
type Directory struct {
	dir    string
	logger domain.Logger
}

// NewDirectory creates the directory if needed.
func NewDirectory(dir string, logger domain.Logger) (*Directory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	return &Directory{dir: dir, logger: logger}, nil
}

// Save writes data atomically as filename inside the directory.
func (d *Directory) Save(ctx context.Context, data []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	name := filepath.Base(filename)
	if name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("invalid export filename %q", filename)
	}

	tmp, err := os.CreateTemp(d.dir, ".export-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close export: %w", err)
	}

	dst := filepath.Join(d.dir, name)
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("move export into place: %w", err)
	}

	d.logger.Info("Export written", "path", dst, "bytes", len(data))
	return nil
}
