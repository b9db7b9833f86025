package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalWriter writes rasters into a directory on local disk
type LocalWriter struct {
	dir string
}

// NewLocalWriter creates the output directory if needed
func NewLocalWriter(dir string) (*LocalWriter, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &LocalWriter{dir: dir}, nil
}

// WriteRaster stores the raster as a file and returns its path
func (w *LocalWriter) WriteRaster(_ context.Context, name string, data []byte) (string, error) {
	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write raster file: %w", err)
	}
	return path, nil
}
