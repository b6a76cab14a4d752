package common

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalUploader stores artifacts under a directory on disk and returns URLs
// below a base (the API server serves the directory in dev mode). It exists
// so the whole pipeline runs without cloud credentials.
type LocalUploader struct {
	dir     string
	baseURL string
}

// NewLocalUploader creates the directory if needed
func NewLocalUploader(dir, baseURL string) (*LocalUploader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &LocalUploader{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

// Upload writes the artifact under dir/key and returns baseURL/key
func (l *LocalUploader) Upload(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	path := filepath.Join(l.dir, filepath.FromSlash(key))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create artifact file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, body); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}

	return l.baseURL + "/" + key, nil
}
