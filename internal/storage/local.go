package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Local keeps blobs in a directory on the local filesystem.
type Local struct {
	dir string
}

func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

func (l *Local) path(key string) string {
	return filepath.Join(l.dir, filepath.Base(key))
}

func (l *Local) Put(ctx context.Context, key, localPath string) error {
	if localPath == l.path(key) {
		return nil // already in place
	}
	return copyFile(localPath, l.path(key))
}

func (l *Local) Fetch(ctx context.Context, key, localPath string) error {
	if localPath == l.path(key) {
		return nil
	}
	return copyFile(l.path(key), localPath)
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := os.Remove(l.path(key)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
