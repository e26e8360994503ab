package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// Partial uploads live in this subdirectory of the upload directory, which
// ValidateKey makes unreachable.
const diskTempDir = ".tmp"

// DiskStore keeps objects as files in a single directory.
type DiskStore struct {
	dir string
}

// NewDiskStore constructs a DiskStore rooted at dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload directory is required")
	}
	return &DiskStore{dir: filepath.Clean(dir)}, nil
}

// EnsureBucket creates the upload directory.
func (d *DiskStore) EnsureBucket(_ context.Context) error {
	return os.MkdirAll(filepath.Join(d.dir, diskTempDir), 0o755)
}

// Put writes the object to a temporary file, syncs it and renames it into
// place so readers never observe a partial file.
func (d *DiskStore) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	tmpDir := filepath.Join(d.dir, diskTempDir)
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(tmpDir, "upload-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return err
	}
	if size >= 0 && written != size {
		_ = tmp.Close()
		return fmt.Errorf("short write: %d of %d bytes", written, size)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, filepath.Join(d.dir, key))
}

// Get opens the stored file. The content type is derived from the extension.
func (d *DiskStore) Get(_ context.Context, key string) (*Object, error) {
	f, err := os.Open(filepath.Join(d.dir, key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &Object{
		ReadCloser:  f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(key)),
	}, nil
}

// Delete removes the stored file.
func (d *DiskStore) Delete(_ context.Context, key string) error {
	err := os.Remove(filepath.Join(d.dir, key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrObjectNotFound
	}
	return err
}

// Bucket returns the upload directory.
func (d *DiskStore) Bucket() string {
	return d.dir
}
