package services

import (
	"io"
	"os"
	"path/filepath"
)

// BlobStore is the byte store behind the engine. Bytes are addressed solely by
// storage key. Both the direct-upload and chunk-merge paths write through it.
type BlobStore interface {
	// Save streams src into the slot for key, replacing any previous content.
	Save(key string, src io.Reader) (int64, error)
	// Open returns a reader over the stored bytes. os.IsNotExist-style errors
	// are reported via ErrNotFound by callers that care.
	Open(key string) (io.ReadCloser, error)
	// Remove deletes the stored bytes. Removing an absent key returns an error
	// satisfying os.IsNotExist so callers can treat it as already-deleted.
	Remove(key string) error
	Exists(key string) bool
}

// DiskStore keeps blobs on the local filesystem, fanned out by key prefix to
// avoid oversized directories.
type DiskStore struct {
	root string
}

func NewDiskStore(root string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &DiskStore{root: root}, nil
}

func (s *DiskStore) path(key string) string {
	if len(key) >= 2 {
		return filepath.Join(s.root, key[:2], key)
	}
	return filepath.Join(s.root, key)
}

func (s *DiskStore) Save(key string, src io.Reader) (int64, error) {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return 0, err
	}
	return n, nil
}

func (s *DiskStore) Open(key string) (io.ReadCloser, error) {
	return os.Open(s.path(key))
}

func (s *DiskStore) Remove(key string) error {
	return os.Remove(s.path(key))
}

func (s *DiskStore) Exists(key string) bool {
	_, err := os.Stat(s.path(key))
	return err == nil
}
