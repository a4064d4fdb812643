package document

import (
	"fmt"
	"os"
	"path/filepath"
)

// LocalFileStore is the built-in FileStore: documents live under a single
// root directory, keyed by the relative path the service computes
// (uploads/{tenantId}/{documentId}{ext}). No third-party object-storage
// client appears anywhere in the corpus this module is grounded on, so this
// stays on the standard library.
type LocalFileStore struct {
	Root string
}

// NewLocalFileStore returns a FileStore rooted at dir, creating it if absent.
func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("document: create uploads root: %w", err)
	}
	return &LocalFileStore{Root: dir}, nil
}

// Write persists data under key atomically: it writes to a temp file in the
// same directory and renames it into place, so a reader never observes a
// partially-written document (§4.7 step 2: "write from memory... atomically").
func (fs *LocalFileStore) Write(key string, data []byte) error {
	full := filepath.Join(fs.Root, filepath.FromSlash(key))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Read returns the bytes stored under key.
func (fs *LocalFileStore) Read(key string) ([]byte, error) {
	return os.ReadFile(filepath.Join(fs.Root, filepath.FromSlash(key)))
}

// Remove best-effort deletes key; a missing file is not an error.
func (fs *LocalFileStore) Remove(key string) error {
	err := os.Remove(filepath.Join(fs.Root, filepath.FromSlash(key)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
