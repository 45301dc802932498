package repository

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	yerrors "github.com/frederic-klein/yapm/internal/errors"
)

const (
	// DocDir is the hidden directory beside a local root holding its state.
	DocDir = ".packages"
	// DocFile is the persisted repository document inside DocDir.
	DocFile = "repository.yaml"
)

// DocPath returns the document path for a local root.
func DocPath(root string) string {
	return filepath.Join(root, DocDir, DocFile)
}

// Saver persists repositories that have no local root.
type Saver interface {
	Save() error
}

// LoadLocal loads the repository persisted below root. Without a document a
// fresh, empty repository bound to root is returned.
func LoadLocal(root string) (*Repository, error) {
	r := &Repository{}
	data, err := os.ReadFile(DocPath(root))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("reading %s: %w", DocPath(root), err)
	default:
		if err := yaml.Unmarshal(data, r); err != nil {
			return nil, yerrors.New(yerrors.ParseFailed, "decoding "+DocPath(root), err)
		}
	}
	r.URL = root
	r.Bind()
	return r, nil
}

// SaveLocal writes r below root. The URL is not stored; the file is only
// written when its content changes.
func (r *Repository) SaveLocal(root string) (bool, error) {
	doc := *r
	doc.URL = ""
	data, err := yaml.Marshal(&doc)
	if err != nil {
		return false, fmt.Errorf("encoding repository %s: %w", r.Name, err)
	}

	path := DocPath(root)
	if old, err := os.ReadFile(path); err == nil && bytes.Equal(old, data) {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("writing %s: %w", path, err)
	}
	return true, nil
}

// Save persists r: local repositories (or their reference) to their
// document, others through the shared settings store.
func (r *Repository) Save(store Saver) error {
	if r.IsLocal() {
		_, err := r.target().SaveLocal(r.localDir)
		return err
	}
	if store == nil {
		return nil
	}
	return store.Save()
}
