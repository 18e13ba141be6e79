package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/petasbytes/memchat/internal/safety"
)

// Local keeps each document as a file under a root directory. The handle is
// the slash-separated path relative to the root.
type Local struct {
	root string
}

// NewLocal creates root if needed and returns a store confined to it.
func NewLocal(root string) (*Local, error) {
	if root == "" {
		root = "."
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create store root: %w", err)
	}
	abs, err := safety.ResolveRoot(root)
	if err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

// Root returns the absolute store directory.
func (l *Local) Root() string { return l.root }

func (l *Local) FindByName(ctx context.Context, name string) (DocumentID, error) {
	path, err := safety.ValidateRelPath(l.root, name)
	if err != nil {
		return "", err
	}
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	if !fi.Mode().IsRegular() {
		return "", fmt.Errorf("%s is not a regular file", name)
	}
	return l.handle(path)
}

func (l *Local) Fetch(ctx context.Context, id DocumentID) ([]byte, error) {
	path, err := safety.ValidateRelPath(l.root, filepath.FromSlash(string(id)))
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return b, err
}

func (l *Local) Replace(ctx context.Context, id DocumentID, content []byte) error {
	path, err := safety.ValidateRelPath(l.root, filepath.FromSlash(string(id)))
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	} else if err != nil {
		return err
	}
	return writeAtomic(path, content)
}

func (l *Local) Create(ctx context.Context, name string, content []byte) (DocumentID, error) {
	path, err := safety.ValidateRelPath(l.root, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := writeAtomic(path, content); err != nil {
		return "", err
	}
	return l.handle(path)
}

func (l *Local) handle(abs string) (DocumentID, error) {
	rel, err := filepath.Rel(l.root, abs)
	if err != nil {
		return "", err
	}
	return DocumentID(filepath.ToSlash(rel)), nil
}

// writeAtomic replaces path via a sibling temp file so readers never see a
// half-written document.
func writeAtomic(path string, content []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".memchat-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

var _ Backend = (*Local)(nil)
