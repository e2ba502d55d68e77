// Package artifact stores fetched report documents on the filesystem, one file per
// identifier.
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sheltercrawl/internal/components/chrono"
	"sort"
	"strings"
	"time"
)

const (
	prefix    = "A"
	extension = ".htm"
)

// ErrNotFound is returned by Load when no document is stored for an identifier.
var ErrNotFound = errors.New("artifact not found")

// RawDocument is a fetched report page.
type RawDocument struct {
	ID        string
	Content   []byte
	FetchedAt time.Time
}

// Store keeps documents under `A<id>.htm` in a single directory.
type Store struct {
	dir   string
	clock chrono.API
}

// NewStore creates `dir` if it does not exist.
func NewStore(dir string, clock chrono.API) (Store, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return Store{}, err
	}
	return Store{dir: dir, clock: clock}, nil
}

func (s Store) Dir() string {
	return s.dir
}

// Key is the file name a document is stored under.
func Key(id string) string {
	return prefix + id + extension
}

func (s Store) path(id string) string {
	return filepath.Join(s.dir, Key(id))
}

func (s Store) Exists(id string) bool {
	info, err := os.Stat(s.path(id))
	return err == nil && info.Mode().IsRegular()
}

// Write stores `content` for `id`. The file is written under a temporary name and renamed
// into place so a partially written document is never visible under its key.
func (s Store) Write(id string, content []byte) error {
	tmp, err := os.CreateTemp(s.dir, "."+Key(id)+".*.tmp")
	if err != nil {
		return fmt.Errorf("write A%s: %w", id, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, err = tmp.Write(content)
	if err == nil {
		err = tmp.Sync()
	}
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("write A%s: %w", id, err)
	}

	now := s.clock.Now()
	err = os.Chtimes(tmpName, now, now)
	if err != nil {
		return fmt.Errorf("write A%s: %w", id, err)
	}
	err = os.Rename(tmpName, s.path(id))
	if err != nil {
		return fmt.Errorf("write A%s: %w", id, err)
	}
	return nil
}

func (s Store) Load(id string) (RawDocument, error) {
	path := s.path(id)
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return RawDocument{}, fmt.Errorf("load A%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return RawDocument{}, fmt.Errorf("load A%s: %w", id, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return RawDocument{}, fmt.Errorf("load A%s: %w", id, err)
	}
	return RawDocument{
		ID:        id,
		Content:   content,
		FetchedAt: info.ModTime().In(s.clock.Location()),
	}, nil
}

// List returns the identifiers of every stored document in sorted order.
func (s Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() ||
			!strings.HasPrefix(name, prefix) ||
			!strings.HasSuffix(name, extension) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(strings.TrimPrefix(name, prefix), extension))
	}
	sort.Strings(ids)
	return ids, nil
}
