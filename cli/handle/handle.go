// Package handle persists ingestion operation handles as JSON files so a
// later hopper invocation can resume status tracking where an earlier one
// left off.
package handle

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/hopper/status"
	"github.com/pithecene-io/hopper/types"
)

// DefaultDir is where handles land when no directory is configured.
const DefaultDir = ".hopper"

// Store reads and writes operation handles under one directory.
type Store struct {
	dir string
}

// NewStore returns a store rooted at dir. An empty dir falls back to
// DefaultDir. The directory itself is created on the first write.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = DefaultDir
	}
	return &Store{dir: dir}
}

// Dir returns the directory the store writes into.
func (s *Store) Dir() string { return s.dir }

// Path returns the handle file path for an operation id.
func (s *Store) Path(id uuid.UUID) string {
	return filepath.Join(s.dir, id.String()+".json")
}

// Save writes the operation handle to its default location in the store
// and returns the path written.
func (s *Store) Save(op *types.IngestOperation) (string, error) {
	path := s.Path(op.ID)
	if err := Write(op, path); err != nil {
		return "", err
	}
	return path, nil
}

// Resolve turns a handle reference into a file path. The reference is
// either a path to an existing handle file or a bare operation id looked
// up within the store directory.
func (s *Store) Resolve(ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}
	id, err := uuid.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("%q is neither a handle file nor an operation id", ref)
	}
	path := s.Path(id)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no handle for operation %s in %s", id, s.dir)
	}
	return path, nil
}

// Entry summarizes one stored handle for listing.
type Entry struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Database  string    `json:"database"`
	Table     string    `json:"table"`
	Outcome   string    `json:"outcome"`
	Sources   int       `json:"sources"`
	StartTime time.Time `json:"start_time"`
	Path      string    `json:"path"`
}

// List summarizes every handle in the store, newest first. Files that are
// not parseable handles are skipped. A missing directory lists as empty.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read handle directory %q: %w", s.dir, err)
	}

	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, de.Name())
		op, err := Load(path)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			ID:        op.ID.String(),
			Method:    string(op.Method),
			Database:  op.Database,
			Table:     op.Table,
			Outcome:   Outcome(op),
			Sources:   len(op.Statuses),
			StartTime: op.StartTime,
			Path:      path,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].StartTime.After(entries[j].StartTime)
	})
	return entries, nil
}

// Write writes the operation handle to path. The write goes through a temp
// file and a rename so a reader never sees a partial handle.
func Write(op *types.IngestOperation, path string) error {
	data, err := status.SaveOperation(op)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create handle directory %q: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".handle-*")
	if err != nil {
		return fmt.Errorf("write handle: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write handle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write handle: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write handle: %w", err)
	}
	return nil
}

// Load reads an operation handle from path.
func Load(path string) (*types.IngestOperation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("handle not found: %s", path)
		}
		return nil, fmt.Errorf("read handle %q: %w", path, err)
	}
	op, err := status.LoadOperation(data)
	if err != nil {
		return nil, fmt.Errorf("handle %s: %w", path, err)
	}
	return op, nil
}

// Outcome folds an operation's status counts into a single word for
// display and filtering: pending, succeeded, failed, or partial.
func Outcome(op *types.IngestOperation) string {
	c := op.Counts()
	switch {
	case c.Total() == 0 || !c.Done():
		return "pending"
	case c.Failed == 0 && c.Canceled == 0:
		return "succeeded"
	case c.Succeeded == 0:
		return "failed"
	default:
		return "partial"
	}
}
