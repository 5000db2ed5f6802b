// internal/upload/store.go
//
// Uploaded file storage.
//
// Context
// -------
// file-upload and image-upload columns hold a bare filename relative to
// the upload directory.  When a submission replaces or clears that value,
// or a record is deleted, the old file is removed if the
// `records.delete_uploaded_files` preference is on.  Removal is scheduled
// while columns are normalized and carried out only after the write
// succeeds, so a failed UPDATE never orphans the stored filename.
//
// Notes
// -----
// • Filenames are reduced to their base name before touching disk.
// • Oxford commas, two spaces after periods.

package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Remover deletes stored files by name.
type Remover interface {
	Remove(name string) error
}

// Store is a directory of uploaded files.
type Store struct {
	Dir     string
	Enabled bool // delete_uploaded_files preference
}

// New returns a store rooted at dir.
func New(dir string, enabled bool) *Store {
	return &Store{Dir: dir, Enabled: enabled}
}

// Path resolves name inside the store.  Path components are stripped.
func (s *Store) Path(name string) (string, bool) {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "." || base == "/" || base == ".." || base == "" {
		return "", false
	}
	return filepath.Join(s.Dir, base), true
}

// Remove deletes name when the preference allows it.  A missing file is
// not an error.
func (s *Store) Remove(name string) error {
	if !s.Enabled {
		return nil
	}
	p, ok := s.Path(name)
	if !ok {
		return nil
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove upload %s: %w", name, err)
	}
	return nil
}

// Pending collects filenames to delete after a write commits.  The zero
// value is ready to use.
type Pending struct {
	mu    sync.Mutex
	names []string
}

// Schedule queues name for deletion.  Empty names are ignored.
func (p *Pending) Schedule(name string) {
	if strings.TrimSpace(name) == "" {
		return
	}
	p.mu.Lock()
	p.names = append(p.names, name)
	p.mu.Unlock()
}

// Names returns the queued filenames.
func (p *Pending) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.names...)
}

// Flush removes every queued file through r.  Failures are logged; they
// never undo the write that scheduled them.
func (p *Pending) Flush(r Remover, log *zap.SugaredLogger) {
	if p == nil {
		return
	}
	p.mu.Lock()
	names := p.names
	p.names = nil
	p.mu.Unlock()

	if r == nil {
		return
	}
	if log == nil {
		log = zap.S()
	}
	for _, n := range names {
		if err := r.Remove(n); err != nil {
			log.Warnw("uploaded file not removed", "file", n, "err", err)
		}
	}
}

// Discard drops the queue without deleting anything.
func (p *Pending) Discard() {
	if p == nil {
		return
	}
	p.mu.Lock()
	p.names = nil
	p.mu.Unlock()
}
