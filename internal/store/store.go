// Package store persists the most recent contact import to the filesystem.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smileynet/vcfsend/internal/vcard"
)

// fileName is the single batch file kept under the store directory.
const fileName = "contacts.json"

// ErrNoBatch indicates no import has been stored yet.
var ErrNoBatch = errors.New("store: no imported contacts (try: vcfsend import <file.vcf>)")

// Batch is one import of a vCard file.
type Batch struct {
	ID         string          `json:"id"`
	Source     string          `json:"source"`
	ImportedAt time.Time       `json:"imported_at"`
	Contacts   []vcard.Contact `json:"contacts"`
}

// NewBatch stamps contacts from source with a fresh ID and import time.
func NewBatch(source string, contacts []vcard.Contact, now time.Time) Batch {
	if contacts == nil {
		contacts = []vcard.Contact{}
	}
	return Batch{
		ID:         uuid.NewString(),
		Source:     source,
		ImportedAt: now.UTC(),
		Contacts:   contacts,
	}
}

// FileStore keeps the latest Batch as a JSON file under a base directory.
type FileStore struct {
	baseDir string
}

// NewFileStore creates a FileStore that saves under baseDir.
func NewFileStore(baseDir string) *FileStore {
	return &FileStore{baseDir: baseDir}
}

// Path returns the location of the batch file.
func (s *FileStore) Path() string {
	return filepath.Join(s.baseDir, fileName)
}

// Save replaces any previously stored batch with b.
func (s *FileStore) Save(b Batch) error {
	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return fmt.Errorf("store: creating directory: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshaling: %w", err)
	}

	// Write a sibling temp file, then rename over the old batch.
	p := s.Path()
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("store: replacing %s: %w", p, err)
	}
	return nil
}

// Load reads the stored batch.
// Returns (batch, true, nil) if found, (zero, false, nil) if nothing was imported.
func (s *FileStore) Load() (Batch, bool, error) {
	p := s.Path()
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Batch{}, false, nil
		}
		return Batch{}, false, fmt.Errorf("store: reading %s: %w", p, err)
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, false, fmt.Errorf("store: parsing %s: %w", p, err)
	}
	return b, true, nil
}

// Require is Load that reports a missing batch as ErrNoBatch.
func (s *FileStore) Require() (Batch, error) {
	b, found, err := s.Load()
	if err != nil {
		return Batch{}, err
	}
	if !found {
		return Batch{}, ErrNoBatch
	}
	return b, nil
}

// Clear deletes the stored batch. A missing batch is not an error.
func (s *FileStore) Clear() error {
	p := s.Path()
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: removing %s: %w", p, err)
	}
	return nil
}
