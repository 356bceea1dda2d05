// Package store persists the url -> summary records used to decide whether
// an article has already been processed.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// CorruptError is returned by Load when the store file exists but cannot be
// decoded. The file is left untouched.
type CorruptError struct {
	Path string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("store: %s is corrupt: %v", e.Path, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// IsCorrupt reports whether err is a CorruptError.
func IsCorrupt(err error) bool {
	var ce *CorruptError
	return errors.As(err, &ce)
}

// fileFormat is the on-disk layout: {"articles": {url: record}}.
type fileFormat struct {
	Articles map[string]Record `json:"articles"`
}

// Store is a durable map of article URL to Record. Records are only ever
// added; an existing URL is never overwritten.
type Store struct {
	path string

	mu      sync.RWMutex
	records map[string]Record

	// writeMu serializes every write of the file.
	writeMu sync.Mutex
	rename  func(oldpath, newpath string) error
}

// New returns an empty store that will be saved to path.
func New(path string) *Store {
	return &Store{
		path:    path,
		records: make(map[string]Record),
		rename:  os.Rename,
	}
}

// Load reads the store at path. A missing file yields an empty store.
func Load(path string) (*Store, error) {
	s := New(path)

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: failed to read %s: %w", path, err)
	}

	var ff fileFormat
	if err := json.Unmarshal(data, &ff); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	for url, rec := range ff.Articles {
		rec.URL = url
		s.records[url] = rec
	}
	return s, nil
}

// Recover moves an unreadable store file aside to <path>.corrupt-<unix> and
// returns an empty store for path along with the new location of the old file.
func Recover(path string) (*Store, string, error) {
	moved := fmt.Sprintf("%s.corrupt-%d", path, time.Now().Unix())
	if err := os.Rename(path, moved); err != nil {
		return nil, "", fmt.Errorf("store: failed to move corrupt file aside: %w", err)
	}
	return New(path), moved, nil
}

// Path returns the file the store is persisted to.
func (s *Store) Path() string {
	return s.path
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Contains reports whether url has a record.
func (s *Store) Contains(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[url]
	return ok
}

// Get returns the record for url.
func (s *Store) Get(url string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[url]
	return rec, ok
}

// Put inserts rec under url in memory. It is a no-op returning false when url
// already has a record.
func (s *Store) Put(url string, rec Record) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[url]; ok {
		return false
	}
	rec.URL = url
	s.records[url] = rec
	return true
}

// Save atomically writes every record to disk.
func (s *Store) Save() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.write(s.snapshot())
}

// Commit is Put followed by Save as one step. The record becomes visible in
// memory only after the file containing it has been written, so a failed
// save leaves both the file and the store unchanged. It returns false
// without writing when url already has a record.
func (s *Store) Commit(url string, rec Record) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.Contains(url) {
		return false, nil
	}

	rec.URL = url
	next := s.snapshot()
	next[url] = rec
	if err := s.write(next); err != nil {
		return false, err
	}

	s.mu.Lock()
	s.records[url] = rec
	s.mu.Unlock()
	return true, nil
}

// RecordsSince returns every record captured strictly after cutoff, oldest
// first.
func (s *Store) RecordsSince(cutoff time.Time) []Record {
	s.mu.RLock()
	out := make([]Record, 0)
	for _, rec := range s.records {
		if rec.CapturedAt.After(cutoff) {
			out = append(out, rec)
		}
	}
	s.mu.RUnlock()

	sortByCapture(out)
	return out
}

// Records returns every record, oldest first.
func (s *Store) Records() []Record {
	return s.RecordsSince(time.Time{}.Add(-1))
}

// Compact removes records captured at or before cutoff and saves the result.
// A URL removed here is treated as new if it is discovered again.
func (s *Store) Compact(cutoff time.Time) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	next := s.snapshot()
	removed := 0
	for url, rec := range next {
		if !rec.CapturedAt.After(cutoff) {
			delete(next, url)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	if err := s.write(next); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.records = next
	s.mu.Unlock()
	return removed, nil
}

func (s *Store) snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records)+1)
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// write replaces the store file with records by writing a temp file in the
// same directory and renaming it over the old one. Until the rename succeeds
// the previous file is untouched.
func (s *Store) write(records map[string]Record) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(fileFormat{Articles: records}); err != nil {
		return fmt.Errorf("store: failed to encode: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("store: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("store: failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: failed to close temp file: %w", err)
	}
	if err := s.rename(tmpName, s.path); err != nil {
		return fmt.Errorf("store: failed to replace %s: %w", s.path, err)
	}
	committed = true

	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

func sortByCapture(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].CapturedAt.Equal(recs[j].CapturedAt) {
			return recs[i].URL < recs[j].URL
		}
		return recs[i].CapturedAt.Before(recs[j].CapturedAt)
	})
}
