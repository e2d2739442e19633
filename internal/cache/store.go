// Package cache persists the per-asset sync bookkeeping between runs.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultFile is the cache document name relative to the project root.
const DefaultFile = ".cdn-cache.json"

// DefaultStaleLock is how old a lock file must be before Persist breaks it.
const DefaultStaleLock = 10 * time.Minute

// ErrLocked is returned by Persist when another writer holds the lock file.
var ErrLocked = errors.New("cache file is locked by another writer")

// Record is the last synced state of one build output.
type Record struct {
	Fingerprint    string `json:"fingerprint"`
	RemoteLocation string `json:"remoteLocation"`
	LastSeen       int64  `json:"lastSeen"`
}

// LastSeenTime returns LastSeen as a time.Time.
func (r Record) LastSeenTime() time.Time {
	return time.UnixMilli(r.LastSeen)
}

func (r Record) valid() bool {
	return strings.TrimSpace(r.Fingerprint) != "" && strings.TrimSpace(r.RemoteLocation) != ""
}

// Store is the in-memory view of the cache document. Lookups may run
// concurrently; the owner is expected to serialize writes.
type Store struct {
	mu sync.RWMutex

	path      string
	lockPath  string
	staleLock time.Duration
	records   map[string]Record
}

// NewStore wraps records loaded from path. A nil map starts empty.
func NewStore(path string, records map[string]Record) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if records == nil {
		records = map[string]Record{}
	}
	return &Store{
		path:      path,
		lockPath:  path + ".lock",
		staleLock: DefaultStaleLock,
		records:   records,
	}, nil
}

// Open loads path and wraps the result in a Store.
func Open(path string) (*Store, LoadResult, error) {
	res := Load(path)
	s, err := NewStore(path, res.Records)
	if err != nil {
		return nil, res, err
	}
	return s, res, nil
}

// SetStaleLockAge overrides the age after which an abandoned lock is broken.
func (s *Store) SetStaleLockAge(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staleLock = d
}

// Path returns the cache document path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Lookup(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	return rec, ok
}

func (s *Store) Upsert(id string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = rec
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Snapshot returns a copy of every record.
func (s *Store) Snapshot() map[string]Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]Record, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Sweep drops records last seen before now-window and returns their ids.
func (s *Store) Sweep(now time.Time, window time.Duration) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept, removed := Sweep(s.records, now, window)
	s.records = kept
	return removed
}

// Persist atomically rewrites the whole cache document under the lock file.
func (s *Store) Persist() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	release, err := acquireLock(s.lockPath, s.staleLock)
	if err != nil {
		return err
	}
	defer release()

	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(s.path, raw)
}

func acquireLock(path string, stale time.Duration) (func(), error) {
	for i := 0; i < 2; i++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("acquire cache lock: %w", err)
		}
		info, statErr := os.Stat(path)
		if statErr != nil || stale <= 0 || time.Since(info.ModTime()) < stale {
			break
		}
		// Abandoned by a crashed run.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("break stale cache lock: %w", err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

func writeFileAtomic(path string, raw []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
