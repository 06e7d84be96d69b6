// Package state persists the last-observed fingerprints for synced
// path pairs. The JSON file is the only memory distinguishing "file
// was deleted" from "file never existed", so its shape must round-trip
// exactly across versions.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateFileName is the persisted sync-state file under the config dir
const StateFileName = "sync_state.json"

// Record remembers what was last observed for one (local, remote)
// pair. A nil hash means the side was absent (or unhashable) at the
// last sync; the pair having no Record at all means it was never
// synced. Together these give the tri-state the deletion guards need:
// never-observed, observed-absent, observed-present.
type Record struct {
	LocalHash  *string `json:"local_hash"`
	RemoteHash *string `json:"remote_hash"`
	LastSync   string  `json:"last_sync"`
}

// LocalObserved reports whether the local side was seen with content
func (r Record) LocalObserved() bool {
	return r.LocalHash != nil && *r.LocalHash != ""
}

// RemoteObserved reports whether the remote side was seen with content
func (r Record) RemoteObserved() bool {
	return r.RemoteHash != nil && *r.RemoteHash != ""
}

// Store is a file-backed map of "<local>:<remote>" keys to Records.
// Not safe for concurrent multi-process use; one process owns the file.
type Store struct {
	mu      sync.Mutex
	path    string
	records map[string]Record
}

// Key builds the state key for a path pair
func Key(localPath, remotePath string) string {
	return localPath + ":" + remotePath
}

// Open loads the sync state from dir. A missing or corrupt file starts
// an empty store rather than failing: losing state degrades to
// re-evaluating every pair, which is safe.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}
	s := &Store{
		path:    filepath.Join(dir, StateFileName),
		records: make(map[string]Record),
	}
	data, err := os.ReadFile(s.path)
	if err == nil {
		_ = json.Unmarshal(data, &s.records)
		if s.records == nil {
			s.records = make(map[string]Record)
		}
	}
	return s, nil
}

// Get returns the record for a path pair
func (s *Store) Get(localPath, remotePath string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[Key(localPath, remotePath)]
	return rec, ok
}

// Put records the observed hashes for a path pair and persists the
// store. Records are never deleted; entries for removed sync pairs are
// harmless orphans.
func (s *Store) Put(localPath, remotePath string, localHash, remoteHash *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[Key(localPath, remotePath)] = Record{
		LocalHash:  localHash,
		RemoteHash: remoteHash,
		LastSync:   time.Now().Format(time.RFC3339),
	}
	return s.saveLocked()
}

// Set stores a record verbatim, used by tests to seed prior state
func (s *Store) Set(localPath, remotePath string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[Key(localPath, remotePath)] = rec
	return s.saveLocked()
}

// Len returns the number of records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0600)
}
