package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

const (
	// StateKey holds the snapshot of the current session
	StateKey = "collector:state"
	// ArchivePrefix prefixes the per-session copies of every snapshot
	ArchivePrefix = "session:"
)

// StateStore mirrors sessions into a KVStore
type StateStore struct {
	kv KVStore
}

// NewStateStore creates a new StateStore
func NewStateStore(kv KVStore) *StateStore {
	return &StateStore{kv: kv}
}

// Save writes snap under the state key and its archive key
func (s *StateStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.kv.Put(ctx, StateKey, data); err != nil {
		return err
	}
	if snap.SessionID == "" {
		return nil
	}
	return s.kv.Put(ctx, ArchivePrefix+snap.SessionID, data)
}

// Load returns the current snapshot, if one was saved
func (s *StateStore) Load(ctx context.Context) (*Snapshot, bool, error) {
	return s.load(ctx, StateKey)
}

// LoadSession returns the archived snapshot of session id
func (s *StateStore) LoadSession(ctx context.Context, id string) (*Snapshot, bool, error) {
	return s.load(ctx, ArchivePrefix+id)
}

func (s *StateStore) load(ctx context.Context, key string) (*Snapshot, bool, error) {
	data, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	snap, err := ParseSnapshot(key, data)
	if err != nil {
		return nil, false, err
	}
	return snap, true, nil
}

// ListSessions returns every archived snapshot, newest first
func (s *StateStore) ListSessions(ctx context.Context) ([]*Snapshot, error) {
	pairs, err := s.kv.List(ctx, ArchivePrefix)
	if err != nil {
		return nil, err
	}

	snaps := make([]*Snapshot, 0, len(pairs))
	for _, pair := range pairs {
		snap, err := ParseSnapshot(pair.Key, []byte(pair.Value))
		if err != nil {
			LogWarn("Skipping unreadable snapshot: %v", err)
			continue
		}
		if snap.SessionID == "" {
			snap.SessionID = strings.TrimPrefix(pair.Key, ArchivePrefix)
		}
		snaps = append(snaps, snap)
	}
	// Session ids are decimal millisecond stamps.
	sort.Slice(snaps, func(i, j int) bool {
		a, b := snaps[i].SessionID, snaps[j].SessionID
		if len(a) != len(b) {
			return len(a) > len(b)
		}
		return a > b
	})
	return snaps, nil
}
