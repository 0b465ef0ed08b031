// Package state persists metadata records, one per media.
package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/On-Jun9/MetaPipe/internal/metadata"
	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// ErrNotFound is returned by Find when a media has no record.
var ErrNotFound = errors.New("state: metadata record not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// FileStore keeps records in memory and rewrites a JSON file after every
// mutation. Writes go to a temp file that is renamed over the target.
type FileStore struct {
	mu       sync.RWMutex
	filePath string
	Records  map[string]*types.MetadataRecord `json:"records"`
	LastRun  time.Time                        `json:"last_run"`
}

func New(filePath string) *FileStore {
	return &FileStore{
		filePath: filePath,
		Records:  make(map[string]*types.MetadataRecord),
	}
}

// Load reads filePath. A missing file yields an empty store.
func Load(filePath string) (*FileStore, error) {
	s := New(filePath)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if s.Records == nil {
		s.Records = make(map[string]*types.MetadataRecord)
	}
	for _, rec := range s.Records {
		metadata.NormalizeStoredPayload(rec.Payload)
	}
	return s, nil
}

// Save writes the store to disk. Callers must not hold s.mu.
func (s *FileStore) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked()
}

func (s *FileStore) saveLocked() error {
	if s.filePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Upsert replaces the record of mediaID.
func (s *FileStore) Upsert(ctx context.Context, mediaID string, payload types.Payload, extractors map[string]string, extractedAt time.Time) (*types.MetadataRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec := &types.MetadataRecord{
		MediaID:     mediaID,
		ExtractedAt: extractedAt,
		Extractors:  copyStrings(extractors),
		Payload:     payload,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.Records[mediaID]
	s.Records[mediaID] = rec
	s.LastRun = extractedAt
	if err := s.saveLocked(); err != nil {
		if had {
			s.Records[mediaID] = prev
		} else {
			delete(s.Records, mediaID)
		}
		return nil, fmt.Errorf("failed to save records: %w", err)
	}
	return cloneRecord(rec), nil
}

// Find returns a copy of the record of mediaID.
func (s *FileStore) Find(ctx context.Context, mediaID string) (*types.MetadataRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.Records[mediaID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// Delete removes the record of mediaID. Deleting a missing record is not an error.
func (s *FileStore) Delete(ctx context.Context, mediaID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.Records[mediaID]
	if !ok {
		return nil
	}
	delete(s.Records, mediaID)
	if err := s.saveLocked(); err != nil {
		s.Records[mediaID] = rec
		return fmt.Errorf("failed to save records: %w", err)
	}
	return nil
}

// Close is a no-op; records are flushed on every mutation.
func (s *FileStore) Close() error { return nil }

func copyStrings(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// cloneRecord deep-copies through JSON so callers cannot alias stored trees.
func cloneRecord(rec *types.MetadataRecord) *types.MetadataRecord {
	data, err := json.Marshal(rec)
	if err != nil {
		cp := *rec
		return &cp
	}
	var out types.MetadataRecord
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *rec
		return &cp
	}
	return &out
}
