package session

import (
	"encoding/json"
	"sync"
	"time"

	"sessioncore/storage"
)

// MetadataStore persists metadata records through a storage.Repository so
// they survive process restarts. All writers go through one mutex; combined
// with Touch's monotonicity this makes concurrent stamps last-write-wins
// without ever moving LastActive backwards.
type MetadataStore struct {
	mu   sync.Mutex
	repo storage.Repository
}

var _ Store = (*MetadataStore)(nil)

// NewMetadataStore creates a metadata store over the given repository.
func NewMetadataStore(repo storage.Repository) *MetadataStore {
	return &MetadataStore{repo: repo}
}

func (s *MetadataStore) Get(userID string) (Metadata, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID)
}

func (s *MetadataStore) getLocked(userID string) (Metadata, bool) {
	data, err := s.repo.Get(metadataBucket, MetadataKey(userID))
	if err != nil {
		return Metadata{}, false
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, false
	}
	return meta, true
}

func (s *MetadataStore) Put(meta Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(meta)
}

func (s *MetadataStore) putLocked(meta Metadata) {
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	_ = s.repo.Put(metadataBucket, MetadataKey(meta.UserID), data)
}

func (s *MetadataStore) Touch(userID string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.getLocked(userID)
	if !ok {
		return
	}
	if now.Before(meta.LastActive) {
		return
	}
	meta.LastActive = now
	s.putLocked(meta)
}

func (s *MetadataStore) Delete(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.repo.Delete(metadataBucket, MetadataKey(userID))
}

// List returns the identity ids that currently have a metadata record.
// Used by the orphan sweep.
func (s *MetadataStore) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.repo.List(metadataBucket)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if len(k) > len(metadataKeyPrefix) && k[:len(metadataKeyPrefix)] == metadataKeyPrefix {
			ids = append(ids, k[len(metadataKeyPrefix):])
		}
	}
	return ids
}
