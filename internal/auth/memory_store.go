package auth

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface,
// intended for development and testing scenarios.
type MemoryStore struct {
	mu     sync.RWMutex
	keys   map[string]*APIKey
	nextID int64
}

// NewMemoryStore initialises the store with the provided seed keys.
func NewMemoryStore(seeds []Seed) (*MemoryStore, error) {
	store := &MemoryStore{
		keys:   make(map[string]*APIKey),
		nextID: 1,
	}
	for _, seed := range seeds {
		if strings.TrimSpace(seed.KeyID) == "" {
			continue
		}
		if _, exists := store.keys[seed.KeyID]; exists {
			continue
		}
		if err := store.ApplySeed(context.Background(), seed); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// ApplySeed implements the SeedWriter interface.
func (s *MemoryStore) ApplySeed(_ context.Context, seed Seed) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = make(map[string]*APIKey)
	}
	keyID := strings.TrimSpace(seed.KeyID)
	if keyID == "" {
		return errors.New("seed key id cannot be empty")
	}
	hashed, err := HashSecret(seed.Secret)
	if err != nil {
		return err
	}
	key, ok := s.keys[keyID]
	if !ok {
		if s.nextID == 0 {
			s.nextID = 1
		}
		key = &APIKey{ID: s.nextID}
		s.nextID++
	}
	key.KeyID = keyID
	key.SecretHash = hashed
	key.Label = strings.TrimSpace(seed.Label)
	key.Permissions = dedupeStrings(seed.Permissions)
	key.Disabled = seed.Disabled
	s.keys[keyID] = key
	return nil
}

// FindKey retrieves the API key record.
func (s *MemoryStore) FindKey(_ context.Context, keyID string) (*APIKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if key, ok := s.keys[strings.TrimSpace(keyID)]; ok {
		clone := *key
		clone.Permissions = append([]string(nil), key.Permissions...)
		return &clone, nil
	}
	return nil, errors.New("api key not found")
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		seen[strings.ToLower(value)] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

var _ Store = (*MemoryStore)(nil)
var _ SeedWriter = (*MemoryStore)(nil)
