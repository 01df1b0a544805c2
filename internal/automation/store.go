package automation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrNotFound is returned for lookups and deletes of unknown automation ids.
var ErrNotFound = errors.New("automation not found")

// Store persists automations. Save is an upsert keyed by ID.
type Store interface {
	List(ctx context.Context) ([]Automation, error)
	Get(ctx context.Context, id string) (Automation, bool, error)
	Save(ctx context.Context, a Automation) (Automation, error)
	Delete(ctx context.Context, id string) error
}

// Validate checks the fields a record must carry before it can be saved.
// The command slug is deliberately not resolved here; an unknown slug
// surfaces as a run error, not a save-time rejection.
func (a Automation) Validate() error {
	if strings.TrimSpace(a.CommandSlug) == "" {
		return errors.New("commandSlug is required")
	}
	if strings.TrimSpace(a.TargetURL) == "" {
		return errors.New("targetUrl is required")
	}
	return ValidateTrigger(a.Trigger)
}

// normalizeAutomation trims fields, assigns an id and timestamps, and
// validates the trigger. createdAt is kept from an existing record by the
// stores themselves.
func normalizeAutomation(a Automation, now time.Time) (Automation, error) {
	a.ID = strings.TrimSpace(a.ID)
	a.Name = strings.TrimSpace(a.Name)
	a.CommandSlug = strings.TrimSpace(a.CommandSlug)
	a.TargetURL = strings.TrimSpace(a.TargetURL)
	a.Trigger.Type = strings.ToLower(strings.TrimSpace(a.Trigger.Type))
	a.Trigger.Expression = strings.TrimSpace(a.Trigger.Expression)

	if err := a.Validate(); err != nil {
		return Automation{}, err
	}

	if a.ID == "" {
		a.ID = generateAutomationID(now)
		a.CreatedAt = now
	}
	if a.Name == "" {
		a.Name = a.ID
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return a, nil
}

func generateAutomationID(now time.Time) string {
	return fmt.Sprintf("auto-%d", now.UTC().UnixNano())
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string]Automation
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]Automation)}
}

func (s *MemoryStore) List(ctx context.Context) ([]Automation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Automation, 0, len(s.items))
	for _, a := range s.items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Automation, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[strings.TrimSpace(id)]
	return a, ok, nil
}

func (s *MemoryStore) Save(ctx context.Context, a Automation) (Automation, error) {
	now := time.Now().UTC()
	a, err := normalizeAutomation(a, now)
	if err != nil {
		return Automation{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.items[a.ID]; ok {
		a.CreatedAt = existing.CreatedAt
	}
	s.items[a.ID] = a
	return a, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id = strings.TrimSpace(id)
	if _, ok := s.items[id]; !ok {
		return ErrNotFound
	}
	delete(s.items, id)
	return nil
}
