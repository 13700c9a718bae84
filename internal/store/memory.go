package store

import (
	"context"
	"sort"
	"sync"

	"esim-service/internal/model"
)

// MemoryStore keeps everything in process. It backs tests and the
// STORE_DRIVER=memory development mode.
type MemoryStore struct {
	mu         sync.Mutex
	profiles   map[string]*model.Profile
	logs       []model.OperationLogEntry
	migrations map[string]*model.MigrationRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles:   make(map[string]*model.Profile),
		migrations: make(map[string]*model.MigrationRecord),
	}
}

func (s *MemoryStore) CreateProfile(_ context.Context, p *model.Profile, entry *model.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.ID]; exists {
		return model.ErrVersionConflict
	}
	if p.Version == 0 {
		p.Version = 1
	}
	s.profiles[p.ID] = p.Clone()
	if entry != nil {
		s.logs = append(s.logs, *entry)
	}
	return nil
}

func (s *MemoryStore) GetProfile(_ context.Context, id string) (*model.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProfiles(_ context.Context, tenantID string, filter ProfileFilter) ([]model.Profile, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.Profile
	for _, p := range s.profiles {
		if p.TenantID != tenantID {
			continue
		}
		if filter.Provider != "" && p.Provider != filter.Provider {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		matched = append(matched, *p.Clone())
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, filter.Skip, filter.Limit), int64(len(matched)), nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, p *model.Profile, expectedVersion int64, entry *model.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[p.ID]
	if !ok {
		return model.ErrNotFound
	}
	if current.Version != expectedVersion {
		return model.ErrVersionConflict
	}
	p.Version = expectedVersion + 1
	s.profiles[p.ID] = p.Clone()
	if entry != nil {
		s.logs = append(s.logs, *entry)
	}
	return nil
}

func (s *MemoryStore) DeleteProfile(_ context.Context, tenantID, id string, expectedVersion int64, entry *model.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.profiles[id]
	if !ok || current.TenantID != tenantID {
		return model.ErrNotFound
	}
	if current.Version != expectedVersion {
		return model.ErrVersionConflict
	}
	delete(s.profiles, id)
	if entry != nil {
		s.logs = append(s.logs, *entry)
	}
	return nil
}

func (s *MemoryStore) CountByStatus(_ context.Context, tenantID string) (map[model.Status]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[model.Status]int64)
	for _, p := range s.profiles {
		if p.TenantID == tenantID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) AppendLog(_ context.Context, entry *model.OperationLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logs = append(s.logs, *entry)
	return nil
}

func (s *MemoryStore) ListLogs(_ context.Context, filter LogFilter) ([]model.OperationLogEntry, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []model.OperationLogEntry
	// walk backwards so later appends win timestamp ties
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if filter.ProfileID != "" && e.ProfileID != filter.ProfileID {
			continue
		}
		if filter.TenantID != "" && e.TenantID != filter.TenantID {
			continue
		}
		if filter.Operation != "" && e.Operation != filter.Operation {
			continue
		}
		matched = append(matched, e)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].ID > matched[j].ID
	})
	return page(matched, filter.Skip, filter.Limit), int64(len(matched)), nil
}

func (s *MemoryStore) SaveMigration(_ context.Context, m *model.MigrationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *m
	cp.Steps = append(cp.Steps[:0:0], m.Steps...)
	s.migrations[m.ID] = &cp
	return nil
}

func (s *MemoryStore) GetMigration(_ context.Context, id string) (*model.MigrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.migrations[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	cp := *m
	cp.Steps = append(cp.Steps[:0:0], m.Steps...)
	return &cp, nil
}

func (s *MemoryStore) Ping(context.Context) error  { return nil }
func (s *MemoryStore) Close(context.Context) error { return nil }

func page[T any](items []T, skip, limit int) []T {
	skip, limit = NormalizePage(skip, limit)
	if skip >= len(items) {
		return []T{}
	}
	end := skip + limit
	if end > len(items) {
		end = len(items)
	}
	return items[skip:end]
}
