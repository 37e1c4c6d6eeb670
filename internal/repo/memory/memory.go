package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/hamed0406/servicemonitor/internal/domain"
	"github.com/hamed0406/servicemonitor/internal/repo"
)

var _ repo.Repository = (*Store)(nil)

// Store keeps every group in process memory. Records are copied on the way
// in and out so callers never share pointers with the store.
type Store struct {
	mu     sync.RWMutex
	groups map[string][]domain.Record
}

func New() *Store {
	return &Store{groups: make(map[string][]domain.Record)}
}

func (m *Store) ListGroupIDs(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.groups))
	for id := range m.groups {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Store) FetchAll(ctx context.Context, group string) ([]domain.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs, ok := m.groups[group]
	if !ok {
		m.groups[group] = []domain.Record{}
		return []domain.Record{}, nil
	}
	return cloneAll(recs), nil
}

func (m *Store) Add(ctx context.Context, group string, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group] = append(m.groups[group], rec.Clone())
	return nil
}

func (m *Store) Remove(ctx context.Context, group, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if recs, ok := m.groups[group]; ok {
		m.groups[group] = repo.RemoveByName(recs, name)
	}
	return nil
}

func (m *Store) BulkReplace(ctx context.Context, group string, recs []domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.groups[group] = cloneAll(recs)
	return nil
}

func (m *Store) UpdateOne(ctx context.Context, group string, rec domain.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	out, err := repo.ReplaceByName(m.groups[group], rec.Clone())
	if err != nil {
		return err
	}
	m.groups[group] = out
	return nil
}

func cloneAll(recs []domain.Record) []domain.Record {
	out := make([]domain.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Clone())
	}
	return out
}
