package store

import (
	"context"
	"sync"
	"time"

	"reelsmith/types"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs local development
// when no DATABASE_URL is configured, and the package tests.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*types.Session
	assets   map[string]*types.Asset
	costs    []*types.GenerationCost
	scripts  map[string]*types.Script
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.Session),
		assets:   make(map[string]*types.Asset),
		scripts:  make(map[string]*types.Script),
	}
}

func (m *MemoryStore) CreateSession(ctx context.Context, s *types.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	now := time.Now()
	cp.CreatedAt = now
	cp.UpdatedAt = now
	m.sessions[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, id, userID string) (*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MemoryStore) AdvanceSessionStatus(ctx context.Context, id string, from, to types.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != from {
		return ErrStatusConflict
	}
	s.Status = to
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) FailSession(ctx context.Context, id, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status.Terminal() {
		return nil
	}
	s.Status = types.StatusFailed
	s.Error = message
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) SetSessionVideoURL(ctx context.Context, id, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	s.VideoURL = url
	s.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListStaleSessions(ctx context.Context, olderThan time.Time, statuses []types.SessionStatus) ([]*types.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Session
	for _, s := range m.sessions {
		if !s.UpdatedAt.Before(olderThan) {
			continue
		}
		for _, st := range statuses {
			if s.Status == st {
				cp := *s
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) CreateAsset(ctx context.Context, a *types.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	cp.CreatedAt = time.Now()
	m.assets[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) ListAssets(ctx context.Context, sessionID, kind string) ([]*types.Asset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.Asset
	for _, a := range m.assets {
		if a.SessionID != sessionID {
			continue
		}
		if kind != "" && a.Kind != kind {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}

	// Stable ordering to mirror the SQL store
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Ordinal < out[i].Ordinal ||
				(out[j].Ordinal == out[i].Ordinal && out[j].CreatedAt.Before(out[i].CreatedAt)) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (m *MemoryStore) ApproveAsset(ctx context.Context, assetID string, approved bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.assets[assetID]
	if !ok {
		return ErrNotFound
	}
	a.Approved = approved
	return nil
}

func (m *MemoryStore) CreateCost(ctx context.Context, c *types.GenerationCost) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *c
	cp.CreatedAt = time.Now()
	m.costs = append(m.costs, &cp)
	return nil
}

func (m *MemoryStore) ListCosts(ctx context.Context, sessionID string) ([]*types.GenerationCost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*types.GenerationCost
	for _, c := range m.costs {
		if c.SessionID == sessionID {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) TotalCost(ctx context.Context, sessionID string) (float64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var total float64
	for _, c := range m.costs {
		if c.SessionID == sessionID {
			total += c.Cost
		}
	}
	return total, nil
}

func (m *MemoryStore) CreateScript(ctx context.Context, s *types.Script) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *s
	cp.CreatedAt = time.Now()
	m.scripts[cp.ID] = &cp
	return nil
}

func (m *MemoryStore) GetScript(ctx context.Context, id, userID string) (*types.Script, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.scripts[id]
	if !ok || s.UserID != userID {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}
