package objects

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory. It backs dry runs
// without a database file and the tests of the packages above it.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
	states  map[string]State
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]Object),
		states:  make(map[string]State),
	}
}

func (m *MemoryStore) GetObject(_ context.Context, id string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &obj, nil
}

func (m *MemoryStore) CreateObjectIfAbsent(_ context.Context, id string, obj Object) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id]; ok {
		return false, nil
	}
	obj.ID = id
	m.objects[id] = obj
	return true, nil
}

func (m *MemoryStore) SetState(_ context.Context, id string, val any, ack bool) error {
	if IsNaN(val) {
		val = nil
	}
	m.mu.Lock()
	m.states[id] = State{ID: id, Val: val, Ack: ack, Timestamp: time.Now().UTC()}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) GetState(_ context.Context, id string) (*State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &st, nil
}

func (m *MemoryStore) ListObjects(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	out := make([]Object, 0, len(m.objects))
	for id, obj := range m.objects {
		if strings.HasPrefix(id, prefix) {
			out = append(out, obj)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
