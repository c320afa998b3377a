package vectordb

import (
	"context"
	"fmt"
	"sync"
)

// Memory 进程内向量库，用于本地运行与测试
type Memory struct {
	mu      sync.RWMutex
	records map[string]Record
}

var _ Backend = (*Memory)(nil)

// NewMemory 创建内存向量库
func NewMemory() *Memory {
	return &Memory{records: make(map[string]Record)}
}

func (m *Memory) Exists(_ context.Context, id string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[id]
	return ok, nil
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = clone(rec)
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := clone(rec)
	return &c, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *Memory) Query(_ context.Context, vector []float64, topK int, filter map[string]string) ([]Match, error) {
	m.mu.RLock()
	candidates := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		candidates = append(candidates, r)
	}
	m.mu.RUnlock()
	return TopK(candidates, vector, topK, filter), nil
}

func (m *Memory) Distinct(_ context.Context, key string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	values := make([]string, 0, len(m.records))
	for _, r := range m.records {
		if v, ok := r.Metadata[key]; ok && v != nil {
			values = append(values, fmt.Sprint(v))
		}
	}
	return SortedValues(values), nil
}

func (m *Memory) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Stats{Count: len(m.records)}
	for _, r := range m.records {
		s.Dimension = len(r.Vector)
		break
	}
	return s, nil
}

func (m *Memory) Close() error { return nil }

func clone(rec Record) Record {
	out := Record{ID: rec.ID, Vector: append([]float64(nil), rec.Vector...)}
	if rec.Metadata != nil {
		out.Metadata = make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
