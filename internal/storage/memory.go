package storage

import (
	"context"
	"sync"
	"time"
)

// MemorySink keeps records in process memory
type MemorySink struct {
	mu          sync.Mutex
	initialized bool
	records     []Record
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Init(context.Context) error {
	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *MemorySink) Insert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.initialized {
		return wrap("insert", DriverMemory, ErrNotInitialized)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *MemorySink) Close() error {
	return nil
}

// Records returns a copy of everything inserted so far
func (m *MemorySink) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
