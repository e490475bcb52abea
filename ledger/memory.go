package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process ledger. Record ids are sequence numbers.
type Memory struct {
	mu      sync.RWMutex
	seq     uint64
	records map[string][]Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[string][]Record)}
}

func (m *Memory) Publish(_ context.Context, tag string, payload []byte) (RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	id := RecordID(fmt.Sprintf("%016x", m.seq))
	m.records[tag] = append(m.records[tag], Record{ID: id, Tag: tag, Payload: slices.Clone(payload)})

	return id, nil
}

func (m *Memory) Query(_ context.Context, tag string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return slices.Clone(m.records[tag]), nil
}
