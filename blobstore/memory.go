package blobstore

import (
	"context"
	"slices"
	"sync"
)

// Memory keeps blobs in process memory.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (string, error) {
	address, err := ContentAddress(data)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.blobs[address] = slices.Clone(data)

	return address, nil
}

func (m *Memory) Get(_ context.Context, address string) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[address]
	m.mu.RUnlock()

	if !ok {
		return nil, NotFound(address)
	}

	if err := Verify(address, data); err != nil {
		return nil, err
	}

	return slices.Clone(data), nil
}
