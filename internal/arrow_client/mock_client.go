package arrow_client

import (
	"context"
	"fmt"
	"sync"

	"github.com/23skdu/longbow-attnmock/internal/fixture"
)

// MockFlightClient is an in-memory Publisher for testing
type MockFlightClient struct {
	mu        sync.RWMutex
	connected bool
	data      map[string]*fixture.Record
	putErr    error
}

// NewMockFlightClient creates a new mock client
func NewMockFlightClient() *MockFlightClient {
	return &MockFlightClient{
		data: make(map[string]*fixture.Record),
	}
}

// FailPuts makes every later DoPut return err
func (m *MockFlightClient) FailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putErr = err
}

// Connect simulates connection
func (m *MockFlightClient) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = true
	return nil
}

// Close simulates disconnection
func (m *MockFlightClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = false
	return nil
}

// DoPut stores the fixture under path
func (m *MockFlightClient) DoPut(ctx context.Context, path string, rec *fixture.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.connected {
		return fmt.Errorf("client not connected")
	}
	if m.putErr != nil {
		return m.putErr
	}
	m.data[path] = rec
	return nil
}

// GetStoredData returns all stored fixtures (for testing)
func (m *MockFlightClient) GetStoredData() map[string]*fixture.Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*fixture.Record, len(m.data))
	for k, v := range m.data {
		result[k] = v
	}
	return result
}
