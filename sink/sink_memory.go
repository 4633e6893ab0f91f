package sink

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps objects in process memory. It is meant for local runs and tests
// and follows the same overwrite semantics as Sink.
type Memory struct {
	mu      sync.Mutex
	objects map[string]Object
	writes  int
	failN   int
	failErr error
}

// Object is a stored object as seen by Memory.
type Object struct {
	Data        []byte
	ContentType string
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string]Object)}
}

// FailNext makes the next n writes return err without storing anything.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failN = n
	m.failErr = err
}

func (m *Memory) Write(ctx context.Context, req WriteRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req.Key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.writes++
	if m.failN > 0 {
		m.failN--
		return m.failErr
	}

	data := make([]byte, len(req.Data))
	copy(data, req.Data)
	m.objects[req.Key] = Object{Data: data, ContentType: req.ContentType}
	return nil
}

// Get returns the object stored under key.
func (m *Memory) Get(key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.objects[key]
	return o, ok
}

// Keys lists stored object names in lexical order.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Writes counts write attempts, failed ones included.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

var (
	_ Sinkr = (*Memory)(nil)
	_ Sinkr = (*Sink)(nil)
)
