package provider

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// Mock is a deterministic in-memory provider for tests. Embeddings are
// derived from a hash of the text, so equal texts always embed equally.
// Failures can be scripted per call.
type Mock struct {
	mu      sync.Mutex
	name    string
	dim     int
	pingErr error
	errs    []error // consumed one per Embed call; nil entries succeed
	calls   int
}

// NewMock creates a mock provider with the given dimension.
func NewMock(name string, dim int) *Mock {
	return &Mock{name: name, dim: dim}
}

// FailWith scripts errors for the next Embed calls, in order.
// A nil entry means that call succeeds.
func (m *Mock) FailWith(errs ...error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, errs...)
	return m
}

// FailPing makes Ping return the given error.
func (m *Mock) FailPing(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

// Name identifies the provider in logs and fallback events.
func (m *Mock) Name() string {
	return m.name
}

// Calls returns how many Embed calls the mock has served.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Ping returns the scripted ping error, if any.
func (m *Mock) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

// Embed creates a deterministic embedding from a hash of the text.
func (m *Mock) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	var scripted error
	if m.calls < len(m.errs) {
		scripted = m.errs[m.calls]
	}
	m.calls++
	m.mu.Unlock()

	if scripted != nil {
		return nil, scripted
	}

	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalizeMock(vec), nil
}

func normalizeMock(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i := range vec {
		vec[i] /= norm
	}
	return vec
}
