package mocks

import (
	"sync"
	"sync/atomic"
)

// MockMediaBuffer implements a mock platform media buffer for testing. It
// records how many times Release was called so tests can assert buffers
// are disposed exactly once, and can optionally panic on release to
// exercise fault containment.
type MockMediaBuffer struct {
	mu             sync.Mutex
	data           []byte
	releases       atomic.Int32
	PanicOnRelease bool
}

func NewMockMediaBuffer(data []byte) *MockMediaBuffer {
	return &MockMediaBuffer{data: data}
}

func (m *MockMediaBuffer) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data
}

func (m *MockMediaBuffer) Release() {
	m.releases.Add(1)
	if m.PanicOnRelease {
		panic("release fault")
	}
}

// ReleaseCount returns how many times Release has been called.
func (m *MockMediaBuffer) ReleaseCount() int {
	return int(m.releases.Load())
}

// Released reports whether the buffer has been released at least once.
func (m *MockMediaBuffer) Released() bool {
	return m.releases.Load() > 0
}
