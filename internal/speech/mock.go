package speech

import (
	"context"
	"sync/atomic"
)

// MockRecognizer records calls and never produces events on its own; tests
// drive the session through Capture.Handle.
type MockRecognizer struct {
	StartErr error

	starts atomic.Int32
	stops  atomic.Int32
}

func (m *MockRecognizer) Start(context.Context) error {
	m.starts.Add(1)
	return m.StartErr
}

func (m *MockRecognizer) Stop() error {
	m.stops.Add(1)
	return nil
}

func (m *MockRecognizer) Starts() int { return int(m.starts.Load()) }
func (m *MockRecognizer) Stops() int  { return int(m.stops.Load()) }
