package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ashahealth/mediwagon/internal/observability"
)

// State is the capture lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	// StateStopping means a stop was requested (or a final result arrived)
	// and the recognizer has not yet confirmed the end of the session.
	StateStopping State = "stopping"
	StateErrored  State = "errored"
)

var (
	ErrUnsupported      = errors.New("speech recognition is not supported")
	ErrAlreadyListening = errors.New("speech recognition already active")
	// ErrNoSpeech matches a RecognitionError whose reason is "no-speech".
	ErrNoSpeech = errors.New("no speech detected")
)

// RecognitionError carries the reason reported by the recognition engine.
type RecognitionError struct {
	Reason string
}

func (e *RecognitionError) Error() string {
	return "speech recognition error: " + e.Reason
}

func (e *RecognitionError) Is(target error) bool {
	return target == ErrNoSpeech && e.Reason == "no-speech"
}

// Recognizer is one continuous, interim-enabled recognition engine. Start
// begins a session; events for it are fed back through Capture.Handle.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
}

type Snapshot struct {
	State      State  `json:"state"`
	Transcript string `json:"transcript,omitempty"`
	Interim    string `json:"interim,omitempty"`
	Error      string `json:"error,omitempty"`
	Supported  bool   `json:"supported"`
}

// Listening reports whether a session is open.
func (s Snapshot) Listening() bool {
	return s.State == StateListening || s.State == StateStopping
}

// Capture turns recognizer events into at most one transcript per session.
type Capture struct {
	mu         sync.Mutex
	rec        Recognizer
	state      State
	transcript string
	interim    string
	err        error

	onTranscript func(string)
	onState      func(Snapshot)
	metrics      *observability.Metrics
}

// NewCapture binds a recognizer. A nil recognizer yields a capture that
// reports Supported() == false and refuses to start.
func NewCapture(rec Recognizer, metrics *observability.Metrics) *Capture {
	return &Capture{rec: rec, state: StateIdle, metrics: metrics}
}

func (c *Capture) Supported() bool { return c.rec != nil }

// SetTranscriptHook registers the receiver of final transcripts.
func (c *Capture) SetTranscriptHook(fn func(string)) {
	c.mu.Lock()
	c.onTranscript = fn
	c.mu.Unlock()
}

func (c *Capture) SetStateHook(fn func(Snapshot)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Capture) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Err returns the error recorded by the last session, if any.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Start opens a new recognition session.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.rec == nil {
		c.mu.Unlock()
		return ErrUnsupported
	}
	if c.state == StateListening || c.state == StateStopping {
		c.mu.Unlock()
		return ErrAlreadyListening
	}
	c.state = StateListening
	c.transcript = ""
	c.interim = ""
	c.err = nil
	rec := c.rec
	c.mu.Unlock()

	startErr := rec.Start(ctx)

	c.mu.Lock()
	if startErr != nil && c.state == StateListening {
		c.state = StateErrored
		c.err = &RecognitionError{Reason: startErr.Error()}
	}
	snap, hook := c.snapshotLocked(), c.onState
	c.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	if startErr != nil {
		return fmt.Errorf("start recognition: %w", startErr)
	}
	c.metrics.ObserveSpeechEvent("start_requested")
	return nil
}

// Stop asks the recognizer to end the session. The capture stays in
// StateStopping until the end event arrives.
func (c *Capture) Stop() error {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopping
	rec := c.rec
	snap, hook := c.snapshotLocked(), c.onState
	c.mu.Unlock()

	if hook != nil {
		hook(snap)
	}
	if err := rec.Stop(); err != nil {
		return fmt.Errorf("stop recognition: %w", err)
	}
	return nil
}

// Handle applies one recognizer event.
func (c *Capture) Handle(ev Event) {
	c.metrics.ObserveSpeechEvent(string(ev.Type))

	var (
		emit        string
		requestStop bool
		changed     bool
	)

	c.mu.Lock()
	open := c.state == StateListening || c.state == StateStopping
	switch ev.Type {
	case EventResult:
		if !open || len(ev.Results) == 0 {
			break
		}
		last := ev.Results[len(ev.Results)-1]
		if last.Final {
			c.transcript = last.Transcript
			c.interim = ""
			if c.state == StateListening {
				c.state = StateStopping
				requestStop = true
			}
		} else {
			c.interim = last.Transcript
		}
		changed = true
	case EventError:
		if c.state == StateIdle {
			break
		}
		reason := ev.Error
		if reason == "" {
			reason = "unknown"
		}
		c.state = StateErrored
		c.err = &RecognitionError{Reason: reason}
		c.transcript = ""
		c.interim = ""
		changed = true
	case EventEnd:
		if !open {
			break
		}
		c.state = StateIdle
		c.interim = ""
		if c.err == nil && c.transcript != "" {
			emit = c.transcript
		}
		changed = true
	}
	rec := c.rec
	snap, stateHook, transcriptHook := c.snapshotLocked(), c.onState, c.onTranscript
	c.mu.Unlock()

	if requestStop && rec != nil {
		_ = rec.Stop()
	}
	if changed && stateHook != nil {
		stateHook(snap)
	}
	if emit != "" && transcriptHook != nil {
		transcriptHook(emit)
	}
}

// Close ends any open session and drops the hooks.
func (c *Capture) Close() {
	c.mu.Lock()
	open := c.state == StateListening || c.state == StateStopping
	rec := c.rec
	c.state = StateIdle
	c.onTranscript = nil
	c.onState = nil
	c.mu.Unlock()

	if open && rec != nil {
		_ = rec.Stop()
	}
}

func (c *Capture) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      c.state,
		Transcript: c.transcript,
		Interim:    c.interim,
		Supported:  c.rec != nil,
	}
	if c.err != nil {
		s.Error = c.err.Error()
	}
	return s
}
