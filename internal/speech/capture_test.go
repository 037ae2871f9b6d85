package speech

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transcriptSink struct {
	mu  sync.Mutex
	got []string
}

func (s *transcriptSink) add(t string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, t)
}

func (s *transcriptSink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.got...)
}

func newCapture(t *testing.T) (*Capture, *MockRecognizer, *transcriptSink) {
	t.Helper()
	rec := &MockRecognizer{}
	c := NewCapture(rec, nil)
	sink := &transcriptSink{}
	c.SetTranscriptHook(sink.add)
	return c, rec, sink
}

func TestStartWhileListeningDoesNotOpenSecondSession(t *testing.T) {
	c, rec, _ := newCapture(t)

	require.NoError(t, c.Start(context.Background()))
	err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyListening)
	assert.Equal(t, 1, rec.Starts())
	assert.Equal(t, StateListening, c.Snapshot().State)
}

func TestFinalResultEmitsTranscriptOnceOnEnd(t *testing.T) {
	c, rec, sink := newCapture(t)
	require.NoError(t, c.Start(context.Background()))

	c.Handle(Event{Type: EventStart})
	c.Handle(Event{Type: EventResult, Results: []Result{{Transcript: "I have", Final: false}}})
	assert.Equal(t, "I have", c.Snapshot().Interim)
	assert.Empty(t, sink.all(), "interim results never surface")

	c.Handle(Event{Type: EventResult, Results: []Result{
		{Transcript: "I have", Final: true},
		{Transcript: "I have a headache", Final: true},
	}})
	snap := c.Snapshot()
	assert.Equal(t, StateStopping, snap.State)
	assert.Equal(t, "I have a headache", snap.Transcript)
	assert.Equal(t, 1, rec.Stops(), "final result requests stop")
	assert.Empty(t, sink.all(), "transcript waits for the end edge")

	c.Handle(Event{Type: EventEnd})
	assert.Equal(t, []string{"I have a headache"}, sink.all())
	assert.Equal(t, StateIdle, c.Snapshot().State)

	// a duplicate end must not replay the transcript
	c.Handle(Event{Type: EventEnd})
	assert.Equal(t, []string{"I have a headache"}, sink.all())
}

func TestErrorEndsSessionWithoutTranscript(t *testing.T) {
	c, _, sink := newCapture(t)
	require.NoError(t, c.Start(context.Background()))

	c.Handle(Event{Type: EventResult, Results: []Result{{Transcript: "fever", Final: true}}})
	c.Handle(Event{Type: EventError, Error: "no-speech"})
	c.Handle(Event{Type: EventEnd})

	snap := c.Snapshot()
	assert.False(t, snap.Listening())
	assert.Equal(t, StateErrored, snap.State)
	assert.NotEmpty(t, snap.Error)
	assert.Empty(t, sink.all())

	err := c.Err()
	assert.ErrorIs(t, err, ErrNoSpeech)
	var recErr *RecognitionError
	require.True(t, errors.As(err, &recErr))
	assert.Equal(t, "no-speech", recErr.Reason)
}

func TestRestartClearsPriorErrorAndTranscript(t *testing.T) {
	c, rec, sink := newCapture(t)
	require.NoError(t, c.Start(context.Background()))
	c.Handle(Event{Type: EventError, Error: "network"})
	require.Error(t, c.Err())

	require.NoError(t, c.Start(context.Background()))
	snap := c.Snapshot()
	assert.Equal(t, StateListening, snap.State)
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Transcript)
	assert.Equal(t, 2, rec.Starts())

	c.Handle(Event{Type: EventResult, Results: []Result{{Transcript: "cough", Final: true}}})
	c.Handle(Event{Type: EventEnd})
	assert.Equal(t, []string{"cough"}, sink.all())
}

func TestStopWaitsForEnd(t *testing.T) {
	c, rec, sink := newCapture(t)
	require.NoError(t, c.Start(context.Background()))

	require.NoError(t, c.Stop())
	assert.Equal(t, StateStopping, c.Snapshot().State)
	assert.Equal(t, 1, rec.Stops())

	// stop from a non-listening state is a no-op
	require.NoError(t, c.Stop())
	assert.Equal(t, 1, rec.Stops())

	c.Handle(Event{Type: EventEnd})
	assert.Equal(t, StateIdle, c.Snapshot().State)
	assert.Empty(t, sink.all(), "session without a final result emits nothing")
}

func TestUnsupportedCapture(t *testing.T) {
	c := NewCapture(nil, nil)
	assert.False(t, c.Supported())
	assert.ErrorIs(t, c.Start(context.Background()), ErrUnsupported)

	snap := c.Snapshot()
	assert.Equal(t, StateIdle, snap.State)
	assert.False(t, snap.Supported)
}

func TestRecognizerStartFailure(t *testing.T) {
	rec := &MockRecognizer{StartErr: errors.New("not-allowed")}
	c := NewCapture(rec, nil)

	err := c.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateErrored, c.Snapshot().State)
	assert.Contains(t, c.Snapshot().Error, "not-allowed")
}

func TestStateHookSeesTransitions(t *testing.T) {
	c, _, _ := newCapture(t)
	var states []State
	c.SetStateHook(func(s Snapshot) { states = append(states, s.State) })

	require.NoError(t, c.Start(context.Background()))
	c.Handle(Event{Type: EventResult, Results: []Result{{Transcript: "tired", Final: true}}})
	c.Handle(Event{Type: EventEnd})

	assert.Equal(t, []State{StateListening, StateStopping, StateIdle}, states)
}

func TestCloseStopsOpenSession(t *testing.T) {
	c, rec, sink := newCapture(t)
	require.NoError(t, c.Start(context.Background()))
	c.Handle(Event{Type: EventResult, Results: []Result{{Transcript: "fever", Final: false}}})

	c.Close()
	assert.Equal(t, 1, rec.Stops())
	c.Handle(Event{Type: EventEnd})
	assert.Empty(t, sink.all())
}
