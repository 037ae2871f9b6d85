package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashahealth/mediwagon/internal/gateway"
)

type fakeBackend struct {
	analyze func(ctx context.Context, req gateway.AnalyzeRequest) (gateway.Analysis, error)
	voice   func(ctx context.Context, req gateway.VoiceRequest) (gateway.VoiceReply, error)

	analyzeCalls atomic.Int32
	voiceCalls   atomic.Int32

	mu       sync.Mutex
	voiceReq []gateway.VoiceRequest
}

func (f *fakeBackend) AnalyzeSymptoms(ctx context.Context, req gateway.AnalyzeRequest) (gateway.Analysis, error) {
	f.analyzeCalls.Add(1)
	if f.analyze == nil {
		return gateway.Analysis{Analysis: "Analysis of: " + req.SymptomText, SuggestedSpecialty: "General Physician"}, nil
	}
	return f.analyze(ctx, req)
}

func (f *fakeBackend) ProcessVoice(ctx context.Context, req gateway.VoiceRequest) (gateway.VoiceReply, error) {
	f.voiceCalls.Add(1)
	f.mu.Lock()
	f.voiceReq = append(f.voiceReq, req)
	f.mu.Unlock()
	if f.voice == nil {
		return gateway.VoiceReply{Success: true, Message: "Please rest and hydrate.", AudioFile: "clip"}, nil
	}
	return f.voice(ctx, req)
}

func newOrchestrator(b Backend) *Orchestrator {
	return New(Config{
		Backend:     b,
		SessionID:   "sess-1",
		UserName:    "Gayathri",
		AuthToken:   "tok-1",
		Lat:         12.97,
		Lon:         77.59,
		AudioOrigin: "http://localhost:5000",
	})
}

func TestSubmitRejectsBlankInput(t *testing.T) {
	b := &fakeBackend{}
	o := newOrchestrator(b)

	for _, in := range []string{"", "   ", "\n\t"} {
		assert.ErrorIs(t, o.Submit(context.Background(), in), ErrEmptyInput)
	}
	assert.Empty(t, o.Messages())
	assert.Zero(t, b.analyzeCalls.Load())
	assert.Zero(t, b.voiceCalls.Load())
}

func TestSubmitHappyPath(t *testing.T) {
	b := &fakeBackend{}
	o := newOrchestrator(b)

	var updates []Update
	o.SetUpdateHook(func(u Update) { updates = append(updates, u) })

	require.NoError(t, o.Submit(context.Background(), "  I have fever "))

	msgs := o.Messages()
	require.Len(t, msgs, 3)

	assert.Equal(t, SenderUser, msgs[0].Sender)
	assert.Equal(t, "I have fever", msgs[0].Text)

	assert.Equal(t, SenderAssistant, msgs[1].Sender)
	assert.Equal(t, StatusFinal, msgs[1].Status)
	assert.Equal(t, "Analysis of: I have fever", msgs[1].Text)
	assert.Equal(t, "General Physician", msgs[1].SuggestedSpecialty)
	assert.Empty(t, msgs[1].AudioURL)

	assert.Equal(t, StatusFinal, msgs[2].Status)
	assert.Equal(t, "Please rest and hydrate.", msgs[2].Text)
	assert.Equal(t, "http://localhost:5000/clip.mp3", msgs[2].AudioURL)

	for _, m := range msgs {
		assert.Equal(t, msgs[0].SubmissionID, m.SubmissionID)
		assert.NotEmpty(t, m.ID)
	}

	// user message and analyzing placeholder arrive as one batch
	require.Len(t, updates, 4)
	assert.Equal(t, UpdateAppended, updates[0].Kind)
	require.Len(t, updates[0].Messages, 2)
	assert.Equal(t, StatusAnalyzing, updates[0].Messages[1].Status)
	assert.Equal(t, UpdateUpdated, updates[1].Kind)
	assert.Equal(t, UpdateAppended, updates[2].Kind)
	assert.Equal(t, StatusLoading, updates[2].Messages[0].Status)
	assert.Equal(t, UpdateUpdated, updates[3].Kind)

	b.mu.Lock()
	defer b.mu.Unlock()
	require.Len(t, b.voiceReq, 1)
	assert.Equal(t, gateway.VoiceRequest{Text: "I have fever", UserName: "Gayathri", AuthToken: "tok-1"}, b.voiceReq[0])
}

func TestSubmitComposesDecomposedText(t *testing.T) {
	b := &fakeBackend{}
	o := newOrchestrator(b)

	// "e" followed by a combining acute accent, as some recognizers emit it.
	require.NoError(t, o.Submit(context.Background(), "fie\u0301vre"))

	assert.Equal(t, "fi\u00e9vre", o.Messages()[0].Text)
	b.mu.Lock()
	defer b.mu.Unlock()
	assert.Equal(t, "fi\u00e9vre", b.voiceReq[0].Text)
}

func TestAnalysisFailureSkipsVoice(t *testing.T) {
	b := &fakeBackend{
		analyze: func(context.Context, gateway.AnalyzeRequest) (gateway.Analysis, error) {
			return gateway.Analysis{}, &gateway.Error{Op: gateway.OpAnalyzeSymptoms, Kind: gateway.KindBackend, Status: 500}
		},
	}
	o := newOrchestrator(b)

	require.NoError(t, o.Submit(context.Background(), "headache"))
	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, AnalysisApology, msgs[1].Text)
	assert.Equal(t, StatusFinal, msgs[1].Status)
	assert.Zero(t, b.voiceCalls.Load())
}

func TestVoiceOutcomes(t *testing.T) {
	cases := []struct {
		name      string
		reply     gateway.VoiceReply
		err       error
		wantText  string
		wantAudio string
	}{
		{
			name:      "absolute audio passes through",
			reply:     gateway.VoiceReply{Success: true, Message: "Take care.", AudioFile: "https://cdn.example/r.mp3"},
			wantText:  "Take care.",
			wantAudio: "https://cdn.example/r.mp3",
		},
		{
			name:      "path with extension",
			reply:     gateway.VoiceReply{Success: true, Message: "Take care.", AudioFile: "/clip.wav"},
			wantText:  "Take care.",
			wantAudio: "http://localhost:5000/clip.wav",
		},
		{
			name:     "soft failure with message",
			reply:    gateway.VoiceReply{Success: false, Message: "TTS quota exceeded"},
			wantText: "TTS quota exceeded",
		},
		{
			name:     "soft failure without message",
			reply:    gateway.VoiceReply{Success: false},
			wantText: VoiceFailureDefault,
		},
		{
			name:     "hard failure",
			err:      &gateway.Error{Op: gateway.OpProcessVoice, Kind: gateway.KindTransport, Message: "connection refused"},
			wantText: VoiceApology,
		},
		{
			name:     "success without audio",
			reply:    gateway.VoiceReply{Success: true},
			wantText: VoiceReplyDefault,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := &fakeBackend{
				voice: func(context.Context, gateway.VoiceRequest) (gateway.VoiceReply, error) {
					return tc.reply, tc.err
				},
			}
			o := newOrchestrator(b)
			require.NoError(t, o.Submit(context.Background(), "cough"))

			msgs := o.Messages()
			require.Len(t, msgs, 3)
			last := msgs[2]
			assert.Equal(t, StatusFinal, last.Status)
			assert.Equal(t, tc.wantText, last.Text)
			assert.Equal(t, tc.wantAudio, last.AudioURL)
		})
	}
}

func TestConcurrentSubmissionsResolveByID(t *testing.T) {
	release := map[string]chan struct{}{
		"first":  make(chan struct{}),
		"second": make(chan struct{}),
	}
	b := &fakeBackend{
		analyze: func(ctx context.Context, req gateway.AnalyzeRequest) (gateway.Analysis, error) {
			select {
			case <-release[req.SymptomText]:
			case <-ctx.Done():
				return gateway.Analysis{}, ctx.Err()
			}
			return gateway.Analysis{Analysis: "analysis " + req.SymptomText}, nil
		},
		voice: func(_ context.Context, req gateway.VoiceRequest) (gateway.VoiceReply, error) {
			return gateway.VoiceReply{Success: true, Message: "voice " + req.Text}, nil
		},
	}
	o := newOrchestrator(b)

	var wg sync.WaitGroup
	for _, in := range []string{"first", "second"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, o.Submit(context.Background(), in))
		}()
	}
	require.Eventually(t, func() bool { return len(o.Messages()) == 4 }, time.Second, time.Millisecond)

	// the later submission resolves first
	close(release["second"])
	close(release["first"])
	wg.Wait()

	msgs := o.Messages()
	require.Len(t, msgs, 6)
	bySubmission := map[string][]Message{}
	for _, m := range msgs {
		assert.Equal(t, StatusFinal, m.Status)
		bySubmission[m.SubmissionID] = append(bySubmission[m.SubmissionID], m)
	}
	require.Len(t, bySubmission, 2)
	for _, group := range bySubmission {
		require.Len(t, group, 3)
		utterance := group[0].Text
		assert.Equal(t, "analysis "+utterance, group[1].Text)
		assert.Equal(t, "voice "+utterance, group[2].Text)
	}
}

func TestCloseCancelsInFlightCalls(t *testing.T) {
	started := make(chan struct{})
	b := &fakeBackend{
		analyze: func(ctx context.Context, _ gateway.AnalyzeRequest) (gateway.Analysis, error) {
			close(started)
			<-ctx.Done()
			return gateway.Analysis{}, ctx.Err()
		},
	}
	o := newOrchestrator(b)
	var after atomic.Int32
	o.SetUpdateHook(func(Update) { after.Add(1) })

	errCh := make(chan error, 1)
	go func() { errCh <- o.Submit(context.Background(), "fatigue") }()
	<-started
	o.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("submit did not return after Close")
	}
	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, StatusAnalyzing, msgs[1].Status, "no mutation after close")
	assert.Equal(t, int32(1), after.Load())
	assert.Zero(t, b.voiceCalls.Load())

	assert.ErrorIs(t, o.Submit(context.Background(), "again"), ErrClosed)
}

func TestCallTimeoutRecoversToApology(t *testing.T) {
	b := &fakeBackend{
		analyze: func(ctx context.Context, _ gateway.AnalyzeRequest) (gateway.Analysis, error) {
			<-ctx.Done()
			return gateway.Analysis{}, fmt.Errorf("analyze: %w", ctx.Err())
		},
	}
	o := New(Config{Backend: b, CallTimeout: 20 * time.Millisecond})

	require.NoError(t, o.Submit(context.Background(), "cold"))
	msgs := o.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, AnalysisApology, msgs[1].Text)
}

func TestCallerCancellationIsReported(t *testing.T) {
	b := &fakeBackend{
		analyze: func(context.Context, gateway.AnalyzeRequest) (gateway.Analysis, error) {
			return gateway.Analysis{}, errors.New("boom")
		},
	}
	o := newOrchestrator(b)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := o.Submit(ctx, "cold")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, AnalysisApology, o.Messages()[1].Text)
}

func TestGreetingAndQuickSymptoms(t *testing.T) {
	o := New(Config{Backend: &fakeBackend{}, UserName: "Gayathri", Greet: true})
	msgs := o.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, SenderAssistant, msgs[0].Sender)
	assert.True(t, strings.HasPrefix(msgs[0].Text, "Hello Gayathri!"))

	assert.Equal(t, "Hello there! ", Greeting("  ")[:len("Hello there! ")])
	assert.Equal(t, []string{"Fever", "Cold", "Headache", "Cough", "Fatigue"}, QuickSymptoms)
	assert.Equal(t, "I have fever", QuickSymptomText("Fever"))

	got, ok := o.Message(msgs[0].ID)
	require.True(t, ok)
	assert.Equal(t, msgs[0], got)
}
