package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/ashahealth/mediwagon/internal/gateway"
	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/playback"
	"github.com/ashahealth/mediwagon/internal/policy"
)

var (
	ErrEmptyInput = errors.New("conversation: empty input")
	ErrClosed     = errors.New("conversation: orchestrator closed")
)

// Backend is the subset of the gateway the orchestrator drives.
type Backend interface {
	AnalyzeSymptoms(ctx context.Context, req gateway.AnalyzeRequest) (gateway.Analysis, error)
	ProcessVoice(ctx context.Context, req gateway.VoiceRequest) (gateway.VoiceReply, error)
}

type Config struct {
	Backend   Backend
	SessionID string
	UserName  string
	AuthToken string
	Lat       float64
	Lon       float64
	// AudioOrigin qualifies relative audio references in voice replies.
	AudioOrigin string
	// CallTimeout bounds each backend call. Zero means no bound.
	CallTimeout time.Duration
	// Greet appends the greeting message on construction.
	Greet bool
}

type UpdateKind string

const (
	UpdateAppended UpdateKind = "appended"
	UpdateUpdated  UpdateKind = "updated"
)

// Update is one state change. Appended batches hold every message added by
// a single mutation, in order.
type Update struct {
	Kind     UpdateKind
	Messages []Message
}

// Orchestrator owns one dashboard's message list.
type Orchestrator struct {
	cfg Config

	life   context.Context
	cancel context.CancelFunc

	// emitMu serializes mutation plus delivery so hooks observe updates in
	// list order.
	emitMu sync.Mutex

	mu       sync.RWMutex
	messages []Message
	index    map[string]int
	closed   bool
	onUpdate func(Update)
}

func New(cfg Config) *Orchestrator {
	life, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		cfg:    cfg,
		life:   life,
		cancel: cancel,
		index:  make(map[string]int),
	}
	if cfg.Greet {
		o.appendLocked(Message{
			ID:        uuid.NewString(),
			Text:      Greeting(cfg.UserName),
			Sender:    SenderAssistant,
			Status:    StatusFinal,
			CreatedAt: time.Now().UTC(),
		})
	}
	return o
}

func (o *Orchestrator) SetUpdateHook(fn func(Update)) {
	o.mu.Lock()
	o.onUpdate = fn
	o.mu.Unlock()
}

// Messages returns a copy of the list in insertion order.
func (o *Orchestrator) Messages() []Message {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]Message(nil), o.messages...)
}

// Message looks one message up by id.
func (o *Orchestrator) Message(id string) (Message, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	i, ok := o.index[id]
	if !ok {
		return Message{}, false
	}
	return o.messages[i], true
}

// Close cancels in-flight backend calls. Later results are dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	o.onUpdate = nil
	o.mu.Unlock()
	o.cancel()
}

// Submit runs one utterance through analysis and voice processing. Backend
// failures are turned into assistant messages; the returned error is only
// ErrEmptyInput, ErrClosed or the error of a cancelled ctx.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	text = normalizeUtterance(text)
	if text == "" {
		return ErrEmptyInput
	}

	submissionID := uuid.NewString()
	now := time.Now().UTC()
	user := Message{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Text:         text,
		Sender:       SenderUser,
		Status:       StatusFinal,
		CreatedAt:    now,
	}
	analyzing := Message{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Text:         AnalyzingText,
		Sender:       SenderAssistant,
		Status:       StatusAnalyzing,
		CreatedAt:    now,
	}
	if !o.append(user, analyzing) {
		return ErrClosed
	}

	redacted, _ := policy.RedactPII(text)
	log := observability.LoggerFromContext(ctx).With(
		"session_id", o.cfg.SessionID,
		"submission_id", submissionID,
	)
	log.Info("symptoms submitted", "text", redacted)

	callCtx, done := o.callContext(ctx)
	analysis, err := o.cfg.Backend.AnalyzeSymptoms(callCtx, gateway.AnalyzeRequest{
		SessionID:   o.cfg.SessionID,
		SymptomText: text,
		UserLat:     o.cfg.Lat,
		UserLon:     o.cfg.Lon,
	})
	done()
	if err != nil {
		log.Warn("symptom analysis failed", "error", err)
		o.resolve(analyzing.ID, func(m *Message) { m.Text = AnalysisApology })
		return o.abortErr(ctx)
	}
	o.resolve(analyzing.ID, func(m *Message) {
		m.Text = analysis.Analysis
		m.SuggestedSpecialty = analysis.SuggestedSpecialty
	})

	loading := Message{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		Text:         LoadingText,
		Sender:       SenderAssistant,
		Status:       StatusLoading,
		CreatedAt:    time.Now().UTC(),
	}
	if !o.append(loading) {
		return ErrClosed
	}

	callCtx, done = o.callContext(ctx)
	reply, err := o.cfg.Backend.ProcessVoice(callCtx, gateway.VoiceRequest{
		Text:      text,
		UserName:  o.userName(),
		AuthToken: o.cfg.AuthToken,
	})
	done()

	switch {
	case err != nil:
		log.Warn("voice processing failed", "error", err)
		o.resolve(loading.ID, func(m *Message) { m.Text = VoiceApology })
		return o.abortErr(ctx)
	case reply.SoftFailure() != nil:
		log.Info("voice processing declined", "message", reply.Message)
		o.resolve(loading.ID, func(m *Message) {
			m.Text = reply.Message
			if strings.TrimSpace(m.Text) == "" {
				m.Text = VoiceFailureDefault
			}
		})
	default:
		audioURL := ""
		if reply.AudioFile != "" {
			if u, err := playback.ResolveURL(o.cfg.AudioOrigin, reply.AudioFile); err == nil {
				audioURL = u
			} else {
				log.Warn("voice reply carried unusable audio reference", "audio_file", reply.AudioFile)
			}
		}
		o.resolve(loading.ID, func(m *Message) {
			m.Text = reply.Message
			if strings.TrimSpace(m.Text) == "" {
				m.Text = VoiceReplyDefault
			}
			m.AudioURL = audioURL
		})
	}
	return nil
}

// normalizeUtterance composes recognizer output into NFC so typed and spoken
// text reach the agent in the same form.
func normalizeUtterance(text string) string {
	return strings.TrimSpace(norm.NFC.String(text))
}

// abortErr reports why a failed call should end Submit with an error
// rather than a recovered message.
func (o *Orchestrator) abortErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o.life.Err() != nil {
		return ErrClosed
	}
	return nil
}

func (o *Orchestrator) userName() string {
	if n := strings.TrimSpace(o.cfg.UserName); n != "" {
		return n
	}
	return "User"
}

// callContext derives a context that ends with the caller's ctx, the
// orchestrator lifetime, or the per-call timeout.
func (o *Orchestrator) callContext(ctx context.Context) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(o.life, cancel)
	cancelTimeout := context.CancelFunc(func() {})
	if o.cfg.CallTimeout > 0 {
		callCtx, cancelTimeout = context.WithTimeout(callCtx, o.cfg.CallTimeout)
	}
	return callCtx, func() {
		cancelTimeout()
		stop()
		cancel()
	}
}

func (o *Orchestrator) append(msgs ...Message) bool {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	for _, m := range msgs {
		o.appendLocked(m)
	}
	hook := o.onUpdate
	o.mu.Unlock()

	if hook != nil {
		hook(Update{Kind: UpdateAppended, Messages: append([]Message(nil), msgs...)})
	}
	return true
}

func (o *Orchestrator) appendLocked(m Message) {
	o.index[m.ID] = len(o.messages)
	o.messages = append(o.messages, m)
}

// resolve finalizes the placeholder with the given id. Placeholders that
// are already final are left alone.
func (o *Orchestrator) resolve(id string, apply func(*Message)) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	o.mu.Lock()
	i, ok := o.index[id]
	if o.closed || !ok || !o.messages[i].Pending() {
		o.mu.Unlock()
		return
	}
	m := o.messages[i]
	apply(&m)
	m.Status = StatusFinal
	o.messages[i] = m
	hook := o.onUpdate
	o.mu.Unlock()

	if hook != nil {
		hook(Update{Kind: UpdateUpdated, Messages: []Message{m}})
	}
}
