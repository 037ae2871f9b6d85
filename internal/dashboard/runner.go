package dashboard

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ashahealth/mediwagon/internal/conversation"
	"github.com/ashahealth/mediwagon/internal/identity"
	"github.com/ashahealth/mediwagon/internal/observability"
	"github.com/ashahealth/mediwagon/internal/protocol"
	"github.com/ashahealth/mediwagon/internal/session"
	"github.com/ashahealth/mediwagon/internal/speech"
)

const (
	sendTimeout       = 2 * time.Second
	defaultSpeechLang = "en-US"
)

// ErrSessionEnded is returned when the session ends while its connection is
// still open.
var ErrSessionEnded = errors.New("dashboard: session ended")

type Config struct {
	Backend     conversation.Backend
	Identity    *identity.Store
	Sessions    *session.Manager
	Metrics     *observability.Metrics
	AudioOrigin string
	CallTimeout time.Duration
	SpeechLang  string
}

// Runner binds one websocket connection to a conversation and a speech
// capture. Every connection gets its own of each.
type Runner struct {
	cfg Config
}

func NewRunner(cfg Config) *Runner {
	if cfg.SpeechLang == "" {
		cfg.SpeechLang = defaultSpeechLang
	}
	return &Runner{cfg: cfg}
}

// RunConnection serves one dashboard until inbound closes or ctx ends.
// In-flight backend calls are cancelled on return.
func (r *Runner) RunConnection(ctx context.Context, s *session.Session, inbound <-chan any, outbound chan<- any) error {
	log := observability.LoggerFromContext(ctx).With("session_id", s.ID)
	send := func(msg any) { r.send(ctx, outbound, msg) }

	ended, err := r.cfg.Sessions.Done(s.ID)
	if err != nil || s.Status != session.StatusActive || closed(ended) {
		send(sessionEndedEvent(s.ID))
		return session.ErrNotFound
	}
	current := r.cfg.Identity.Current()
	if !current.Authenticated() || current.User.ID != s.UserID {
		send(errorEvent(s.ID, "not_authenticated", "identity", false, "Please sign in again."))
		return errors.New("dashboard: session user is not signed in")
	}

	var submissions sync.WaitGroup
	defer submissions.Wait()

	orch := conversation.New(conversation.Config{
		Backend:     r.cfg.Backend,
		SessionID:   s.ID,
		UserName:    s.UserName,
		AuthToken:   current.Token,
		Lat:         s.Lat,
		Lon:         s.Lon,
		AudioOrigin: r.cfg.AudioOrigin,
		CallTimeout: r.cfg.CallTimeout,
		Greet:       true,
	})
	defer orch.Close()

	var rec speech.Recognizer
	if s.SpeechSupported {
		rec = &browserRecognizer{sessionID: s.ID, lang: r.cfg.SpeechLang, send: send}
	}
	capture := speech.NewCapture(rec, r.cfg.Metrics)
	defer capture.Close()

	submit := func(text string) {
		submissions.Add(1)
		go func() {
			defer submissions.Done()
			_ = r.cfg.Sessions.RecordSubmission(s.ID)
			err := orch.Submit(ctx, text)
			switch {
			case errors.Is(err, conversation.ErrEmptyInput):
				send(errorEvent(s.ID, "empty_input", "conversation", false, "Please describe your symptoms first."))
			case err != nil && ctx.Err() == nil:
				log.Warn("submission aborted", "error", err)
			}
		}()
	}

	orch.SetUpdateHook(func(u conversation.Update) {
		switch u.Kind {
		case conversation.UpdateAppended:
			send(protocol.MessageAppended{Type: protocol.TypeMessageAppended, SessionID: s.ID, Messages: u.Messages})
		case conversation.UpdateUpdated:
			for _, m := range u.Messages {
				send(protocol.MessageUpdated{Type: protocol.TypeMessageUpdated, SessionID: s.ID, Message: m})
			}
		}
	})
	capture.SetStateHook(func(snap speech.Snapshot) {
		send(protocol.SpeechState{Type: protocol.TypeSpeechState, SessionID: s.ID, State: snap})
	})
	capture.SetTranscriptHook(submit)

	send(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: s.ID, Code: "session_ready"})
	send(protocol.MessageAppended{Type: protocol.TypeMessageAppended, SessionID: s.ID, Messages: orch.Messages()})
	send(protocol.SpeechState{Type: protocol.TypeSpeechState, SessionID: s.ID, State: capture.Snapshot()})

	// The session ends under a live connection on logout, explicit end or
	// inactivity expiry; the deferred Close cancels in-flight calls.
	stopEnded := func() bool {
		if !closed(ended) {
			return false
		}
		log.Info("dashboard session ended while connected")
		send(sessionEndedEvent(s.ID))
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ended:
			stopEnded()
			return ErrSessionEnded
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			if stopEnded() {
				return ErrSessionEnded
			}
			_ = r.cfg.Sessions.Touch(s.ID)
			switch m := msg.(type) {
			case protocol.ClientSubmit:
				submit(m.Utterance())
			case protocol.ClientSpeechControl:
				r.handleSpeechControl(ctx, s.ID, capture, m, send)
			case protocol.ClientRecognitionEvent:
				capture.Handle(m.Event)
				if m.Event.Type == speech.EventError {
					send(errorEvent(s.ID, "speech_recognition_error", "speech", true, capture.Snapshot().Error))
				}
			}
		}
	}
}

func (r *Runner) handleSpeechControl(ctx context.Context, sessionID string, capture *speech.Capture, m protocol.ClientSpeechControl, send func(any)) {
	switch m.Action {
	case protocol.ActionStart:
		err := capture.Start(ctx)
		switch {
		case err == nil:
		case errors.Is(err, speech.ErrUnsupported):
			send(errorEvent(sessionID, "speech_unsupported", "speech", false, "Speech recognition is not supported in this browser."))
		case errors.Is(err, speech.ErrAlreadyListening):
			send(errorEvent(sessionID, "speech_already_listening", "speech", false, err.Error()))
		default:
			send(errorEvent(sessionID, "speech_start_failed", "speech", true, err.Error()))
		}
	case protocol.ActionStop:
		if err := capture.Stop(); err != nil {
			send(errorEvent(sessionID, "speech_stop_failed", "speech", true, err.Error()))
		}
	}
}

// send keeps a slow socket from stalling the conversation: delivery gives up
// after sendTimeout or once the connection is gone.
func (r *Runner) send(ctx context.Context, outbound chan<- any, msg any) {
	msgType := string(protocol.TypeOf(msg))
	timer := time.NewTimer(sendTimeout)
	defer timer.Stop()
	select {
	case outbound <- msg:
		r.cfg.Metrics.ObserveOutboundMessage(msgType, "delivered")
	case <-ctx.Done():
		r.cfg.Metrics.ObserveOutboundMessage(msgType, "closed")
	case <-timer.C:
		r.cfg.Metrics.ObserveOutboundMessage(msgType, "timeout")
		r.cfg.Metrics.ObserveSessionEvent("outbound_drop")
	}
}

func closed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func sessionEndedEvent(sessionID string) protocol.ErrorEvent {
	return errorEvent(sessionID, "session_ended", "session", false, "This session has ended. Start a new one.")
}

func errorEvent(sessionID, code, source string, retryable bool, detail string) protocol.ErrorEvent {
	return protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: sessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    detail,
	}
}
