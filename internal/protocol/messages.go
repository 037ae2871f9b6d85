package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashahealth/mediwagon/internal/conversation"
	"github.com/ashahealth/mediwagon/internal/speech"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientSubmit           MessageType = "client_submit"
	TypeClientSpeechControl    MessageType = "client_speech_control"
	TypeClientRecognitionEvent MessageType = "client_recognition_event"

	TypeMessageAppended    MessageType = "message_appended"
	TypeMessageUpdated     MessageType = "message_updated"
	TypeSpeechState        MessageType = "speech_state"
	TypeRecognitionControl MessageType = "recognition_control"
	TypeSystemEvent        MessageType = "system_event"
	TypeErrorEvent         MessageType = "error_event"
)

// Speech control actions.
const (
	ActionStart = "start"
	ActionStop  = "stop"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// ClientSubmit carries typed text or a quick-symptom chip. Exactly one of
// Text and Chip is set.
type ClientSubmit struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text,omitempty"`
	Chip      string      `json:"chip,omitempty"`
}

// Utterance resolves the text to submit.
func (m ClientSubmit) Utterance() string {
	if strings.TrimSpace(m.Chip) != "" {
		return conversation.QuickSymptomText(m.Chip)
	}
	return m.Text
}

type ClientSpeechControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
}

// ClientRecognitionEvent forwards one event of the browser's recognizer.
type ClientRecognitionEvent struct {
	Type      MessageType  `json:"type"`
	SessionID string       `json:"session_id"`
	Event     speech.Event `json:"event"`
}

type MessageAppended struct {
	Type      MessageType            `json:"type"`
	SessionID string                 `json:"session_id"`
	Messages  []conversation.Message `json:"messages"`
}

type MessageUpdated struct {
	Type      MessageType          `json:"type"`
	SessionID string               `json:"session_id"`
	Message   conversation.Message `json:"message"`
}

type SpeechState struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"session_id"`
	State     speech.Snapshot `json:"state"`
}

// RecognitionControl asks the browser to start or stop its recognizer.
type RecognitionControl struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	Action         string      `json:"action"`
	Continuous     bool        `json:"continuous"`
	InterimResults bool        `json:"interim_results"`
	Lang           string      `json:"lang,omitempty"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientSubmit:
		var msg ClientSubmit
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		hasText := strings.TrimSpace(msg.Text) != ""
		hasChip := strings.TrimSpace(msg.Chip) != ""
		if msg.SessionID == "" || hasText == hasChip {
			return nil, errors.New("invalid client_submit")
		}
		if hasChip && !knownChip(msg.Chip) {
			return nil, fmt.Errorf("invalid client_submit: unknown chip %q", msg.Chip)
		}
		return msg, nil
	case TypeClientSpeechControl:
		var msg ClientSpeechControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || (msg.Action != ActionStart && msg.Action != ActionStop) {
			return nil, errors.New("invalid client_speech_control")
		}
		return msg, nil
	case TypeClientRecognitionEvent:
		var msg ClientRecognitionEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || !knownEvent(msg.Event.Type) {
			return nil, errors.New("invalid client_recognition_event")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func knownChip(chip string) bool {
	for _, c := range conversation.QuickSymptoms {
		if strings.EqualFold(c, strings.TrimSpace(chip)) {
			return true
		}
	}
	return false
}

func knownEvent(t speech.EventType) bool {
	switch t {
	case speech.EventStart, speech.EventResult, speech.EventError, speech.EventEnd:
		return true
	}
	return false
}

// TypeOf reports the wire type of a known message value.
func TypeOf(v any) MessageType {
	switch m := v.(type) {
	case ClientSubmit:
		return m.Type
	case ClientSpeechControl:
		return m.Type
	case ClientRecognitionEvent:
		return m.Type
	case MessageAppended:
		return m.Type
	case MessageUpdated:
		return m.Type
	case SpeechState:
		return m.Type
	case RecognitionControl:
		return m.Type
	case SystemEvent:
		return m.Type
	case ErrorEvent:
		return m.Type
	default:
		return ""
	}
}
