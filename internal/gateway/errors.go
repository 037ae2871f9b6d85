package gateway

import (
	"errors"
	"fmt"

	"github.com/ashahealth/mediwagon/internal/reliability"
)

// Op names one backend operation.
type Op string

const (
	OpRegister         Op = "register"
	OpLogin            Op = "login"
	OpAnalyzeSymptoms  Op = "analyze_symptoms"
	OpProcessVoice     Op = "process_voice"
	OpSummarizeReport  Op = "summarize_report"
	OpScheduleReminder Op = "schedule_reminder"
)

// Kind classifies how a call failed.
type Kind string

const (
	KindTransport   Kind = "transport"
	KindBackend     Kind = "backend"
	KindSoftFailure Kind = "soft_failure"
)

// Operation sentinels, matched with errors.Is.
var (
	ErrRegistration    = errors.New("registration failed")
	ErrAuthentication  = errors.New("authentication failed")
	ErrAnalysis        = errors.New("symptom analysis failed")
	ErrVoiceProcessing = errors.New("voice processing failed")
	ErrSummary         = errors.New("report summary failed")
	ErrReminder        = errors.New("reminder scheduling failed")
)

// Kind sentinels, matched with errors.Is.
var (
	ErrTransport   = errors.New("transport error")
	ErrBackend     = errors.New("backend error")
	ErrSoftFailure = errors.New("soft failure")
)

var opSentinels = map[Op]error{
	OpRegister:         ErrRegistration,
	OpLogin:            ErrAuthentication,
	OpAnalyzeSymptoms:  ErrAnalysis,
	OpProcessVoice:     ErrVoiceProcessing,
	OpSummarizeReport:  ErrSummary,
	OpScheduleReminder: ErrReminder,
}

var kindSentinels = map[Kind]error{
	KindTransport:   ErrTransport,
	KindBackend:     ErrBackend,
	KindSoftFailure: ErrSoftFailure,
}

// Error is the single failure type returned by Client. Error() is the
// human-readable message and nothing else, so callers can show it verbatim.
type Error struct {
	Op      Op
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return opSentinels[e.Op] == target || kindSentinels[e.Kind] == target
}

// Retryable reports whether repeating the same call might succeed.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTransport:
		return reliability.IsRetryableTransportError(e.Err)
	case KindBackend:
		return reliability.IsRetryableHTTPStatus(e.Status)
	default:
		return false
	}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr, true
	}
	return nil, false
}
