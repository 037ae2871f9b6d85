package dashboard

import (
	"context"

	"github.com/ashahealth/mediwagon/internal/protocol"
)

// browserRecognizer drives the recognition engine in the browser. It only
// emits control frames; the browser answers with client_recognition_event.
type browserRecognizer struct {
	sessionID string
	lang      string
	send      func(any)
}

func (b *browserRecognizer) Start(context.Context) error {
	b.send(protocol.RecognitionControl{
		Type:           protocol.TypeRecognitionControl,
		SessionID:      b.sessionID,
		Action:         protocol.ActionStart,
		Continuous:     true,
		InterimResults: true,
		Lang:           b.lang,
	})
	return nil
}

func (b *browserRecognizer) Stop() error {
	b.send(protocol.RecognitionControl{
		Type:      protocol.TypeRecognitionControl,
		SessionID: b.sessionID,
		Action:    protocol.ActionStop,
	})
	return nil
}
