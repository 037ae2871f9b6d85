package conversation

import (
	"strings"
	"time"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Status marks a placeholder. A message leaves a transient status exactly
// once, to StatusFinal.
type Status string

const (
	StatusFinal     Status = "final"
	StatusAnalyzing Status = "analyzing"
	StatusLoading   Status = "loading"
)

type Message struct {
	ID string `json:"id"`
	// SubmissionID ties a user message to the placeholders it spawned.
	SubmissionID       string    `json:"submission_id,omitempty"`
	Text               string    `json:"text"`
	Sender             Sender    `json:"sender"`
	AudioURL           string    `json:"audio_url,omitempty"`
	SuggestedSpecialty string    `json:"suggested_specialty,omitempty"`
	Status             Status    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// Pending reports whether the message is still a placeholder.
func (m Message) Pending() bool { return m.Status != StatusFinal }

// Fixed assistant texts.
const (
	AnalysisApology     = "Sorry, I couldn't analyze your symptoms right now. Please try again in a moment."
	VoiceApology        = "Sorry, I couldn't prepare a voice reply right now. Please try again."
	VoiceFailureDefault = "Voice processing failed. Please try again."
	VoiceReplyDefault   = "Here is my reply."
	AnalyzingText       = "Analyzing your symptoms..."
	LoadingText         = "Preparing a voice reply..."
)

// Greeting is the first assistant message of a dashboard.
func Greeting(userName string) string {
	name := strings.TrimSpace(userName)
	if name == "" {
		name = "there"
	}
	return "Hello " + name + "! I'm Asha, your health assistant. Tell me how you're feeling, or pick a common symptom below."
}

// QuickSymptoms are the one-tap symptom chips, in display order.
var QuickSymptoms = []string{"Fever", "Cold", "Headache", "Cough", "Fatigue"}

// QuickSymptomText is the utterance a chip submits.
func QuickSymptomText(chip string) string {
	return "I have " + strings.ToLower(strings.TrimSpace(chip))
}
