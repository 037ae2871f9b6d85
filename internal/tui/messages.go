package tui

import tea "github.com/charmbracelet/bubbletea"

// conversationChangedMsg means the orchestrator's message list moved on.
type conversationChangedMsg struct{}

// playerChangedMsg means the voice note player changed state.
type playerChangedMsg struct{}

// voiceOpenedMsg is returned once Player.Open has finished loading.
type voiceOpenedMsg struct{}

// speechChangedMsg means the speech capture changed state.
type speechChangedMsg struct{}

// transcriptMsg carries a final transcript from a speech recognizer. It
// arrives through its own channel, not the inbox.
type transcriptMsg struct {
	text string
}

// submitDoneMsg carries the result of one submission.
type submitDoneMsg struct {
	err error
}

// inbox collects change signals from background hooks. Posting never blocks
// the hook; each signal is re-read from its source, so a full inbox only
// coalesces them.
type inbox chan tea.Msg

func (in inbox) post(msg tea.Msg) {
	select {
	case in <- msg:
	default:
	}
}

func waitForEvent(in inbox) tea.Cmd {
	return func() tea.Msg {
		return <-in
	}
}

func waitForTranscript(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		return transcriptMsg{text: <-ch}
	}
}
