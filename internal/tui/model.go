package tui

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ashahealth/mediwagon/internal/conversation"
	"github.com/ashahealth/mediwagon/internal/playback"
	"github.com/ashahealth/mediwagon/internal/speech"
)

const (
	msgSpeechUnsupported = "speech recognition is not supported in this terminal"
	msgEmptyInput        = "Please describe your symptoms first."
	clipTick             = 250 * time.Millisecond
)

type focus int

const (
	focusInput focus = iota
	focusControls
)

type Options struct {
	Conversation *conversation.Orchestrator
	Capture      *speech.Capture
	UserName     string
	// AudioOrigin qualifies relative voice note references.
	AudioOrigin string
	AutoPlay    bool
	HTTPClient  *http.Client
	// NewMedia overrides the clip decoder used for voice notes.
	NewMedia func() playback.Media
}

// runtime holds what outlives a single Update: the model is copied on every
// message but these are shared.
type runtime struct {
	ctx    context.Context
	cancel context.CancelFunc
	orch   *conversation.Orchestrator
	speech *speech.Capture
	player *playback.Player
	inbox  inbox
	// transcripts carries recognized speech; unlike inbox signals these are
	// never dropped.
	transcripts chan string
}

// Model is the terminal dashboard.
type Model struct {
	rt *runtime

	userName string
	messages []conversation.Message
	speech   speech.Snapshot

	voice      playback.Snapshot
	voiceMsgID string

	focus  focus
	notice string

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model
	theme    theme

	width  int
	height int
}

func New(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())
	in := make(inbox, 64)
	transcripts := make(chan string, 4)

	newMedia := opts.NewMedia
	if newMedia == nil {
		client := opts.HTTPClient
		if client == nil {
			client = http.DefaultClient
		}
		newMedia = func() playback.Media { return playback.NewClipMedia(client, clipTick) }
	}
	player := playback.NewPlayer(playback.PlayerConfig{
		Origin:   opts.AudioOrigin,
		NewMedia: newMedia,
		AutoPlay: opts.AutoPlay,
		OnChange: func(playback.Snapshot) { in.post(playerChangedMsg{}) },
	})

	capture := opts.Capture
	if capture == nil {
		capture = speech.NewCapture(nil, nil)
	}
	opts.Conversation.SetUpdateHook(func(conversation.Update) { in.post(conversationChangedMsg{}) })
	capture.SetStateHook(func(speech.Snapshot) { in.post(speechChangedMsg{}) })
	capture.SetTranscriptHook(func(text string) {
		select {
		case transcripts <- text:
		case <-ctx.Done():
		}
	})

	input := textinput.New()
	input.Prompt = "❯ "
	input.Placeholder = "Describe your symptoms"
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#5eead4"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true

	m := Model{
		rt: &runtime{
			ctx:    ctx,
			cancel: cancel,
			orch:   opts.Conversation,
			speech: capture,
			player: player,
			inbox:  in,

			transcripts: transcripts,
		},
		userName: opts.UserName,
		messages: opts.Conversation.Messages(),
		speech:   capture.Snapshot(),
		input:    input,
		timeline: timeline,
		spinner:  sp,
		theme:    newTheme(),
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		textinput.Blink,
		waitForEvent(m.rt.inbox),
		waitForTranscript(m.rt.transcripts),
	)
}

// Close cancels in-flight submissions and releases audio and speech.
func (m Model) Close() {
	m.rt.cancel()
	m.rt.player.Close()
	m.rt.speech.Close()
	m.rt.orch.Close()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case conversationChangedMsg:
		m.messages = m.rt.orch.Messages()
		cmd := m.maybeOpenVoiceNote()
		m.refresh()
		return m, tea.Batch(cmd, waitForEvent(m.rt.inbox))

	case playerChangedMsg:
		m.voice = m.rt.player.Snapshot()
		m.refresh()
		return m, waitForEvent(m.rt.inbox)

	case voiceOpenedMsg:
		m.voice = m.rt.player.Snapshot()
		m.refresh()
		return m, nil

	case speechChangedMsg:
		m.speech = m.rt.speech.Snapshot()
		if m.speech.Error != "" {
			m.notice = m.speech.Error
		}
		return m, waitForEvent(m.rt.inbox)

	case transcriptMsg:
		return m, tea.Batch(m.submit(msg.text), waitForTranscript(m.rt.transcripts))

	case submitDoneMsg:
		switch {
		case msg.err == nil:
		case errors.Is(msg.err, conversation.ErrEmptyInput):
			m.notice = msgEmptyInput
		case errors.Is(msg.err, conversation.ErrClosed), errors.Is(msg.err, context.Canceled):
		default:
			m.notice = msg.err.Error()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if m.hasPending() || m.voice.Loading {
			m.refresh()
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if key == KeyCtrlC {
		return m, tea.Quit
	}

	if m.focus == focusInput {
		switch key {
		case KeyEnter:
			text := m.input.Value()
			m.input.Reset()
			m.notice = ""
			return m, m.submit(text)
		case KeyTab, KeyEsc:
			m.focus = focusControls
			m.input.Blur()
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	for i, k := range chipKeys {
		if key == k && i < len(conversation.QuickSymptoms) {
			m.notice = ""
			return m, m.submit(conversation.QuickSymptomText(conversation.QuickSymptoms[i]))
		}
	}

	switch key {
	case KeyQuit:
		return m, tea.Quit
	case KeyTab, KeyInput:
		m.focus = focusInput
		return m, m.input.Focus()
	case KeyMic:
		m.toggleMic()
	case KeyPlayPause:
		if err := m.rt.player.Toggle(); err != nil {
			m.notice = err.Error()
		}
	case KeyRestart:
		if err := m.rt.player.Restart(); err != nil {
			m.notice = err.Error()
		}
	case KeyUp:
		m.timeline.LineUp(1)
	case KeyDown:
		m.timeline.LineDown(1)
	case KeyPgUp:
		m.timeline.HalfViewUp()
	case KeyPgDown:
		m.timeline.HalfViewDown()
	}
	return m, nil
}

func (m *Model) toggleMic() {
	if m.speech.Listening() {
		if err := m.rt.speech.Stop(); err != nil {
			m.notice = err.Error()
		}
		return
	}
	err := m.rt.speech.Start(m.rt.ctx)
	switch {
	case err == nil:
		m.notice = ""
	case errors.Is(err, speech.ErrUnsupported):
		m.notice = msgSpeechUnsupported
	default:
		m.notice = err.Error()
	}
	m.speech = m.rt.speech.Snapshot()
}

func (m Model) submit(text string) tea.Cmd {
	orch, ctx := m.rt.orch, m.rt.ctx
	return func() tea.Msg {
		return submitDoneMsg{err: orch.Submit(ctx, text)}
	}
}

// maybeOpenVoiceNote loads the newest assistant voice note once.
func (m *Model) maybeOpenVoiceNote() tea.Cmd {
	for i := len(m.messages) - 1; i >= 0; i-- {
		msg := m.messages[i]
		if msg.Sender != conversation.SenderAssistant || msg.Pending() || msg.AudioURL == "" {
			continue
		}
		if msg.ID == m.voiceMsgID {
			return nil
		}
		m.voiceMsgID = msg.ID
		m.voice = playback.Snapshot{Loading: true}
		return openVoiceNoteCmd(m.rt.ctx, m.rt.player, msg.AudioURL)
	}
	return nil
}

func openVoiceNoteCmd(ctx context.Context, player *playback.Player, url string) tea.Cmd {
	return func() tea.Msg {
		player.Open(ctx, url)
		return voiceOpenedMsg{}
	}
}

func (m Model) hasPending() bool {
	for _, msg := range m.messages {
		if msg.Pending() {
			return true
		}
	}
	return false
}
