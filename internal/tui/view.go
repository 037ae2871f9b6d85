package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ashahealth/mediwagon/internal/conversation"
)

// chrome is the number of lines around the timeline: header, two rules,
// three for the bordered chips, notice, input, help and a spare.
const chrome = 10

func (m *Model) layout() {
	m.timeline.Width = max(20, m.width)
	m.timeline.Height = max(3, m.height-chrome)
	m.input.Width = max(10, m.width-4)
	m.refresh()
}

// refresh re-renders the timeline, following the bottom when it was there.
func (m *Model) refresh() {
	follow := m.timeline.AtBottom() || m.timeline.TotalLineCount() == 0
	m.timeline.SetContent(m.renderMessages())
	if follow {
		m.timeline.GotoBottom()
	}
}

func (m Model) renderMessages() string {
	width := max(20, m.timeline.Width)
	wrap := lipgloss.NewStyle().Width(width)

	var b strings.Builder
	for i, msg := range m.messages {
		if i > 0 {
			b.WriteString("\n")
		}
		label := m.theme.assistant.Render("Asha")
		if msg.Sender == conversation.SenderUser {
			label = m.theme.user.Render("You")
		}
		text := msg.Text
		if msg.Pending() {
			text = m.spinner.View() + " " + m.theme.pending.Render(text)
		}
		b.WriteString(wrap.Render(label + "  " + text))
		b.WriteString("\n")
		if msg.SuggestedSpecialty != "" {
			b.WriteString(m.theme.specialty.Render("   Suggested specialist: " + msg.SuggestedSpecialty))
			b.WriteString("\n")
		}
		if msg.AudioURL != "" {
			b.WriteString("   " + m.voiceNoteLine(msg.ID))
			b.WriteString("\n")
		}
	}
	return b.String()
}

// voiceNoteLine renders the player for the loaded note and a marker for older ones.
func (m Model) voiceNoteLine(messageID string) string {
	if messageID != m.voiceMsgID {
		return m.theme.help.Render("♪ voice note")
	}
	v := m.voice
	switch {
	case v.Error != "":
		return m.theme.errorText.Render("♪ " + v.Error)
	case v.Loading:
		return m.theme.voice.Render("♪ " + m.spinner.View() + " loading voice note")
	}
	icon := "▶"
	if v.Playing {
		icon = "❚❚"
	}
	bar := progressBar(v.CurrentTime.Seconds(), v.Duration.Seconds(), 20)
	return m.theme.voice.Render(fmt.Sprintf("♪ %s %s %s", icon, bar, v.Progress()))
}

func progressBar(current, total float64, width int) string {
	filled := 0
	if total > 0 {
		filled = int(current / total * float64(width))
	}
	filled = min(max(filled, 0), width)
	return strings.Repeat("━", filled) + strings.Repeat("─", width-filled)
}

func (m Model) renderChips() string {
	chips := make([]string, 0, len(conversation.QuickSymptoms))
	for i, name := range conversation.QuickSymptoms {
		chips = append(chips, m.theme.chipKey.Render(chipKeys[i])+m.theme.chip.Render(name))
	}
	return lipgloss.JoinHorizontal(lipgloss.Center, chips...)
}

func (m Model) View() string {
	name := strings.TrimSpace(m.userName)
	if name == "" {
		name = "there"
	}
	header := m.theme.header.Render("Asha") + m.theme.help.Render("  ·  signed in as "+name)
	if m.speech.Listening() {
		header += "  " + m.theme.listening.Render("● listening")
	}
	rule := m.theme.rule.Render(strings.Repeat("─", max(20, m.width)))

	notice := ""
	if m.notice != "" {
		notice = m.theme.errorText.Render(m.notice)
	}

	help := "enter send · tab controls · ctrl+c quit"
	if m.focus == focusControls {
		help = "1-5 symptom · m mic · p play/pause · r restart · ↑/↓ scroll · tab type · q quit"
	}

	return strings.Join([]string{
		header,
		rule,
		m.timeline.View(),
		rule,
		m.renderChips(),
		notice,
		m.input.View(),
		m.theme.help.Render(help),
	}, "\n")
}
