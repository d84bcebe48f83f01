// Package tui renders the interactive chat over the medical knowledge
// base as a Bubble Tea program.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"medrag/internal/domain"
)

// ChatPort is the TUI-facing subset of the session manager.
type ChatPort interface {
	Query(ctx context.Context, sessionID, text string) (domain.Answer, error)
}

// turn is one rendered exchange in the transcript.
type turn struct {
	query  string
	answer domain.Answer
	err    error
}

// answerMsg delivers the result of an async query back to Update.
type answerMsg struct {
	query  string
	answer domain.Answer
	err    error
}

// Model is the Bubble Tea model for the chat application.
type Model struct {
	chat      ChatPort
	sessionID string
	input     textinput.Model
	viewport  viewport.Model
	turns     []turn
	overview  string
	status    string
	waiting   bool
	ready     bool
}

// New creates the chat model. The overview line is shown under the
// header so users know what corpus they are asking about.
func New(chat ChatPort, sessionID, overview string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a medical question and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		chat:      chat,
		sessionID: sessionID,
		input:     ti,
		viewport:  vp,
		overview:  overview,
		status:    "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := inputBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, overview, input frame, status
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-th)
		m.viewport.SetContent(m.renderTranscript())
		return m, nil
	case answerMsg:
		m.waiting = false
		m.turns = append(m.turns, turn{query: msg.query, answer: msg.answer, err: msg.err})
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else if msg.answer.Grounded {
			m.status = fmt.Sprintf("Answered from %d sources.", len(msg.answer.Citations))
		} else {
			m.status = "No grounding found in the knowledge base."
		}
		m.viewport.SetContent(m.renderTranscript())
		m.viewport.GotoBottom()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.waiting {
				m.input.SetValue("")
				m.waiting = true
				m.status = "Thinking..."
				return m, m.ask(q)
			}
		case "up":
			m.viewport.LineUp(1)
			return m, nil
		case "down":
			m.viewport.LineDown(1)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the query off the update loop so typing stays responsive
// while the pipeline works.
func (m Model) ask(query string) tea.Cmd {
	chat, id := m.chat, m.sessionID
	return func() tea.Msg {
		answer, err := chat.Query(context.Background(), id, query)
		return answerMsg{query: query, answer: answer, err: err}
	}
}

// View renders the chat layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render("MedRAG Chat")
	overview := overviewStyle.Render(m.overview)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := inputBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + overview + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return "No questions yet."
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(queryStyle.Render("You: " + t.query))
		b.WriteString("\n")
		switch {
		case t.err != nil:
			b.WriteString(errorStyle.Render("error: " + t.err.Error()))
		case t.answer.Grounded:
			b.WriteString(t.answer.Text)
			if len(t.answer.Citations) > 0 {
				b.WriteString("\n")
				b.WriteString(citationStyle.Render("sources: " + strings.Join(t.answer.Citations, ", ")))
			}
		default:
			b.WriteString(ungroundedStyle.Render(t.answer.Text))
		}
	}
	return b.String()
}

var (
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	overviewStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	queryStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	citationStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	ungroundedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
