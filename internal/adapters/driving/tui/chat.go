// Package tui implements the interactive chat shell: a Bubble Tea
// program that reads questions, runs them through the query pipeline
// and renders the answer with its supporting evidence.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
)

// AskFunc is the query entry point the shell calls. The only error it
// may return is a pipeline setup failure.
type AskFunc func(ctx context.Context, question string) (domain.Answer, error)

// exitKeywords end the shell, matched case-insensitively.
var exitKeywords = map[string]struct{}{
	"quit": {},
	"exit": {},
}

// exchange is one completed question/answer pair.
type exchange struct {
	question string
	answer   domain.Answer
}

// answerMsg delivers a finished query back into the update loop.
type answerMsg struct {
	question string
	answer   domain.Answer
	err      error
}

// Model is the Bubble Tea model for the chat shell.
type Model struct {
	ask      AskFunc
	input    textinput.Model
	viewport viewport.Model
	history  []exchange
	status   string
	waiting  bool
	ready    bool
}

// New creates a chat shell backed by the given query function.
func New(ask AskFunc) Model {
	ti := textinput.New()
	ti.Prompt = "Your query: "
	ti.Placeholder = "Ask about your highlights (quit/exit to leave)"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	return Model{
		ask:      ask,
		input:    ti,
		viewport: vp,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := historyBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header, status, input frame, spacer
		vh := msg.Height - reserved - fh
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = vh
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.status = "Setup failed: " + msg.err.Error()
		} else {
			m.history = append(m.history, exchange{question: msg.question, answer: msg.answer})
			m.status = fmt.Sprintf("Answered with %d supporting records.", len(msg.answer.Evidence))
		}
		m.viewport.SetContent(m.renderHistory())
		m.viewport.GotoBottom()
		return m, nil

	case tea.KeyMsg:
		// Global quits
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			if m.waiting {
				return m, nil
			}
			q := strings.TrimSpace(m.input.Value())
			if q == "" {
				return m, nil
			}
			if _, isExit := exitKeywords[strings.ToLower(q)]; isExit {
				return m, tea.Quit
			}
			m.input.SetValue("")
			m.waiting = true
			m.status = "Processing your query..."
			return m, askCmd(m.ask, q)
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

// askCmd runs the query off the update loop.
func askCmd(ask AskFunc, question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := ask(context.Background(), question)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

// View renders the shell layout.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("Marginalia - ask your highlights")
	history := historyBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + history + "\n" + input + "\n" + status
}

// renderHistory renders the full conversation so far.
func (m Model) renderHistory() string {
	if len(m.history) == 0 {
		return "No questions yet. Type one below."
	}
	var sb strings.Builder
	for i, ex := range m.history {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(questionStyle.Render("> " + ex.question))
		sb.WriteString("\n\n")
		sb.WriteString(ex.answer.Text)
		if len(ex.answer.Evidence) > 0 {
			sb.WriteString("\n")
			for j, ev := range ex.answer.Evidence {
				sb.WriteString(evidenceStyle.Render(
					fmt.Sprintf("\n  [%d] %s (%.4f)", j+1, ev.RecordID, ev.Score)))
			}
		}
	}
	return sb.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	historyBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	evidenceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)
