package tui

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marginal-labs/marginalia-cli/internal/core/domain"
)

func testModel(ask AskFunc) Model {
	m := New(ask)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func typeAndEnter(m Model, text string) (Model, tea.Cmd) {
	m.input.SetValue(text)
	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return updated.(Model), cmd
}

func TestChat_SubmitRunsQuery(t *testing.T) {
	var asked string
	m := testModel(func(_ context.Context, q string) (domain.Answer, error) {
		asked = q
		return domain.Answer{Text: "the answer", Evidence: []domain.Evidence{{RecordID: "readwise_highlight_1", Score: 0.9}}}, nil
	})

	m, cmd := typeAndEnter(m, "what did I read?")
	require.NotNil(t, cmd)
	assert.True(t, m.waiting)

	msg := cmd()
	answer, ok := msg.(answerMsg)
	require.True(t, ok)
	assert.Equal(t, "what did I read?", asked)

	updated, _ := m.Update(answer)
	m = updated.(Model)
	assert.False(t, m.waiting)
	require.Len(t, m.history, 1)
	assert.Equal(t, "the answer", m.history[0].answer.Text)
	assert.Contains(t, m.renderHistory(), "what did I read?")
	assert.Contains(t, m.renderHistory(), "readwise_highlight_1")
}

func TestChat_ExitKeywordsQuit(t *testing.T) {
	for _, keyword := range []string{"quit", "exit", "QUIT", "Exit", "  quit  "} {
		m := testModel(func(_ context.Context, _ string) (domain.Answer, error) {
			t.Fatalf("query must not run for keyword %q", keyword)
			return domain.Answer{}, nil
		})

		_, cmd := typeAndEnter(m, keyword)
		require.NotNil(t, cmd, "keyword %q must produce a quit command", keyword)
		assert.Equal(t, tea.Quit(), cmd())
	}
}

func TestChat_EmptyInputIgnored(t *testing.T) {
	m := testModel(func(_ context.Context, _ string) (domain.Answer, error) {
		t.Fatal("query must not run for empty input")
		return domain.Answer{}, nil
	})

	for _, input := range []string{"", "   ", "\t"} {
		updated, cmd := typeAndEnter(m, input)
		assert.Nil(t, cmd)
		assert.False(t, updated.waiting)
	}
}

func TestChat_SetupFailureShownInStatus(t *testing.T) {
	m := testModel(func(_ context.Context, _ string) (domain.Answer, error) {
		return domain.Answer{}, &domain.SetupError{Stage: "vector store", Err: errors.New("unreachable")}
	})

	m, cmd := typeAndEnter(m, "a question")
	updated, _ := m.Update(cmd())
	m = updated.(Model)

	assert.Empty(t, m.history)
	assert.Contains(t, m.status, "Setup failed")
	assert.Contains(t, m.status, "vector store")
}

func TestChat_IgnoresEnterWhileWaiting(t *testing.T) {
	m := testModel(func(_ context.Context, _ string) (domain.Answer, error) {
		return domain.Answer{Text: "ok"}, nil
	})

	m, cmd := typeAndEnter(m, "first")
	require.NotNil(t, cmd)
	_, second := typeAndEnter(m, "second")
	assert.Nil(t, second)
}

func TestChat_CtrlCQuits(t *testing.T) {
	m := testModel(nil)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}
