package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lecture-rag/internal/query"
)

// Asker is the TUI-facing subset of the query engine.
type Asker interface {
	Ask(ctx context.Context, userQuery string) (query.Result, error)
}

// Model is the Bubble Tea model for the interactive Q&A session.
type Model struct {
	engine   Asker
	input    textinput.Model
	viewport viewport.Model
	result   *query.Result
	status   string
	header   string
	ready    bool
	busy     bool
}

// New creates a new TUI model instance.
func New(engine Asker, institute, course string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about the lectures and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	vp := viewport.New(0, 0)
	header := fmt.Sprintf("Lecture Q&A | %s / %s", institute, course)
	return Model{
		engine:   engine,
		input:    ti,
		viewport: vp,
		header:   header,
		status:   "Ready. Type a question.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

type answerMsg struct {
	result query.Result
	err    error
}

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, rh := resultBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 1 + 1 + qh + 1 // header + status + input frame + spacer
		vh := msg.Height - reserved
		if vh < 3 {
			vh = 3
		}
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, vh-rh)
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case answerMsg:
		m.busy = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
		} else {
			r := msg.result
			m.result = &r
			m.status = fmt.Sprintf("Answered in %.2fs", r.ResponseSeconds)
			if r.Degraded {
				m.status += " (no chunk references available)"
			}
		}
		m.viewport.SetContent(m.renderResult())
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(m.input.Value())
			if q != "" && !m.busy {
				m.busy = true
				m.status = "Asking..."
				m.input.SetValue("")
				engine := m.engine
				return m, func() tea.Msg {
					res, err := engine.Ask(context.Background(), q)
					return answerMsg{result: res, err: err}
				}
			}
		case "up":
			m.viewport.LineUp(3)
			return m, nil
		case "down":
			m.viewport.LineDown(3)
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the TUI layout and current answer.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := lipgloss.NewStyle().Bold(true).Render(m.header)
	input := queryBoxStyle.Render(m.input.View())
	status := lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Render(m.status)
	results := resultBoxStyle.Render(m.viewport.View())
	return header + "\n" + results + "\n" + input + "\n" + status
}

func (m Model) renderResult() string {
	if m.result == nil {
		return "No answer yet."
	}
	r := m.result
	var b strings.Builder
	b.WriteString(questionStyle.Render("Q: " + r.Query))
	b.WriteString("\n\n")
	b.WriteString(r.Answer)
	b.WriteString("\n")
	switch {
	case len(r.Grounding) > 0:
		b.WriteString("\n" + citationHeaderStyle.Render(fmt.Sprintf("Sources (%d, provider grounding):", len(r.Grounding))) + "\n")
		for i, g := range r.Grounding {
			title := g.Title
			if title == "" {
				title = g.URI
			}
			b.WriteString(fmt.Sprintf("  [%d] %s\n", i+1, title))
			if g.Text != "" {
				b.WriteString("      " + truncate(g.Text, 160) + "\n")
			}
		}
	case len(r.Matches) > 0:
		b.WriteString("\n" + citationHeaderStyle.Render(fmt.Sprintf("Sources (%d, answer similarity):", len(r.Matches))) + "\n")
		for i, match := range r.Matches {
			b.WriteString(fmt.Sprintf("  [%d] %s  %s  similarity %.3f\n",
				i+1, match.Chunk.LectureID, match.Chunk.TimeRange(), match.Similarity))
			b.WriteString("      " + truncate(match.Excerpt, 160) + "\n")
		}
	default:
		b.WriteString("\n" + citationHeaderStyle.Render("No source chunks cleared the similarity threshold.") + "\n")
	}
	return b.String()
}

var (
	resultBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle       = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	questionStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
	citationHeaderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Bold(true)
)

func truncate(s string, n int) string {
	runes := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(runes) <= n {
		return string(runes)
	}
	return string(runes[:n]) + "..."
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
