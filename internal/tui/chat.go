package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"manual-rag/internal/history"
	"manual-rag/internal/models"
)

// sourcePreviewRunes is how much of each source chunk the sources pane shows.
const sourcePreviewRunes = 200

// Asker answers one question and records the turn in the history.
type Asker interface {
	Ask(ctx context.Context, question string) (*models.Answer, error)
}

type answerMsg struct {
	answer *models.Answer
	err    error
}

// Model is the Bubble Tea model of the chat shell.
type Model struct {
	ctx         context.Context
	asker       Asker
	history     *history.Log
	title       string
	input       textinput.Model
	viewport    viewport.Model
	spinner     spinner.Model
	thinking    bool
	showSources bool
	lastSources []models.Result
	status      string
	ready       bool
}

func New(ctx context.Context, asker Asker, log *history.Log, title string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask a question about the manual"
	ti.Focus()
	ti.CharLimit = 0

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return Model{
		ctx:      ctx,
		asker:    asker,
		history:  log,
		title:    title,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		status:   "enter: ask · tab: sources · ctrl+c: quit",
	}
}

func (m Model) Init() tea.Cmd { return textinput.Blink }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, fh := frameStyle.GetFrameSize()
		reserved := 2 + 3 + 1 // header, input box, status
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-fh)
		m.refresh()
		return m, nil

	case answerMsg:
		m.thinking = false
		if msg.err != nil {
			m.status = "Failed to answer: " + msg.err.Error()
		} else {
			m.lastSources = msg.answer.Sources
			m.status = fmt.Sprintf("Answered from %d sources", len(msg.answer.Sources))
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.thinking {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.showSources = !m.showSources
			m.refresh()
			return m, nil
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.thinking {
				return m, nil
			}
			m.input.Reset()
			m.thinking = true
			m.status = "Thinking..."
			m.refresh()
			return m, tea.Batch(m.spinner.Tick, m.ask(q))
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) ask(question string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.asker.Ask(m.ctx, question)
		return answerMsg{answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	content := RenderTurns(m.history.Turns())
	if m.showSources {
		content += "\n" + sourcesTitleStyle.Render("Sources") + "\n" + RenderSources(m.lastSources)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(m.title)
	status := statusStyle.Render(m.status)
	if m.thinking {
		status = m.spinner.View() + " " + status
	}
	return header + "\n" + frameStyle.Render(m.viewport.View()) + "\n" + inputStyle.Render(m.input.View()) + "\n" + status
}

// RenderTurns formats the conversation, oldest turn first.
func RenderTurns(turns []models.Turn) string {
	if len(turns) == 0 {
		return hintStyle.Render("No questions yet.")
	}
	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case models.RoleUser:
			sb.WriteString(userStyle.Render("You: ") + t.Content)
		case models.RoleAssistant:
			sb.WriteString(assistantStyle.Render("Assistant: ") + t.Content)
		case models.RoleError:
			sb.WriteString(errorStyle.Render("Error: ") + t.Content)
		}
		sb.WriteString("\n\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// RenderSources lists each source with its 1-based page and a content preview.
func RenderSources(sources []models.Result) string {
	if len(sources) == 0 {
		return hintStyle.Render("No sources for the last answer.")
	}
	var sb strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&sb, "Source %d: Page %d\n%s\n\n", i+1, s.PageNumber+1, Preview(s.Content, sourcePreviewRunes))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// Preview returns the first n runes of s followed by "..." when truncated.
func Preview(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}

// Run starts the chat shell and blocks until the user quits.
func Run(ctx context.Context, asker Asker, log *history.Log, title string) error {
	p := tea.NewProgram(New(ctx, asker, log, title), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

var (
	titleStyle        = lipgloss.NewStyle().Bold(true)
	frameStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle        = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	spinnerStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	hintStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	userStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sourcesTitleStyle = lipgloss.NewStyle().Underline(true)
)
