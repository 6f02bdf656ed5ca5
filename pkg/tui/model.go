// Package tui is the terminal chat shell. It collects a line of input,
// submits it to the conversation and re-renders the whole history after
// every exchange.
package tui

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/chatline/pkg/conversation"
	"github.com/papercomputeco/chatline/pkg/llm"
)

// footerHeight is the status line plus the input line.
const footerHeight = 3

// replyMsg carries the outcome of one submission back into the update loop.
type replyMsg struct {
	reply string
	err   error
}

// Model is the bubbletea model of the chat screen.
type Model struct {
	ctx      context.Context
	conv     *conversation.Conversation
	renderer Renderer

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model
	ready    bool

	// pending is shown as the user's turn while its submission is in flight
	pending  string
	baseLen  int
	awaiting bool
	lastErr  string
}

// New creates the chat screen for conv.
func New(ctx context.Context, conv *conversation.Conversation, renderer Renderer) Model {
	input := textinput.New()
	input.Placeholder = "Type a message and press Enter..."
	input.Prompt = "> "
	input.Focus()

	return Model{
		ctx:      ctx,
		conv:     conv,
		renderer: renderer,
		input:    input,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Run starts the terminal UI and blocks until the user quits.
func Run(ctx context.Context, conv *conversation.Conversation, renderer Renderer) error {
	p := tea.NewProgram(New(ctx, conv, renderer), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - footerHeight
		if height < 1 {
			height = 1
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		if g, ok := m.renderer.(*GlamourRenderer); ok {
			_ = g.SetWidth(msg.Width - 2)
		}
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			return m.collect()
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	case replyMsg:
		m.awaiting = false
		m.pending = ""
		m.lastErr = ""
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		if !m.awaiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// collect takes the typed line and submits it. Blank lines and input typed
// while a reply is pending are ignored.
func (m Model) collect() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if m.awaiting || text == "" {
		return m, nil
	}

	m.input.Reset()
	m.awaiting = true
	m.pending = text
	m.baseLen = m.conv.Len()
	m.lastErr = ""
	m.refresh()

	return m, tea.Batch(m.submit(text), m.spinner.Tick)
}

func (m Model) submit(text string) tea.Cmd {
	conv, ctx := m.conv, m.ctx
	return func() tea.Msg {
		reply, err := conv.Submit(ctx, text)
		return replyMsg{reply: reply, err: err}
	}
}

// refresh re-renders every turn of the conversation into the viewport.
func (m *Model) refresh() {
	if !m.ready {
		return
	}

	var sb strings.Builder
	for _, turn := range m.transcript() {
		sb.WriteString(renderTurn(m.renderer, turn))
		sb.WriteString("\n")
	}

	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

// transcript is the history plus the pending user turn, which the
// conversation may not have appended yet.
func (m Model) transcript() []llm.Turn {
	turns := m.conv.History()
	if m.pending == "" || len(turns) > m.baseLen {
		return turns
	}
	return append(turns, llm.UserTurn(m.pending))
}

func (m Model) View() string {
	if !m.ready {
		return "Starting..."
	}

	status := statusStyle.Render("Enter to send, PgUp/PgDn to scroll, Esc to quit")
	switch {
	case m.awaiting:
		status = m.spinner.View() + statusStyle.Render(" waiting for Gemini...")
	case m.lastErr != "":
		status = renderError(m.lastErr)
	}
	// The status line stays one row high whatever the error says
	status = ansi.Truncate(strings.ReplaceAll(status, "\n", " "), m.viewport.Width, "...")

	return m.viewport.View() + "\n" + status + "\n" + m.input.View()
}
