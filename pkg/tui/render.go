package tui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/papercomputeco/chatline/pkg/llm"
)

// Renderer turns markdown into terminal output.
type Renderer interface {
	Render(markdown string) (string, error)
}

// GlamourRenderer renders markdown with glamour, restyled for the terminal's
// background and re-wrapped whenever the width changes.
type GlamourRenderer struct {
	style string
	width int
	term  *glamour.TermRenderer
}

// NewGlamourRenderer picks the dark or light style from the terminal background.
func NewGlamourRenderer(width int) (*GlamourRenderer, error) {
	style := "light"
	if termenv.HasDarkBackground() {
		style = "dark"
	}

	r := &GlamourRenderer{style: style}
	if err := r.SetWidth(width); err != nil {
		return nil, err
	}
	return r, nil
}

// SetWidth rebuilds the renderer for a new word-wrap width.
func (r *GlamourRenderer) SetWidth(width int) error {
	if width == r.width && r.term != nil {
		return nil
	}

	term, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(r.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return err
	}

	r.width = width
	r.term = term
	return nil
}

func (r *GlamourRenderer) Render(markdown string) (string, error) {
	return r.term.Render(markdown)
}

var (
	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	modelLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	statusStyle     = lipgloss.NewStyle().Faint(true)
)

// renderTurn draws one turn: a role label over its rendered markdown.
func renderTurn(r Renderer, turn llm.Turn) string {
	label := modelLabelStyle.Render("Gemini")
	if turn.Role == llm.RoleUser {
		label = userLabelStyle.Render("You")
	}

	body, err := r.Render(turn.Content)
	if err != nil {
		// Raw text beats losing the turn
		body = turn.Content
	}

	return label + "\n" + strings.TrimRight(body, "\n") + "\n"
}

// renderError formats a failed turn for display below the transcript.
func renderError(msg string) string {
	return errorStyle.Render("Error: " + msg)
}
