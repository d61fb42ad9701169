// Package ui is the terminal surface of the rating session. It renders each
// assigned (scenario, variant) pair and feeds validated responses into the
// session state machine; ordering and durability live in the machine, not
// here.
package ui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pemstudy/internal/bundle"
	"pemstudy/internal/rating"
	"pemstudy/internal/types"
)

// phase is which response field the input line is collecting.
type phase int

const (
	phaseScore phase = iota
	phaseComment
)

// Model drives one rating session in the terminal.
type Model struct {
	ctx     context.Context
	session *rating.Session
	coll    *bundle.Collection
	styles  Styles

	viewport viewport.Model
	input    textinput.Model
	ready    bool

	item    types.AssignmentItem
	phase   phase
	score   int
	errText string
	done    bool
}

// New builds the model for a session that still has items remaining.
func New(ctx context.Context, session *rating.Session, coll *bundle.Collection) Model {
	input := textinput.New()
	input.Placeholder = "score 1-5"
	input.CharLimit = 200
	input.Focus()

	return Model{
		ctx:     ctx,
		session: session,
		coll:    coll,
		styles:  DefaultStyles(),
		input:   input,
	}
}

// Run executes the rating session UI until the assignment is complete or
// the rater quits.
func Run(ctx context.Context, session *rating.Session, coll *bundle.Collection) error {
	p := tea.NewProgram(New(ctx, session, coll), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		// Operator interruption: everything persisted so far is kept.
		return nil
	}
	return err
}

// Init presents the first item.
func (m Model) Init() tea.Cmd {
	return func() tea.Msg { return nextItemMsg{} }
}

// nextItemMsg asks the model to present the session's next item.
type nextItemMsg struct{}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		headerHeight := 3
		footerHeight := 6
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-headerHeight-footerHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - headerHeight - footerHeight
		}
		if m.session.State() != rating.StateComplete {
			m.viewport.SetContent(m.itemView())
		}

	case nextItemMsg:
		if m.session.State() == rating.StateComplete {
			m.done = true
			return m, tea.Quit
		}
		item, err := m.session.Next()
		if err != nil {
			m.errText = err.Error()
			return m, tea.Quit
		}
		m.item = item
		if err := m.session.Presented(); err != nil {
			m.errText = err.Error()
			return m, tea.Quit
		}
		m.phase = phaseScore
		m.score = 0
		m.errText = ""
		m.input.SetValue("")
		m.input.Placeholder = "score 1-5"
		if m.ready {
			m.viewport.SetContent(m.itemView())
			m.viewport.GotoTop()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			// Everything persisted so far is already durable.
			_ = m.session.Pause()
			return m, tea.Quit
		case "enter":
			return m.submitLine()
		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submitLine consumes the input line for the current phase. Invalid input
// re-prompts without advancing anything.
func (m Model) submitLine() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.input.Value())

	switch m.phase {
	case phaseScore:
		score, err := strconv.Atoi(value)
		if err != nil || !types.ValidScore(score) {
			m.errText = fmt.Sprintf("enter a score between %d and %d", types.MinScore, types.MaxScore)
			m.input.SetValue("")
			return m, nil
		}
		m.score = score
		m.phase = phaseComment
		m.errText = ""
		m.input.SetValue("")
		m.input.Placeholder = "comment (optional, enter to skip)"
		return m, nil

	case phaseComment:
		err := m.session.Submit(m.ctx, rating.Response{Score: m.score, Comment: value})
		if err != nil {
			// The write failed; the session stays on this item so the
			// same response can be retried with enter.
			m.errText = fmt.Sprintf("could not save: %v (press enter to retry)", err)
			return m, nil
		}
		return m, func() tea.Msg { return nextItemMsg{} }
	}
	return m, nil
}

// itemView renders the current scenario and variant message.
func (m Model) itemView() string {
	scenario := m.coll.Find(m.item.Unit)
	if scenario == nil {
		return m.styles.Error.Render(fmt.Sprintf("scenario %s is missing from the bundle collection", m.item.Unit))
	}

	pos := types.Position{}
	if primary, ok := scenario.PrimaryRecord(); ok {
		pos = primary.Start
	}

	var b strings.Builder
	b.WriteString(renderSource(scenario.SourceCode, pos, m.styles))
	b.WriteString("\n")

	message, ok := scenario.Messages[m.item.Variant]
	if !ok {
		return b.String() + m.styles.Error.Render("no message recorded for this variant")
	}
	width := m.viewport.Width - 4
	if width < 20 {
		width = 80
	}
	b.WriteString(m.styles.Message.Render(renderMessage(m.item.Variant, message.Text, width)))
	b.WriteString("\n")
	return b.String()
}

// View renders the whole screen.
func (m Model) View() string {
	if m.done {
		return m.styles.Success.Render("All assigned items answered.") + "\n"
	}
	if !m.ready {
		return "loading..."
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		m.styles.Title.Render("pemstudy rating"),
		"  ",
		m.styles.Category.Render(m.item.Category),
		"  ",
		m.styles.Variant.Render(string(m.item.Variant)),
		"  ",
		m.styles.Help.Render(fmt.Sprintf("%d remaining", m.session.Remaining())),
	)

	prompt := m.styles.Prompt.Render("How helpful is this message? (1 = useless, 5 = excellent)")
	if m.phase == phaseComment {
		prompt = m.styles.Prompt.Render(fmt.Sprintf("Score %d recorded. Any comment?", m.score))
	}

	footer := prompt + "\n" + m.input.View() + "\n"
	if m.errText != "" {
		footer += m.styles.Error.Render(m.errText) + "\n"
	}
	footer += m.styles.Help.Render("enter: submit - up/down: scroll - esc: quit (progress is saved)")

	return header + "\n\n" + m.viewport.View() + "\n\n" + footer
}
