package report

import (
	"errors"
	"io"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mkalas/sessionkeeper/internal/domain"
)

var ErrUnexpectedRenderModel = errors.New("unexpected final bubbletea model type")

type renderReadyMsg struct{}

type model struct {
	sessions []domain.Session
	state    domain.RunState
	opts     SessionsOptions
	styles   styles
	output   string
}

func newModel(sessions []domain.Session, state domain.RunState, opts SessionsOptions) model {
	return model{
		sessions: sessions,
		state:    state,
		opts:     opts,
		styles:   newStyles(),
	}
}

func (m model) Init() tea.Cmd {
	return func() tea.Msg {
		return renderReadyMsg{}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg.(type) {
	case renderReadyMsg:
		m.output = renderSessionsView(m.sessions, m.state, m.opts, m.styles)
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m model) View() string {
	return m.output
}

// Sessions renders the status view through a bubbletea program so
// lipgloss picks up the terminal's color profile.
func Sessions(sessions []domain.Session, state domain.RunState, opts SessionsOptions) (string, error) {
	p := tea.NewProgram(
		newModel(sessions, state, opts),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
	)

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	rendered, ok := finalModel.(model)
	if !ok {
		return "", ErrUnexpectedRenderModel
	}

	return rendered.View(), nil
}
