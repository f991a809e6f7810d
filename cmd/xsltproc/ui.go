package main

import (
	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
)

var (
	messageStyle = lipgloss.NewStyle().Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

func renderError(err error) string {
	return errorStyle.Render(err.Error())
}

type doneMsg struct {
	err error
}

type progressModel struct {
	spin    spinner.Model
	message string
	done    bool
}

func newProgressModel(message string) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return progressModel{
		spin:    sp,
		message: message,
	}
}

func (m progressModel) Init() tea.Cmd {
	return m.spin.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m, tea.Quit
	default:
		return m, nil
	}
}

func (m progressModel) View() string {
	if m.done {
		return ""
	}
	return m.spin.View() + " " + messageStyle.Render(m.message) + "..."
}

// runWithProgress drives fn under a spinner and returns its error once
// the program winds down.
func runWithProgress(message string, fn func() error) error {
	var (
		p   = tea.NewProgram(newProgressModel(message))
		res = make(chan error, 1)
	)
	go func() {
		err := fn()
		res <- err
		p.Send(doneMsg{err: err})
	}()
	if _, err := p.Run(); err != nil {
		return err
	}
	return <-res
}
