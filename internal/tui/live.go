// Package tui renders a live terminal view of a stepping session.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"

	"github.com/san-kum/twinkit/internal/session"
	"github.com/san-kum/twinkit/internal/twin"
)

const historyCapacity = 600

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(14)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

type TickMsg time.Time

// Model drives a session step by step and plots the selected output.
type Model struct {
	sess     *session.Session
	dt       float64
	outputs  []string
	selected int
	history  []float64
	running  bool
	err      error
}

// NewModel wraps an initialized session for live viewing.
func NewModel(sess *session.Session, dt float64) Model {
	return Model{
		sess:    sess,
		dt:      dt,
		outputs: twin.VarNames(sess.Info().Outputs),
		history: make([]float64, 0, historyCapacity),
		running: true,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case " ":
			m.running = !m.running
		case "tab":
			if len(m.outputs) > 0 {
				m.selected = (m.selected + 1) % len(m.outputs)
				m.history = m.history[:0]
			}
		case "r":
			if err := m.sess.Initialize(nil, nil); err != nil {
				m.err = err
			} else {
				m.err = nil
				m.history = m.history[:0]
			}
		}
	case TickMsg:
		if m.running && m.err == nil {
			if err := m.sess.Step(m.dt, nil); err != nil {
				m.err = err
				m.running = false
			} else {
				m.observe()
			}
		}
		return m, tea.Tick(time.Second/30, func(t time.Time) tea.Msg { return TickMsg(t) })
	}
	return m, nil
}

func (m *Model) observe() {
	if len(m.outputs) == 0 {
		return
	}
	v := m.sess.Outputs()[m.outputs[m.selected]]
	if len(m.history) >= historyCapacity {
		m.history = m.history[1:]
	}
	m.history = append(m.history, v)
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("twinkit live: %s", m.sess.ModelName())))
	b.WriteString("\n")

	status := "running"
	if !m.running {
		status = "paused"
	}
	b.WriteString(labelStyle.Render("state") + valueStyle.Render(m.sess.State().String()) + "\n")
	b.WriteString(labelStyle.Render("status") + valueStyle.Render(status) + "\n")
	b.WriteString(labelStyle.Render("time") + valueStyle.Render(fmt.Sprintf("%.3f s", m.sess.Time())) + "\n")
	outs := m.sess.Outputs()
	for _, name := range m.outputs {
		b.WriteString(labelStyle.Render(name) + valueStyle.Render(fmt.Sprintf("%.6f", outs[name])) + "\n")
	}

	if len(m.history) > 1 && len(m.outputs) > 0 {
		graph := asciigraph.Plot(m.history,
			asciigraph.Height(12),
			asciigraph.Width(70),
			asciigraph.Caption(m.outputs[m.selected]),
		)
		b.WriteString(graphStyle.Render(graph))
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("space pause | tab output | r reset | q quit"))
	return b.String()
}

// Run starts the live view and blocks until the user quits.
func Run(sess *session.Session, dt float64) error {
	p := tea.NewProgram(NewModel(sess, dt))
	_, err := p.Run()
	return err
}
