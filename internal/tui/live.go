// Package tui provides a live terminal view of a running simulation's
// reduced-energy trace.
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const historyCapacity = 600

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	statStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	graphStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("49")).Padding(1, 0)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
	doneStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

type sample struct {
	iter   int
	t      float64
	energy float64
}

// Feed bridges the simulation's observer callback into the UI. It is safe
// to call OnEnergy from the simulation goroutine; samples are dropped
// rather than ever stalling an iteration.
type Feed struct {
	ch   chan sample
	done chan error
}

func NewFeed() *Feed {
	return &Feed{ch: make(chan sample, 64), done: make(chan error, 1)}
}

func (f *Feed) OnEnergy(iter int, t, energy float64) {
	select {
	case f.ch <- sample{iter, t, energy}:
	default:
	}
}

// Finish signals run completion (err nil on success).
func (f *Feed) Finish(err error) { f.done <- err }

type doneMsg struct{ err error }
type sampleMsg sample

type model struct {
	feed    *Feed
	title   string
	history []float64
	last    sample
	width   int
	height  int
	done    bool
	err     error
}

// NewProgram builds the bubbletea program for one run.
func NewProgram(feed *Feed, title string) *tea.Program {
	return tea.NewProgram(model{feed: feed, title: title, width: 80, height: 24})
}

func (m model) Init() tea.Cmd { return m.wait() }

func (m model) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case s := <-m.feed.ch:
			return sampleMsg(s)
		case err := <-m.feed.done:
			return doneMsg{err}
		}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
	case sampleMsg:
		m.last = sample(msg)
		m.history = append(m.history, msg.energy)
		if len(m.history) > historyCapacity {
			m.history = m.history[len(m.history)-historyCapacity:]
		}
		return m, m.wait()
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n")

	if len(m.history) > 1 {
		w := m.width - 12
		if w < 20 {
			w = 20
		}
		h := m.height - 8
		if h < 5 {
			h = 5
		}
		b.WriteString(graphStyle.Render(asciigraph.Plot(m.history,
			asciigraph.Width(w), asciigraph.Height(h))))
		b.WriteString("\n")
	}

	b.WriteString(statStyle.Render(fmt.Sprintf("iter %d   t %.6g   energy %.6g",
		m.last.iter, m.last.t, m.last.energy)))
	b.WriteString("\n")

	if m.done {
		if m.err != nil {
			b.WriteString(doneStyle.Render(fmt.Sprintf("run failed: %v", m.err)))
		} else {
			b.WriteString(doneStyle.Render("run complete"))
		}
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}
