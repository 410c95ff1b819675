// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package tui renders live progress for a publishing run: one line per
// pipeline step with a spinner on the running step, driven by the sequence
// reporter events.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/sequence"
)

// RunOutcome is the final result of a pipeline run shown by the TUI.
type RunOutcome struct {
	Err     error
	Version string
}

type stepState int

const (
	statePending stepState = iota
	stateRunning
	stateDone
	stateFailed
)

type stepItem struct {
	name     string
	state    stepState
	duration time.Duration
	err      error
}

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	pendingStyle = lipgloss.NewStyle().Faint(true)
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("160"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
)

type eventMsg sequence.Event

type finishedMsg RunOutcome

// Model is the bubbletea model for a publishing run.
type Model struct {
	steps   []stepItem
	spinner spinner.Model

	events <-chan sequence.Event
	done   <-chan RunOutcome
	cancel context.CancelFunc

	finished bool
	outcome  RunOutcome
	copied   bool
}

// New builds a progress model over the named steps. Events and the final
// outcome arrive on the given channels; cancel aborts the underlying run.
func New(names []string, events <-chan sequence.Event, done <-chan RunOutcome, cancel context.CancelFunc) Model {
	items := make([]stepItem, len(names))
	for i, n := range names {
		items[i] = stepItem{name: n}
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		steps:   items,
		spinner: sp,
		events:  events,
		done:    done,
		cancel:  cancel,
	}
}

// Init starts the spinner and the event listeners.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent(), m.waitForOutcome())
}

func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

func (m Model) waitForOutcome() tea.Cmd {
	return func() tea.Msg {
		return finishedMsg(<-m.done)
	}
}

// Update handles progress events and key presses.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if !m.finished {
				m.cancel()
				return m, nil // the run reports its outcome before we quit
			}
			return m, tea.Quit
		case "c":
			if m.finished {
				if err := clipboard.WriteAll(m.summary()); err == nil {
					m.copied = true
				}
			}
			return m, nil
		}

	case eventMsg:
		idx := msg.Seq - 1
		if idx >= 0 && idx < len(m.steps) {
			if !msg.Done {
				m.steps[idx].state = stateRunning
			} else if msg.Err != nil {
				m.steps[idx].state = stateFailed
				m.steps[idx].err = msg.Err
				m.steps[idx].duration = msg.Duration
			} else {
				m.steps[idx].state = stateDone
				m.steps[idx].duration = msg.Duration
			}
		}
		return m, m.waitForEvent()

	case finishedMsg:
		m.finished = true
		m.outcome = RunOutcome(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the step list and, when finished, the outcome line.
func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(i18n.T("tui.title")) + "\n\n")

	for _, s := range m.steps {
		switch s.state {
		case stateRunning:
			fmt.Fprintf(&b, " %s %s...\n", m.spinner.View(), s.name)
		case stateDone:
			fmt.Fprintf(&b, " %s %s (%s)\n", doneStyle.Render("✓"), s.name, s.duration.Round(time.Millisecond))
		case stateFailed:
			fmt.Fprintf(&b, " %s %s: %v\n", failStyle.Render("✗"), s.name, s.err)
		default:
			fmt.Fprintf(&b, " %s\n", pendingStyle.Render("· "+s.name))
		}
	}

	b.WriteString("\n")
	if m.finished {
		if m.outcome.Err != nil {
			b.WriteString(failStyle.Render(i18n.T("tui.run_failed", m.outcome.Err)) + "\n")
		} else {
			b.WriteString(doneStyle.Render(i18n.T("tui.run_success", m.outcome.Version)) + "\n")
		}
		help := i18n.T("tui.help_finished")
		if m.copied {
			help = i18n.T("tui.copied")
		}
		b.WriteString(helpStyle.Render(help) + "\n")
	} else {
		b.WriteString(helpStyle.Render(i18n.T("tui.help_running")) + "\n")
	}
	return b.String()
}

func (m Model) summary() string {
	var b strings.Builder
	for _, s := range m.steps {
		switch s.state {
		case stateDone:
			fmt.Fprintf(&b, "%s: ok (%s)\n", s.name, s.duration.Round(time.Millisecond))
		case stateFailed:
			fmt.Fprintf(&b, "%s: FAILED: %v\n", s.name, s.err)
		}
	}
	if m.outcome.Err != nil {
		fmt.Fprintf(&b, "run failed: %v\n", m.outcome.Err)
	} else if m.outcome.Version != "" {
		fmt.Fprintf(&b, "published version %s\n", m.outcome.Version)
	}
	return b.String()
}

// Run drives the TUI until the user quits. It returns the run outcome error.
func Run(names []string, events <-chan sequence.Event, done <-chan RunOutcome, cancel context.CancelFunc) error {
	model := New(names, events, done, cancel)
	p := tea.NewProgram(model)
	final, err := p.Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(Model); ok {
		return fm.outcome.Err
	}
	return nil
}
