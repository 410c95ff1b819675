// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mypytutor/mptsync/internal/sequence"
)

func newTestModel(names ...string) Model {
	return New(names, make(chan sequence.Event), make(chan RunOutcome), func() {})
}

func apply(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestViewPendingSteps(t *testing.T) {
	m := newTestModel("fetch-submission-state", "build-tutorials")
	view := m.View()
	if !strings.Contains(view, "fetch-submission-state") || !strings.Contains(view, "build-tutorials") {
		t.Errorf("view is missing step names:\n%s", view)
	}
}

func TestUpdateStepProgress(t *testing.T) {
	m := newTestModel("fetch-submission-state", "build-tutorials")

	m = apply(m, eventMsg(sequence.Event{Seq: 1, Total: 2, Name: "fetch-submission-state"}))
	if m.steps[0].state != stateRunning {
		t.Errorf("step 1 state = %d, want running", m.steps[0].state)
	}

	m = apply(m, eventMsg(sequence.Event{Seq: 1, Total: 2, Name: "fetch-submission-state", Done: true, Duration: time.Second}))
	if m.steps[0].state != stateDone {
		t.Errorf("step 1 state = %d, want done", m.steps[0].state)
	}
	if !strings.Contains(m.View(), "✓") {
		t.Error("view is missing the success marker")
	}

	stepErr := errors.New("make: exit status 2")
	m = apply(m, eventMsg(sequence.Event{Seq: 2, Total: 2, Name: "build-tutorials", Done: true, Err: stepErr}))
	if m.steps[1].state != stateFailed {
		t.Errorf("step 2 state = %d, want failed", m.steps[1].state)
	}
	view := m.View()
	if !strings.Contains(view, "✗") || !strings.Contains(view, stepErr.Error()) {
		t.Errorf("view is missing the failure marker:\n%s", view)
	}
}

func TestFinishedOutcome(t *testing.T) {
	m := newTestModel("publish-version")
	m = apply(m, eventMsg(sequence.Event{Seq: 1, Total: 1, Name: "publish-version", Done: true}))
	m = apply(m, finishedMsg(RunOutcome{Version: "35"}))

	if !m.finished {
		t.Fatal("model not marked finished")
	}
	if !strings.Contains(m.View(), "35") {
		t.Errorf("view is missing the published version:\n%s", m.View())
	}
}

func TestQuitKeyCancelsWhileRunning(t *testing.T) {
	cancelled := false
	m := New([]string{"fetch-submission-state"}, make(chan sequence.Event), make(chan RunOutcome), func() { cancelled = true })

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if !cancelled {
		t.Error("q did not cancel the running pipeline")
	}
	if cmd != nil {
		t.Error("q while running must not quit before the outcome arrives")
	}

	m = apply(next.(Model), finishedMsg(RunOutcome{Err: errors.New("context canceled")}))
	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("q after the run finished must quit")
	}
}

func TestSummary(t *testing.T) {
	m := newTestModel("fetch-submission-state", "build-tutorials")
	m = apply(m, eventMsg(sequence.Event{Seq: 1, Total: 2, Done: true, Duration: time.Second}))
	m = apply(m, eventMsg(sequence.Event{Seq: 2, Total: 2, Done: true, Err: errors.New("boom")}))
	m = apply(m, finishedMsg(RunOutcome{Err: errors.New("step build-tutorials: boom")}))

	got := m.summary()
	if !strings.Contains(got, "fetch-submission-state: ok") {
		t.Errorf("summary missing successful step:\n%s", got)
	}
	if !strings.Contains(got, "build-tutorials: FAILED") {
		t.Errorf("summary missing failed step:\n%s", got)
	}
	if !strings.Contains(got, "run failed") {
		t.Errorf("summary missing outcome line:\n%s", got)
	}
}
