// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package sequence executes a fixed, ordered list of named steps. The run is
// strictly sequential and fail-fast: the first step error aborts the whole
// sequence, no later step executes, and there is no rollback.
package sequence

import (
	"context"
	"fmt"
	"time"

	"github.com/mypytutor/mptsync/internal/model"
)

// Step is one named unit of work in a sequence.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Event reports step progress to an observer.
type Event struct {
	Seq   int // 1-based position in the sequence
	Total int
	Name  string
	// Done is false for the start notification, true for the finish one.
	Done     bool
	Err      error
	Duration time.Duration
}

// Reporter observes step progress. It is called synchronously from the run
// loop, once when a step starts and once when it finishes.
type Reporter func(Event)

// Runner executes steps in declared order.
type Runner struct {
	steps  []Step
	report Reporter
}

// NewRunner returns a Runner over the given steps. The reporter may be nil.
func NewRunner(steps []Step, report Reporter) *Runner {
	if report == nil {
		report = func(Event) {}
	}
	return &Runner{steps: steps, report: report}
}

// Steps returns the names of the steps in execution order.
func (r *Runner) Steps() []string {
	names := make([]string, len(r.steps))
	for i, s := range r.steps {
		names[i] = s.Name
	}
	return names
}

// Run executes the sequence. It returns a record for every step that was
// started, in order, and the error of the step that aborted the run, if any.
func (r *Runner) Run(ctx context.Context) ([]model.StepRecord, error) {
	var records []model.StepRecord

	for i, step := range r.steps {
		if err := ctx.Err(); err != nil {
			return records, err
		}

		r.report(Event{Seq: i + 1, Total: len(r.steps), Name: step.Name})
		start := time.Now()
		err := step.Run(ctx)
		elapsed := time.Since(start)
		r.report(Event{Seq: i + 1, Total: len(r.steps), Name: step.Name, Done: true, Err: err, Duration: elapsed})

		rec := model.StepRecord{
			Seq:      i + 1,
			Name:     step.Name,
			Status:   model.StepStatusSuccess,
			Duration: elapsed,
		}
		if err != nil {
			rec.Status = model.StepStatusFailed
			rec.Error = err.Error()
			records = append(records, rec)
			return records, fmt.Errorf("step %s: %w", step.Name, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
