// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package model defines the core domain types shared across mptsync.
package model

import "time"

// Run statuses as stored in the history database.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// Step statuses as stored in the history database.
const (
	StepStatusSuccess = "success"
	StepStatusFailed  = "failed"
)

// Run represents one execution of the publishing pipeline.
type Run struct {
	ID         int
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	FailedStep string
	Version    string
}

// StepRecord represents a single executed step within a run.
type StepRecord struct {
	ID       int
	RunID    int
	Seq      int
	Name     string
	Status   string
	Error    string
	Duration time.Duration
}

// KnownHost is a trusted SSH host key, pinned on first trust.
type KnownHost struct {
	Hostname string
	Key      string
}

// BackupData is the serialized form of the history database used by
// `history export` and `history import`.
type BackupData struct {
	ExportedAt time.Time    `json:"exported_at"`
	Runs       []Run        `json:"runs"`
	Steps      []StepRecord `json:"steps"`
	KnownHosts []KnownHost  `json:"known_hosts"`
}
