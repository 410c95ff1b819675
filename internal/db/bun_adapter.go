// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/mypytutor/mptsync/internal/model"
)

// RunModel maps the runs table.
type RunModel struct {
	bun.BaseModel `bun:"table:runs"`
	ID            int            `bun:"id,pk,autoincrement"`
	StartedAt     time.Time      `bun:"started_at"`
	FinishedAt    sql.NullTime   `bun:"finished_at"`
	Status        string         `bun:"status"`
	FailedStep    sql.NullString `bun:"failed_step"`
	Version       sql.NullString `bun:"version"`
}

// StepModel maps the run_steps table.
type StepModel struct {
	bun.BaseModel `bun:"table:run_steps"`
	ID            int            `bun:"id,pk,autoincrement"`
	RunID         int            `bun:"run_id"`
	Seq           int            `bun:"seq"`
	Name          string         `bun:"name"`
	Status        string         `bun:"status"`
	Error         sql.NullString `bun:"error"`
	DurationMs    int64          `bun:"duration_ms"`
}

// KnownHostModel maps known_hosts.
type KnownHostModel struct {
	bun.BaseModel `bun:"table:known_hosts"`
	Hostname      string `bun:"hostname,pk"`
	Key           string `bun:"key"`
}

// --- Mapping helpers (centralized conversions) ---

func runModelToModel(rm RunModel) model.Run {
	r := model.Run{
		ID:        rm.ID,
		StartedAt: rm.StartedAt,
		Status:    rm.Status,
	}
	if rm.FinishedAt.Valid {
		r.FinishedAt = rm.FinishedAt.Time
	}
	if rm.FailedStep.Valid {
		r.FailedStep = rm.FailedStep.String
	}
	if rm.Version.Valid {
		r.Version = rm.Version.String
	}
	return r
}

func stepModelToModel(sm StepModel) model.StepRecord {
	rec := model.StepRecord{
		ID:       sm.ID,
		RunID:    sm.RunID,
		Seq:      sm.Seq,
		Name:     sm.Name,
		Status:   sm.Status,
		Duration: time.Duration(sm.DurationMs) * time.Millisecond,
	}
	if sm.Error.Valid {
		rec.Error = sm.Error.String
	}
	return rec
}

// bunStore implements Store on top of a bun.DB.
type bunStore struct {
	bun *bun.DB
}

// CreateRun inserts a new run and fills in its generated ID.
func (s *bunStore) CreateRun(run *model.Run) error {
	ctx := context.Background()
	rm := &RunModel{
		StartedAt: run.StartedAt,
		Status:    run.Status,
	}
	// Use Bun's NewInsert with Returning to support Postgres and MySQL.
	if _, err := s.bun.NewInsert().Model(rm).
		Column("started_at", "status").
		Returning("id").Exec(ctx); err != nil {
		return err
	}
	run.ID = rm.ID
	return nil
}

// FinishRun records the final status of a run.
func (s *bunStore) FinishRun(run *model.Run) error {
	ctx := context.Background()
	rm := &RunModel{
		ID:         run.ID,
		StartedAt:  run.StartedAt,
		FinishedAt: nullTime(run.FinishedAt),
		Status:     run.Status,
		FailedStep: nullString(run.FailedStep),
		Version:    nullString(run.Version),
	}
	_, err := s.bun.NewUpdate().Model(rm).
		Column("finished_at", "status", "failed_step", "version").
		WherePK().Exec(ctx)
	return err
}

// AddStepRecord inserts one executed-step record.
func (s *bunStore) AddStepRecord(rec *model.StepRecord) error {
	ctx := context.Background()
	sm := &StepModel{
		RunID:      rec.RunID,
		Seq:        rec.Seq,
		Name:       rec.Name,
		Status:     rec.Status,
		Error:      nullString(rec.Error),
		DurationMs: rec.Duration.Milliseconds(),
	}
	if _, err := s.bun.NewInsert().Model(sm).
		Column("run_id", "seq", "name", "status", "error", "duration_ms").
		Returning("id").Exec(ctx); err != nil {
		return err
	}
	rec.ID = sm.ID
	return nil
}

// GetAllRuns returns all runs, most recent first.
func (s *bunStore) GetAllRuns() ([]model.Run, error) {
	ctx := context.Background()
	var rms []RunModel
	if err := s.bun.NewSelect().Model(&rms).OrderExpr("started_at DESC, id DESC").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.Run, 0, len(rms))
	for _, rm := range rms {
		out = append(out, runModelToModel(rm))
	}
	return out, nil
}

// GetStepsForRun returns the executed steps of a run in sequence order.
func (s *bunStore) GetStepsForRun(runID int) ([]model.StepRecord, error) {
	ctx := context.Background()
	var sms []StepModel
	if err := s.bun.NewSelect().Model(&sms).Where("run_id = ?", runID).OrderExpr("seq").Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]model.StepRecord, 0, len(sms))
	for _, sm := range sms {
		out = append(out, stepModelToModel(sm))
	}
	return out, nil
}

// GetKnownHostKey returns the pinned key for a host, or "" if the host is
// not trusted yet.
func (s *bunStore) GetKnownHostKey(hostname string) (string, error) {
	ctx := context.Background()
	var km KnownHostModel
	err := s.bun.NewSelect().Model(&km).Where("hostname = ?", hostname).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return km.Key, nil
}

// AddKnownHostKey pins (or replaces) the key for a host.
func (s *bunStore) AddKnownHostKey(hostname, key string) error {
	ctx := context.Background()
	km := &KnownHostModel{Hostname: hostname, Key: key}
	if _, err := s.bun.NewDelete().Model((*KnownHostModel)(nil)).Where("hostname = ?", hostname).Exec(ctx); err != nil {
		return err
	}
	_, err := s.bun.NewInsert().Model(km).Exec(ctx)
	return err
}

// ExportData collects the whole database content for a backup.
func (s *bunStore) ExportData() (*model.BackupData, error) {
	runs, err := s.GetAllRuns()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	var sms []StepModel
	if err := s.bun.NewSelect().Model(&sms).OrderExpr("run_id, seq").Scan(ctx); err != nil {
		return nil, err
	}
	steps := make([]model.StepRecord, 0, len(sms))
	for _, sm := range sms {
		steps = append(steps, stepModelToModel(sm))
	}

	var kms []KnownHostModel
	if err := s.bun.NewSelect().Model(&kms).OrderExpr("hostname").Scan(ctx); err != nil {
		return nil, err
	}
	hosts := make([]model.KnownHost, 0, len(kms))
	for _, km := range kms {
		hosts = append(hosts, model.KnownHost{Hostname: km.Hostname, Key: km.Key})
	}

	return &model.BackupData{
		ExportedAt: time.Now().UTC(),
		Runs:       runs,
		Steps:      steps,
		KnownHosts: hosts,
	}, nil
}

// ImportData restores a backup into the database inside one transaction.
func (s *bunStore) ImportData(data *model.BackupData) error {
	ctx := context.Background()
	return s.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, table := range []string{"run_steps", "runs", "known_hosts"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return err
			}
		}
		for _, r := range data.Runs {
			rm := &RunModel{
				ID:         r.ID,
				StartedAt:  r.StartedAt,
				FinishedAt: nullTime(r.FinishedAt),
				Status:     r.Status,
				FailedStep: nullString(r.FailedStep),
				Version:    nullString(r.Version),
			}
			if _, err := tx.NewInsert().Model(rm).Exec(ctx); err != nil {
				return err
			}
		}
		for _, rec := range data.Steps {
			sm := &StepModel{
				ID:         rec.ID,
				RunID:      rec.RunID,
				Seq:        rec.Seq,
				Name:       rec.Name,
				Status:     rec.Status,
				Error:      nullString(rec.Error),
				DurationMs: rec.Duration.Milliseconds(),
			}
			if _, err := tx.NewInsert().Model(sm).Exec(ctx); err != nil {
				return err
			}
		}
		for _, kh := range data.KnownHosts {
			km := &KnownHostModel{Hostname: kh.Hostname, Key: kh.Key}
			if _, err := tx.NewInsert().Model(km).Exec(ctx); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close releases the underlying connections.
func (s *bunStore) Close() error {
	return s.bun.Close()
}
