// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package db

import (
	"bytes"
	"testing"
	"time"

	"github.com/mypytutor/mptsync/internal/model"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenUnsupportedType(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Fatal("expected error for unsupported database type")
	}
}

func TestRunLifecycle(t *testing.T) {
	st := openTestStore(t)

	run := &model.Run{StartedAt: time.Now().UTC(), Status: model.RunStatusRunning}
	if err := st.CreateRun(run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if run.ID == 0 {
		t.Fatal("CreateRun did not assign an ID")
	}

	steps := []model.StepRecord{
		{RunID: run.ID, Seq: 1, Name: "fetch-submission-state", Status: model.StepStatusSuccess, Duration: 1200 * time.Millisecond},
		{RunID: run.ID, Seq: 2, Name: "build-tutorials", Status: model.StepStatusFailed, Error: "make: exit status 2", Duration: 4 * time.Second},
	}
	for i := range steps {
		if err := st.AddStepRecord(&steps[i]); err != nil {
			t.Fatalf("AddStepRecord: %v", err)
		}
	}

	run.FinishedAt = run.StartedAt.Add(6 * time.Second)
	run.Status = model.RunStatusFailed
	run.FailedStep = "build-tutorials"
	if err := st.FinishRun(run); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	runs, err := st.GetAllRuns()
	if err != nil {
		t.Fatalf("GetAllRuns: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("got %d runs, want 1", len(runs))
	}
	got := runs[0]
	if got.Status != model.RunStatusFailed || got.FailedStep != "build-tutorials" {
		t.Errorf("run = %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt was not persisted")
	}

	recs, err := st.GetStepsForRun(run.ID)
	if err != nil {
		t.Fatalf("GetStepsForRun: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d step records, want 2", len(recs))
	}
	if recs[0].Name != "fetch-submission-state" || recs[1].Name != "build-tutorials" {
		t.Errorf("steps out of order: %q, %q", recs[0].Name, recs[1].Name)
	}
	if recs[1].Error != "make: exit status 2" {
		t.Errorf("step error = %q", recs[1].Error)
	}
	if recs[0].Duration != 1200*time.Millisecond {
		t.Errorf("step duration = %v, want 1.2s", recs[0].Duration)
	}
}

func TestGetAllRunsMostRecentFirst(t *testing.T) {
	st := openTestStore(t)

	base := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		run := &model.Run{StartedAt: base.Add(time.Duration(i) * time.Hour), Status: model.RunStatusSuccess}
		if err := st.CreateRun(run); err != nil {
			t.Fatalf("CreateRun: %v", err)
		}
	}

	runs, err := st.GetAllRuns()
	if err != nil {
		t.Fatalf("GetAllRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("got %d runs, want 3", len(runs))
	}
	for i := 1; i < len(runs); i++ {
		if runs[i].StartedAt.After(runs[i-1].StartedAt) {
			t.Errorf("runs not ordered most recent first: %v before %v", runs[i-1].StartedAt, runs[i].StartedAt)
		}
	}
}

func TestKnownHostKeys(t *testing.T) {
	st := openTestStore(t)

	key, err := st.GetKnownHostKey("csse1001.uqcloud.net")
	if err != nil {
		t.Fatalf("GetKnownHostKey: %v", err)
	}
	if key != "" {
		t.Errorf("key for unknown host = %q, want empty", key)
	}

	if err := st.AddKnownHostKey("csse1001.uqcloud.net", "ssh-ed25519 AAAA..."); err != nil {
		t.Fatalf("AddKnownHostKey: %v", err)
	}
	key, err = st.GetKnownHostKey("csse1001.uqcloud.net")
	if err != nil {
		t.Fatalf("GetKnownHostKey: %v", err)
	}
	if key != "ssh-ed25519 AAAA..." {
		t.Errorf("key = %q", key)
	}

	// Re-pinning replaces the stored key.
	if err := st.AddKnownHostKey("csse1001.uqcloud.net", "ssh-rsa BBBB..."); err != nil {
		t.Fatalf("AddKnownHostKey: %v", err)
	}
	key, _ = st.GetKnownHostKey("csse1001.uqcloud.net")
	if key != "ssh-rsa BBBB..." {
		t.Errorf("replaced key = %q", key)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := openTestStore(t)

	run := &model.Run{StartedAt: time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC), Status: model.RunStatusRunning}
	if err := src.CreateRun(run); err != nil {
		t.Fatal(err)
	}
	rec := &model.StepRecord{RunID: run.ID, Seq: 1, Name: "publish-app", Status: model.StepStatusSuccess, Duration: time.Second}
	if err := src.AddStepRecord(rec); err != nil {
		t.Fatal(err)
	}
	run.Status = model.RunStatusSuccess
	run.FinishedAt = run.StartedAt.Add(time.Minute)
	run.Version = "35"
	if err := src.FinishRun(run); err != nil {
		t.Fatal(err)
	}
	if err := src.AddKnownHostKey("csse1001.uqcloud.net", "ssh-ed25519 AAAA..."); err != nil {
		t.Fatal(err)
	}

	data, err := src.ExportData()
	if err != nil {
		t.Fatalf("ExportData: %v", err)
	}

	dst := openTestStore(t)
	if err := dst.ImportData(data); err != nil {
		t.Fatalf("ImportData: %v", err)
	}

	runs, err := dst.GetAllRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Version != "35" || runs[0].Status != model.RunStatusSuccess {
		t.Errorf("restored runs = %+v", runs)
	}
	recs, err := dst.GetStepsForRun(runs[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Name != "publish-app" {
		t.Errorf("restored steps = %+v", recs)
	}
	key, err := dst.GetKnownHostKey("csse1001.uqcloud.net")
	if err != nil {
		t.Fatal(err)
	}
	if key != "ssh-ed25519 AAAA..." {
		t.Errorf("restored key = %q", key)
	}
}

func TestBackupRestore(t *testing.T) {
	src := openTestStore(t)
	run := &model.Run{StartedAt: time.Now().UTC(), Status: model.RunStatusSuccess}
	if err := src.CreateRun(run); err != nil {
		t.Fatal(err)
	}
	if err := src.AddKnownHostKey("csse1001.uqcloud.net", "ssh-ed25519 AAAA..."); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Backup(&buf, src); err != nil {
		t.Fatalf("Backup: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("backup produced no output")
	}

	dst := openTestStore(t)
	if err := Restore(&buf, dst); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	runs, err := dst.GetAllRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("restored %d runs, want 1", len(runs))
	}
	key, err := dst.GetKnownHostKey("csse1001.uqcloud.net")
	if err != nil {
		t.Fatal(err)
	}
	if key != "ssh-ed25519 AAAA..." {
		t.Errorf("restored key = %q", key)
	}
}
