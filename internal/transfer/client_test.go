// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package transfer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func TestDirectionString(t *testing.T) {
	if got := Get.String(); got != "get" {
		t.Errorf("Get.String() = %q, want %q", got, "get")
	}
	if got := Put.String(); got != "put" {
		t.Errorf("Put.String() = %q, want %q", got, "put")
	}
}

func TestExecuteBatchOrder(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/work/hashes", []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}
	c := NewFakeClient(fs)
	c.Remote["/data/mappings"] = &FakeFile{Data: []byte("m")}
	d := &FakeDialer{Client: c}

	batch := []Request{
		{Direction: Put, Local: "/work/hashes", Remote: "/data/hashes"},
		{Direction: Get, Local: "/work/mappings", Remote: "/data/mappings"},
	}
	if err := ExecuteBatch(context.Background(), d, batch); err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}

	want := []string{
		"put /work/hashes -> /data/hashes",
		"get /data/mappings -> /work/mappings",
	}
	if len(c.Log) != len(want) {
		t.Fatalf("log = %v, want %v", c.Log, want)
	}
	for i := range want {
		if c.Log[i] != want[i] {
			t.Errorf("log[%d] = %q, want %q", i, c.Log[i], want[i])
		}
	}
	if !c.Closed {
		t.Error("session was not closed after the batch")
	}
	if d.Dials != 1 {
		t.Errorf("dials = %d, want 1 (single session per batch)", d.Dials)
	}
}

func TestExecuteBatchFailFast(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/work/a", []byte("a"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := afero.WriteFile(fs, "/work/b", []byte("b"), 0644); err != nil {
		t.Fatal(err)
	}
	c := NewFakeClient(fs)
	c.FailOn = "-> /data/a"
	d := &FakeDialer{Client: c}

	batch := []Request{
		{Direction: Put, Local: "/work/a", Remote: "/data/a"},
		{Direction: Put, Local: "/work/b", Remote: "/data/b"},
	}
	err := ExecuteBatch(context.Background(), d, batch)
	if err == nil {
		t.Fatal("expected error from failing request")
	}
	if _, ok := c.Remote["/data/b"]; ok {
		t.Error("request after the failure was still executed")
	}
	if !c.Closed {
		t.Error("session was not closed after the failure")
	}
}

func TestExecuteBatchDialError(t *testing.T) {
	dialErr := errors.New("connection refused")
	d := &FakeDialer{Err: dialErr}
	err := ExecuteBatch(context.Background(), d, []Request{{Direction: Get}})
	if !errors.Is(err, dialErr) {
		t.Fatalf("error = %v, want %v", err, dialErr)
	}
}

func TestThrottledDialerFirstLoginImmediate(t *testing.T) {
	inner := &FakeDialer{Client: NewFakeClient(nil)}
	d := NewThrottledDialer(inner, time.Second)

	start := time.Now()
	c, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	c.Close()
	if elapsed := time.Since(start); elapsed > 200*time.Millisecond {
		t.Errorf("first dial waited %v, want no delay", elapsed)
	}
}

func TestThrottledDialerDelaysLaterLogins(t *testing.T) {
	inner := &FakeDialer{Client: NewFakeClient(nil)}
	d := NewThrottledDialer(inner, 50*time.Millisecond)

	if _, err := d.Dial(context.Background()); err != nil {
		t.Fatalf("first Dial: %v", err)
	}
	start := time.Now()
	if _, err := d.Dial(context.Background()); err != nil {
		t.Fatalf("second Dial: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("second dial waited only %v, want at least the configured delay", elapsed)
	}
	if inner.Dials != 2 {
		t.Errorf("inner dials = %d, want 2", inner.Dials)
	}
}

func TestThrottledDialerContextCancel(t *testing.T) {
	inner := &FakeDialer{Client: NewFakeClient(nil)}
	d := NewThrottledDialer(inner, time.Minute)

	if _, err := d.Dial(context.Background()); err != nil {
		t.Fatalf("first Dial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	if _, err := d.Dial(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if inner.Dials != 1 {
		t.Errorf("inner dials = %d, want 1 (cancelled before second login)", inner.Dials)
	}
}
