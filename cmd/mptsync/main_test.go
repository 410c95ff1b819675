// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestRootCmdSubcommands(t *testing.T) {
	cmd := newRootCmd()

	want := []string{"sync", "archive", "mirror", "trust-host", "history", "init"}
	for _, name := range want {
		found := false
		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("subcommand %q is missing", name)
		}
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.String(), "mptsync") {
		t.Errorf("help output:\n%s", out.String())
	}
}

func TestSyncDryRunPrintsPlan(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"sync", "--dry-run"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, step := range []string{
		"fetch-submission-state",
		"build-tutorials",
		"push-submission-state",
		"publish-tutorials",
		"build-app-archive",
		"publish-app",
		"publish-version",
		"publish-bootstrap",
		"mirror-cgi",
		"mirror-help",
	} {
		if !strings.Contains(out.String(), step) {
			t.Errorf("dry-run plan is missing step %q:\n%s", step, out.String())
		}
	}
}
