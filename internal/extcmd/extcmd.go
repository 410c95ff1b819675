// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package extcmd wraps the external tool invocations of the pipeline: the
// tutorial build and the version-reporting command.
package extcmd

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Runner executes external commands in a working directory.
type Runner interface {
	// Run executes argv and discards its output; only the exit status is
	// reported back.
	Run(ctx context.Context, argv []string) error
	// Output executes argv and returns its stdout bytes verbatim.
	Output(ctx context.Context, argv []string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct {
	// Dir is the working directory for every command. Empty means the
	// process working directory.
	Dir string
}

// Run executes argv and discards stdout. Stderr is captured and folded into
// the returned error so the operator sees the tool's own diagnostic.
func (r *ExecRunner) Run(ctx context.Context, argv []string) error {
	cmd, err := r.command(ctx, argv)
	if err != nil {
		return err
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return commandError(argv[0], err, stderr.Bytes())
	}
	return nil
}

// Output executes argv and returns its stdout bytes with no trailing
// modification. The uploaded version marker must match these bytes exactly.
func (r *ExecRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	cmd, err := r.command(ctx, argv)
	if err != nil {
		return nil, err
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, commandError(argv[0], err, stderr.Bytes())
	}
	return stdout.Bytes(), nil
}

func (r *ExecRunner) command(ctx context.Context, argv []string) (*exec.Cmd, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	return cmd, nil
}

func commandError(name string, err error, stderr []byte) error {
	if msg := bytes.TrimSpace(stderr); len(msg) > 0 {
		return fmt.Errorf("%s: %w: %s", name, err, msg)
	}
	return fmt.Errorf("%s: %w", name, err)
}
