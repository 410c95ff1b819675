// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mypytutor/mptsync/internal/config"
	"github.com/mypytutor/mptsync/internal/db"
	"github.com/mypytutor/mptsync/internal/extcmd"
	"github.com/mypytutor/mptsync/internal/i18n"
	"github.com/mypytutor/mptsync/internal/model"
	"github.com/mypytutor/mptsync/internal/publish"
	"github.com/mypytutor/mptsync/internal/sequence"
	"github.com/mypytutor/mptsync/internal/state"
	"github.com/mypytutor/mptsync/internal/transfer"
	"github.com/mypytutor/mptsync/internal/tui"
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run the full publishing pipeline",
		Long: `Runs the ten publishing steps in their fixed order: fetch submission
state, build the tutorial package, push the state back, upload the tutorial
and application archives, publish the version marker and bootstrap files,
and mirror the CGI and help directories. The run aborts on the first failed
step.`,
		RunE: runSync,
	}
	cmd.Flags().Bool("dry-run", false, "print the step plan without executing it")
	cmd.Flags().Bool("tui", false, "show an interactive progress view")
	cmd.Flags().Bool("ask-pass", false, "prompt for the deploy key passphrase")
	return cmd
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	dryRun, _ := cmd.Flags().GetBool("dry-run")
	useTUI, _ := cmd.Flags().GetBool("tui")
	askPass, _ := cmd.Flags().GetBool("ask-pass")

	if dryRun {
		cmd.Println(i18n.T("sync.plan_header", cfg.Remote.User, cfg.Remote.Host))
		for i, s := range publish.New(cfg, nil, nil, nil).Steps() {
			cmd.Printf("%2d. %s\n", i+1, s.Name)
		}
		return nil
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if askPass {
		if err := promptPassphrase(); err != nil {
			return err
		}
	}
	defer state.PassphraseCache.Clear()

	dialer, err := newDialer(cfg, st)
	if err != nil {
		return err
	}

	pipe := publish.New(cfg, dialer, nil, &extcmd.ExecRunner{Dir: cfg.Paths.WorkDir})
	steps := pipe.Steps()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	run := &model.Run{StartedAt: time.Now().UTC(), Status: model.RunStatusRunning}
	if err := st.CreateRun(run); err != nil {
		return fmt.Errorf(i18n.T("sync.error_record_run"), err)
	}

	var records []model.StepRecord
	var runErr error
	if useTUI {
		records, runErr = runWithTUI(ctx, cancel, pipe, steps)
	} else {
		records, runErr = sequence.NewRunner(steps, consoleReporter).Run(ctx)
	}

	finishRun(st, run, records, runErr, pipe.PublishedVersion())

	if runErr != nil {
		return runErr
	}
	fmt.Println(i18n.T("sync.success", pipe.PublishedVersion()))
	return nil
}

// consoleReporter prints the classic "label... done" pair around each step.
func consoleReporter(ev sequence.Event) {
	if !ev.Done {
		fmt.Printf("%s... ", ev.Name)
		return
	}
	if ev.Err != nil {
		fmt.Println("failed")
		return
	}
	fmt.Println("done")
}

// runWithTUI executes the sequence while feeding the progress view.
func runWithTUI(ctx context.Context, cancel context.CancelFunc, pipe *publish.Pipeline, steps []sequence.Step) ([]model.StepRecord, error) {
	events := make(chan sequence.Event, 2*len(steps))
	done := make(chan tui.RunOutcome, 1)

	runner := sequence.NewRunner(steps, func(ev sequence.Event) { events <- ev })

	var records []model.StepRecord
	var runErr error
	go func() {
		records, runErr = runner.Run(ctx)
		close(events)
		done <- tui.RunOutcome{Err: runErr, Version: pipe.PublishedVersion()}
	}()

	if err := tui.Run(runner.Steps(), events, done, cancel); err != nil {
		return records, err
	}
	return records, runErr
}

// finishRun persists the outcome of a run. History failures must not mask
// the pipeline result, so they are only logged.
func finishRun(st db.Store, run *model.Run, records []model.StepRecord, runErr error, version string) {
	for i := range records {
		records[i].RunID = run.ID
		if err := st.AddStepRecord(&records[i]); err != nil {
			fmt.Fprintf(os.Stderr, "%s\n", i18n.T("sync.error_record_step", err))
		}
	}

	run.FinishedAt = time.Now().UTC()
	run.Status = model.RunStatusSuccess
	run.Version = version
	if runErr != nil {
		run.Status = model.RunStatusFailed
		for _, rec := range records {
			if rec.Status == model.StepStatusFailed {
				run.FailedStep = rec.Name
			}
		}
	}
	if err := st.FinishRun(run); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", i18n.T("sync.error_record_run", err))
	}
}

// newDialer assembles the throttled SFTP dialer from configuration. The
// known-host store doubles as the host key verifier.
func newDialer(cfg config.Config, hosts transfer.HostKeyStore) (transfer.Dialer, error) {
	var key []byte
	if cfg.Remote.IdentityFile != "" {
		var err error
		key, err = os.ReadFile(cfg.Remote.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf(i18n.T("sync.error_read_identity"), cfg.Remote.IdentityFile, err)
		}
	}

	ssh := &transfer.SSHDialer{
		Host:       cfg.Remote.Host,
		User:       cfg.Remote.User,
		PrivateKey: key,
		Passphrase: state.PassphraseCache.Get(),
		Hosts:      hosts,
	}
	return transfer.NewThrottledDialer(ssh, cfg.Remote.LoginDelay), nil
}

// promptPassphrase reads the deploy key passphrase, hiding the input when
// stdin is a terminal.
func promptPassphrase() error {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Print(i18n.T("sync.passphrase_prompt"))
		pass, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf(i18n.T("sync.error_read_passphrase"), err)
		}
		state.PassphraseCache.Set(pass)
		return nil
	}

	// Piped input: take the first line.
	scanner := bufio.NewScanner(os.Stdin)
	if scanner.Scan() {
		state.PassphraseCache.Set(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf(i18n.T("sync.error_read_passphrase"), err)
	}
	return nil
}
