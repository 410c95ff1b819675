// Copyright (c) 2025 MyPyTutor contributors
// mptsync - MyPyTutor deployment and publishing tool
// This source code is licensed under the MIT license found in the LICENSE file.

// Package publish assembles the MyPyTutor release pipeline: ten named steps
// that fetch submission state, rebuild the tutorial and application
// artifacts, upload them together with a version marker, and mirror the CGI
// and help directories onto the course server.
package publish

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/mypytutor/mptsync/internal/archive"
	"github.com/mypytutor/mptsync/internal/config"
	"github.com/mypytutor/mptsync/internal/extcmd"
	"github.com/mypytutor/mptsync/internal/mirror"
	"github.com/mypytutor/mptsync/internal/sequence"
	"github.com/mypytutor/mptsync/internal/transfer"
)

// Pipeline builds the publishing step sequence from configuration and
// injected collaborators.
type Pipeline struct {
	cfg      config.Config
	dialer   transfer.Dialer
	fs       afero.Fs
	runner   extcmd.Runner
	archiver *archive.Builder
	mirrorer *mirror.Mirrorer

	// version holds the output of the version command once step
	// publish-version has run. The pipeline is strictly sequential, so no
	// locking is needed.
	version string
}

// New returns a Pipeline. The dialer is expected to already enforce the
// login throttle. A nil fs means the operating system filesystem.
func New(cfg config.Config, dialer transfer.Dialer, fs afero.Fs, runner extcmd.Runner) *Pipeline {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Pipeline{
		cfg:      cfg,
		dialer:   dialer,
		fs:       fs,
		runner:   runner,
		archiver: archive.NewBuilder(fs),
		mirrorer: mirror.NewMirrorer(fs),
	}
}

// PublishedVersion returns the version string captured by the
// publish-version step, with surrounding whitespace trimmed for display.
// Empty until that step has run.
func (p *Pipeline) PublishedVersion() string {
	return strings.TrimSpace(p.version)
}

// Steps returns the ten pipeline steps in their fixed execution order.
func (p *Pipeline) Steps() []sequence.Step {
	steps := []sequence.Step{
		{Name: "fetch-submission-state", Run: p.fetchSubmissionState},
		{Name: "build-tutorials", Run: p.buildTutorials},
		{Name: "push-submission-state", Run: p.pushSubmissionState},
		{Name: "publish-tutorials", Run: p.publishTutorials},
		{Name: "build-app-archive", Run: p.buildAppArchive},
		{Name: "publish-app", Run: p.publishApp},
		{Name: "publish-version", Run: p.publishVersion},
		{Name: "publish-bootstrap", Run: p.publishBootstrap},
	}
	for _, m := range p.cfg.Mirrors {
		m := m
		steps = append(steps, sequence.Step{
			Name: "mirror-" + m.Name,
			Run: func(ctx context.Context) error {
				return p.mirrorPair(ctx, m)
			},
		})
	}
	return steps
}

// hashFileBatch builds the get or put batch for the submission-state files.
func (p *Pipeline) hashFileBatch(dir transfer.Direction) []transfer.Request {
	var batch []transfer.Request
	for _, name := range p.cfg.Paths.HashFiles {
		batch = append(batch, transfer.Request{
			Direction: dir,
			Local:     filepath.Join(p.cfg.Paths.WorkDir, name),
			Remote:    path.Join(p.cfg.Paths.DataDir, name),
		})
	}
	return batch
}

func (p *Pipeline) fetchSubmissionState(ctx context.Context) error {
	return transfer.ExecuteBatch(ctx, p.dialer, p.hashFileBatch(transfer.Get))
}

func (p *Pipeline) buildTutorials(ctx context.Context) error {
	return p.runner.Run(ctx, p.cfg.Build.Command)
}

func (p *Pipeline) pushSubmissionState(ctx context.Context) error {
	return transfer.ExecuteBatch(ctx, p.dialer, p.hashFileBatch(transfer.Put))
}

func (p *Pipeline) publishTutorials(ctx context.Context) error {
	return p.putPublic(ctx, p.cfg.Paths.TutorialsArchive)
}

func (p *Pipeline) buildAppArchive(ctx context.Context) error {
	return p.archiver.BuildAppArchive(
		p.cfg.Paths.WorkDir,
		p.cfg.Paths.AppArchive,
		p.cfg.Paths.AppSourceDir,
		p.cfg.Paths.AppTopFiles,
	)
}

func (p *Pipeline) publishApp(ctx context.Context) error {
	return p.putPublic(ctx, p.cfg.Paths.AppArchive)
}

// publishVersion captures the version command's stdout into a temporary file,
// uploads it to the current-version path, and removes the temporary file on
// every exit path.
func (p *Pipeline) publishVersion(ctx context.Context) error {
	out, err := p.runner.Output(ctx, p.cfg.Build.VersionCommand)
	if err != nil {
		return fmt.Errorf("version command failed: %w", err)
	}

	tmp, err := afero.TempFile(p.fs, p.cfg.Paths.WorkDir, "mpt_version_*")
	if err != nil {
		return fmt.Errorf("failed to create version temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = p.fs.Remove(tmpPath)
	}()

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write version temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close version temp file: %w", err)
	}

	if err := transfer.ExecuteBatch(ctx, p.dialer, []transfer.Request{
		{Direction: transfer.Put, Local: tmpPath, Remote: p.cfg.Paths.VersionFile},
	}); err != nil {
		return err
	}

	p.version = string(out)
	return nil
}

func (p *Pipeline) publishBootstrap(ctx context.Context) error {
	return p.putPublic(ctx, p.cfg.Paths.Installer, p.cfg.Paths.Launcher)
}

// putPublic uploads local files from the work dir into the public remote dir.
func (p *Pipeline) putPublic(ctx context.Context, names ...string) error {
	var batch []transfer.Request
	for _, name := range names {
		batch = append(batch, transfer.Request{
			Direction: transfer.Put,
			Local:     filepath.Join(p.cfg.Paths.WorkDir, name),
			Remote:    path.Join(p.cfg.Paths.PublicDir, path.Base(filepath.ToSlash(name))),
		})
	}
	return transfer.ExecuteBatch(ctx, p.dialer, batch)
}

func (p *Pipeline) mirrorPair(ctx context.Context, m config.MirrorPair) error {
	c, err := p.dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	local := m.Local
	if !filepath.IsAbs(local) {
		local = filepath.Join(p.cfg.Paths.WorkDir, local)
	}
	return p.mirrorer.Mirror(ctx, c, local, m.Remote)
}
