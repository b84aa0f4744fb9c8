// Package installer provisions a pipeline: it runs the pipeline's core setup steps
// while resolving its artifacts, then unpacks archives and reports what is missing.
package installer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/italolelis/mocap_installer/internal/archive"
	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/source"
	"github.com/italolelis/mocap_installer/internal/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	reasonCancelled = "cancelled before it started"
	reasonFailed    = "all sources failed"
)

//go:generate mockgen -destination=./mocks/installer.go . Notifier,VersionChecker

// Resolver puts one artifact in place at all of its destinations.
type Resolver interface {
	Resolve(ctx context.Context, art source.Artifact) downloader.Result
}

// Extractor unpacks an archive.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string, opts archive.Options) (*archive.Report, error)
}

// VersionChecker verifies the download daemon is recent enough.
type VersionChecker interface {
	RequireVersion(ctx context.Context, minimum string) (string, error)
}

// Notifier is told about batches that left artifacts behind.
type Notifier interface {
	NotifyBatchFailure(ctx context.Context, err *BatchError) error
}

// Batch is everything one install run does.
type Batch struct {
	Pipeline string
	Steps    []Step
	Jobs     []Job
}

// Outcome is the per-artifact result of a batch.
type Outcome struct {
	Job        Job
	Result     downloader.Result
	Started    bool
	Extracted  *archive.Report
	ExtractErr error
}

// Report is the result of Install.
type Report struct {
	Pipeline string
	Outcomes []Outcome
	Duration time.Duration
}

type Installer struct {
	resolver  Resolver
	gate      *downloader.Gate
	extractor Extractor
	notifier  Notifier
	telemetry *telemetry.Telemetry

	versionChecker VersionChecker
	minVersion     string
}

type Option func(*Installer)

func WithNotifier(n Notifier) Option {
	return func(i *Installer) {
		i.notifier = n
	}
}

func WithInstallerTelemetry(tel *telemetry.Telemetry) Option {
	return func(i *Installer) {
		i.telemetry = tel
	}
}

// WithMinimumDaemonVersion makes Install refuse to start against an older daemon.
func WithMinimumDaemonVersion(checker VersionChecker, minimum string) Option {
	return func(i *Installer) {
		i.versionChecker = checker
		i.minVersion = minimum
	}
}

func New(resolver Resolver, gate *downloader.Gate, extractor Extractor, opts ...Option) *Installer {
	if gate == nil {
		gate = downloader.NewGate(downloader.DefaultMaxParallel, nil)
	}

	if extractor == nil {
		extractor = archive.NewExtractor()
	}

	i := &Installer{resolver: resolver, gate: gate, extractor: extractor}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// Install runs the batch's steps in order alongside its artifact resolutions, which
// are admitted through the gate. A failing step cancels resolutions that are
// still queued or running; resolutions never cancel each other. The returned error
// joins the first step failure with a *BatchError describing failed artifacts.
func (i *Installer) Install(ctx context.Context, batch Batch) (*Report, error) {
	ctx, logger := logctx.With(ctx, "pipeline", batch.Pipeline)
	start := time.Now()

	if i.versionChecker != nil && i.minVersion != "" {
		v, err := i.versionChecker.RequireVersion(ctx, i.minVersion)
		if err != nil {
			return nil, err
		}

		logger.Debug("download daemon version accepted", "version", v, "minimum", i.minVersion)
	}

	logger.Info("installing pipeline", "steps", len(batch.Steps), "artifacts", len(batch.Jobs))

	outcomes := make([]Outcome, len(batch.Jobs))
	for n, job := range batch.Jobs {
		outcomes[n] = Outcome{Job: job}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return i.runSteps(gctx, batch.Steps)
	})

	g.Go(func() error {
		for n := range batch.Jobs {
			err := i.gate.Go(gctx, func(ctx context.Context) {
				outcomes[n].Result = i.resolver.Resolve(ctx, outcomes[n].Job.Artifact)
			})
			if err != nil {
				break
			}

			outcomes[n].Started = true
		}

		// resolutions run to completion even after a step failure cancelled them
		return i.gate.AwaitAll(context.WithoutCancel(ctx))
	})

	stepErr := g.Wait()

	for n := range outcomes {
		o := &outcomes[n]
		if !o.Result.Success || o.Job.Extract == nil {
			continue
		}

		o.Extracted, o.ExtractErr = i.extractor.Extract(ctx, o.Result.Path, o.Job.Extract.Dir, o.Job.Extract.Options)
		if o.ExtractErr != nil {
			logger.Error("failed to extract artifact", "artifact", o.Job.Artifact.Name, "err", o.ExtractErr)
		}
	}

	report := &Report{Pipeline: batch.Pipeline, Outcomes: outcomes, Duration: time.Since(start)}

	var batchErr error
	if be := i.batchError(batch.Pipeline, outcomes); be != nil {
		batchErr = be

		if i.notifier != nil {
			if err := i.notifier.NotifyBatchFailure(ctx, be); err != nil {
				logger.Warn("failed to send batch failure notification", "err", err)
			}
		}
	}

	if err := errors.Join(stepErr, batchErr); err != nil {
		logger.Error("pipeline install incomplete", "duration", report.Duration, "err", err)
		i.telemetry.RecordSystemError(ctx, "installer", "install_incomplete")

		return report, err
	}

	logger.Info("pipeline installed", "duration", report.Duration)

	return report, nil
}

func (i *Installer) runSteps(ctx context.Context, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := step.Run(ctx); err != nil {
			return &StepError{Step: step.Name(), Err: err}
		}
	}

	return nil
}

func (i *Installer) batchError(pipeline string, outcomes []Outcome) *BatchError {
	var failures []Failure

	for _, o := range outcomes {
		path := o.Result.Path
		if path == "" && len(o.Job.Artifact.Destinations) > 0 {
			path = o.Job.Artifact.Destinations[0]
		}

		switch {
		case !o.Started:
			failures = append(failures, Failure{Artifact: o.Job.Artifact.Name, Path: path, Reason: reasonCancelled})
		case !o.Result.Success:
			failures = append(failures, Failure{Artifact: o.Job.Artifact.Name, URL: o.Result.URL, Path: path, Reason: reasonFailed})
		case o.ExtractErr != nil:
			failures = append(failures, Failure{
				Artifact: o.Job.Artifact.Name,
				URL:      o.Result.URL,
				Path:     path,
				Reason:   fmt.Sprintf("extract to %s: %v", o.Job.Extract.Dir, o.ExtractErr),
			})
		}
	}

	if len(failures) == 0 {
		return nil
	}

	return &BatchError{Pipeline: pipeline, Failures: failures}
}
