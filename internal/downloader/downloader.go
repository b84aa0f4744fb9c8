package downloader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/telemetry"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

const (
	dirPerm = 0o755

	defaultFilename = "download"
)

// Config tunes the retry loop and the daemon job options.
type Config struct {
	MaxAttempts  int
	RetryWait    time.Duration
	PollInterval time.Duration

	Split                  int
	MaxConnectionPerServer int
	MinSplitSize           string
	UserAgent              string
}

// Downloader drives daemon jobs for one request at a time until the file is complete
// or the retry budget runs out. It is safe for concurrent use.
type Downloader struct {
	daemon    transfer.Daemon
	prober    *Prober
	integrity *IntegrityChecker
	sink      transfer.ProgressSink
	telemetry *telemetry.Telemetry
	cfg       Config
}

// Option configures a Downloader.
type Option func(*Downloader)

func WithProgressSink(sink transfer.ProgressSink) Option {
	return func(d *Downloader) {
		if sink != nil {
			d.sink = sink
		}
	}
}

func WithTelemetry(tel *telemetry.Telemetry) Option {
	return func(d *Downloader) {
		d.telemetry = tel
	}
}

func WithIntegrityChecker(c *IntegrityChecker) Option {
	return func(d *Downloader) {
		if c != nil {
			d.integrity = c
		}
	}
}

func New(daemon transfer.Daemon, prober *Prober, cfg Config, opts ...Option) *Downloader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}

	if cfg.RetryWait <= 0 {
		cfg.RetryWait = DefaultRetryWait
	}

	if prober == nil {
		prober = NewProber(nil, DefaultProbeTimeout)
	}

	d := &Downloader{
		daemon:    daemon,
		prober:    prober,
		integrity: NewIntegrityChecker(0),
		sink:      transfer.NopSink{},
		cfg:       cfg,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Integrity returns the checker used for checksum verification.
func (d *Downloader) Integrity() *IntegrityChecker {
	return d.integrity
}

// Download fetches req.URL into req.Dir. It never returns an error: exhaustion,
// cancellation and local failures all yield a Result with Success unset.
func (d *Downloader) Download(ctx context.Context, req Request) Result {
	ctx, logger := logctx.With(ctx, "url", req.URL)
	res := Result{URL: req.URL}

	dir, err := filepath.Abs(req.Dir)
	if err != nil {
		logger.Error("invalid download directory", "dir", req.Dir, "err", err)

		return res
	}

	if req.Filename != "" && d.satisfied(ctx, filepath.Join(dir, req.Filename), req.Checksum) {
		res.Path = filepath.Join(dir, req.Filename)
		res.Success = true

		return res
	}

	resumable, probed := d.prober.Probe(ctx, req.URL, req.Auth)

	filename := req.Filename
	if filename == "" {
		filename = probed
	}

	if filename == "" {
		filename = defaultFilename
	}

	target := filepath.Join(dir, filename)
	res.Path = target

	if req.Filename == "" && d.satisfied(ctx, target, req.Checksum) {
		res.Success = true

		return res
	}

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		logger.Error("failed to create target directory", "dir", dir, "err", err)

		return res
	}

	opts := d.jobOptions(dir, filename, req.Auth)
	session := transfer.NewSession(d.daemon, d.sink, transfer.SessionConfig{
		PollInterval: d.cfg.PollInterval,
		StallWindow:  d.cfg.RetryWait,
	})
	state := NewRetryState(d.cfg.MaxAttempts, d.cfg.RetryWait)

	for {
		res.Attempts++

		attempt := session.Run(ctx, req.URL, opts, resumable)
		res.BytesTransferred = max(res.BytesTransferred, attempt.Record.CompletedBytes)

		if attempt.Outcome == transfer.OutcomeComplete {
			d.telemetry.RecordAttempt(ctx, attempt.Outcome.String(), attempt.Record.TotalBytes)

			res.Success = true
			res.ChecksumMismatch = !d.verify(ctx, target, req.Checksum)

			return res
		}

		d.telemetry.RecordAttempt(ctx, attempt.Outcome.String(), 0)

		if ctx.Err() != nil {
			logger.Warn("download cancelled", "attempts", res.Attempts, "err", ctx.Err())

			return res
		}

		reset := state.Attempt(attempt.Record.CompletedBytes)
		if state.Exhausted() {
			logger.Error("download failed after retries, fetch it manually",
				"attempts", res.Attempts,
				"manual_url", req.URL,
				"destination", target,
				"err", attempt.Err)

			return res
		}

		d.telemetry.RecordRetry(ctx, reset)

		logger.Warn("download attempt failed, retrying",
			"attempt", res.Attempts,
			"outcome", attempt.Outcome.String(),
			"remaining", state.Remaining,
			"budget_reset", reset,
			"wait", state.Wait,
			"err", attempt.Err)

		if err := d.wait(ctx, fmt.Sprintf("retry:%s:%d", filename, res.Attempts), filename, state.Wait); err != nil {
			logger.Warn("download cancelled while waiting to retry", "attempts", res.Attempts, "err", err)

			return res
		}
	}
}

func (d *Downloader) jobOptions(dir, filename string, auth transfer.Auth) transfer.Options {
	if auth.UserAgent == "" {
		auth.UserAgent = d.cfg.UserAgent
	}

	return transfer.Options{
		Dir:                    dir,
		Out:                    filename,
		Split:                  d.cfg.Split,
		MaxConnectionPerServer: d.cfg.MaxConnectionPerServer,
		MinSplitSize:           d.cfg.MinSplitSize,
		MaxTries:               1, // retries are owned by RetryState
		Auth:                   auth,
	}
}

// satisfied reports whether path already holds the expected content. Without a
// checksum nothing is ever satisfied up front.
func (d *Downloader) satisfied(ctx context.Context, path, checksum string) bool {
	if checksum == "" {
		return false
	}

	ok, err := d.integrity.Matches(ctx, path, checksum)
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to verify existing file", "path", path, "err", err)

		return false
	}

	if ok {
		logctx.LoggerFromContext(ctx).Info("file already present with matching checksum, skipping download", "path", path)
	}

	return ok
}

// verify checks a freshly completed file. A mismatch is only a warning: the expected
// checksum may be stale, and the file is kept.
func (d *Downloader) verify(ctx context.Context, path, checksum string) bool {
	if checksum == "" {
		return true
	}

	logger := logctx.LoggerFromContext(ctx).With("path", path)

	sum, err := d.integrity.MD5(ctx, path)
	if err != nil {
		logger.Warn("failed to verify downloaded file", "err", err)

		return true
	}

	if !strings.EqualFold(sum, strings.TrimSpace(checksum)) {
		d.telemetry.RecordChecksumMismatch(ctx)

		logger.Warn("checksum mismatch, keeping file",
			"expected", checksum,
			"actual", sum)

		return false
	}

	if info, err := os.Stat(path); err == nil {
		logger.Info("checksum verified", "size", humanize.Bytes(uint64(info.Size())))
	}

	return true
}

// wait sleeps before the next attempt while reporting a countdown entry to the sink.
func (d *Downloader) wait(ctx context.Context, id, name string, wait time.Duration) error {
	d.sink.Start(id, "retrying "+name, wait.Milliseconds())
	defer d.sink.Done(id)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	start := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			return nil
		case <-ticker.C:
			d.sink.Update(id, time.Since(start).Milliseconds(), wait.Milliseconds())
		}
	}
}
