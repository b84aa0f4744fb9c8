package transfer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/logctx"
)

const (
	DefaultPollInterval = 500 * time.Millisecond
	DefaultProbeBytes   = 5 * 1024 * 1024

	maxConsecutivePollErrors = 5
	removeTimeout            = 5 * time.Second
)

// Outcome is how a single daemon job attempt ended.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeComplete
	OutcomeStalled
	OutcomeProbed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeComplete:
		return "complete"
	case OutcomeStalled:
		return "stalled"
	case OutcomeProbed:
		return "probed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

// Attempt is the terminal record of one Session.Run.
type Attempt struct {
	Record    Record
	Outcome   Outcome
	PeakSpeed int64
	Debt      float64
	Polls     int
	Err       error
}

// SessionConfig tunes the polling loop.
type SessionConfig struct {
	PollInterval time.Duration
	// StallWindow is how long sustained sub-quarter-peak throughput is tolerated
	// on resumable transfers before the job is aborted.
	StallWindow time.Duration
	// ProbeBytes caps the transfer when positive; used to sample a source.
	ProbeBytes int64
}

// Session drives one daemon job from submission to a terminal state.
type Session struct {
	daemon Daemon
	sink   ProgressSink
	cfg    SessionConfig
}

func NewSession(daemon Daemon, sink ProgressSink, cfg SessionConfig) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if sink == nil {
		sink = NopSink{}
	}

	return &Session{daemon: daemon, sink: sink, cfg: cfg}
}

// Run submits url to the daemon and polls it until it completes, errors, stalls or ctx
// is cancelled. Any job that does not complete is removed from the daemon.
func (s *Session) Run(ctx context.Context, url string, opts Options, resumable bool) Attempt {
	logger := logctx.LoggerFromContext(ctx).With("url", url)

	gid, err := s.daemon.AddURI(ctx, url, opts)
	if err != nil {
		logger.Error("failed to submit download job", "err", err)

		return Attempt{Record: Record{URL: url, Status: StatusError}, Outcome: OutcomeFailed, Err: err}
	}

	logger = logger.With("gid", gid)
	logger.Debug("download job submitted", "dir", opts.Dir, "out", opts.Out, "resumable", resumable)

	name := opts.Out
	if name == "" {
		name = path.Base(url)
	}

	s.sink.Start(gid, name, 0)
	defer s.sink.Done(gid)

	attempt := s.poll(ctx, gid, url, resumable)
	if attempt.Record.Path == "" && opts.Out != "" {
		attempt.Record.Path = filepath.Join(opts.Dir, opts.Out)
	}

	switch attempt.Outcome {
	case OutcomeComplete:
		logger.Info("download job complete",
			"path", attempt.Record.Path,
			"size", humanize.Bytes(uint64(attempt.Record.TotalBytes)),
			"peak_speed", humanize.Bytes(uint64(attempt.PeakSpeed))+"/s")
	default:
		s.remove(ctx, gid)

		logger.Warn("download job did not complete",
			"outcome", attempt.Outcome.String(),
			"status", attempt.Record.Status,
			"completed", humanize.Bytes(uint64(attempt.Record.CompletedBytes)),
			"debt_seconds", attempt.Debt,
			"err", attempt.Err)
	}

	return attempt
}

func (s *Session) poll(ctx context.Context, gid, url string, resumable bool) Attempt {
	detector := NewStallDetector(s.cfg.PollInterval, s.cfg.StallWindow)
	attempt := Attempt{Record: Record{GID: gid, URL: url, Status: StatusPending}}

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	pollErrors := 0

	for {
		select {
		case <-ctx.Done():
			attempt.Outcome = OutcomeCancelled
			attempt.Err = ctx.Err()

			return attempt
		case <-ticker.C:
		}

		rec, err := s.daemon.Status(ctx, gid)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) || ctx.Err() != nil {
				attempt.Outcome = OutcomeFailed
				attempt.Err = err

				if ctx.Err() != nil {
					attempt.Outcome = OutcomeCancelled
				}

				return attempt
			}

			pollErrors++
			if pollErrors >= maxConsecutivePollErrors {
				attempt.Outcome = OutcomeFailed
				attempt.Err = fmt.Errorf("polling job %s failed %d times: %w", gid, pollErrors, err)

				return attempt
			}

			continue
		}

		pollErrors = 0
		attempt.Polls++

		if rec.URL == "" {
			rec.URL = url
		}

		attempt.Record = *rec
		stalled := detector.Observe(rec.CompletedBytes, rec.DownloadSpeed)
		attempt.PeakSpeed = detector.Peak()
		attempt.Debt = detector.Debt()

		s.sink.Update(gid, rec.CompletedBytes, rec.TotalBytes)

		switch {
		case rec.IsComplete():
			attempt.Outcome = OutcomeComplete

			return attempt
		case rec.IsTerminalFailure():
			attempt.Outcome = OutcomeFailed
			attempt.Err = fmt.Errorf("job %s ended with status %s: %s", gid, rec.Status, rec.ErrorMessage)

			return attempt
		case s.cfg.ProbeBytes > 0 && rec.CompletedBytes >= s.cfg.ProbeBytes:
			attempt.Outcome = OutcomeProbed

			return attempt
		case resumable && stalled:
			attempt.Outcome = OutcomeStalled
			attempt.Err = fmt.Errorf("job %s stalled below a quarter of peak speed %s/s",
				gid, humanize.Bytes(uint64(detector.Peak())))

			return attempt
		}
	}
}

// remove drops the job from the daemon even when ctx is already cancelled, so an
// aborted attempt does not leave an orphan behind. The gid is never used afterwards.
func (s *Session) remove(ctx context.Context, gid string) {
	logger := logctx.LoggerFromContext(ctx).With("gid", gid)

	rmCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), removeTimeout)
	defer cancel()

	if err := s.daemon.Remove(rmCtx, gid); err != nil && !errors.Is(err, ErrJobNotFound) {
		logger.Error("failed to remove download job", "err", err)

		return
	}

	logger.Debug("download job removed")
}
