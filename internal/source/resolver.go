package source

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/storage"
	"github.com/italolelis/mocap_installer/internal/telemetry"
)

// Fetcher downloads one concrete request. *downloader.Downloader implements it.
type Fetcher interface {
	Download(ctx context.Context, req downloader.Request) downloader.Result
}

// Resolver satisfies artifacts from local copies when possible and otherwise from the
// first source that delivers them.
type Resolver struct {
	fetcher   Fetcher
	integrity *downloader.IntegrityChecker
	ledger    storage.ArtifactWriteRepository
	telemetry *telemetry.Telemetry
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLedger records every resolution outcome in repo.
func WithLedger(repo storage.ArtifactWriteRepository) ResolverOption {
	return func(r *Resolver) {
		r.ledger = repo
	}
}

func WithResolverTelemetry(tel *telemetry.Telemetry) ResolverOption {
	return func(r *Resolver) {
		r.telemetry = tel
	}
}

func NewResolver(fetcher Fetcher, integrity *downloader.IntegrityChecker, opts ...ResolverOption) *Resolver {
	if integrity == nil {
		integrity = downloader.NewIntegrityChecker(0)
	}

	r := &Resolver{fetcher: fetcher, integrity: integrity}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve makes art present at every destination. At most one download happens per
// artifact: an existing copy at any destination is linked to the rest instead. Sources
// are tried in order and the first success wins. Failure is reported in the Result.
func (r *Resolver) Resolve(ctx context.Context, art Artifact) downloader.Result {
	ctx, logger := logctx.With(ctx, "artifact", art.Name)

	var (
		res  downloader.Result
		kind = "local"
	)

	_ = r.telemetry.InstrumentArtifact(ctx, func(ctx context.Context) (string, error) {
		res, kind = r.resolve(ctx, art)
		if !res.Success {
			return kind, errArtifactFailed
		}

		return kind, nil
	})

	r.record(ctx, art, res, kind)

	if !res.Success {
		logger.Error("artifact could not be resolved from any source", "destination", firstOrEmpty(art.Destinations))
	}

	return res
}

var errArtifactFailed = errors.New("artifact resolution failed")

func (r *Resolver) resolve(ctx context.Context, art Artifact) (downloader.Result, string) {
	logger := logctx.LoggerFromContext(ctx)

	if len(art.Destinations) == 0 {
		logger.Error("artifact has no destination")

		return downloader.Result{}, "none"
	}

	res, ok, stale := r.fromLocal(ctx, art)
	if ok {
		return res, "local"
	}

	canonical := art.Destinations[0]

	if stale[canonical] {
		if err := discard(canonical); err != nil {
			logger.Warn("failed to remove stale copy before download", "path", canonical, "err", err)
		}
	}
	attempts := 0
	lastURL := ""

	for i, src := range art.Sources {
		if ctx.Err() != nil {
			break
		}

		srcLogger := logger.With("source", src.Kind(), "priority", i)

		req, err := src.Locate(ctx, art)
		if err != nil {
			if errors.Is(err, ErrNotHosted) {
				srcLogger.Debug("source does not host artifact")
			} else {
				srcLogger.Warn("failed to locate artifact on source", "err", err)
			}

			continue
		}

		req.Dir = filepath.Dir(canonical)
		req.Filename = filepath.Base(canonical)
		req.Checksum = art.Checksum

		res := r.fetcher.Download(ctx, req)
		attempts += res.Attempts
		lastURL = req.URL

		if !res.Success {
			srcLogger.Warn("source failed, trying next", "url", req.URL, "attempts", res.Attempts)

			continue
		}

		res.Attempts = attempts
		r.fanOut(ctx, res.Path, art.Destinations)

		return res, src.Kind()
	}

	return downloader.Result{URL: lastURL, Path: canonical, Attempts: attempts}, "none"
}

// fromLocal links the first usable existing destination into the missing ones. When
// none is usable it returns the complete copies that failed the checksum.
func (r *Resolver) fromLocal(ctx context.Context, art Artifact) (downloader.Result, bool, map[string]bool) {
	logger := logctx.LoggerFromContext(ctx)
	stale := make(map[string]bool)

	for _, path := range existing(art.Destinations) {
		if art.Checksum != "" {
			ok, err := r.integrity.Matches(ctx, path, art.Checksum)
			if err != nil || !ok {
				logger.Info("existing copy does not match checksum", "path", path, "err", err)
				stale[path] = true

				continue
			}
		}

		logger.Info("artifact already present, linking existing copy", "path", path)
		r.fanOut(ctx, path, art.Destinations)

		return downloader.Result{Path: path, Success: true}, true, nil
	}

	return downloader.Result{}, false, stale
}

func (r *Resolver) fanOut(ctx context.Context, canonical string, destinations []string) LinkOutcome {
	out := Link(ctx, canonical, destinations)

	for range out.Linked {
		r.telemetry.RecordHardlink(ctx, "linked")
	}

	for range out.Failed {
		r.telemetry.RecordHardlink(ctx, "failed")
	}

	return out
}

func (r *Resolver) record(ctx context.Context, art Artifact, res downloader.Result, kind string) {
	if r.ledger == nil {
		return
	}

	status := storage.StatusResolved
	if !res.Success {
		status = storage.StatusFailed
	}

	err := r.ledger.SaveArtifact(ctx, storage.ArtifactRecord{
		Name:             art.Name,
		Path:             res.Path,
		URL:              res.URL,
		Source:           kind,
		Checksum:         art.Checksum,
		Status:           status,
		Attempts:         res.Attempts,
		Bytes:            res.BytesTransferred,
		ChecksumMismatch: res.ChecksumMismatch,
	})
	if err != nil {
		logctx.LoggerFromContext(ctx).Warn("failed to record artifact in ledger", "err", err)
	}
}

func firstOrEmpty(s []string) string {
	if len(s) == 0 {
		return ""
	}

	return s[0]
}
