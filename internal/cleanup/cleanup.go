package cleanup

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/storage"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

// DeleteStalePartials removes the partial files, and their resume control files, of
// artifacts that failed more than keepFor ago, then forgets them in the ledger. A
// partial is only removed when its control file is still present, so a file that
// was completed by other means is left alone.
func DeleteStalePartials(ctx context.Context, repo storage.ArtifactRepository, keepFor time.Duration) (int, error) {
	logger := logctx.LoggerFromContext(ctx)

	stale, err := repo.ListFailedBefore(ctx, time.Now().Add(-keepFor))
	if err != nil {
		return 0, err
	}

	removed := 0

	for _, rec := range stale {
		if rec.Path == "" {
			continue
		}

		control := transfer.ControlFile(rec.Path)

		if _, err := os.Stat(control); err == nil {
			if err := os.Remove(rec.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("Failed to delete stale partial", "file", rec.Path, "err", err)

				return removed, err
			}

			if err := os.Remove(control); err != nil && !errors.Is(err, os.ErrNotExist) {
				logger.Error("Failed to delete resume control file", "file", control, "err", err)

				return removed, err
			}

			removed++

			logger.Info("Deleted stale partial", "artifact", rec.Name, "file", rec.Path)
		}

		if err := repo.DeleteArtifact(ctx, rec.Name); err != nil {
			return removed, err
		}
	}

	return removed, nil
}

// Run calls DeleteStalePartials every interval until ctx is done.
func Run(ctx context.Context, repo storage.ArtifactRepository, interval, keepFor time.Duration) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("cleanup goroutine shutting down.")

			return
		case <-ticker.C:
			if _, err := DeleteStalePartials(ctx, repo, keepFor); err != nil {
				logger.Error("failed to delete stale partials", "err", err)
			}
		}
	}
}
