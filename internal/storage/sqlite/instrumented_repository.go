package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/italolelis/mocap_installer/internal/storage"
	"github.com/italolelis/mocap_installer/internal/telemetry"
)

// InstrumentedArtifactRepository wraps ArtifactRepository with telemetry.
type InstrumentedArtifactRepository struct {
	repo      *ArtifactRepository
	telemetry *telemetry.Telemetry
}

var _ storage.ArtifactRepository = (*InstrumentedArtifactRepository)(nil)

// NewInstrumentedArtifactRepository creates a new instrumented artifact repository.
func NewInstrumentedArtifactRepository(dbConn *sql.DB, tel *telemetry.Telemetry) *InstrumentedArtifactRepository {
	return &InstrumentedArtifactRepository{
		repo:      NewArtifactRepository(dbConn),
		telemetry: tel,
	}
}

// SaveArtifact saves an artifact with telemetry.
func (r *InstrumentedArtifactRepository) SaveArtifact(ctx context.Context, rec storage.ArtifactRecord) error {
	return r.telemetry.InstrumentDBOperation(ctx, "save_artifact", func(ctx context.Context) error {
		return r.repo.SaveArtifact(ctx, rec)
	})
}

// DeleteArtifact deletes an artifact with telemetry.
func (r *InstrumentedArtifactRepository) DeleteArtifact(ctx context.Context, name string) error {
	return r.telemetry.InstrumentDBOperation(ctx, "delete_artifact", func(ctx context.Context) error {
		return r.repo.DeleteArtifact(ctx, name)
	})
}

// GetArtifact retrieves one artifact with telemetry.
func (r *InstrumentedArtifactRepository) GetArtifact(ctx context.Context, name string) (*storage.ArtifactRecord, error) {
	var result *storage.ArtifactRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "get_artifact", func(ctx context.Context) error {
		var err error

		result, err = r.repo.GetArtifact(ctx, name)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListArtifacts retrieves all artifacts with telemetry.
func (r *InstrumentedArtifactRepository) ListArtifacts(ctx context.Context) ([]storage.ArtifactRecord, error) {
	var result []storage.ArtifactRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_artifacts", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListArtifacts(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// ListFailedBefore retrieves stale failures with telemetry.
func (r *InstrumentedArtifactRepository) ListFailedBefore(ctx context.Context, t time.Time) ([]storage.ArtifactRecord, error) {
	var result []storage.ArtifactRecord

	err := r.telemetry.InstrumentDBOperation(ctx, "list_failed_before", func(ctx context.Context) error {
		var err error

		result, err = r.repo.ListFailedBefore(ctx, t)

		return err
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}
