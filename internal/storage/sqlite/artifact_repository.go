package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/italolelis/mocap_installer/internal/storage"
)

const selectColumns = `SELECT name, path, url, source, checksum, status, attempts, bytes, checksum_mismatch, run_id, updated_at FROM artifacts`

type ArtifactRepository struct {
	db    *sql.DB
	runID string
}

var _ storage.ArtifactRepository = (*ArtifactRepository)(nil)

func NewArtifactRepository(dbConn *sql.DB) *ArtifactRepository {
	return &ArtifactRepository{db: dbConn, runID: storage.GenerateRunID()}
}

// SaveArtifact upserts rec keyed by name, stamping the current run id and time when
// they are not set.
func (r *ArtifactRepository) SaveArtifact(ctx context.Context, rec storage.ArtifactRecord) error {
	if rec.RunID == "" {
		rec.RunID = r.runID
	}

	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO artifacts (name, path, url, source, checksum, status, attempts, bytes, checksum_mismatch, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			url = excluded.url,
			source = excluded.source,
			checksum = excluded.checksum,
			status = excluded.status,
			attempts = excluded.attempts,
			bytes = excluded.bytes,
			checksum_mismatch = excluded.checksum_mismatch,
			run_id = excluded.run_id,
			updated_at = excluded.updated_at
	`, rec.Name, rec.Path, rec.URL, rec.Source, rec.Checksum, rec.Status, rec.Attempts, rec.Bytes,
		rec.ChecksumMismatch, rec.RunID, rec.UpdatedAt.UnixNano())

	return err
}

func (r *ArtifactRepository) DeleteArtifact(ctx context.Context, name string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM artifacts WHERE name = ?`, name)

	return err
}

func (r *ArtifactRepository) GetArtifact(ctx context.Context, name string) (*storage.ArtifactRecord, error) {
	row := r.db.QueryRowContext(ctx, selectColumns+` WHERE name = ?`, name)

	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

func (r *ArtifactRepository) ListArtifacts(ctx context.Context) ([]storage.ArtifactRecord, error) {
	return r.query(ctx, selectColumns+` ORDER BY name`)
}

func (r *ArtifactRepository) ListFailedBefore(ctx context.Context, t time.Time) ([]storage.ArtifactRecord, error) {
	return r.query(ctx, selectColumns+` WHERE status = ? AND updated_at < ? ORDER BY updated_at`,
		storage.StatusFailed, t.UnixNano())
}

func (r *ArtifactRepository) query(ctx context.Context, q string, args ...any) ([]storage.ArtifactRecord, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.ArtifactRecord

	for rows.Next() {
		rec, err := scanArtifact(rows)
		if err != nil {
			return nil, err
		}

		records = append(records, rec)
	}

	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArtifact(s scanner) (storage.ArtifactRecord, error) {
	var (
		rec                                storage.ArtifactRecord
		path, url, source, checksum, runID sql.NullString
		updatedAt                          int64
	)

	if err := s.Scan(&rec.Name, &path, &url, &source, &checksum, &rec.Status, &rec.Attempts, &rec.Bytes,
		&rec.ChecksumMismatch, &runID, &updatedAt); err != nil {
		return rec, err
	}

	rec.Path = path.String
	rec.URL = url.String
	rec.Source = source.String
	rec.Checksum = checksum.String
	rec.RunID = runID.String

	rec.UpdatedAt = time.Unix(0, updatedAt)

	return rec, nil
}
