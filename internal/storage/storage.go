package storage

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("artifact not found")

const (
	StatusResolved = "resolved"
	StatusFailed   = "failed"
)

// ArtifactRecord is the ledger entry of the last resolution of one artifact.
type ArtifactRecord struct {
	Name             string
	Path             string
	URL              string
	Source           string
	Checksum         string
	Status           string
	Attempts         int
	Bytes            int64
	ChecksumMismatch bool
	RunID            string
	UpdatedAt        time.Time
}

type ArtifactReadRepository interface {
	GetArtifact(ctx context.Context, name string) (*ArtifactRecord, error)
	ListArtifacts(ctx context.Context) ([]ArtifactRecord, error)
	// ListFailedBefore returns failed artifacts last updated before t.
	ListFailedBefore(ctx context.Context, t time.Time) ([]ArtifactRecord, error)
}

type ArtifactWriteRepository interface {
	// SaveArtifact inserts or replaces the entry for rec.Name.
	SaveArtifact(ctx context.Context, rec ArtifactRecord) error
	DeleteArtifact(ctx context.Context, name string) error
}

type ArtifactRepository interface {
	ArtifactReadRepository
	ArtifactWriteRepository
}
