package downloader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/downloader/progress"
	"github.com/italolelis/mocap_installer/internal/logctx"
)

// DefaultHashProgressStep is how often hashing progress is logged.
const DefaultHashProgressStep = 512 * 1024 * 1024

// IntegrityChecker computes MD5 digests off the caller's goroutine.
type IntegrityChecker struct {
	progressStep int64
}

func NewIntegrityChecker(progressStep int64) *IntegrityChecker {
	if progressStep <= 0 {
		progressStep = DefaultHashProgressStep
	}

	return &IntegrityChecker{progressStep: progressStep}
}

// Digest is the outcome of one asynchronous hash.
type Digest struct {
	Sum string
	Err error
}

// MD5 returns the lowercase hex MD5 of the file at path. Hashing runs in its own
// goroutine; cancelling ctx returns early and lets the hash finish in the background.
func (c *IntegrityChecker) MD5(ctx context.Context, path string) (string, error) {
	select {
	case d := <-c.MD5Async(ctx, path):
		return d.Sum, d.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// MD5Async starts hashing path and returns a channel receiving exactly one digest.
func (c *IntegrityChecker) MD5Async(ctx context.Context, path string) <-chan Digest {
	out := make(chan Digest, 1)

	go func() {
		sum, err := c.hashFile(ctx, path)
		out <- Digest{Sum: sum, Err: err}
	}()

	return out
}

func (c *IntegrityChecker) hashFile(ctx context.Context, path string) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("path", path)

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("failed to stat file for hashing: %w", err)
	}

	size := info.Size()
	reader := progress.NewReader(f, size, c.progressStep, func(read, total int64) {
		if total < c.progressStep {
			return
		}

		logger.Info("hashing",
			"hashed", humanize.Bytes(uint64(read)),
			"total", humanize.Bytes(uint64(total)),
			"percent", humanize.FtoaWithDigits(float64(read)*100/float64(total), 2))
	})

	h := md5.New()
	if _, err := io.Copy(h, reader); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Matches reports whether the file at path exists and has the expected MD5.
// A missing file is not an error.
func (c *IntegrityChecker) Matches(ctx context.Context, path, expected string) (bool, error) {
	sum, err := c.MD5(ctx, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}

		return false, err
	}

	return strings.EqualFold(sum, strings.TrimSpace(expected)), nil
}
