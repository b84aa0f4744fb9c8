package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

// LinkOutcome reports what happened to each destination of a fan-out.
type LinkOutcome struct {
	Linked   []string
	Existing []string
	Failed   map[string]error
}

// OK reports whether every destination now holds the file.
func (o LinkOutcome) OK() bool {
	return len(o.Failed) == 0
}

// Link hardlinks canonical into every destination that does not exist yet. Each link
// goes through a temporary name in the target directory and a rename, so a target
// never appears half-written. Failures are recorded per target and never abort the
// remaining ones.
func Link(ctx context.Context, canonical string, destinations []string) LinkOutcome {
	logger := logctx.LoggerFromContext(ctx).With("canonical", canonical)
	out := LinkOutcome{Failed: make(map[string]error)}

	for _, dest := range destinations {
		if filepath.Clean(dest) == filepath.Clean(canonical) {
			continue
		}

		if _, err := os.Lstat(dest); err == nil {
			out.Existing = append(out.Existing, dest)

			continue
		}

		if err := linkAtomic(canonical, dest); err != nil {
			logger.Warn("failed to hardlink destination", "destination", dest, "err", err)
			out.Failed[dest] = err

			continue
		}

		logger.Debug("hardlinked destination", "destination", dest)
		out.Linked = append(out.Linked, dest)
	}

	return out
}

func linkAtomic(canonical, dest string) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.link-%d", filepath.Base(dest), os.Getpid()))
	_ = os.Remove(tmp)

	if err := os.Link(canonical, tmp); err != nil {
		return fmt.Errorf("failed to link: %w", err)
	}

	if err := os.Rename(tmp, dest); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("failed to move link into place: %w", err)
	}

	return nil
}

// existing returns the destinations that currently exist as complete regular files.
// A file with a daemon control file next to it is an interrupted partial.
func existing(destinations []string) []string {
	var out []string

	for _, dest := range destinations {
		if info, err := os.Stat(dest); err != nil || !info.Mode().IsRegular() {
			continue
		}

		if _, err := os.Stat(transfer.ControlFile(dest)); err == nil {
			continue
		}

		out = append(out, dest)
	}

	return out
}

// discard removes a stale copy at path along with any control file, so the next
// download starts from scratch instead of resuming onto it.
func discard(path string) error {
	for _, p := range []string{path, transfer.ControlFile(path)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	return nil
}
