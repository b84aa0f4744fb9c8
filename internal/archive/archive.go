// Package archive extracts downloaded asset bundles (zip, tar.*, 7z, rar) in process.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/mholt/archives"
)

// Conflict decides what happens when an entry's target already exists.
type Conflict string

const (
	ConflictSkip      Conflict = "skip"
	ConflictOverwrite Conflict = "overwrite"
	// ConflictRenameNew writes the entry next to the existing file under a free name.
	ConflictRenameNew Conflict = "rename-new"
	// ConflictRenameOld moves the existing file aside and writes the entry in its place.
	ConflictRenameOld Conflict = "rename-old"
)

const maxRenameAttempts = 1000

var (
	ErrNotArchive    = errors.New("file is not an extractable archive")
	ErrUnsafePath    = errors.New("archive entry escapes destination")
	ErrUnknownPolicy = errors.New("unknown conflict policy")
)

// ParseConflict maps a policy name to a Conflict. An empty name means skip.
func ParseConflict(s string) (Conflict, error) {
	switch c := Conflict(strings.ToLower(strings.TrimSpace(s))); c {
	case "":
		return ConflictSkip, nil
	case ConflictSkip, ConflictOverwrite, ConflictRenameNew, ConflictRenameOld:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPolicy, s)
	}
}

// Options tunes one extraction.
type Options struct {
	Conflict Conflict
	// Password unlocks encrypted 7z archives.
	Password string
	// Glob limits extraction to entries whose slash-separated name matches.
	Glob string
}

// Report summarises what an extraction did.
type Report struct {
	Written  []string
	Skipped  []string
	// Renamed maps a conflicting target to the free name that was used for it.
	Renamed  map[string]string
	Filtered int
	Bytes    int64
}

// Extractor unpacks archives into a directory.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into destDir following opts.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string, opts Options) (*Report, error) {
	logger := logctx.LoggerFromContext(ctx).With("archive", archivePath, "dest", destDir)

	policy, err := ParseConflict(string(opts.Conflict))
	if err != nil {
		return nil, err
	}

	if opts.Glob != "" {
		if _, err := path.Match(opts.Glob, ""); err != nil {
			return nil, fmt.Errorf("invalid glob %q: %w", opts.Glob, err)
		}
	}

	f, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive file: %w", err)
	}
	defer f.Close()

	format, _, err := archives.Identify(ctx, filepath.Base(archivePath), f)
	if err != nil {
		if errors.Is(err, archives.NoMatch) {
			return nil, fmt.Errorf("%s: %w", archivePath, ErrNotArchive)
		}

		return nil, fmt.Errorf("failed to identify archive: %w", err)
	}

	if sz, ok := format.(archives.SevenZip); ok {
		sz.Password = opts.Password
		format = sz
	}

	ex, ok := format.(archives.Extractor)
	if !ok {
		return nil, fmt.Errorf("%s is %s: %w", archivePath, format.Extension(), ErrNotArchive)
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind archive: %w", err)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create destination directory: %w", err)
	}

	root, err := filepath.Abs(destDir)
	if err != nil {
		return nil, err
	}

	report := &Report{Renamed: map[string]string{}}

	handler := func(ctx context.Context, fi archives.FileInfo) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(fi.NameInArchive)), "/")
		if name == "" {
			return nil
		}

		target, err := safeJoin(root, fi.NameInArchive)
		if err != nil {
			return err
		}

		if fi.IsDir() {
			// with a filter, parents are created on demand for matching files only
			if opts.Glob != "" {
				return nil
			}

			return os.MkdirAll(target, 0o755)
		}

		if opts.Glob != "" {
			if ok, _ := path.Match(opts.Glob, name); !ok {
				report.Filtered++

				return nil
			}
		}

		if fi.LinkTarget != "" || fi.Mode()&os.ModeSymlink != 0 {
			logger.Debug("skipping link entry", "entry", fi.NameInArchive)

			return nil
		}

		return e.writeEntry(fi, target, policy, report)
	}

	if err := ex.Extract(ctx, f, handler); err != nil {
		return report, fmt.Errorf("failed to extract %s: %w", archivePath, err)
	}

	logger.Info("archive extracted",
		"written", len(report.Written),
		"skipped", len(report.Skipped),
		"renamed", len(report.Renamed),
		"filtered", report.Filtered,
		"size", humanize.Bytes(uint64(report.Bytes)))

	return report, nil
}

func (e *Extractor) writeEntry(fi archives.FileInfo, target string, policy Conflict, report *Report) error {
	if _, err := os.Lstat(target); err == nil {
		switch policy {
		case ConflictSkip:
			report.Skipped = append(report.Skipped, target)

			return nil
		case ConflictOverwrite:
		case ConflictRenameNew:
			free, err := freeName(target)
			if err != nil {
				return err
			}

			report.Renamed[target] = free
			target = free
		case ConflictRenameOld:
			free, err := freeName(target)
			if err != nil {
				return err
			}

			if err := os.Rename(target, free); err != nil {
				return fmt.Errorf("failed to move %s aside: %w", target, err)
			}

			report.Renamed[target] = free
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to stat %s: %w", target, err)
	}

	src, err := fi.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", fi.NameInArchive, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("failed to create parent directory for %s: %w", fi.NameInArchive, err)
	}

	perm := fi.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", target, err)
	}

	n, err := io.Copy(dst, src)
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("failed to copy entry %s: %w", fi.NameInArchive, err)
	}

	if !fi.ModTime().IsZero() {
		_ = os.Chtimes(target, fi.ModTime(), fi.ModTime())
	}

	report.Written = append(report.Written, target)
	report.Bytes += n

	return nil
}

// safeJoin resolves an entry name under root, rejecting absolute names and
// anything that climbs out with "..".
func safeJoin(root, name string) (string, error) {
	slashed := filepath.ToSlash(name)
	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	target := filepath.Join(root, filepath.FromSlash(slashed))

	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return target, nil
}

// freeName returns the first "stem_N.ext" next to p that does not exist yet.
func freeName(p string) (string, error) {
	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i <= maxRenameAttempts; i++ {
		candidate := filepath.Join(dir, stem+"_"+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(candidate); errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free name next to %s", p)
}
