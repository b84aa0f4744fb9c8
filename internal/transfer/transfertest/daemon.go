// Package transfertest provides a scripted in-memory download daemon for tests.
package transfertest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/italolelis/mocap_installer/internal/transfer"
)

// Job scripts how one submitted job evolves: each Status call returns the next step,
// the last step repeats.
type Job struct {
	Steps []transfer.Record
	// Content is written to dir/out the first time a complete step is served.
	Content []byte
}

// Completes scripts a job that reports progress once and then completes with content.
func Completes(content []byte) Job {
	size := int64(len(content))

	return Job{
		Steps: []transfer.Record{
			{Status: transfer.StatusActive, TotalBytes: size, CompletedBytes: size / 2, DownloadSpeed: 4096},
			{Status: transfer.StatusComplete, TotalBytes: size, CompletedBytes: size},
		},
		Content: content,
	}
}

// Fails scripts a job that transfers completed bytes and then errors.
func Fails(completed int64, msg string) Job {
	return Job{
		Steps: []transfer.Record{
			{Status: transfer.StatusActive, TotalBytes: 1 << 30, CompletedBytes: completed, DownloadSpeed: 4096},
			{Status: transfer.StatusError, TotalBytes: 1 << 30, CompletedBytes: completed, ErrorCode: "1", ErrorMessage: msg},
		},
	}
}

// Stalls scripts a job that reaches peak speed once and then stops moving while
// staying active.
func Stalls(peak int64) Job {
	return Job{
		Steps: []transfer.Record{
			{Status: transfer.StatusActive, TotalBytes: 1 << 30, CompletedBytes: 0, DownloadSpeed: peak},
			{Status: transfer.StatusActive, TotalBytes: 1 << 30, CompletedBytes: peak, DownloadSpeed: peak},
			{Status: transfer.StatusActive, TotalBytes: 1 << 30, CompletedBytes: peak, DownloadSpeed: 0},
		},
	}
}

type job struct {
	script  Job
	opts    transfer.Options
	url     string
	polls   int
	removed bool
	written bool
}

// Daemon is a concurrency-safe fake transfer.Daemon.
type Daemon struct {
	// Plan returns the script for the n-th (0-based) job submitted for url.
	Plan func(url string, n int) Job
	// AddErr, when set, is returned by AddURI.
	AddErr error

	mu      sync.Mutex
	jobs    map[string]*job
	perURL  map[string]int
	added   []string
	options []transfer.Options
	removed []string
	nextID  int
}

var _ transfer.Daemon = (*Daemon)(nil)

func NewDaemon(plan func(url string, n int) Job) *Daemon {
	return &Daemon{Plan: plan, jobs: make(map[string]*job), perURL: make(map[string]int)}
}

func (d *Daemon) AddURI(_ context.Context, uri string, opts transfer.Options) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.AddErr != nil {
		return "", d.AddErr
	}

	d.nextID++
	gid := fmt.Sprintf("%016x", d.nextID)

	n := d.perURL[uri]
	d.perURL[uri] = n + 1
	d.added = append(d.added, uri)
	d.options = append(d.options, opts)
	d.jobs[gid] = &job{script: d.Plan(uri, n), opts: opts, url: uri}

	return gid, nil
}

func (d *Daemon) Status(_ context.Context, gid string) (*transfer.Record, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs[gid]
	if !ok || j.removed {
		return nil, &transfer.DaemonError{Method: "aria2.tellStatus", Code: 1, Message: "GID " + gid + " is not found"}
	}

	if len(j.script.Steps) == 0 {
		return nil, fmt.Errorf("job %s has no scripted steps", gid)
	}

	idx := min(j.polls, len(j.script.Steps)-1)
	j.polls++

	rec := j.script.Steps[idx]
	rec.GID = gid
	rec.URL = j.url

	if j.opts.Out != "" {
		rec.Path = filepath.Join(j.opts.Dir, j.opts.Out)
	}

	if rec.Status == transfer.StatusComplete && !j.written && rec.Path != "" {
		if err := os.MkdirAll(filepath.Dir(rec.Path), 0o755); err != nil {
			return nil, err
		}

		if err := os.WriteFile(rec.Path, j.script.Content, 0o644); err != nil {
			return nil, err
		}

		j.written = true
	}

	return &rec, nil
}

func (d *Daemon) Remove(_ context.Context, gid string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	j, ok := d.jobs[gid]
	if !ok || j.removed {
		return &transfer.DaemonError{Method: "aria2.remove", Code: 1, Message: "GID " + gid + " is not found"}
	}

	j.removed = true
	d.removed = append(d.removed, gid)

	return nil
}

func (d *Daemon) Stats(context.Context) (*transfer.Stats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	active := 0

	for _, j := range d.jobs {
		if !j.removed {
			active++
		}
	}

	return &transfer.Stats{NumActive: active}, nil
}

// Added returns the URLs submitted so far, in order.
func (d *Daemon) Added() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.added...)
}

// Options returns the options of every submitted job, in order.
func (d *Daemon) Options() []transfer.Options {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]transfer.Options(nil), d.options...)
}

// Removed returns the gids removed so far, in order.
func (d *Daemon) Removed() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	return append([]string(nil), d.removed...)
}

// Submissions returns how many jobs were submitted.
func (d *Daemon) Submissions() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.added)
}
