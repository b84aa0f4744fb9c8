package transfer

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a daemon job as reported by the daemon.
type Status string

const (
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusWaiting  Status = "waiting"
	StatusPaused   Status = "paused"
	StatusComplete Status = "complete"
	StatusError    Status = "error"
	StatusRemoved  Status = "removed"
)

// ControlFile returns the resume control file the daemon keeps next to an
// unfinished download at path. Its presence marks path as a partial.
func ControlFile(path string) string {
	return path + ".aria2"
}

// Daemon is the subset of the download daemon RPC used by a Session.
// Implementations must be safe for concurrent use.
type Daemon interface {
	AddURI(ctx context.Context, uri string, opts Options) (string, error)
	Status(ctx context.Context, gid string) (*Record, error)
	Remove(ctx context.Context, gid string) error
	Stats(ctx context.Context) (*Stats, error)
}

// Record is the daemon's view of one submitted job attempt.
type Record struct {
	GID            string
	URL            string
	Path           string
	TotalBytes     int64
	CompletedBytes int64
	Status         Status
	ErrorCode      string
	ErrorMessage   string
	DownloadSpeed  int64
}

func (r *Record) IsComplete() bool {
	return r.Status == StatusComplete
}

// IsTerminalFailure reports whether the daemon gave up on the job by itself.
func (r *Record) IsTerminalFailure() bool {
	return r.Status == StatusError || r.Status == StatusRemoved
}

// Stats is the daemon's global statistics, used as a health probe.
type Stats struct {
	DownloadSpeed int64
	NumActive     int
	NumWaiting    int
	NumStopped    int
}

// Auth carries per-source request decorations forwarded to the daemon.
type Auth struct {
	UserAgent  string
	Referer    string
	CookieFile string   // Netscape cookie jar passed as load-cookies
	Headers    []string // raw "Name: value" headers
	// Cookies are sent by in-process metadata requests; the daemon reads CookieFile.
	Cookies []*http.Cookie
}

// Options is the typed option set for one daemon job.
type Options struct {
	Dir                    string
	Out                    string
	Split                  int
	MaxConnectionPerServer int
	MaxConcurrentDownloads int
	MinSplitSize           string
	MaxTries               int // daemon-side tries per job; 0 keeps the daemon default
	Auth                   Auth
}

// Map renders the option set as the daemon's string-typed key/value pairs.
// Zero values are omitted so the daemon keeps its own defaults.
func (o Options) Map() map[string]any {
	m := map[string]any{
		"continue": "true",
	}

	setString := func(key, value string) {
		if value != "" {
			m[key] = value
		}
	}

	setInt := func(key string, value int) {
		if value > 0 {
			m[key] = strconv.Itoa(value)
		}
	}

	setString("dir", o.Dir)
	setString("out", o.Out)
	setInt("split", o.Split)
	setInt("max-connection-per-server", o.MaxConnectionPerServer)
	setInt("max-concurrent-downloads", o.MaxConcurrentDownloads)
	setString("min-split-size", o.MinSplitSize)
	setInt("max-tries", o.MaxTries)
	setString("user-agent", o.Auth.UserAgent)
	setString("referer", o.Auth.Referer)
	setString("load-cookies", o.Auth.CookieFile)

	if len(o.Auth.Headers) > 0 {
		headers := make([]string, 0, len(o.Auth.Headers))
		for _, h := range o.Auth.Headers {
			if strings.TrimSpace(h) != "" {
				headers = append(headers, h)
			}
		}

		if len(headers) > 0 {
			m["header"] = headers
		}
	}

	return m
}

// ProgressSink receives progress for observability. Implementations must not block.
type ProgressSink interface {
	Start(id, name string, total int64)
	Update(id string, completed, total int64)
	Done(id string)
}

// NopSink discards progress.
type NopSink struct{}

func (NopSink) Start(string, string, int64) {}
func (NopSink) Update(string, int64, int64) {}
func (NopSink) Done(string) {}
