// Package source turns logical artifacts into concrete download requests and resolves
// them across several hosting locations.
package source

import (
	"context"
	"errors"

	"github.com/italolelis/mocap_installer/internal/downloader"
)

// ErrNotHosted is returned by Locate when a source does not carry the artifact.
var ErrNotHosted = errors.New("artifact not hosted by source")

const (
	KindHuggingFace = "huggingface"
	KindGoogleDrive = "google_drive"
	KindCookieHost  = "cookie_host"
	KindDirect      = "direct"
)

// Artifact is one logical file that may live at several locations and must end up
// at every path in Destinations. Destinations[0] is where it is downloaded to.
type Artifact struct {
	Name         string
	Filename     string
	Checksum     string
	Destinations []string
	// Sources are tried strictly in order.
	Sources []Source
}

// Source knows how to reach an artifact on one kind of host.
type Source interface {
	Kind() string
	// Locate returns a request carrying the URL and auth decorations for art. The
	// resolver fills in destination and checksum.
	Locate(ctx context.Context, art Artifact) (downloader.Request, error)
}

// Direct is a plain URL. Hub URLs are moved to the mirror when NeedMirror is set.
type Direct struct {
	URL        string
	Referer    string
	NeedMirror bool
	Mirror     string
}

func (d Direct) Kind() string { return KindDirect }

func (d Direct) Locate(context.Context, Artifact) (downloader.Request, error) {
	if d.URL == "" {
		return downloader.Request{}, ErrNotHosted
	}

	u := d.URL
	if d.NeedMirror {
		u = SwapMirror(u, d.Mirror, true)
	}

	req := downloader.Request{URL: u}
	req.Auth.Referer = d.Referer

	return req, nil
}
