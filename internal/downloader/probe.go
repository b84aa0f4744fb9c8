package downloader

import (
	"context"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

const DefaultProbeTimeout = 10 * time.Second

// Prober learns whether a URL supports byte ranges and what it wants to be called,
// without transferring the body.
type Prober struct {
	httpClient *http.Client
	timeout    time.Duration
}

func NewProber(httpClient *http.Client, timeout time.Duration) *Prober {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}

	return &Prober{httpClient: httpClient, timeout: timeout}
}

// Probe issues a HEAD request for rawURL. Any failure reports a non-resumable source
// named after the URL basename; it never returns an error.
func (p *Prober) Probe(ctx context.Context, rawURL string, auth transfer.Auth) (bool, string) {
	logger := logctx.LoggerFromContext(ctx).With("url", rawURL)
	fallback := BaseName(rawURL)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		logger.Debug("failed to build probe request", "err", err)

		return false, fallback
	}

	applyAuth(req, auth)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		logger.Debug("probe request failed", "err", err)

		return false, fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		logger.Debug("probe got error status", "status", resp.StatusCode)

		return false, fallback
	}

	resumable := strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes")

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		// redirects may land on a more descriptive path
		name = BaseName(resp.Request.URL.String())
	}

	if name == "" {
		name = fallback
	}

	logger.Debug("probed source", "resumable", resumable, "filename", name)

	return resumable, name
}

func applyAuth(req *http.Request, auth transfer.Auth) {
	if auth.UserAgent != "" {
		req.Header.Set("User-Agent", auth.UserAgent)
	}

	if auth.Referer != "" {
		req.Header.Set("Referer", auth.Referer)
	}

	for _, h := range auth.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			continue
		}

		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	for _, c := range auth.Cookies {
		req.AddCookie(c)
	}
}

// filenameFromDisposition prefers the RFC 5987 filename* parameter, which the mime
// package folds into "filename" when present.
func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}

	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}

	name := params["filename"]
	if name == "" {
		return ""
	}

	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		return ""
	}

	return name
}

// BaseName returns the unescaped last path segment of rawURL, or "" when it has none.
func BaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	base := path.Base(u.Path)
	if base == "." || base == "/" {
		return ""
	}

	return base
}
