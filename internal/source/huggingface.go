package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"

	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
	"golang.org/x/oauth2"
)

const (
	DefaultHubEndpoint = "https://huggingface.co"
	DefaultHubMirror   = "https://hf-mirror.com"

	defaultRevision = "main"
)

// HubConfig configures access to a Hugging Face Hub compatible endpoint.
type HubConfig struct {
	Endpoint   string
	Mirror     string
	NeedMirror bool
	Token      string
	// HTTPClient is the base client; the token is layered on top of it.
	HTTPClient *http.Client
}

// Hub lists repository files and builds resolve URLs. Listings are cached per
// repo and revision for the lifetime of the Hub.
type Hub struct {
	base       string
	token      string
	httpClient *http.Client

	mu    sync.Mutex
	files map[string]map[string]struct{}
}

func NewHub(ctx context.Context, cfg HubConfig) *Hub {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = DefaultHubEndpoint
	}

	if cfg.NeedMirror {
		endpoint = strings.TrimRight(cfg.Mirror, "/")
		if endpoint == "" {
			endpoint = DefaultHubMirror
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if cfg.Token != "" {
		base := context.WithValue(ctx, oauth2.HTTPClient, httpClient)
		authed := oauth2.NewClient(base, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token}))
		authed.Timeout = httpClient.Timeout
		httpClient = authed
	}

	return &Hub{
		base:       endpoint,
		token:      cfg.Token,
		httpClient: httpClient,
		files:      make(map[string]map[string]struct{}),
	}
}

// Endpoint returns the base URL in use, after mirror selection.
func (h *Hub) Endpoint() string {
	return h.base
}

// ResolveURL builds the download URL of path inside repo at revision.
func (h *Hub) ResolveURL(repo, revision, filePath string) string {
	if revision == "" {
		revision = defaultRevision
	}

	return fmt.Sprintf("%s/%s/resolve/%s/%s", h.base, repo, url.PathEscape(revision), escapePath(filePath))
}

type modelInfo struct {
	Siblings []struct {
		RFilename string `json:"rfilename"`
	} `json:"siblings"`
}

// ListFiles returns the file paths of repo at revision.
func (h *Hub) ListFiles(ctx context.Context, repo, revision string) (map[string]struct{}, error) {
	if revision == "" {
		revision = defaultRevision
	}

	key := repo + "@" + revision

	h.mu.Lock()
	cached, ok := h.files[key]
	h.mu.Unlock()

	if ok {
		return cached, nil
	}

	endpoint := fmt.Sprintf("%s/api/models/%s", h.base, repo)
	if revision != defaultRevision {
		endpoint += "/revision/" + url.PathEscape(revision)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create hub request: %w", err)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, &transfer.NetworkError{Operation: "hub.list_files", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &transfer.AuthenticationError{Operation: "hub.list_files"}
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("hub repo %s: %w", repo, ErrNotHosted)
	case resp.StatusCode != http.StatusOK:
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

		return nil, &transfer.NetworkError{Operation: "hub.list_files", StatusCode: resp.StatusCode, Message: string(b)}
	}

	var info modelInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode hub model info: %w", err)
	}

	files := make(map[string]struct{}, len(info.Siblings))
	for _, s := range info.Siblings {
		files[s.RFilename] = struct{}{}
	}

	h.mu.Lock()
	h.files[key] = files
	h.mu.Unlock()

	return files, nil
}

// HuggingFace is a file inside a Hub model repository.
type HuggingFace struct {
	Hub       *Hub
	Repo      string
	Subfolder string
	// Filename overrides Artifact.Filename.
	Filename string
	Revision string
}

func (s HuggingFace) Kind() string { return KindHuggingFace }

func (s HuggingFace) Locate(ctx context.Context, art Artifact) (downloader.Request, error) {
	name := s.Filename
	if name == "" {
		name = art.Filename
	}

	if s.Hub == nil || s.Repo == "" || name == "" {
		return downloader.Request{}, ErrNotHosted
	}

	filePath := name
	if s.Subfolder != "" {
		filePath = path.Join(s.Subfolder, name)
	}

	files, err := s.Hub.ListFiles(ctx, s.Repo, s.Revision)
	if err != nil {
		return downloader.Request{}, err
	}

	if _, ok := files[filePath]; !ok {
		logctx.LoggerFromContext(ctx).Debug("file not listed in hub repo", "repo", s.Repo, "path", filePath)

		return downloader.Request{}, fmt.Errorf("%s not in %s: %w", filePath, s.Repo, ErrNotHosted)
	}

	req := downloader.Request{URL: s.Hub.ResolveURL(s.Repo, s.Revision, filePath)}
	if s.Hub.token != "" {
		req.Auth.Headers = []string{"Authorization: Bearer " + s.Hub.token}
	}

	return req, nil
}

// SwapMirror rewrites a huggingface.co URL to the mirror host when toMirror is set and
// a mirror URL back to huggingface.co otherwise. Other hosts are returned unchanged.
func SwapMirror(rawURL, mirror string, toMirror bool) string {
	if mirror == "" {
		mirror = DefaultHubMirror
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	m, err := url.Parse(mirror)
	if err != nil {
		return rawURL
	}

	official, _ := url.Parse(DefaultHubEndpoint)

	switch {
	case toMirror && u.Host == official.Host:
		u.Scheme, u.Host = m.Scheme, m.Host
	case !toMirror && u.Host == m.Host:
		u.Scheme, u.Host = official.Scheme, official.Host
	}

	return u.String()
}

func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}

	return strings.Join(parts, "/")
}
