package source

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strings"

	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
	"golang.org/x/net/html"
)

const (
	DefaultDriveURL = "https://drive.google.com"
	DefaultDocsURL  = "https://docs.google.com"

	maxInterstitialBytes = 2 << 20
)

var (
	fileIDPattern = regexp.MustCompile(`/(?:file|document|spreadsheets|presentation)/d/([A-Za-z0-9_-]+)`)
	docsPattern   = regexp.MustCompile(`/(document|spreadsheets|presentation)/d/`)
)

// exportFormats maps Google Docs editors to the format their export is fetched in.
var exportFormats = map[string]string{
	"document":     "docx",
	"spreadsheets": "xlsx",
	"presentation": "pptx",
}

// Drive resolves Google Drive share links to direct download URLs.
type Drive struct {
	driveURL   string
	docsURL    string
	httpClient *http.Client
}

// NewDrive creates a resolver; empty URLs default to the public Google hosts.
func NewDrive(httpClient *http.Client, driveURL, docsURL string) *Drive {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if driveURL == "" {
		driveURL = DefaultDriveURL
	}

	if docsURL == "" {
		docsURL = DefaultDocsURL
	}

	return &Drive{
		driveURL:   strings.TrimRight(driveURL, "/"),
		docsURL:    strings.TrimRight(docsURL, "/"),
		httpClient: httpClient,
	}
}

// ParseFileID extracts the file id from a share URL, or returns s when it already is one.
func ParseFileID(s string) (string, string) {
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s, ""
	}

	kind := ""
	if m := docsPattern.FindStringSubmatch(u.Path); m != nil {
		kind = m[1]
	}

	if m := fileIDPattern.FindStringSubmatch(u.Path); m != nil {
		return m[1], kind
	}

	return u.Query().Get("id"), kind
}

// DirectURL returns a URL that serves the file body. Large files answer the first
// request with a virus-scan warning page; its confirmation form or link is followed.
// Cookies Drive set along the way are returned for the daemon to replay.
func (d *Drive) DirectURL(ctx context.Context, shareURL string) (string, []*http.Cookie, error) {
	logger := logctx.LoggerFromContext(ctx)

	id, kind := ParseFileID(shareURL)
	if id == "" {
		return "", nil, fmt.Errorf("no drive file id in %q: %w", shareURL, ErrNotHosted)
	}

	if format, ok := exportFormats[kind]; ok {
		return fmt.Sprintf("%s/%s/d/%s/export?format=%s", d.docsURL, kind, id, format), nil, nil
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return "", nil, err
	}

	client := *d.httpClient
	client.Jar = jar

	next := fmt.Sprintf("%s/uc?export=download&id=%s", d.driveURL, url.QueryEscape(id))

	// one interstitial is expected; a second one means the confirmation did not stick
	for range 2 {
		final, body, err := d.fetch(ctx, &client, next)
		if err != nil {
			return "", nil, err
		}

		if body == nil {
			logger.Debug("resolved drive download", "id", id, "url", final.String())

			return final.String(), jar.Cookies(final), nil
		}

		confirm, err := confirmURL(final, body)
		if err != nil {
			return "", nil, err
		}

		logger.Debug("following drive confirmation", "id", id)

		next = confirm
	}

	return "", nil, fmt.Errorf("drive kept asking to confirm download of %s: %w", id, ErrNotHosted)
}

// fetch GETs u and returns the final URL plus the HTML body when the response is a
// page rather than the file. The file body itself is never read.
func (d *Drive) fetch(ctx context.Context, client *http.Client, u string) (*url.URL, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create drive request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, &transfer.NetworkError{Operation: "drive.resolve", Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil, fmt.Errorf("drive file not found: %w", ErrNotHosted)
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, nil, &transfer.AuthenticationError{Operation: "drive.resolve"}
	default:
		return nil, nil, &transfer.NetworkError{Operation: "drive.resolve", StatusCode: resp.StatusCode, Message: resp.Status}
	}

	if isAttachment(resp.Header) {
		return resp.Request.URL, nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInterstitialBytes))
	if err != nil {
		return nil, nil, &transfer.NetworkError{Operation: "drive.resolve", Message: "failed to read page", Err: err}
	}

	return resp.Request.URL, body, nil
}

func isAttachment(h http.Header) bool {
	if disp, _, err := mime.ParseMediaType(h.Get("Content-Disposition")); err == nil && disp == "attachment" {
		return true
	}

	ct, _, err := mime.ParseMediaType(h.Get("Content-Type"))

	return err == nil && ct != "text/html"
}

// confirmURL finds the way past the virus-scan warning: the download-form's action
// with its hidden inputs, or else any link carrying a confirm parameter.
func confirmURL(base *url.URL, page []byte) (string, error) {
	doc, err := html.Parse(strings.NewReader(string(page)))
	if err != nil {
		return "", fmt.Errorf("failed to parse drive page: %w", err)
	}

	var (
		formAction string
		formValues = url.Values{}
		confirmRef string
		inForm     bool
	)

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "form":
				if attr(n, "id") == "download-form" {
					formAction = attr(n, "action")
					inForm = true

					defer func() { inForm = false }()
				}
			case "input":
				if inForm && attr(n, "type") == "hidden" && attr(n, "name") != "" {
					formValues.Set(attr(n, "name"), attr(n, "value"))
				}
			case "a":
				if href := attr(n, "href"); confirmRef == "" && strings.Contains(href, "confirm=") {
					confirmRef = href
				}
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	switch {
	case formAction != "":
		action, err := base.Parse(formAction)
		if err != nil {
			return "", fmt.Errorf("invalid drive form action: %w", err)
		}

		q := action.Query()
		for k, v := range formValues {
			q[k] = v
		}

		action.RawQuery = q.Encode()

		return action.String(), nil
	case confirmRef != "":
		ref, err := base.Parse(confirmRef)
		if err != nil {
			return "", fmt.Errorf("invalid drive confirm link: %w", err)
		}

		return ref.String(), nil
	}

	return "", fmt.Errorf("drive page has no download confirmation, file may be private or over quota: %w", ErrNotHosted)
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}

	return ""
}

// GoogleDrive is a file shared on Google Drive, by id or share URL.
type GoogleDrive struct {
	Drive *Drive
	// ID is a file id or any Drive/Docs share URL.
	ID string
}

func (s GoogleDrive) Kind() string { return KindGoogleDrive }

func (s GoogleDrive) Locate(ctx context.Context, _ Artifact) (downloader.Request, error) {
	if s.Drive == nil || s.ID == "" {
		return downloader.Request{}, ErrNotHosted
	}

	direct, cookies, err := s.Drive.DirectURL(ctx, s.ID)
	if err != nil {
		return downloader.Request{}, err
	}

	req := downloader.Request{URL: direct}
	req.Auth.Cookies = cookies

	if len(cookies) > 0 {
		pairs := make([]string, 0, len(cookies))
		for _, c := range cookies {
			pairs = append(pairs, c.Name+"="+c.Value)
		}

		req.Auth.Headers = []string{"Cookie: " + strings.Join(pairs, "; ")}
	}

	return req, nil
}
