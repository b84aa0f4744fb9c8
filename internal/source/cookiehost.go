package source

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/mocap_installer/internal/downloader"
)

const cookieJarLifetime = 24 * time.Hour

// CookieHost is a file behind a session-cookie login, such as the registration-gated
// body model hosts. The session is handed to the daemon as a Netscape cookie jar.
type CookieHost struct {
	URL     string
	Referer string
	// Cookie is the session cookie; a missing value means no access.
	Cookie *http.Cookie
	// JarDir is where the cookie jar file is written.
	JarDir string
}

func (s CookieHost) Kind() string { return KindCookieHost }

func (s CookieHost) Locate(_ context.Context, _ Artifact) (downloader.Request, error) {
	if s.URL == "" || s.Cookie == nil || s.Cookie.Value == "" {
		return downloader.Request{}, ErrNotHosted
	}

	u, err := url.Parse(s.URL)
	if err != nil || u.Host == "" {
		return downloader.Request{}, fmt.Errorf("invalid cookie host URL %q: %w", s.URL, ErrNotHosted)
	}

	jar, err := WriteCookieJar(s.JarDir, u, s.Cookie)
	if err != nil {
		return downloader.Request{}, err
	}

	referer := s.Referer
	if referer == "" {
		referer = u.Scheme + "://" + u.Host + "/"
	}

	req := downloader.Request{URL: s.URL}
	req.Auth.Referer = referer
	req.Auth.CookieFile = jar
	req.Auth.Cookies = []*http.Cookie{s.Cookie}

	return req, nil
}

// WriteCookieJar writes c, scoped to u's host, to a Netscape format cookie file in
// dir and returns its path. The file name is stable per host and cookie name.
func WriteCookieJar(dir string, u *url.URL, c *http.Cookie) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("failed to create cookie jar directory: %w", err)
	}

	sum := sha1.Sum([]byte(u.Hostname() + "\x00" + c.Name))
	path := filepath.Join(dir, "cookies-"+hex.EncodeToString(sum[:8])+".txt")

	if err := os.WriteFile(path, []byte(NetscapeCookieLine(u, c)), 0o600); err != nil {
		return "", fmt.Errorf("failed to write cookie jar: %w", err)
	}

	return path, nil
}

// NetscapeCookieLine renders one cookie jar entry (with header) for u's host.
func NetscapeCookieLine(u *url.URL, c *http.Cookie) string {
	domain := c.Domain
	if domain == "" {
		domain = u.Hostname()
	}

	includeSub := "FALSE"
	if strings.HasPrefix(domain, ".") {
		includeSub = "TRUE"
	}

	cookiePath := c.Path
	if cookiePath == "" {
		cookiePath = "/"
	}

	secure := "FALSE"
	if c.Secure || u.Scheme == "https" {
		secure = "TRUE"
	}

	expires := c.Expires
	if expires.IsZero() {
		expires = time.Now().Add(cookieJarLifetime)
	}

	return fmt.Sprintf("# Netscape HTTP Cookie File\n%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
		domain, includeSub, cookiePath, secure, expires.Unix(), c.Name, c.Value)
}
