package source

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCookieHost_Locate(t *testing.T) {
	dir := t.TempDir()
	src := CookieHost{
		URL:    "https://download.is.tue.mpg.de/download.php?domain=smplx&sfile=models_smplx_v1_1.zip",
		Cookie: &http.Cookie{Name: "PHPSESSID", Value: "sess123"},
		JarDir: dir,
	}

	req, err := src.Locate(context.Background(), Artifact{})
	require.NoError(t, err)

	assert.Equal(t, src.URL, req.URL)
	assert.Equal(t, "https://download.is.tue.mpg.de/", req.Auth.Referer)
	assert.Equal(t, []*http.Cookie{src.Cookie}, req.Auth.Cookies)

	jar, err := os.ReadFile(req.Auth.CookieFile)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(jar)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "# Netscape HTTP Cookie File", lines[0])

	fields := strings.Split(lines[1], "\t")
	require.Len(t, fields, 7)
	assert.Equal(t, []string{"download.is.tue.mpg.de", "FALSE", "/", "TRUE"}, fields[:4])
	assert.Equal(t, []string{"PHPSESSID", "sess123"}, fields[5:])
}

func TestCookieHost_WithoutSessionIsNotHosted(t *testing.T) {
	_, err := CookieHost{URL: "https://download.is.tue.mpg.de/x.zip"}.Locate(context.Background(), Artifact{})
	require.ErrorIs(t, err, ErrNotHosted)

	_, err = CookieHost{URL: "https://download.is.tue.mpg.de/x.zip", Cookie: &http.Cookie{Name: "PHPSESSID"}}.
		Locate(context.Background(), Artifact{})
	require.ErrorIs(t, err, ErrNotHosted)
}

func TestNetscapeCookieLine_DomainCookie(t *testing.T) {
	u, _ := url.Parse("http://example.com/a")
	expires := time.Unix(1700000000, 0)

	line := NetscapeCookieLine(u, &http.Cookie{Name: "s", Value: "v", Domain: ".example.com", Expires: expires})

	assert.Contains(t, line, ".example.com\tTRUE\t/\tFALSE\t1700000000\ts\tv\n")
}
