package source

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const warningPage = `<!DOCTYPE html><html><head><title>Google Drive - Virus scan warning</title></head>
<body><form id="download-form" action="%s/download" method="get">
<input type="submit" value="Download anyway"/>
<input type="hidden" name="id" value="BIGFILE">
<input type="hidden" name="export" value="download">
<input type="hidden" name="confirm" value="t">
<input type="hidden" name="uuid" value="1234">
</form></body></html>`

const legacyWarningPage = `<html><body><p>too large to scan</p>
<a id="uc-download-link" href="/uc?export=download&amp;confirm=AbCd&amp;id=OLDFILE">Download anyway</a>
</body></html>`

func newDriveServer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()

	var srv *httptest.Server

	mux.HandleFunc("/uc", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		switch q.Get("id") {
		case "SMALLFILE":
			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", `attachment; filename="small.zip"`)
			_, _ = w.Write([]byte("PK"))
		case "BIGFILE":
			http.SetCookie(w, &http.Cookie{Name: "NID", Value: "drive-session", Path: "/"})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprintf(w, warningPage, srv.URL)
		case "OLDFILE":
			if q.Get("confirm") == "AbCd" {
				w.Header().Set("Content-Type", "application/zip")

				return
			}

			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(legacyWarningPage))
		case "PRIVATE":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body>You need access</body></html>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	mux.HandleFunc("/download", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "t", r.URL.Query().Get("confirm"))
		w.Header().Set("Content-Type", "application/octet-stream")
	})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func TestParseFileID(t *testing.T) {
	tests := []struct {
		in       string
		wantID   string
		wantKind string
	}{
		{"1a2B3c", "1a2B3c", ""},
		{"https://drive.google.com/file/d/1a2B3c/view?usp=sharing", "1a2B3c", ""},
		{"https://drive.google.com/open?id=1a2B3c", "1a2B3c", ""},
		{"https://drive.google.com/uc?id=1a2B3c&export=download", "1a2B3c", ""},
		{"https://docs.google.com/spreadsheets/d/1a2B3c/edit#gid=0", "1a2B3c", "spreadsheets"},
		{"https://docs.google.com/document/d/1a2B3c/edit", "1a2B3c", "document"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			id, kind := ParseFileID(tt.in)
			assert.Equal(t, tt.wantID, id)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestDrive_DirectURL(t *testing.T) {
	srv := newDriveServer(t)
	drive := NewDrive(srv.Client(), srv.URL, "https://docs.example.com")
	ctx := context.Background()

	t.Run("small file is served straight away", func(t *testing.T) {
		u, _, err := drive.DirectURL(ctx, "SMALLFILE")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/uc?export=download&id=SMALLFILE", u)
	})

	t.Run("virus scan form is submitted", func(t *testing.T) {
		u, cookies, err := drive.DirectURL(ctx, "https://drive.google.com/file/d/BIGFILE/view")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/download?confirm=t&export=download&id=BIGFILE&uuid=1234", u)
		require.Len(t, cookies, 1)
		assert.Equal(t, "NID", cookies[0].Name)
	})

	t.Run("legacy confirm link is followed", func(t *testing.T) {
		u, _, err := drive.DirectURL(ctx, "OLDFILE")
		require.NoError(t, err)
		assert.Equal(t, srv.URL+"/uc?export=download&confirm=AbCd&id=OLDFILE", u)
	})

	t.Run("docs are exported", func(t *testing.T) {
		u, _, err := drive.DirectURL(ctx, "https://docs.google.com/presentation/d/SLIDES/edit")
		require.NoError(t, err)
		assert.Equal(t, "https://docs.example.com/presentation/d/SLIDES/export?format=pptx", u)
	})

	t.Run("private or missing files are not hosted", func(t *testing.T) {
		for _, id := range []string{"PRIVATE", "GONE"} {
			_, _, err := drive.DirectURL(ctx, id)
			require.ErrorIs(t, err, ErrNotHosted, id)
		}
	})
}

func TestGoogleDrive_LocateForwardsCookies(t *testing.T) {
	srv := newDriveServer(t)

	req, err := GoogleDrive{Drive: NewDrive(srv.Client(), srv.URL, ""), ID: "BIGFILE"}.Locate(context.Background(), Artifact{})
	require.NoError(t, err)

	assert.Contains(t, req.URL, "/download?")
	assert.Equal(t, []string{"Cookie: NID=drive-session"}, req.Auth.Headers)
}
