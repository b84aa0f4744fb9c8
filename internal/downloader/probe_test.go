package downloader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/italolelis/mocap_installer/internal/transfer"
	"github.com/stretchr/testify/assert"
)

func TestProber_Probe(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ranged/model.ckpt", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodHead, r.Method)
		w.Header().Set("Accept-Ranges", "bytes")
	})
	mux.HandleFunc("/plain/file.bin", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Accept-Ranges", "none")
	})
	mux.HandleFunc("/disposition", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="fallback.zip"; filename*=UTF-8''hand%20model.zip`)
	})
	mux.HandleFunc("/legacy", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="../../etc/body.pkl"`)
	})
	mux.HandleFunc("/auth", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer hf_x" || r.Header.Get("Referer") != "https://ref.example" {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		if c, err := r.Cookie("PHPSESSID"); err != nil || c.Value != "abc" {
			w.WriteHeader(http.StatusForbidden)

			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
	})
	mux.HandleFunc("/missing.bin", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	prober := NewProber(srv.Client(), time.Second)

	tests := []struct {
		name          string
		path          string
		auth          transfer.Auth
		wantResumable bool
		wantName      string
	}{
		{"accept ranges", "/ranged/model.ckpt", transfer.Auth{}, true, "model.ckpt"},
		{"no ranges", "/plain/file.bin", transfer.Auth{}, false, "file.bin"},
		{"filename star wins", "/disposition", transfer.Auth{}, false, "hand model.zip"},
		{"disposition is reduced to its base name", "/legacy", transfer.Auth{}, false, "body.pkl"},
		{
			"auth decorations are sent",
			"/auth",
			transfer.Auth{
				Referer: "https://ref.example",
				Headers: []string{"Authorization: Bearer hf_x"},
				Cookies: []*http.Cookie{{Name: "PHPSESSID", Value: "abc"}},
			},
			true,
			"auth",
		},
		{"error status falls back", "/missing.bin", transfer.Auth{}, false, "missing.bin"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resumable, name := prober.Probe(context.Background(), srv.URL+tt.path, tt.auth)

			assert.Equal(t, tt.wantResumable, resumable)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func TestProber_NetworkFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/weights/smpl.pkl?download=1"
	srv.Close()

	resumable, name := NewProber(nil, 200*time.Millisecond).Probe(context.Background(), url, transfer.Auth{})

	assert.False(t, resumable)
	assert.Equal(t, "smpl.pkl", name)
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "a b.zip", BaseName("https://example.com/x/a%20b.zip?x=1"))
	assert.Equal(t, "", BaseName("https://example.com/"))
	assert.Equal(t, "", BaseName("https://example.com"))
}
