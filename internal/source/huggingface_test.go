package source

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHubServer(t *testing.T, token string) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var listings atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("/api/models/camenduru/GVHMR", func(w http.ResponseWriter, r *http.Request) {
		listings.Add(1)

		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "camenduru/GVHMR",
			"siblings": []map[string]string{
				{"rfilename": "README.md"},
				{"rfilename": "gvhmr/gvhmr_siga24_release.ckpt"},
				{"rfilename": "vitpose/vitpose-h-multi-coco.pth"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv, &listings
}

func TestHuggingFace_Locate(t *testing.T) {
	srv, listings := newHubServer(t, "")
	hub := NewHub(context.Background(), HubConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})

	src := HuggingFace{Hub: hub, Repo: "camenduru/GVHMR", Subfolder: "gvhmr"}

	req, err := src.Locate(context.Background(), Artifact{Filename: "gvhmr_siga24_release.ckpt"})
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/camenduru/GVHMR/resolve/main/gvhmr/gvhmr_siga24_release.ckpt", req.URL)
	assert.Empty(t, req.Auth.Headers)

	_, err = HuggingFace{Hub: hub, Repo: "camenduru/GVHMR", Subfolder: "gvhmr"}.
		Locate(context.Background(), Artifact{Filename: "missing.ckpt"})
	require.ErrorIs(t, err, ErrNotHosted)

	assert.Equal(t, int32(1), listings.Load(), "repo listing is cached")
}

func TestHuggingFace_UnknownRepoIsNotHosted(t *testing.T) {
	srv, _ := newHubServer(t, "")
	hub := NewHub(context.Background(), HubConfig{Endpoint: srv.URL, HTTPClient: srv.Client()})

	_, err := HuggingFace{Hub: hub, Repo: "nobody/nothing"}.Locate(context.Background(), Artifact{Filename: "x.ckpt"})
	require.ErrorIs(t, err, ErrNotHosted)
}

func TestHuggingFace_TokenIsSentAndForwarded(t *testing.T) {
	srv, _ := newHubServer(t, "hf_secret")
	hub := NewHub(context.Background(), HubConfig{Endpoint: srv.URL, Token: "hf_secret", HTTPClient: srv.Client()})

	req, err := HuggingFace{Hub: hub, Repo: "camenduru/GVHMR", Filename: "vitpose/vitpose-h-multi-coco.pth"}.
		Locate(context.Background(), Artifact{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Authorization: Bearer hf_secret"}, req.Auth.Headers)
}

func TestNewHub_MirrorSelection(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, DefaultHubEndpoint, NewHub(ctx, HubConfig{}).Endpoint())
	assert.Equal(t, DefaultHubMirror, NewHub(ctx, HubConfig{NeedMirror: true}).Endpoint())
	assert.Equal(t, "https://mirror.local", NewHub(ctx, HubConfig{NeedMirror: true, Mirror: "https://mirror.local/"}).Endpoint())
}

func TestSwapMirror(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		toMirror bool
		want     string
	}{
		{"to mirror", "https://huggingface.co/x/y/resolve/main/a.bin", true, "https://hf-mirror.com/x/y/resolve/main/a.bin"},
		{"back to hub", "https://hf-mirror.com/x/y/resolve/main/a.bin", false, "https://huggingface.co/x/y/resolve/main/a.bin"},
		{"other host untouched", "https://download.is.tue.mpg.de/a.zip", true, "https://download.is.tue.mpg.de/a.zip"},
		{"already mirrored", "https://hf-mirror.com/a", true, "https://hf-mirror.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SwapMirror(tt.in, "", tt.toMirror))
		})
	}
}

func TestDirect_Locate(t *testing.T) {
	req, err := Direct{URL: "https://huggingface.co/a/b/resolve/main/c.pth", NeedMirror: true}.Locate(context.Background(), Artifact{})
	require.NoError(t, err)
	assert.Equal(t, "https://hf-mirror.com/a/b/resolve/main/c.pth", req.URL)

	_, err = Direct{}.Locate(context.Background(), Artifact{})
	require.ErrorIs(t, err, ErrNotHosted)
}
