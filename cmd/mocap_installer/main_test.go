package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRootCmd_Commands(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	root := newRootCmd(cfg)

	names := make([]string, 0)
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}

	assert.Subset(t, names, []string{"install", "fetch", "serve", "daemon-status"})
}

func TestInstallCmd_MissingManifest(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	root := newRootCmd(cfg)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"install", "gvhmr", "--manifest", filepath.Join(t.TempDir(), "missing.yaml")})

	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open manifest")
}

func TestFetchCmd_RequiresDestination(t *testing.T) {
	cfg, err := config.LoadConfig()
	require.NoError(t, err)

	root := newRootCmd(cfg)
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"fetch", "https://example.com/a.bin"})

	err = root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--dest")
}
