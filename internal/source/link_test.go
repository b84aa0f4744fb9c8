package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sameInode(t *testing.T, a, b string) bool {
	t.Helper()

	ai, err := os.Stat(a)
	require.NoError(t, err)

	bi, err := os.Stat(b)
	require.NoError(t, err)

	return os.SameFile(ai, bi)
}

func TestLink_FansOutToEveryMissingDestination(t *testing.T) {
	root := t.TempDir()
	canonical := filepath.Join(root, "gvhmr", "body_models", "smplx", "SMPLX_NEUTRAL.npz")
	require.NoError(t, os.MkdirAll(filepath.Dir(canonical), 0o755))
	require.NoError(t, os.WriteFile(canonical, []byte("weights"), 0o644))

	dests := []string{
		canonical,
		filepath.Join(root, "wilor", "models", "SMPLX_NEUTRAL.npz"),
		filepath.Join(root, "dynhamr", "_DATA", "data", "SMPLX_NEUTRAL.npz"),
	}

	out := Link(context.Background(), canonical, dests)

	require.True(t, out.OK())
	assert.ElementsMatch(t, dests[1:], out.Linked)
	assert.Empty(t, out.Existing)

	for _, d := range dests[1:] {
		assert.True(t, sameInode(t, canonical, d), d)
	}

	// a second pass finds everything in place
	again := Link(context.Background(), canonical, dests)
	assert.Empty(t, again.Linked)
	assert.ElementsMatch(t, dests[1:], again.Existing)
}

func TestLink_FailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	canonical := filepath.Join(root, "a.bin")
	require.NoError(t, os.WriteFile(canonical, []byte("x"), 0o644))

	// a regular file where a directory is needed makes that one target fail
	blocker := filepath.Join(root, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	bad := filepath.Join(blocker, "a.bin")
	good := filepath.Join(root, "ok", "a.bin")

	out := Link(context.Background(), canonical, []string{canonical, bad, good})

	assert.False(t, out.OK())
	assert.Contains(t, out.Failed, bad)
	assert.Equal(t, []string{good}, out.Linked)
}
