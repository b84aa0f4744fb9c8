package downloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const emptyMD5 = "d41d8cd98f00b204e9800998ecf8427e"

func TestIntegrityChecker_MD5(t *testing.T) {
	dir := t.TempDir()

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	hello := filepath.Join(dir, "hello")
	require.NoError(t, os.WriteFile(hello, []byte("hello world"), 0o644))

	checker := NewIntegrityChecker(4)

	tests := []struct {
		path string
		want string
	}{
		{empty, emptyMD5},
		{hello, "5eb63bbbe01eeed093cb22bb8f5acdc3"},
	}

	for _, tt := range tests {
		t.Run(filepath.Base(tt.path), func(t *testing.T) {
			sum, err := checker.MD5(context.Background(), tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sum)

			d := <-checker.MD5Async(context.Background(), tt.path)
			require.NoError(t, d.Err)
			assert.Equal(t, tt.want, d.Sum)
		})
	}
}

func TestIntegrityChecker_Matches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	checker := NewIntegrityChecker(0)

	ok, err := checker.Matches(context.Background(), path, "5EB63BBBE01EEED093CB22BB8F5ACDC3")
	require.NoError(t, err)
	assert.True(t, ok, "hex comparison is case-insensitive")

	ok, err = checker.Matches(context.Background(), path, emptyMD5)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = checker.Matches(context.Background(), filepath.Join(dir, "absent"), emptyMD5)
	require.NoError(t, err)
	assert.False(t, ok, "a missing file is simply not a match")
}

func TestIntegrityChecker_MD5Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	// either the hash wins the race or the cancellation does; both are valid
	sum, err := NewIntegrityChecker(0).MD5(ctx, path)
	if err != nil {
		require.ErrorIs(t, err, context.Canceled)
	} else {
		assert.Equal(t, "9dd4e461268c8034f5c8564e155c67a6", sum)
	}
}
