package transfer_test

import (
	"context"
	"testing"

	"github.com/italolelis/mocap_installer/internal/telemetry"
	"github.com/italolelis/mocap_installer/internal/transfer"
	"github.com/italolelis/mocap_installer/internal/transfer/transfertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentedDaemon_Delegates(t *testing.T) {
	fake := transfertest.NewDaemon(func(string, int) transfertest.Job {
		return transfertest.Completes([]byte("x"))
	})

	tel, err := telemetry.New(context.Background(), telemetry.Config{Enabled: false})
	require.NoError(t, err)

	d := transfer.NewInstrumentedDaemon(fake, tel, "aria2")

	gid, err := d.AddURI(context.Background(), "https://example.com/x", transfer.Options{Dir: t.TempDir(), Out: "x"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/x"}, fake.Added())

	rec, err := d.Status(context.Background(), gid)
	require.NoError(t, err)
	assert.Equal(t, gid, rec.GID)

	stats, err := d.Stats(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)

	require.NoError(t, d.Remove(context.Background(), gid))

	_, err = d.Status(context.Background(), gid)
	require.ErrorIs(t, err, transfer.ErrJobNotFound)
}
