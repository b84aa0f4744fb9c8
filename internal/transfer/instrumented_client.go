package transfer

import (
	"context"

	"github.com/italolelis/mocap_installer/internal/telemetry"
)

// InstrumentedDaemon wraps a Daemon with telemetry.
type InstrumentedDaemon struct {
	daemon     Daemon
	telemetry  *telemetry.Telemetry
	daemonType string
}

// NewInstrumentedDaemon creates a new instrumented daemon.
func NewInstrumentedDaemon(daemon Daemon, tel *telemetry.Telemetry, daemonType string) *InstrumentedDaemon {
	return &InstrumentedDaemon{
		daemon:     daemon,
		telemetry:  tel,
		daemonType: daemonType,
	}
}

// AddURI submits a job with telemetry.
func (d *InstrumentedDaemon) AddURI(ctx context.Context, uri string, opts Options) (string, error) {
	var gid string

	err := d.telemetry.InstrumentDaemonOperation(ctx, d.daemonType, "add_uri", func(ctx context.Context) error {
		var err error

		gid, err = d.daemon.AddURI(ctx, uri, opts)

		return err
	})
	if err != nil {
		return "", err
	}

	return gid, nil
}

// Status polls a job with telemetry.
func (d *InstrumentedDaemon) Status(ctx context.Context, gid string) (*Record, error) {
	var rec *Record

	err := d.telemetry.InstrumentDaemonOperation(ctx, d.daemonType, "status", func(ctx context.Context) error {
		var err error

		rec, err = d.daemon.Status(ctx, gid)

		return err
	})
	if err != nil {
		return nil, err
	}

	return rec, nil
}

// Remove drops a job with telemetry.
func (d *InstrumentedDaemon) Remove(ctx context.Context, gid string) error {
	return d.telemetry.InstrumentDaemonOperation(ctx, d.daemonType, "remove", func(ctx context.Context) error {
		return d.daemon.Remove(ctx, gid)
	})
}

// Stats reads global daemon statistics with telemetry.
func (d *InstrumentedDaemon) Stats(ctx context.Context) (*Stats, error) {
	var stats *Stats

	err := d.telemetry.InstrumentDaemonOperation(ctx, d.daemonType, "stats", func(ctx context.Context) error {
		var err error

		stats, err = d.daemon.Stats(ctx)

		return err
	})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
