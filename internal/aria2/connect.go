package aria2

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-version"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

// DefaultPorts are the RPC ports probed when none are configured.
var DefaultPorts = []int{6800, 16800}

// ErrVersionTooOld is returned by RequireVersion when the daemon is older than required.
var ErrVersionTooOld = errors.New("download daemon version too old")

// Endpoint builds the JSON-RPC URL for host and port.
func Endpoint(host string, port int) string {
	return fmt.Sprintf("http://%s:%d/jsonrpc", host, port)
}

// Connect returns a client for the first candidate port whose daemon answers
// aria2.getGlobalStat. It fails with *transfer.DaemonUnreachableError otherwise.
func Connect(ctx context.Context, host string, ports []int, secret string, httpClient *http.Client) (*Client, error) {
	logger := logctx.LoggerFromContext(ctx).With("host", host)

	if len(ports) == 0 {
		ports = DefaultPorts
	}

	var lastErr error

	for _, port := range ports {
		client := NewClient(Endpoint(host, port), secret, httpClient)

		if _, err := client.Stats(ctx); err != nil {
			logger.Debug("download daemon not answering", "port", port, "err", err)

			var authErr *transfer.AuthenticationError
			if errors.As(err, &authErr) {
				return nil, err
			}

			lastErr = err

			continue
		}

		logger.Info("connected to download daemon", "endpoint", client.Endpoint())

		return client, nil
	}

	return nil, &transfer.DaemonUnreachableError{Host: host, Ports: ports, Err: lastErr}
}

// WaitReady polls Connect until a daemon answers or timeout elapses.
func WaitReady(ctx context.Context, host string, ports []int, secret string, httpClient *http.Client, timeout time.Duration) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		client, err := Connect(ctx, host, ports, secret, httpClient)
		if err == nil {
			return client, nil
		}

		select {
		case <-ctx.Done():
			return nil, err
		case <-ticker.C:
		}
	}
}

// RequireVersion fails with ErrVersionTooOld when the daemon reports a version older
// than minimum. It returns the reported version.
func (c *Client) RequireVersion(ctx context.Context, minimum string) (string, error) {
	info, err := c.Version(ctx)
	if err != nil {
		return "", err
	}

	if minimum == "" {
		return info.Version, nil
	}

	want, err := version.NewVersion(minimum)
	if err != nil {
		return info.Version, fmt.Errorf("invalid minimum version %q: %w", minimum, err)
	}

	got, err := version.NewVersion(info.Version)
	if err != nil {
		return info.Version, fmt.Errorf("daemon reported unparsable version %q: %w", info.Version, err)
	}

	if got.LessThan(want) {
		return info.Version, fmt.Errorf("%w: have %s, need %s", ErrVersionTooOld, got, want)
	}

	return info.Version, nil
}

// DialConfig configures Dial.
type DialConfig struct {
	Host       string
	Ports      []int
	Secret     string
	HTTPClient *http.Client
	// Bootstrap starts a daemon on the first port when none answers.
	Bootstrap    bool
	Process      ProcessConfig
	StartTimeout time.Duration
}

// Dial connects to a running daemon, or starts one when cfg.Bootstrap is set. The
// returned Process is nil unless Dial started the daemon itself.
func Dial(ctx context.Context, cfg DialConfig) (*Client, *Process, error) {
	client, err := Connect(ctx, cfg.Host, cfg.Ports, cfg.Secret, cfg.HTTPClient)
	if err == nil {
		return client, nil, nil
	}

	var unreachable *transfer.DaemonUnreachableError
	if !cfg.Bootstrap || !errors.As(err, &unreachable) {
		return nil, nil, err
	}

	pcfg := cfg.Process
	pcfg.Secret = cfg.Secret

	if pcfg.Port == 0 {
		pcfg.Port = unreachable.Ports[0]
	}

	logctx.LoggerFromContext(ctx).Info("no download daemon running, starting one", "port", pcfg.Port)

	proc, startErr := StartProcess(ctx, pcfg)
	if startErr != nil {
		return nil, nil, errors.Join(err, startErr)
	}

	timeout := cfg.StartTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client, err = WaitReady(ctx, cfg.Host, []int{pcfg.Port}, cfg.Secret, cfg.HTTPClient, timeout)
	if err != nil {
		_ = proc.Stop(ctx)

		return nil, nil, err
	}

	return client, proc, nil
}
