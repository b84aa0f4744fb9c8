package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"github.com/italolelis/mocap_installer/internal/archive"
	"github.com/italolelis/mocap_installer/internal/aria2"
	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/downloader"
	"github.com/italolelis/mocap_installer/internal/downloader/progress"
	"github.com/italolelis/mocap_installer/internal/installer"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/italolelis/mocap_installer/internal/notifier"
	"github.com/italolelis/mocap_installer/internal/source"
	"github.com/italolelis/mocap_installer/internal/storage/sqlite"
	"github.com/italolelis/mocap_installer/internal/telemetry"
	"github.com/italolelis/mocap_installer/internal/transfer"
)

const daemonType = "aria2"

// app holds the wired components shared by every command.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Telemetry
	db        *sql.DB
	ledger    *sqlite.InstrumentedArtifactRepository

	client *aria2.Client
	proc   *aria2.Process
	daemon transfer.Daemon

	downloader *downloader.Downloader
	resolver   *source.Resolver
	gate       *downloader.Gate
	installer  *installer.Installer
	sources    *installer.SourceBuilder
}

// newApp wires the stack. The daemon is dialed (and bootstrapped when allowed) only
// when withDaemon is set.
func newApp(ctx context.Context, cfg *config.Config, withDaemon bool) (*app, error) {
	logger := logctx.LoggerFromContext(ctx)
	a := &app{cfg: cfg}

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a.telemetry = tel

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(ctx, cfg.DBPath)
	if err != nil {
		a.close(ctx)

		return nil, fmt.Errorf("failed to open artifact ledger: %w", err)
	}

	a.db = database
	a.ledger = sqlite.NewInstrumentedArtifactRepository(database, tel)

	if !withDaemon {
		return a, nil
	}

	// =========================================================================
	// Start Download Daemon
	client, proc, err := aria2.Dial(ctx, aria2.DialConfig{
		Host:       cfg.Aria2.Host,
		Ports:      cfg.Aria2.Ports,
		Secret:     cfg.Aria2.Secret,
		HTTPClient: telemetry.NewHTTPClient(cfg.Aria2.RequestTimeout),
		Bootstrap:  cfg.Aria2.Bootstrap,
		Process: aria2.ProcessConfig{
			Binary:                 cfg.Aria2.Binary,
			Dir:                    cfg.InstallRoot,
			MaxConcurrentDownloads: cfg.MaxParallel,
		},
	})
	if err != nil {
		a.close(ctx)

		return nil, err
	}

	a.client = client
	a.proc = proc
	a.daemon = transfer.NewInstrumentedDaemon(client, tel, daemonType)

	logger.Info("connected to download daemon", "endpoint", client.Endpoint(), "bootstrapped", proc != nil)

	// =========================================================================
	// Start Downloader
	integrity := downloader.NewIntegrityChecker(0)
	prober := downloader.NewProber(telemetry.NewHTTPClient(cfg.Download.ProbeTimeout), cfg.Download.ProbeTimeout)

	a.downloader = downloader.New(a.daemon, prober, downloader.Config{
		MaxAttempts:            cfg.Download.MaxAttempts,
		RetryWait:              cfg.Download.RetryWait,
		PollInterval:           cfg.Download.PollInterval,
		Split:                  cfg.Download.Split,
		MaxConnectionPerServer: cfg.Download.MaxConnections,
		MinSplitSize:           cfg.Download.MinSplitSize,
		UserAgent:              cfg.Download.UserAgent,
	},
		downloader.WithTelemetry(tel),
		downloader.WithIntegrityChecker(integrity),
		downloader.WithProgressSink(progress.NewLogTracker(ctx, cfg.Download.ProgressLogStep)),
	)

	// =========================================================================
	// Start Sources
	sourceClient := telemetry.NewHTTPClient(cfg.SourceTimeout)

	var session *http.Cookie
	if cfg.CookieHost.SessionID != "" {
		session = &http.Cookie{Name: cfg.CookieHost.SessionCookie, Value: cfg.CookieHost.SessionID}
	}

	a.sources = &installer.SourceBuilder{
		Hub: source.NewHub(ctx, source.HubConfig{
			Endpoint:   cfg.HuggingFace.Endpoint,
			Mirror:     cfg.HuggingFace.Mirror,
			NeedMirror: cfg.HuggingFace.NeedMirror,
			Token:      cfg.HuggingFace.Token,
			HTTPClient: sourceClient,
		}),
		Drive:      source.NewDrive(sourceClient, "", ""),
		Cookie:     session,
		JarDir:     cfg.CookieHost.JarDir,
		NeedMirror: cfg.HuggingFace.NeedMirror,
		Mirror:     cfg.HuggingFace.Mirror,
	}

	a.resolver = source.NewResolver(a.downloader, integrity,
		source.WithLedger(a.ledger),
		source.WithResolverTelemetry(tel),
	)

	// =========================================================================
	// Start Installer
	a.gate = downloader.NewGate(cfg.MaxParallel, tel)

	opts := []installer.Option{
		installer.WithInstallerTelemetry(tel),
		installer.WithMinimumDaemonVersion(client, cfg.Aria2.MinVersion),
	}

	if cfg.DiscordWebhookURL != "" {
		opts = append(opts, installer.WithNotifier(
			notifier.NewDiscordNotifier(cfg.DiscordWebhookURL, telemetry.NewHTTPClient(cfg.SourceTimeout)),
		))
	}

	a.installer = installer.New(a.resolver, a.gate, archive.NewExtractor(), opts...)

	return a, nil
}

// close releases everything newApp acquired, stopping a daemon it started.
func (a *app) close(ctx context.Context) {
	logger := logctx.LoggerFromContext(ctx)
	shutdownCtx := context.WithoutCancel(ctx)

	if a.proc != nil {
		if err := a.proc.Stop(shutdownCtx); err != nil {
			logger.Warn("failed to stop download daemon", "err", err)
		}
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Warn("failed to close artifact ledger", "err", err)
		}
	}

	if err := a.telemetry.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to shutdown telemetry", "err", err)
	}
}
