package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	logger := slog.New(logctx.NewTraceHandler(handler))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(cfg).ExecuteContext(logctx.WithLogger(ctx, logger)); err != nil {
		slog.Error("fatal error", "err", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mocap_installer",
		Short: "Provision motion capture pipelines and their model assets",
		Long: `mocap_installer sets up motion capture ML pipelines and downloads their
model weights from Hugging Face, Google Drive and registration-gated hosts
through an aria2 daemon, with resume, retry, checksum verification and
multi-source fallback.`,
		Version:      version,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfg.ManifestPath, "manifest", cfg.ManifestPath, "pipeline manifest file")
	cmd.PersistentFlags().StringVar(&cfg.InstallRoot, "root", cfg.InstallRoot, "directory pipelines are installed under")
	cmd.PersistentFlags().IntVar(&cfg.MaxParallel, "parallel", cfg.MaxParallel, "maximum artifacts resolved at once")

	cmd.AddCommand(
		newInstallCmd(cfg),
		newFetchCmd(cfg),
		newServeCmd(cfg),
		newDaemonStatusCmd(cfg),
	)

	return cmd
}
