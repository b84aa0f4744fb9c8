package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/aria2"
	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/telemetry"
	"github.com/spf13/cobra"
)

func newDaemonStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon-status",
		Short: "Check that the download daemon is reachable and recent enough",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			client, err := aria2.Connect(ctx, cfg.Aria2.Host, cfg.Aria2.Ports, cfg.Aria2.Secret,
				telemetry.NewHTTPClient(cfg.Aria2.RequestTimeout))
			if err != nil {
				return err
			}

			v, verErr := client.RequireVersion(ctx, cfg.Aria2.MinVersion)

			stats, err := client.Stats(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "endpoint:  %s\n", client.Endpoint())
			fmt.Fprintf(out, "version:   %s (minimum %s)\n", v, cfg.Aria2.MinVersion)
			fmt.Fprintf(out, "active:    %d\n", stats.NumActive)
			fmt.Fprintf(out, "waiting:   %d\n", stats.NumWaiting)
			fmt.Fprintf(out, "stopped:   %d\n", stats.NumStopped)
			fmt.Fprintf(out, "speed:     %s/s\n", humanize.Bytes(uint64(stats.DownloadSpeed)))

			return verErr
		},
	}
}
