package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/installer"
	"github.com/italolelis/mocap_installer/internal/logctx"
	"github.com/spf13/cobra"
)

func newInstallCmd(cfg *config.Config) *cobra.Command {
	var (
		all       bool
		skipSteps bool
	)

	cmd := &cobra.Command{
		Use:   "install [PIPELINE...]",
		Short: "Install pipelines and download their assets",
		Long: `Install one or more pipelines from the manifest. Setup steps run in order
while the pipeline's assets are downloaded concurrently; a failing step
cancels downloads that have not finished. Assets that could not be fetched
are listed with their URLs and destinations for manual download.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := installer.LoadManifest(cfg.ManifestPath)
			if err != nil {
				return err
			}

			names := args
			if all {
				names = manifest.Names()
			}

			if len(names) == 0 {
				return fmt.Errorf("no pipeline given; choose from %v or pass --all", manifest.Names())
			}

			pipelines := make([]*installer.Pipeline, 0, len(names))
			for _, name := range names {
				p, err := manifest.Pipeline(name)
				if err != nil {
					return err
				}

				pipelines = append(pipelines, p)
			}

			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			var errs []error

			for _, p := range pipelines {
				batch := installer.Batch{
					Pipeline: p.Name,
					Jobs:     p.Jobs(cfg.InstallRoot, a.sources),
				}

				if !skipSteps {
					batch.Steps = p.CommandSteps(cfg.InstallRoot)
				}

				report, err := a.installer.Install(ctx, batch)
				if report != nil {
					printReport(cmd, report)
				}

				if err != nil {
					errs = append(errs, err)
				}

				if ctx.Err() != nil {
					break
				}
			}

			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "install every pipeline in the manifest")
	cmd.Flags().BoolVar(&skipSteps, "skip-steps", false, "only download assets, do not run setup steps")

	return cmd
}

func printReport(cmd *cobra.Command, report *installer.Report) {
	logger := logctx.LoggerFromContext(cmd.Context())
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "%s (%s)\n", report.Pipeline, report.Duration.Round(time.Millisecond))

	for _, o := range report.Outcomes {
		state := "ok"

		switch {
		case !o.Started:
			state = "skipped"
		case !o.Result.Success:
			state = "FAILED"
		case o.ExtractErr != nil:
			state = "extract failed"
		case o.Result.ChecksumMismatch:
			state = "ok (checksum mismatch)"
		}

		fmt.Fprintf(out, "  %-28s %-24s %8s  %s\n",
			o.Job.Artifact.Name, state, humanize.Bytes(uint64(o.Result.BytesTransferred)), o.Result.Path)
	}

	logger.Debug("install report printed", "pipeline", report.Pipeline, "artifacts", len(report.Outcomes))
}
