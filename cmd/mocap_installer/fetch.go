package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/config"
	"github.com/italolelis/mocap_installer/internal/installer"
	"github.com/italolelis/mocap_installer/internal/source"
	"github.com/spf13/cobra"
)

func newFetchCmd(cfg *config.Config) *cobra.Command {
	var (
		dest    []string
		md5     string
		name    string
		hfRepo  string
		driveID string
	)

	cmd := &cobra.Command{
		Use:   "fetch [URL...]",
		Short: "Download one artifact, trying each source in order",
		Example: `  mocap_installer fetch --dest checkpoints/dpvo.pth --hf-repo camenduru/GVHMR \
    https://example.com/mirror/dpvo.pth`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(dest) == 0 {
				return errors.New("at least one --dest is required")
			}

			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, true)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			art := source.Artifact{
				Name:         name,
				Filename:     filepath.Base(dest[0]),
				Checksum:     md5,
				Destinations: dest,
			}

			if art.Name == "" {
				art.Name = art.Filename
			}

			if hfRepo != "" {
				art.Sources = append(art.Sources, a.sources.Build(installer.SourceSpec{Kind: source.KindHuggingFace, Repo: hfRepo}))
			}

			if driveID != "" {
				art.Sources = append(art.Sources, a.sources.Build(installer.SourceSpec{Kind: source.KindGoogleDrive, ID: driveID}))
			}

			for _, u := range args {
				art.Sources = append(art.Sources, source.Direct{URL: u, NeedMirror: cfg.HuggingFace.NeedMirror, Mirror: cfg.HuggingFace.Mirror})
			}

			if len(art.Sources) == 0 {
				return errors.New("no source given")
			}

			res := a.resolver.Resolve(ctx, art)
			if !res.Success {
				return fmt.Errorf("could not fetch %s after %d attempt(s); download %s manually to %s",
					art.Name, res.Attempts, res.URL, res.Path)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s (%s, %d attempt(s))\n",
				res.URL, res.Path, humanize.Bytes(uint64(res.BytesTransferred)), res.Attempts)

			return nil
		},
	}

	cmd.Flags().StringSliceVar(&dest, "dest", nil, "destination path; repeat for hardlinked copies")
	cmd.Flags().StringVar(&md5, "md5", "", "expected MD5 checksum")
	cmd.Flags().StringVar(&name, "name", "", "artifact name recorded in the ledger")
	cmd.Flags().StringVar(&hfRepo, "hf-repo", "", "Hugging Face repository holding the file")
	cmd.Flags().StringVar(&driveID, "drive", "", "Google Drive file id or share URL")

	return cmd
}
