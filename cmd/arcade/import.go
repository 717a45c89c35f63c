package main

import (
	"errors"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/IBM/arcade/pkg/archive"
	"github.com/IBM/arcade/pkg/importer"
)

type importRow struct {
	Source string         `json:"source"`
	Stats  importer.Stats `json:"stats"`
	Error  string         `json:"error,omitempty"`
}

func newImportCmd(a *app) *cobra.Command {
	var source string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run one import pass over the archive",
		Long: `Run one import pass over the archive. Every configured source is
imported in order unless --source names a single one. Artifacts imported by
an earlier pass are skipped.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			bucket, err := archive.NewBucket(ctx, a.archiveConfig(), a.logger)
			if err != nil {
				return err
			}
			sources, err := a.sources()
			if err != nil {
				return err
			}
			runner, err := importer.NewRunner(bucket, h, sources, importer.ConfigFromEnv(), importer.WithLogger(a.logger))
			if err != nil {
				return err
			}

			var results []importer.SourceResult
			if source != "" {
				stats, err := runner.RunSourceNamed(ctx, source)
				if errors.Is(err, importer.ErrUnknownSource) {
					return err
				}
				results = []importer.SourceResult{{Source: source, Stats: stats, Err: err}}
			} else {
				results = runner.Run(ctx)
			}
			return printImport(a, cmd, results)
		},
	}

	cmd.Flags().StringVar(&source, "source", "", "Import only the named source")
	return cmd
}

func printImport(a *app, cmd *cobra.Command, results []importer.SourceResult) error {
	out := make([]importRow, len(results))
	rows := make([][]string, len(results))
	var failed error
	for i, r := range results {
		out[i] = importRow{Source: r.Source, Stats: r.Stats}
		errText := ""
		if r.Err != nil {
			errText = r.Err.Error()
			out[i].Error = errText
			failed = errors.Join(failed, r.Err)
		}
		rows[i] = []string{
			r.Source,
			strconv.Itoa(r.Stats.ArtifactsSeen),
			strconv.Itoa(r.Stats.ArtifactsImported),
			strconv.Itoa(r.Stats.ArtifactsSkipped),
			strconv.Itoa(r.Stats.ArtifactsFailed),
			strconv.Itoa(r.Stats.RecordsCreated),
			strconv.Itoa(r.Stats.RecordsSuperseded),
			errText,
		}
	}
	headers := []string{"Source", "Seen", "Imported", "Skipped", "Failed", "Created", "Superseded", "Error"}
	if err := a.print(cmd.OutOrStdout(), out, headers, rows); err != nil {
		return err
	}
	return failed
}
