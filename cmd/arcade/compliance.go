package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/IBM/arcade/pkg/importer"
)

func newComplianceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compliance",
		Short: "Manage registration compliance flags",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import FILE",
		Short: "Load compliance flags from a CSV export",
		Long: `Load compliance flags from a CSV file with the columns aso_id and
is_compliant. Rows are matched to tracked objects by catalog number; rows for
unknown objects are counted and skipped.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening %s: %w", args[0], err)
			}
			defer f.Close()

			ctx := cmd.Context()
			h, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			stats, err := importer.NewComplianceImporter(h, a.logger).Import(ctx, f)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), stats,
				[]string{"Created", "Updated", "Unknown"},
				[][]string{{strconv.Itoa(stats.Created), strconv.Itoa(stats.Updated), strconv.Itoa(stats.Unknown)}})
		},
	})
	return cmd
}
