package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/IBM/arcade/pkg/authz"
	"github.com/IBM/arcade/pkg/store"
)

func newLatestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "latest TRACKING_ID",
		Short: "Show the record with the latest stop time for an object",
		Long: `Show the record with the latest stop time for an object across all
data sources. Operator reads bypass grants and are not written to the access
log.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer h.Close()

			rec, err := authz.NewEvaluator(h, &authz.NoopAuthorizer{}, nil, a.logger).LatestRecord(ctx, args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("no record for %q: %w", args[0], store.ErrNotFound)
			}
			o := rec.OEM()
			return a.print(cmd.OutOrStdout(), o,
				[]string{"Object", "Name", "Frame", "Start", "Stop", "Lines"},
				[][]string{{args[0], o.ObjectName, o.RefFrame, o.StartTime, o.StopTime, strconv.Itoa(len(o.Lines))}})
		},
	}
}
