package history

import (
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/app"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var limit int

func init() {
	Cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show (0 for all)")
}

var Cmd = &cobra.Command{
	Use:   "history",
	Short: "Show the past provisioning runs, most recent first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, logr.FromContextOrDiscard(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.Storage.ListRuns(ctx, limit)
		if err != nil {
			return err
		}
		return options.PrintResult(runs)
	},
}
