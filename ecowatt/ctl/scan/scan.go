package scan

import (
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/app"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "scan",
	Short: "List the Shelly access points in range",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logr.FromContextOrDiscard(ctx)

		a, err := app.Open(ctx, log)
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Scanner().Scan(ctx)
		if err != nil {
			return err
		}
		return options.PrintResult(res)
	},
}
