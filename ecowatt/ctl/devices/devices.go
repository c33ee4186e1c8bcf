package devices

import (
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/app"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/internal/provision"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "devices",
	Short: "List the devices registered to the EcoWatt account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, logr.FromContextOrDiscard(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		if a.Session.Token == "" {
			return provision.ErrMissingToken
		}
		be, err := a.Backend()
		if err != nil {
			return err
		}
		devices, err := be.ListDevices(ctx)
		if err != nil {
			return err
		}
		return options.PrintResult(devices)
	},
}
