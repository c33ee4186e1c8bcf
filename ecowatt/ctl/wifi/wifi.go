package wifi

import (
	"fmt"

	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/app"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/internal/session"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "wifi",
	Short: "Manage the home Wi-Fi credentials given to new devices",
	Args:  cobra.NoArgs,
}

func init() {
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(forgetCmd)
}

var setCmd = &cobra.Command{
	Use:   "set <ssid> <password>",
	Short: "Store the home Wi-Fi network and password",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, logr.FromContextOrDiscard(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		c := session.Credentials{SSID: args[0], Password: args[1]}
		if !c.Valid() {
			return fmt.Errorf("%w: network and password must not be empty", session.ErrMissingCredentials)
		}
		return a.Storage.SetWifiCredentials(ctx, c)
	},
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored home Wi-Fi network",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, logr.FromContextOrDiscard(ctx))
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Session.HomeWifi(ctx)
		if err != nil {
			return err
		}
		return options.PrintResult(c)
	},
}

var forgetCmd = &cobra.Command{
	Use:   "forget",
	Short: "Delete the stored home Wi-Fi credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := app.Open(ctx, logr.FromContextOrDiscard(ctx))
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Storage.ForgetWifiCredentials(ctx)
	},
}
