package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/devices"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/history"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/provision"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/scan"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/script"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/wifi"
	"github.com/ecowatt/shelly-onboard/hlog"
	"github.com/ecowatt/shelly-onboard/internal/debug"
	"github.com/ecowatt/shelly-onboard/internal/global"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:           "ecowatt",
	Short:         "Onboard Shelly devices onto the EcoWatt platform",
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		hlog.Init(options.Flags.Verbose, options.Flags.Debug, options.Flags.Quiet)
		log := hlog.Logger

		if debug.IsDebuggerAttached() {
			log.Info("Running under debugger (will wait forever)")
			options.Flags.Wait = 0
		}

		if err := options.ViperConfig.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := options.LoadConfig(log, options.ViperConfig); err != nil {
			log.Error(err, "Invalid configuration")
			return err
		}

		ctx := logr.NewContext(cmd.Context(), log)
		ctx = options.CommandLineContext(ctx, getVersion())
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cancel := ctx.Value(global.CancelKey).(context.CancelFunc)
		cancel()
		<-ctx.Done()
		return nil
	},
}

func init() {
	Cmd.PersistentFlags().StringVarP(&options.Flags.Config, "config", "c", "", "configuration `file` (default is ecowatt.yaml in . or $HOME/.config/ecowatt)")
	Cmd.PersistentFlags().DurationVarP(&options.Flags.Wait, "wait", "w", options.COMMAND_DEFAULT_TIMEOUT, "Maximum time to wait for command to finish (0 = wait indefinitely)")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Verbose, "verbose", "v", false, "verbose output (info level, mutually exclusive with --debug and --quiet)")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Debug, "debug", "d", false, "debug output (debug level, shows V(1) logs, mutually exclusive with --verbose and --quiet)")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Quiet, "quiet", "q", false, "quiet output (error level only, mutually exclusive with --verbose and --debug)")
	Cmd.PersistentFlags().BoolVarP(&options.Flags.Json, "json", "j", false, "output in json format")

	// configuration keys settable from the command line
	Cmd.PersistentFlags().String("backend.url", "", "EcoWatt backend base URL")
	Cmd.PersistentFlags().String("backend.token", "", "EcoWatt backend token (prefer ECOWATT_BACKEND_TOKEN)")
	Cmd.PersistentFlags().String("device.ip", "", "device address on its access point (default is the gateway, else 192.168.33.1)")
	Cmd.PersistentFlags().String("radio.interface", "", "wifi interface to drive (default is the first one)")

	Cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	Cmd.AddCommand(provision.Cmd)
	Cmd.AddCommand(scan.Cmd)
	Cmd.AddCommand(wifi.Cmd)
	Cmd.AddCommand(devices.Cmd)
	Cmd.AddCommand(history.Cmd)
	Cmd.AddCommand(script.Cmd)
}

func main() {
	cobra.EnableTraverseRunHooks = true
	err := Cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
