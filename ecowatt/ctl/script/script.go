package script

import (
	"fmt"
	"os"

	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/shelly/scripts"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/script"

	"github.com/spf13/cobra"
)

var Cmd = &cobra.Command{
	Use:   "script",
	Short: "Inspect the telemetry script installed on new devices",
	Args:  cobra.NoArgs,
}

var renderFlags struct {
	Mac    string
	Minify bool
}

func init() {
	renderCmd.Flags().StringVarP(&renderFlags.Mac, "mac", "m", "", "MAC address of the device")
	renderCmd.Flags().BoolVar(&renderFlags.Minify, "minify", false, "print the script as uploaded when minification is enabled")
	_ = renderCmd.MarkFlagRequired("mac")
	Cmd.AddCommand(renderCmd)
	Cmd.AddCommand(versionCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print the telemetry script rendered for one device",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := identity.New(renderFlags.Mac, "", "")
		if err != nil {
			return err
		}
		v := options.ViperConfig
		code, err := scripts.Render(scripts.Params{
			WebhookURL: options.IngestURL(v),
			MAC:        id.Mac(),
			IntervalMs: int(v.GetDuration("ingest.interval").Milliseconds()),
		})
		if err != nil {
			return err
		}
		if renderFlags.Minify {
			code, err = script.Minify(code)
			if err != nil {
				return err
			}
		}
		_, err = os.Stdout.Write(code)
		return err
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of the embedded telemetry template",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := scripts.ComputeScriptVersion(scripts.IngestScript)
		if err != nil {
			return err
		}
		fmt.Println(version)
		return nil
	},
}
