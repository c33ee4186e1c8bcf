package provision

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/app"
	"github.com/ecowatt/shelly-onboard/ecowatt/ctl/options"
	"github.com/ecowatt/shelly-onboard/hlog"
	"github.com/ecowatt/shelly-onboard/internal/global"
	"github.com/ecowatt/shelly-onboard/internal/mdns"
	"github.com/ecowatt/shelly-onboard/internal/provision"
	"github.com/ecowatt/shelly-onboard/internal/radio"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
)

var Flags struct {
	SSID string
	Yes  bool
}

func init() {
	Cmd.Flags().StringVarP(&Flags.SSID, "ssid", "s", "", "access point of the device to provision (default is to ask)")
	Cmd.Flags().BoolVarP(&Flags.Yes, "yes", "y", false, "provision the strongest device found without asking")
}

var Cmd = &cobra.Command{
	Use:   "provision",
	Short: "Onboard a new Shelly device onto the home network and the EcoWatt account",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := logr.FromContextOrDiscard(ctx)

		a, err := app.Open(ctx, log)
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Controller(progress)
		if err != nil {
			return err
		}
		defer waitSafety(ctx, log, c)

		if err := c.Start(ctx); err != nil {
			options.PrintResult(c.Session())
			return err
		}

		ssid, err := choose(c.Session().FoundDevices)
		if err != nil {
			return err
		}

		err = c.Select(ctx, ssid)
		if errors.Is(err, provision.ErrAlreadyRegistered) {
			fmt.Fprintln(os.Stderr, provision.Message(err))
			return err
		}
		if err != nil {
			options.PrintResult(c.Session())
			return err
		}

		out := result{Session: c.Session()}
		out.Online, out.Location = confirm(ctx, log, a, out.Session)
		return options.PrintResult(out)
	},
}

type result struct {
	provision.Session `yaml:",inline"`
	Online            *bool          `json:"online,omitempty" yaml:"online,omitempty"`
	Location          *mdns.Location `json:"location,omitempty" yaml:"location,omitempty"`
}

func progress(s provision.Session) {
	label, pct := s.Step.Progress()
	if label == "" {
		return
	}
	fmt.Fprintf(os.Stderr, "[%3d%%] %s\n", pct, label)
}

func choose(found []radio.Network) (string, error) {
	if Flags.SSID != "" {
		return Flags.SSID, nil
	}
	if Flags.Yes {
		return found[0].SSID, nil
	}

	for i, n := range found {
		fmt.Fprintf(os.Stderr, "%2d. %s (%d%%)\n", i+1, n.SSID, n.Signal)
	}
	fmt.Fprintf(os.Stderr, "Device to provision [1-%d]: ", len(found))
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading selection: %w", err)
	}
	i, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || i < 1 || i > len(found) {
		return "", fmt.Errorf("invalid selection %q", strings.TrimSpace(line))
	}
	return found[i-1].SSID, nil
}

// confirm checks, when enabled, that the device reached the broker and the
// home network. Neither check changes the outcome of the run.
func confirm(ctx context.Context, log logr.Logger, a *app.App, s provision.Session) (*bool, *mdns.Location) {
	if s.Identity == nil {
		return nil, nil
	}

	var online *bool
	if w := a.Presence(); w != nil {
		ok, err := w.Online(ctx, s.Identity.TopicPrefix())
		if err != nil {
			hlog.ErrorIfNotCanceled(log, err, "Presence check failed", "topic_prefix", s.Identity.TopicPrefix())
		} else {
			online = &ok
		}
	}

	var location *mdns.Location
	l, err := a.Locator()
	if err != nil {
		log.Error(err, "mDNS unavailable")
	} else if l != nil {
		location, err = l.Locate(ctx, *s.Identity)
		if err != nil {
			hlog.ErrorIfNotCanceled(log, err, "Device not located", "device", s.Identity.ClientID())
		}
	}
	return online, location
}

// waitSafety lets the background power-off finish, unless the process is
// interrupted.
func waitSafety(ctx context.Context, log logr.Logger, c *provision.Controller) {
	done := make(chan struct{})
	go func() {
		c.WaitSafety()
		close(done)
	}()
	select {
	case <-done:
	case <-global.ProcessContext(ctx).Done():
		log.Info("Interrupted before the new device was switched off")
	}
}
