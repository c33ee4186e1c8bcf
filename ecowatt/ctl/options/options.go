package options

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/global"

	"github.com/go-logr/logr"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const COMMAND_DEFAULT_TIMEOUT time.Duration = 0 // No timeout by default (wait indefinitely)

const BACKEND_DEFAULT_TIMEOUT time.Duration = 15 * time.Second

const PRESENCE_DEFAULT_TIMEOUT time.Duration = 60 * time.Second

const MDNS_LOOKUP_DEFAULT_TIMEOUT time.Duration = 10 * time.Second

var Flags struct {
	Verbose bool
	Debug   bool
	Quiet   bool
	Json    bool
	Config  string        // the value taken by --config / -c
	Wait    time.Duration // the value taken by --wait / -w
}

// ViperConfig holds the merged configuration file, environment and flags.
var ViperConfig = viper.New()

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "https://api.ecowatt.app")
	v.SetDefault("backend.timeout", BACKEND_DEFAULT_TIMEOUT)
	v.SetDefault("ingest.interval", 10*time.Second)
	v.SetDefault("script.minify", true)
	v.SetDefault("timing.settle", 8*time.Second)
	v.SetDefault("timing.device_attempts", 10)
	v.SetDefault("timing.home_attempts", 5)
	v.SetDefault("timing.probe_interval", time.Second)
	v.SetDefault("presence.enable", false)
	v.SetDefault("presence.timeout", PRESENCE_DEFAULT_TIMEOUT)
	v.SetDefault("mdns.enable", false)
	v.SetDefault("mdns.timeout", MDNS_LOOKUP_DEFAULT_TIMEOUT)
	v.SetDefault("storage.path", defaultStoragePath())
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "ecowatt.db"
	}
	return filepath.Join(dir, "ecowatt", "ecowatt.db")
}

// LoadConfig reads ecowatt.yaml from the given file, else the working
// directory or $HOME/.config/ecowatt, and ECOWATT_* variables. A missing
// configuration file is not an error.
func LoadConfig(log logr.Logger, v *viper.Viper) error {
	setDefaults(v)
	v.SetEnvPrefix("ECOWATT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if Flags.Config != "" {
		v.SetConfigFile(Flags.Config)
	} else {
		v.SetConfigName("ecowatt")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "ecowatt"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok && Flags.Config == "" {
			log.V(1).Info("No configuration file, using defaults and environment")
			return nil
		}
		return fmt.Errorf("reading configuration: %w", err)
	}
	log.Info("Loaded configuration", "file", v.ConfigFileUsed())
	return nil
}

// IngestURL is ingest.url, else the ingestion endpoint of the backend.
func IngestURL(v *viper.Viper) string {
	if u := v.GetString("ingest.url"); u != "" {
		return u
	}
	return strings.TrimRight(v.GetString("backend.url"), "/") + "/api/v1/ingest/shelly"
}

func CommandLineContext(ctx context.Context, version string) context.Context {
	var cancel context.CancelFunc

	// Create the process-wide context that background work can use
	processCtx, processCancel := context.WithCancel(ctx)

	if Flags.Wait > 0 {
		ctx, cancel = context.WithTimeout(processCtx, Flags.Wait)
		ctx = context.WithValue(ctx, global.CancelKey, cancel)
	} else {
		ctx, cancel = context.WithCancel(processCtx)
		ctx = context.WithValue(ctx, global.CancelKey, cancel)
	}

	ctx = context.WithValue(ctx, global.ProcessContextKey, processCtx)
	ctx = context.WithValue(ctx, global.VersionKey, version)

	go func() {
		log := logr.FromContextOrDiscard(ctx)
		signals := make(chan os.Signal, 1)
		signal.Notify(signals, os.Interrupt)
		signal.Notify(signals, syscall.SIGTERM)
		<-signals
		log.Info("Received signal")
		// Cancel both the operation context and the process context
		cancel()
		processCancel()
	}()
	return ctx
}

func PrintResult(out any) error {
	if Flags.Json {
		s, err := json.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Println(string(s))
	} else {
		s, err := yaml.Marshal(out)
		if err != nil {
			return err
		}
		fmt.Println(string(s))
	}
	return nil
}
