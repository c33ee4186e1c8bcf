package options

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ecowatt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  url: https://api.example.test/
mqtt:
  server: broker.example.test:1883
timing:
  home_attempts: 7
`), 0600))

	Flags.Config = path
	t.Cleanup(func() { Flags.Config = "" })

	v := viper.New()
	require.NoError(t, LoadConfig(testr.New(t), v))
	require.Equal(t, "broker.example.test:1883", v.GetString("mqtt.server"))
	require.EqualValues(t, 7, v.GetUint("timing.home_attempts"))
	require.EqualValues(t, 10, v.GetUint("timing.device_attempts"))
	require.Equal(t, 8*time.Second, v.GetDuration("timing.settle"))
	require.Equal(t, 10*time.Second, v.GetDuration("ingest.interval"))
	require.Equal(t, "https://api.example.test/api/v1/ingest/shelly", IngestURL(v))

	v.Set("ingest.url", "https://ingest.example.test/shelly")
	require.Equal(t, "https://ingest.example.test/shelly", IngestURL(v))
}

func TestLoadConfigEnvironment(t *testing.T) {
	t.Setenv("ECOWATT_BACKEND_TOKEN", "secret-token")
	t.Chdir(t.TempDir())

	v := viper.New()
	require.NoError(t, LoadConfig(testr.New(t), v))
	require.Equal(t, "secret-token", v.GetString("backend.token"))
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	Flags.Config = filepath.Join(t.TempDir(), "missing.yaml")
	t.Cleanup(func() { Flags.Config = "" })

	require.Error(t, LoadConfig(testr.New(t), viper.New()))
}
