package scripts

import (
	"bytes"
	"crypto/sha1"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"regexp"
	"text/template"
)

// IngestScript is the embedded telemetry template installed on devices.
const IngestScript = "ingest.js.tmpl"

// Name of the script slot created on the device.
const DefaultName = "ecowatt_ingest"

//go:embed *.tmpl
var content embed.FS

// GetFS returns the embedded filesystem containing all Shelly scripts
func GetFS() fs.FS {
	return content
}

// Params are the values substituted into the telemetry template.
type Params struct {
	WebhookURL string
	MAC        string
	IntervalMs int
}

var macRe = regexp.MustCompile(`^[0-9A-F]{12}$`)

func (p Params) validate() error {
	if p.WebhookURL == "" {
		return fmt.Errorf("missing webhook url")
	}
	if !macRe.MatchString(p.MAC) {
		return fmt.Errorf("invalid canonical MAC %q", p.MAC)
	}
	if p.IntervalMs <= 0 {
		return fmt.Errorf("invalid interval %dms", p.IntervalMs)
	}
	return nil
}

// ComputeScriptVersion computes the SHA1 hash of a script file
func ComputeScriptVersion(name string) (string, error) {
	buf, err := fs.ReadFile(content, name)
	if err != nil {
		return "", err
	}
	h := sha1.New()
	h.Write(buf)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// jsQuote renders s as a JavaScript string literal.
func jsQuote(s string) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var ingest = template.Must(template.New(IngestScript).
	Funcs(template.FuncMap{"js": jsQuote}).
	ParseFS(content, IngestScript))

// Render returns the telemetry script for one device. The output depends
// only on p and the embedded template.
func Render(p Params) ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	version, err := ComputeScriptVersion(IngestScript)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = ingest.Execute(&buf, struct {
		Params
		Version string
	}{
		Params:  p,
		Version: version[:12],
	})
	if err != nil {
		return nil, fmt.Errorf("rendering %s: %w", IngestScript, err)
	}
	return buf.Bytes(), nil
}
