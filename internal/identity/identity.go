// Package identity derives the canonical identity of a Shelly device. The
// uppercase MAC is the only stored form: the lowercase client id and topic
// prefix the device's MQTT client requires are always computed from it.
package identity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DefaultPrefix is the model prefix assumed when the device does not tell.
const DefaultPrefix = "shellyplus1pm"

var macSuffixRe = regexp.MustCompile(`[A-Fa-f0-9]{12}$`)

// ExtractMac returns the 12 hexadecimal characters ending ssid, uppercased.
func ExtractMac(ssid string) (string, bool) {
	m := macSuffixRe.FindString(ssid)
	if m == "" {
		return "", false
	}
	return strings.ToUpper(m), true
}

type Identity struct {
	mac        string
	MqttPrefix string `json:"mqtt_prefix"`
	DeviceName string `json:"device_name"`
}

// New builds an identity from a MAC in any case, with or without colon
// separators.
func New(mac, prefix, name string) (Identity, error) {
	canonical := strings.ToUpper(strings.ReplaceAll(mac, ":", ""))
	if !macSuffixRe.MatchString(canonical) || len(canonical) != 12 {
		return Identity{}, fmt.Errorf("invalid MAC %q", mac)
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	prefix = strings.ToLower(prefix)
	if name == "" {
		name = "Shelly " + prefix
	}
	return Identity{
		mac:        canonical,
		MqttPrefix: prefix,
		DeviceName: name,
	}, nil
}

// FromSource parses a device source "<prefix>-<MAC>".
func FromSource(src string) (Identity, error) {
	prefix, mac, ok := strings.Cut(src, "-")
	if !ok {
		return Identity{}, fmt.Errorf("unexpected source %q", src)
	}
	return New(mac, prefix, "")
}

// Mac is the canonical uppercase MAC, as stored by the backend.
func (id Identity) Mac() string {
	return id.mac
}

// ClientID is "<prefix>-<lowercase mac>", the device MQTT client id.
func (id Identity) ClientID() string {
	return id.MqttPrefix + "-" + strings.ToLower(id.mac)
}

// TopicPrefix equals the client id.
func (id Identity) TopicPrefix() string {
	return id.ClientID()
}

func (id Identity) IsZero() bool {
	return id.mac == ""
}

func (id Identity) String() string {
	return fmt.Sprintf("%s (%s)", id.DeviceName, id.mac)
}

func (id Identity) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.fields())
}

func (id Identity) MarshalYAML() (any, error) {
	return id.fields(), nil
}

func (id Identity) fields() map[string]string {
	return map[string]string{
		"mac":         id.mac,
		"client_id":   id.ClientID(),
		"mqtt_prefix": id.MqttPrefix,
		"device_name": id.DeviceName,
	}
}
