package system

import (
	"fmt"
	"strings"
)

// Status is the subset of the Sys component status used to identify a
// device. <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Sys#status>
type Status struct {
	Mac          string `json:"mac,omitempty"`
	RestartReq   bool   `json:"restart_required,omitempty"`
	Time         string `json:"time,omitempty"`
	Uptime       uint32 `json:"uptime,omitempty"`
	RamSize      uint32 `json:"ram_size,omitempty"`
	RamFree      uint32 `json:"ram_free,omitempty"`
	FsSize       uint32 `json:"fs_size,omitempty"`
	FsFree       uint32 `json:"fs_free,omitempty"`
	CfgRev       uint32 `json:"cfg_rev,omitempty"`
	AvailableUpd any    `json:"available_updates,omitempty"`
}

// StatusRequest is the JSON-RPC frame posted to Sys.GetStatus.
type StatusRequest struct {
	Id     uint32 `json:"id"`
	Method string `json:"method"`
}

// StatusFrame is the JSON-RPC frame the device answers with. Src is
// "<prefix>-<MAC>", e.g. "shellyplus1pm-A1B2C3D4E5F6".
type StatusFrame struct {
	Id     uint32  `json:"id"`
	Src    string  `json:"src"`
	Result *Status `json:"result,omitempty"`
}

// SplitSource splits a frame source into its model prefix and MAC.
func (f *StatusFrame) SplitSource() (prefix string, mac string, err error) {
	prefix, mac, ok := strings.Cut(f.Src, "-")
	if !ok || prefix == "" || mac == "" {
		return "", "", fmt.Errorf("unexpected source %q", f.Src)
	}
	return prefix, mac, nil
}
