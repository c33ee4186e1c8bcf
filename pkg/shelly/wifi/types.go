package wifi

// <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/WiFi>

type Ipv4Mode string

const (
	Dhcp   Ipv4Mode = "dhcp"
	Static Ipv4Mode = "static"
)

// STA contains information about the station (client) configuration.
type STA struct {
	Enable   bool     `json:"enable"`             // Set to true to enable the station (client) configuration
	SSID     string   `json:"ssid"`               // SSID of the network
	Password *string  `json:"pass,omitempty"`     // Password for the SSID
	IsOpen   bool     `json:"is_open,omitempty"`  // Set to true to use open network (password is ignored)
	Ipv4Mode Ipv4Mode `json:"ipv4mode,omitempty"` // IPv4 mode, dhcp or static
}

// Config represents the WiFi configuration for the device.
type Config struct {
	STA *STA `json:"sta,omitempty"` // Station configuration
}

type SetConfigRequest struct {
	Config Config `json:"config"`
}

type SetConfigResponse struct {
	RestartRequired bool `json:"restart_required"`
}

// HomeStation is the station configuration joining ssid over DHCP. An
// empty password configures an open network.
func HomeStation(ssid, password string) *STA {
	sta := &STA{
		Enable:   true,
		SSID:     ssid,
		Ipv4Mode: Dhcp,
	}
	if password == "" {
		sta.IsOpen = true
	} else {
		sta.Password = &password
	}
	return sta
}
