package shelly

// DeviceInfo is returned by Shelly.GetDeviceInfo.
// <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Shelly#shellygetdeviceinfo>
type DeviceInfo struct {
	Name                  *string `json:"name,omitempty"`
	Id                    string  `json:"id"`
	MacAddress            string  `json:"mac"`
	Model                 string  `json:"model,omitempty"`
	Generation            int     `json:"gen,omitempty"`
	FirmwareId            string  `json:"fw_id,omitempty"`
	Version               string  `json:"ver,omitempty"`
	Application           string  `json:"app,omitempty"`
	Profile               string  `json:"profile,omitempty"`
	AuthenticationEnabled bool    `json:"auth_en,omitempty"`
}

// DisplayName is the user-assigned name, falling back to the application
// (e.g. "Plus1PM") when the device was never named.
func (di *DeviceInfo) DisplayName() string {
	if di.Name != nil && *di.Name != "" {
		return *di.Name
	}
	return di.Application
}
