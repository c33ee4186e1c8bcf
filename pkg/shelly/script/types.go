package script

// https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Script

type Id struct {
	Id uint32 `json:"id"` // Id of the script
}

type Status struct {
	Id
	Name    string `json:"name,omitempty"` // Name of the script
	Enable  bool   `json:"enable"`         // true if the script runs by default on boot
	Running bool   `json:"running"`        // true if the script is currently running
}

type ListResponse struct {
	Scripts []Status `json:"scripts"` // Scripts stored on the device
}

type CreateRequest struct {
	Name string `json:"name"` // Name of the script
}

type ConfigurationRequest struct {
	Id
	Configuration Configuration `json:"config"` // Configuration of the script
}

type Configuration struct {
	Name   string `json:"name,omitempty"` // Name of the script
	Enable bool   `json:"enable"`         // true if the script runs by default on boot, false otherwise
}

type FormerStatus struct {
	WasRunning bool `json:"was_running"` // true if the script was running before the operation, false otherwise
}

type PutCodeRequest struct {
	Id
	Code   string `json:"code"`             // The code which will be included in the script (the length must be greater than 0). Required
	Append bool   `json:"append,omitempty"` // true to append the code, false otherwise. If set to false, the existing code will be overwritten. Default value: false. Optional
}

type PutCodeResponse struct {
	Length uint `json:"len"` // The total code length in bytes
}

type ConfigResults struct {
	RestartRequired bool `json:"restart_required"`
}
