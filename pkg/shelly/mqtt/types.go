package mqtt

// The configuration of the MQTT component contains information about the credentials and prefix used and the protection and notifications settings of the MQTT connection.
type Configuration struct {
	Enable        bool   `json:"enable"`                 // True if MQTT connection is enabled, false otherwise
	Server        string `json:"server,omitempty"`       // Host name of the MQTT server. Can be followed by port number - host:port
	ClientId      string `json:"client_id,omitempty"`    // Identifies each MQTT client that connects to an MQTT brokers (when null, Device id is used as client_id)
	User          string `json:"user,omitempty"`         // Username
	Pass          string `json:"pass,omitempty"`         // Password, write-only
	TopicPrefix   string `json:"topic_prefix,omitempty"` // Prefix of the topics on which device publish/subscribe. Could not start with $ and #, +, %, ? are not allowed.
	RpcNotifs     bool   `json:"rpc_ntf"`                // Enables RPC notifications (NotifyStatus and NotifyEvent) to be published on <topic_prefix>/events/rpc
	StatusNotifs  bool   `json:"status_ntf"`             // Enables publishing the complete component status on <topic_prefix>/status/<component>:<id>
	EnableRpc     bool   `json:"enable_rpc"`             // Enable RPC over MQTT on <topic_prefix>/rpc
	EnableControl bool   `json:"enable_control"`         // Enable the MQTT control feature
}

type SetConfigRequest struct {
	Config Configuration `json:"config"`
}

type ConfigResults struct {
	RestartRequired bool `json:"restart_required"`
}
