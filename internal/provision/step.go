package provision

type Step uint

const (
	Idle Step = iota
	RequestingPermissions
	ScanningWifi
	DeviceList
	Connecting
	Configuring
	Success
	Error
)

var steps = [...]string{
	"idle",
	"requestingPermissions",
	"scanningWifi",
	"deviceList",
	"connecting",
	"configuring",
	"success",
	"error",
}

func (s Step) String() string {
	if int(s) < len(steps) {
		return steps[s]
	}
	return "unknown"
}

func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal steps end an attempt: only a restart leaves them.
func (s Step) Terminal() bool {
	return s == Success || s == Error
}

// Progress returns the label and completion percentage shown for s.
func (s Step) Progress() (string, int) {
	switch s {
	case ScanningWifi:
		return "1. Searching", 20
	case DeviceList:
		return "2. Selection", 40
	case Connecting:
		return "3. Connecting", 60
	case Configuring:
		return "4. Configuring", 80
	case Success:
		return "Done!", 100
	default:
		return "", 0
	}
}
