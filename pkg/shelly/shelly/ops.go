package shelly

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

// <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Shelly>

type Verb string

func (v Verb) String() string {
	return string(v)
}

const (
	GetDeviceInfo Verb = "Shelly.GetDeviceInfo"
	Reboot        Verb = "Shelly.Reboot"
)

type empty struct{}

func Init(log logr.Logger, r types.MethodsRegistrar) {
	log.V(1).Info("Init", "package", reflect.TypeOf(empty{}).PkgPath())
	r.RegisterMethodHandler(GetDeviceInfo.String(), types.MethodHandler{
		Allocate:   func() any { return new(DeviceInfo) },
		HttpMethod: http.MethodGet,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(Reboot.String(), types.MethodHandler{
		Allocate:   nil, // The reboot severs the connection before any answer is complete
		HttpMethod: http.MethodPost,
		Timeout:    3 * time.Second,
	})
}

func DoGetDeviceInfo(ctx context.Context, device types.Device) (*DeviceInfo, error) {
	out, err := device.CallE(ctx, types.ChannelDefault, GetDeviceInfo.String(), nil)
	if err != nil {
		return nil, err
	}
	info, ok := out.(*DeviceInfo)
	if !ok || info == nil {
		return nil, fmt.Errorf("invalid response to %s (got %v)", GetDeviceInfo, reflect.TypeOf(out))
	}
	return info, nil
}

func DoReboot(ctx context.Context, device types.Device) error {
	_, err := device.CallE(ctx, types.ChannelDefault, Reboot.String(), struct{}{})
	return err
}
