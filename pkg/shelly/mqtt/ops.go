package mqtt

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

// <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Mqtt>

type Verb string

func (v Verb) String() string {
	return string(v)
}

const (
	SetConfig Verb = "Mqtt.SetConfig"
)

type empty struct{}

func Init(log logr.Logger, r types.MethodsRegistrar) {
	log.V(1).Info("Init", "package", reflect.TypeOf(empty{}).PkgPath())
	r.RegisterMethodHandler(SetConfig.String(), types.MethodHandler{
		Allocate:   func() any { return new(ConfigResults) },
		HttpMethod: http.MethodPost,
		Timeout:    10 * time.Second,
	})
}

func DoSetConfig(ctx context.Context, device types.Device, config Configuration) error {
	_, err := device.CallE(ctx, types.ChannelDefault, SetConfig.String(), &SetConfigRequest{Config: config})
	return err
}
