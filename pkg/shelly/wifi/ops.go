package wifi

import (
	"context"
	"net/http"
	"reflect"
	"time"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

type Verb string

func (v Verb) String() string {
	return string(v)
}

const (
	SetConfig Verb = "WiFi.SetConfig"
)

type empty struct{}

func Init(log logr.Logger, r types.MethodsRegistrar) {
	log.V(1).Info("Init", "package", reflect.TypeOf(empty{}).PkgPath())
	r.RegisterMethodHandler(SetConfig.String(), types.MethodHandler{
		Allocate:   func() any { return new(SetConfigResponse) },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
}

func DoSetConfig(ctx context.Context, device types.Device, sta *STA) error {
	_, err := device.CallE(ctx, types.ChannelDefault, SetConfig.String(), &SetConfigRequest{
		Config: Config{STA: sta},
	})
	return err
}
