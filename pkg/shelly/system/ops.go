package system

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"time"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

type empty struct{}

// <https://shelly-api-docs.shelly.cloud/gen2/ComponentsAndServices/Sys>

type Verb string

func (v Verb) String() string {
	return string(v)
}

const (
	GetStatus Verb = "Sys.GetStatus"
)

func Init(log logr.Logger, r types.MethodsRegistrar) {
	log.V(1).Info("Init", "package", reflect.TypeOf(empty{}).PkgPath())
	r.RegisterMethodHandler(GetStatus.String(), types.MethodHandler{
		Allocate:   func() any { return &StatusFrame{} },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
}

func DoGetStatus(ctx context.Context, device types.Device) (*StatusFrame, error) {
	out, err := device.CallE(ctx, types.ChannelDefault, GetStatus.String(), &StatusRequest{
		Id:     1,
		Method: GetStatus.String(),
	})
	if err != nil {
		return nil, err
	}
	frame, ok := out.(*StatusFrame)
	if !ok || frame == nil {
		return nil, fmt.Errorf("invalid response to %s (got %v)", GetStatus, reflect.TypeOf(out))
	}
	return frame, nil
}
