package script

import (
	"context"
	"fmt"
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
	Create    Verb = "Script.Create"
	PutCode   Verb = "Script.PutCode"
	SetConfig Verb = "Script.SetConfig"
	Start     Verb = "Script.Start"
	Stop      Verb = "Script.Stop"
	List      Verb = "Script.List"
	Delete    Verb = "Script.Delete"
)

type empty struct{}

func Init(log logr.Logger, r types.MethodsRegistrar) {
	log.V(1).Info("Init", "package", reflect.TypeOf(empty{}).PkgPath())
	r.RegisterMethodHandler(Create.String(), types.MethodHandler{
		Allocate:   func() any { return new(Id) },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(PutCode.String(), types.MethodHandler{
		Allocate:   func() any { return new(PutCodeResponse) },
		HttpMethod: http.MethodPost,
		Timeout:    8 * time.Second,
	})
	r.RegisterMethodHandler(SetConfig.String(), types.MethodHandler{
		Allocate:   func() any { return new(ConfigResults) },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(Start.String(), types.MethodHandler{
		Allocate:   func() any { return new(FormerStatus) },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(Stop.String(), types.MethodHandler{
		Allocate:   func() any { return new(FormerStatus) },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(List.String(), types.MethodHandler{
		Allocate:   func() any { return new(ListResponse) },
		HttpMethod: http.MethodGet,
		Timeout:    5 * time.Second,
	})
	r.RegisterMethodHandler(Delete.String(), types.MethodHandler{
		Allocate:   func() any { return nil },
		HttpMethod: http.MethodPost,
		Timeout:    5 * time.Second,
	})
}

func DoList(ctx context.Context, device types.Device) ([]Status, error) {
	out, err := device.CallE(ctx, types.ChannelDefault, List.String(), nil)
	if err != nil {
		return nil, err
	}
	res, ok := out.(*ListResponse)
	if !ok {
		return nil, fmt.Errorf("unexpected format '%v' (failed to cast response)", reflect.TypeOf(out))
	}
	return res.Scripts, nil
}

func DoStop(ctx context.Context, device types.Device, id uint32) error {
	_, err := device.CallE(ctx, types.ChannelDefault, Stop.String(), &Id{Id: id})
	return err
}

func DoDelete(ctx context.Context, device types.Device, id uint32) error {
	_, err := device.CallE(ctx, types.ChannelDefault, Delete.String(), &Id{Id: id})
	return err
}

// DoCreate creates an empty script slot. Slot ids start at 1: an answer
// without id designates the first slot.
func DoCreate(ctx context.Context, device types.Device, name string) (uint32, error) {
	out, err := device.CallE(ctx, types.ChannelDefault, Create.String(), &CreateRequest{Name: name})
	if err != nil {
		return 0, err
	}
	res, ok := out.(*Id)
	if !ok {
		return 0, fmt.Errorf("unexpected format '%v' (failed to cast response)", reflect.TypeOf(out))
	}
	if res.Id == 0 {
		return 1, nil
	}
	return res.Id, nil
}

func DoPutCode(ctx context.Context, device types.Device, id uint32, code string) (uint, error) {
	out, err := device.CallE(ctx, types.ChannelDefault, PutCode.String(), &PutCodeRequest{
		Id:   Id{Id: id},
		Code: code,
	})
	if err != nil {
		return 0, err
	}
	res, ok := out.(*PutCodeResponse)
	if !ok {
		return 0, fmt.Errorf("unexpected format '%v' (failed to cast response)", reflect.TypeOf(out))
	}
	return res.Length, nil
}

// DoEnable makes the script start with the device.
func DoEnable(ctx context.Context, device types.Device, id uint32) error {
	_, err := device.CallE(ctx, types.ChannelDefault, SetConfig.String(), &ConfigurationRequest{
		Id:            Id{Id: id},
		Configuration: Configuration{Enable: true},
	})
	return err
}

func DoStart(ctx context.Context, device types.Device, id uint32) error {
	_, err := device.CallE(ctx, types.ChannelDefault, Start.String(), &Id{Id: id})
	return err
}
