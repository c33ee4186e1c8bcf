package shelly

import (
	"context"
	"fmt"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

// Registrar maps RPC verbs to their handlers and routes calls to the
// channel that reaches the device.
type Registrar struct {
	log     logr.Logger
	methods map[string]types.MethodHandler
	caller  types.DeviceCaller
}

func (r *Registrar) init(log logr.Logger) {
	r.log = log
	r.methods = make(map[string]types.MethodHandler)
	r.caller = discardDeviceCaller
}

func discardDeviceCaller(ctx context.Context, device types.Device, mh types.MethodHandler, out any, params any) (any, error) {
	return nil, fmt.Errorf("no channel registered to reach device %s (%s)", device.Id(), device.Host())
}

func (r *Registrar) MethodHandlerE(m string) (types.MethodHandler, error) {
	mh, ok := r.methods[m]
	if !ok {
		return types.MethodNotFound, fmt.Errorf("method not found in registrar: %s", m)
	}
	return mh, nil
}

func (r *Registrar) RegisterMethodHandler(verb string, mh types.MethodHandler) {
	if _, exists := r.methods[verb]; exists {
		panic(fmt.Errorf("method %s already registered", verb))
	}
	mh.Method = verb
	r.methods[verb] = mh
}

func (r *Registrar) RegisterDeviceCaller(dc types.DeviceCaller) {
	r.caller = dc
}

func (r *Registrar) CallE(ctx context.Context, d types.Device, mh types.MethodHandler, params any) (any, error) {
	var out any
	if mh.Allocate != nil {
		out = mh.Allocate()
	}
	r.log.V(1).Info("Calling", "device", d.Host(), "method", mh.Method, "params", params)
	return r.caller(ctx, d, mh, out, params)
}
