package shelly

import (
	"context"
	"fmt"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"
)

// Device is a Shelly Gen2 device reached over HTTP at a fixed host, usually
// the device's own access point address.
type Device struct {
	Id_       string `json:"id"`
	Host_     string `json:"host"`
	registrar *Registrar
}

func NewHttpDevice(r *Registrar, host string) *Device {
	return &Device{
		Id_:       host,
		Host_:     host,
		registrar: r,
	}
}

func (d *Device) Id() string {
	return d.Id_
}

func (d *Device) Host() string {
	return d.Host_
}

// Identified records the device id once known so that logs carry it.
func (d *Device) Identified(id string) {
	d.Id_ = id
}

func (d *Device) String() string {
	if d.Id_ == d.Host_ {
		return d.Host_
	}
	return fmt.Sprintf("%s@%s", d.Id_, d.Host_)
}

func (d *Device) CallE(ctx context.Context, via types.Channel, verb string, params any) (any, error) {
	mh, err := d.registrar.MethodHandlerE(verb)
	if err != nil {
		return nil, err
	}
	switch via {
	case types.ChannelDefault, types.ChannelHttp:
		return d.registrar.CallE(ctx, d, mh, params)
	default:
		return nil, fmt.Errorf("unsupported channel %s for %s", via, verb)
	}
}
