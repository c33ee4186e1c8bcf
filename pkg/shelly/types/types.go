package types

import (
	"context"
	"time"
)

type MethodsRegistrar interface {
	RegisterMethodHandler(verb string, mh MethodHandler)
}

// Device is a Shelly Gen2 device reachable over its local RPC endpoint.
type Device interface {
	Id() string
	Host() string
	CallE(ctx context.Context, via Channel, verb string, params any) (any, error)
}

type DeviceCaller func(ctx context.Context, device Device, mh MethodHandler, out any, params any) (any, error)

type Channel uint

const (
	ChannelDefault Channel = iota
	ChannelHttp
)

var Channels = [...]string{"Default", "Http"}

func (ch Channel) String() string {
	return Channels[ch]
}

type MethodHandler struct {
	Method     string        `json:"method"`            // The method name
	Allocate   func() any    `json:"-"`                 // Allocate a new instance of the output type (nil: discard the response)
	HttpMethod string        `json:"http_method"`       // The HTTP request method to use (See https://developer.mozilla.org/en-US/docs/Web/HTTP/Methods)
	Timeout    time.Duration `json:"timeout,omitempty"` // Per-call deadline, 0 means the caller's context only
}

var MethodNotFound = MethodHandler{}
