package shelly

import (
	"net/http"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/mqtt"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/script"
	sh "github.com/ecowatt/shelly-onboard/pkg/shelly/shelly"
	shttp "github.com/ecowatt/shelly-onboard/pkg/shelly/shttp"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/system"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/wifi"

	"github.com/go-logr/logr"
)

// NewRegistrar returns a registrar knowing the verbs needed to onboard a
// device, with calls routed over HTTP using client.
func NewRegistrar(log logr.Logger, client *http.Client) *Registrar {
	r := &Registrar{}
	r.init(log.WithName("shelly"))

	system.Init(log, r)
	sh.Init(log, r)
	mqtt.Init(log, r)
	script.Init(log, r)
	wifi.Init(log, r)

	r.RegisterDeviceCaller(shttp.NewChannel(log, client).CallE)
	return r
}
