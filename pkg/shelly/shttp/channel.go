package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/types"

	"github.com/go-logr/logr"
)

// <https://shelly-api-docs.shelly.cloud/gen2/General/RPCChannels#http>

// StatusError is returned when the device answers with a non-2xx status.
type StatusError struct {
	Method string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Method, e.Code)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Method, e.Code, e.Body)
}

func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

type Channel struct {
	log    logr.Logger
	client *http.Client
}

func NewChannel(log logr.Logger, client *http.Client) *Channel {
	if client == nil {
		client = http.DefaultClient
	}
	return &Channel{
		log:    log.WithName("shttp"),
		client: client,
	}
}

// CallE issues one RPC against the device. The handler timeout, when set,
// bounds the whole exchange including the body decode.
func (ch *Channel) CallE(ctx context.Context, device types.Device, mh types.MethodHandler, out any, params any) (any, error) {
	if mh.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, mh.Timeout)
		defer cancel()
	}

	var req *http.Request
	var err error
	switch mh.HttpMethod {
	case http.MethodGet:
		req, err = ch.getRequest(ctx, device.Host(), mh.Method, params)
	default:
		req, err = ch.postRequest(ctx, device.Host(), mh.Method, params)
	}
	if err != nil {
		return nil, err
	}

	ch.log.V(1).Info("Calling", "method", req.Method, "url", req.URL.String(), "timeout", mh.Timeout)
	res, err := ch.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", mh.Method, err)
	}
	defer res.Body.Close()
	ch.log.V(1).Info("status code", "method", mh.Method, "code", res.StatusCode)

	if res.StatusCode < 200 || res.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, &StatusError{Method: mh.Method, Code: res.StatusCode, Body: string(bytes.TrimSpace(body))}
	}

	if out == nil {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, res.Body)
		return nil, nil
	}

	err = json.NewDecoder(res.Body).Decode(out)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decoding response: %w", mh.Method, err)
	}
	return out, nil
}

func (ch *Channel) getRequest(ctx context.Context, host string, cmd string, params any) (*http.Request, error) {
	qs := ""
	if params != nil {
		qp, ok := params.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s support query parameters only (got %v)", http.MethodGet, reflect.TypeOf(params))
		}
		values := url.Values{}
		for key, value := range qp {
			s, err := json.Marshal(value)
			if err == nil {
				values.Add(key, string(s))
			}
		}
		qs = fmt.Sprintf("?%s", values.Encode())
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/rpc/%s%s", host, cmd, qs), nil)
}

func (ch *Channel) postRequest(ctx context.Context, host string, cmd string, params any) (*http.Request, error) {
	jsonData := []byte("{}")
	if params != nil {
		var err error
		jsonData, err = json.Marshal(params)
		if err != nil {
			return nil, err
		}
	}

	ch.log.V(1).Info("Preparing", "url", fmt.Sprintf("http://%s/rpc/%s", host, cmd), "body_len", len(jsonData))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("http://%s/rpc/%s", host, cmd), bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", "application/json")
	return req, nil
}
