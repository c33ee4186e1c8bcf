// Package backend is the client of the EcoWatt REST API used during
// onboarding: the device list, the device registration and the device
// power control.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ecowatt/shelly-onboard/internal/identity"
	"github.com/ecowatt/shelly-onboard/internal/retry"

	"github.com/go-logr/logr"
)

// Device is a device record as returned by the backend.
type Device struct {
	Id         int64  `json:"dev_id" yaml:"dev_id"`
	UserId     int64  `json:"dev_user_id,omitempty" yaml:"dev_user_id,omitempty"`
	HardwareId string `json:"dev_hardware_id" yaml:"dev_hardware_id"`
	Name       string `json:"dev_name" yaml:"dev_name"`
	Status     bool   `json:"dev_status" yaml:"dev_status"`
	Brand      string `json:"dev_brand,omitempty" yaml:"dev_brand,omitempty"`
	Model      string `json:"dev_model,omitempty" yaml:"dev_model,omitempty"`
	MqttPrefix string `json:"dev_mqtt_prefix,omitempty" yaml:"dev_mqtt_prefix,omitempty"`
}

type registerRequest struct {
	HardwareId string `json:"dev_hardware_id"`
	Name       string `json:"dev_name"`
	MqttPrefix string `json:"dev_mqtt_prefix"`
}

type setStateRequest struct {
	State bool `json:"state"`
}

// OffPolicy drives EnsureOff: 8 attempts, 2s before the first, 3s between
// the others.
var OffPolicy = retry.Policy{Attempts: 8, Lead: 2 * time.Second, Delay: 3 * time.Second}

type Client struct {
	log       logr.Logger
	base      *url.URL
	token     string
	client    *http.Client
	OffPolicy retry.Policy
}

func NewClient(log logr.Logger, baseURL string, token string, httpClient *http.Client) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend url %q: %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid backend url %q", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		log:       log.WithName("backend"),
		base:      base,
		token:     token,
		client:    httpClient,
		OffPolicy: OffPolicy,
	}, nil
}

func (c *Client) endpoint(path string) string {
	return c.base.String() + path
}

// do sends one request. A non-2xx answer is returned as an *APIError
// matching kinds, and out is decoded from a 2xx answer when not nil.
func (c *Client) do(ctx context.Context, op string, method string, path string, in any, out any, kinds func(status int) []error) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.V(1).Info("Calling", "op", op, "method", method, "url", req.URL.String())
	res, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer res.Body.Close()

	buf, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", op, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		var k []error
		if kinds != nil {
			k = kinds(res.StatusCode)
		}
		return newAPIError(op, res.StatusCode, buf, k...)
	}
	if out == nil || len(bytes.TrimSpace(buf)) == 0 {
		return nil
	}
	if err := json.Unmarshal(buf, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	devices := make([]Device, 0)
	err := c.do(ctx, "list devices", http.MethodGet, "/api/v1/devices/", nil, &devices, nil)
	if err != nil {
		return nil, err
	}
	return devices, nil
}

// RegisteredMacs returns the uppercase hardware ids of the user's devices.
func (c *Client) RegisteredMacs(ctx context.Context) (map[string]struct{}, error) {
	devices, err := c.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	macs := make(map[string]struct{}, len(devices))
	for _, d := range devices {
		macs[strings.ToUpper(d.HardwareId)] = struct{}{}
	}
	return macs, nil
}

func registrationKinds(status int) []error {
	switch status {
	case http.StatusConflict:
		return []error{ErrConflict}
	case http.StatusUnprocessableEntity:
		return []error{ErrValidation}
	default:
		return []error{ErrRegistration}
	}
}

// Register creates the device record. It is never retried: a 409 means the
// device belongs to an account already.
func (c *Client) Register(ctx context.Context, id identity.Identity) (*Device, error) {
	var d Device
	err := c.do(ctx, "register device", http.MethodPost, "/api/v1/devices/", &registerRequest{
		HardwareId: id.Mac(),
		Name:       id.DeviceName,
		MqttPrefix: id.MqttPrefix,
	}, &d, registrationKinds)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrRegistration, err)
	}
	c.log.Info("Registered device", "dev_id", d.Id, "mac", id.Mac())
	return &d, nil
}

func (c *Client) SetState(ctx context.Context, deviceId int64, on bool) error {
	path := "/api/v1/control/" + strconv.FormatInt(deviceId, 10) + "/set"
	return c.do(ctx, "set state", http.MethodPost, path, &setStateRequest{State: on}, nil, nil)
}

// EnsureOff switches the device output off, retrying under OffPolicy while
// the device comes online. It returns the last error once exhausted.
func (c *Client) EnsureOff(ctx context.Context, deviceId int64) error {
	ctx = logr.NewContext(ctx, c.log.WithValues("dev_id", deviceId))
	_, err := retry.Do(ctx, c.OffPolicy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.SetState(ctx, deviceId, false)
	})
	if err != nil {
		return err
	}
	c.log.Info("Device switched off", "dev_id", deviceId)
	return nil
}
