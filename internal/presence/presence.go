// Package presence confirms on the MQTT broker that a provisioned device
// came online: Shelly devices publish a retained "true" on
// <topic_prefix>/online once connected.
package presence

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"
)

const DefaultTimeout = 60 * time.Second

var ErrBroker = errors.New("mqtt broker unavailable")

type Config struct {
	// Server is host:port or a tcp:// URL.
	Server  string
	User    string
	Pass    string
	Timeout time.Duration
}

func (c Config) broker() (*url.URL, error) {
	server := c.Server
	if !strings.Contains(server, "://") {
		server = "tcp://" + server
	}
	u, err := url.Parse(server)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid server %q", ErrBroker, c.Server)
	}
	return u, nil
}

type Watcher struct {
	log logr.Logger
	cfg Config
}

func NewWatcher(log logr.Logger, cfg Config) *Watcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Watcher{log: log.WithName("presence"), cfg: cfg}
}

func (w *Watcher) connect(ctx context.Context) (mqtt.Client, error) {
	broker, err := w.cfg.broker()
	if err != nil {
		return nil, err
	}
	clientId := fmt.Sprintf("ecowatt-onboard-%d", os.Getpid())

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker.String())
	opts.SetClientID(clientId)
	opts.SetUsername(w.cfg.User)
	opts.SetPassword(w.cfg.Pass)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectTimeout(w.cfg.Timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	for !token.WaitTimeout(3 * time.Second) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		w.log.Info("Waiting for MQTT client to connect", "client_id", clientId, "broker", broker.String())
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBroker, err)
	}
	w.log.V(1).Info("Connected MQTT client", "client_id", clientId)
	return client, nil
}

// Online waits until the device using topicPrefix reports online, up to the
// configured timeout. It returns false without error on timeout.
func (w *Watcher) Online(ctx context.Context, topicPrefix string) (bool, error) {
	client, err := w.connect(ctx)
	if err != nil {
		return false, err
	}
	defer client.Disconnect(250)

	topic := topicPrefix + "/online"
	online := make(chan struct{}, 1)
	token := client.Subscribe(topic, 1 /*at-least-once*/, func(_ mqtt.Client, msg mqtt.Message) {
		w.log.V(1).Info("Received", "topic", msg.Topic(), "payload", string(msg.Payload()))
		if strings.TrimSpace(string(msg.Payload())) != "true" {
			return
		}
		select {
		case online <- struct{}{}:
		default:
		}
	})
	if !token.WaitTimeout(w.cfg.Timeout) {
		return false, fmt.Errorf("%w: subscribe to %s timed out", ErrBroker, topic)
	}
	if err := token.Error(); err != nil {
		return false, fmt.Errorf("%w: %w", ErrBroker, err)
	}
	w.log.Info("Waiting for device", "topic", topic, "timeout", w.cfg.Timeout)

	timer := time.NewTimer(w.cfg.Timeout)
	defer timer.Stop()
	select {
	case <-online:
		w.log.Info("Device online", "topic", topic)
		return true, nil
	case <-timer.C:
		w.log.Info("Device did not report online", "topic", topic)
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
