package presence

import (
	"context"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/testr"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/require"
)

const prefix = "shellyplus1pm-a1b2c3d4e5f6"

func freeAddress(t *testing.T) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func newBroker(t *testing.T) (*mochi.Server, string) {
	log := testr.New(t)
	server := mochi.New(&mochi.Options{
		InlineClient: true,
		Logger:       slog.New(logr.ToSlogHandler(log)),
	})
	require.NoError(t, server.AddHook(new(auth.AllowHook), nil))

	addr := freeAddress(t)
	require.NoError(t, server.AddListener(listeners.NewTCP(listeners.Config{ID: "tcp", Address: addr})))
	require.NoError(t, server.Serve())
	t.Cleanup(func() { _ = server.Close() })
	return server, addr
}

func TestRetainedOnline(t *testing.T) {
	server, addr := newBroker(t)
	require.NoError(t, server.Publish(prefix+"/online", []byte("true"), true, 1))

	w := NewWatcher(testr.New(t), Config{Server: addr, Timeout: 5 * time.Second})
	online, err := w.Online(context.Background(), prefix)
	require.NoError(t, err)
	require.True(t, online)
}

func TestOnlineAfterOffline(t *testing.T) {
	server, addr := newBroker(t)
	require.NoError(t, server.Publish(prefix+"/online", []byte("false"), true, 1))

	go func() {
		time.Sleep(200 * time.Millisecond)
		_ = server.Publish(prefix+"/online", []byte("true"), true, 1)
	}()

	w := NewWatcher(testr.New(t), Config{Server: "tcp://" + addr, Timeout: 5 * time.Second})
	online, err := w.Online(context.Background(), prefix)
	require.NoError(t, err)
	require.True(t, online)
}

func TestNeverOnline(t *testing.T) {
	server, addr := newBroker(t)
	require.NoError(t, server.Publish("shellyplus1pm-000000000000/online", []byte("true"), true, 1))

	w := NewWatcher(testr.New(t), Config{Server: addr, Timeout: 300 * time.Millisecond})
	online, err := w.Online(context.Background(), prefix)
	require.NoError(t, err)
	require.False(t, online)
}

func TestCanceled(t *testing.T) {
	_, addr := newBroker(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	w := NewWatcher(testr.New(t), Config{Server: addr, Timeout: 10 * time.Second})
	online, err := w.Online(ctx, prefix)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, online)
}

func TestBrokerUnavailable(t *testing.T) {
	w := NewWatcher(testr.New(t), Config{Server: freeAddress(t), Timeout: time.Second})
	_, err := w.Online(context.Background(), prefix)
	require.ErrorIs(t, err, ErrBroker)

	_, err = NewWatcher(testr.New(t), Config{Server: "tcp://"}).Online(context.Background(), prefix)
	require.ErrorIs(t, err, ErrBroker)
}
