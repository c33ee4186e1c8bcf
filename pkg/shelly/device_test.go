package shelly

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ecowatt/shelly-onboard/pkg/shelly/script"
	sh "github.com/ecowatt/shelly-onboard/pkg/shelly/shelly"
	shttp "github.com/ecowatt/shelly-onboard/pkg/shelly/shttp"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/system"
	"github.com/ecowatt/shelly-onboard/pkg/shelly/wifi"

	"github.com/go-logr/logr/testr"
	"github.com/gorilla/mux"
)

type call struct {
	method string
	verb   string
	body   map[string]any
}

func fakeDevice(t *testing.T, calls *[]call, replies map[string]any) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/rpc/{verb}", func(w http.ResponseWriter, req *http.Request) {
		verb := mux.Vars(req)["verb"]
		c := call{method: req.Method, verb: verb}
		if req.Method == http.MethodPost {
			if err := json.NewDecoder(req.Body).Decode(&c.body); err != nil {
				t.Errorf("%s: invalid body: %v", verb, err)
			}
		}
		*calls = append(*calls, c)
		reply, ok := replies[verb]
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(reply)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestDevice(t *testing.T, srv *httptest.Server) *Device {
	r := NewRegistrar(testr.New(t), srv.Client())
	return NewHttpDevice(r, strings.TrimPrefix(srv.URL, "http://"))
}

func TestGetStatusFrame(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Sys.GetStatus": map[string]any{"id": 1, "src": "shellyplus1pm-A1B2C3D4E5F6"},
	})
	d := newTestDevice(t, srv)

	frame, err := system.DoGetStatus(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	prefix, mac, err := frame.SplitSource()
	if err != nil {
		t.Fatal(err)
	}
	if prefix != "shellyplus1pm" || mac != "A1B2C3D4E5F6" {
		t.Errorf("got %q %q", prefix, mac)
	}
	if len(calls) != 1 || calls[0].method != http.MethodPost || calls[0].body["method"] != "Sys.GetStatus" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestDeviceInfoUsesGet(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Shelly.GetDeviceInfo": map[string]any{"id": "shellyplus1pm-a1b2c3d4e5f6", "mac": "A1B2C3D4E5F6", "app": "Plus1PM"},
	})
	d := newTestDevice(t, srv)

	info, err := sh.DoGetDeviceInfo(context.Background(), d)
	if err != nil {
		t.Fatal(err)
	}
	if info.MacAddress != "A1B2C3D4E5F6" || info.DisplayName() != "Plus1PM" {
		t.Errorf("unexpected info %+v", info)
	}
	if calls[0].method != http.MethodGet {
		t.Errorf("method = %s", calls[0].method)
	}
}

func TestNon2xxIsAnError(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{})
	d := newTestDevice(t, srv)

	err := wifi.DoSetConfig(context.Background(), d, wifi.HomeStation("home", "secret"))
	if !shttp.IsStatusError(err) {
		t.Fatalf("expected a status error, got %v", err)
	}
}

func TestWifiSetConfigBody(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{"WiFi.SetConfig": map[string]any{"restart_required": true}})
	d := newTestDevice(t, srv)

	if err := wifi.DoSetConfig(context.Background(), d, wifi.HomeStation("home", "secret")); err != nil {
		t.Fatal(err)
	}
	sta := calls[0].body["config"].(map[string]any)["sta"].(map[string]any)
	if sta["ssid"] != "home" || sta["pass"] != "secret" || sta["enable"] != true || sta["ipv4mode"] != "dhcp" {
		t.Errorf("unexpected sta %v", sta)
	}
}

func TestScriptInstallOrder(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Script.List":      map[string]any{"scripts": []any{map[string]any{"id": 1, "name": "other", "running": true}}},
		"Script.Create":    map[string]any{"id": 3},
		"Script.PutCode":   map[string]any{"len": 42},
		"Script.SetConfig": map[string]any{"restart_required": false},
		"Script.Start":     map[string]any{"was_running": false},
	})
	d := newTestDevice(t, srv)

	id, err := script.Install(context.Background(), testr.New(t), d, "ecowatt_ingest", []byte("let a = 1;"), false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 3 {
		t.Errorf("id = %d", id)
	}
	want := []string{"Script.List", "Script.Create", "Script.PutCode", "Script.SetConfig", "Script.Start"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v", calls)
	}
	for i, v := range want {
		if calls[i].verb != v {
			t.Errorf("call %d = %s, want %s", i, calls[i].verb, v)
		}
		if i > 1 && calls[i].body["id"] != float64(3) {
			t.Errorf("%s id = %v", v, calls[i].body["id"])
		}
	}
	if calls[0].method != http.MethodGet {
		t.Errorf("Script.List method = %s", calls[0].method)
	}
	if calls[2].body["code"] != "let a = 1;" {
		t.Errorf("code = %v", calls[2].body["code"])
	}
	if cfg := calls[3].body["config"].(map[string]any); cfg["enable"] != true {
		t.Errorf("config = %v", cfg)
	}
}

func TestScriptCreateFailureSkipsPutCode(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Script.List":    map[string]any{"scripts": []any{}},
		"Script.PutCode": map[string]any{"len": 42},
	})
	d := newTestDevice(t, srv)

	_, err := script.Install(context.Background(), testr.New(t), d, "ecowatt_ingest", []byte("let a = 1;"), false)
	var se *script.StepError
	if !errors.As(err, &se) || se.Verb != script.Create {
		t.Fatalf("expected a Create step error, got %v", err)
	}
	for _, c := range calls {
		if c.verb == "Script.PutCode" {
			t.Fatal("PutCode issued after a failed Create")
		}
	}
}

func TestScriptCreateWithoutIdUsesFirstSlot(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Script.List":      map[string]any{"scripts": []any{}},
		"Script.Create":    map[string]any{},
		"Script.PutCode":   map[string]any{"len": 1},
		"Script.SetConfig": map[string]any{},
		"Script.Start":     map[string]any{},
	})
	d := newTestDevice(t, srv)

	id, err := script.Install(context.Background(), testr.New(t), d, "x", []byte("1"), false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 1 {
		t.Errorf("id = %d", id)
	}
}

func TestScriptInstallReplacesPreviousSlot(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Script.List": map[string]any{"scripts": []any{
			map[string]any{"id": 1, "name": "ecowatt_ingest", "enable": true, "running": true},
			map[string]any{"id": 2, "name": "other", "enable": true, "running": true},
			map[string]any{"id": 4, "name": "ecowatt_ingest", "enable": false, "running": false},
		}},
		"Script.Stop":      map[string]any{"was_running": true},
		"Script.Delete":    nil,
		"Script.Create":    map[string]any{"id": 5},
		"Script.PutCode":   map[string]any{"len": 10},
		"Script.SetConfig": map[string]any{"restart_required": false},
		"Script.Start":     map[string]any{"was_running": false},
	})
	d := newTestDevice(t, srv)

	id, err := script.Install(context.Background(), testr.New(t), d, "ecowatt_ingest", []byte("let a = 1;"), false)
	if err != nil {
		t.Fatal(err)
	}
	if id != 5 {
		t.Errorf("id = %d", id)
	}
	want := []struct {
		verb string
		id   float64
	}{
		{"Script.List", 0},
		{"Script.Stop", 1},
		{"Script.Delete", 1},
		{"Script.Delete", 4},
		{"Script.Create", 0},
		{"Script.PutCode", 5},
		{"Script.SetConfig", 5},
		{"Script.Start", 5},
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %+v", calls)
	}
	for i, w := range want {
		if calls[i].verb != w.verb {
			t.Errorf("call %d = %s, want %s", i, calls[i].verb, w.verb)
		}
		if w.id != 0 && calls[i].body["id"] != w.id {
			t.Errorf("%s id = %v, want %v", w.verb, calls[i].body["id"], w.id)
		}
	}
}

func TestScriptListFailureSkipsCreate(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, map[string]any{
		"Script.Create": map[string]any{"id": 1},
	})
	d := newTestDevice(t, srv)

	_, err := script.Install(context.Background(), testr.New(t), d, "ecowatt_ingest", []byte("let a = 1;"), false)
	var se *script.StepError
	if !errors.As(err, &se) || se.Verb != script.List {
		t.Fatalf("expected a List step error, got %v", err)
	}
	if len(calls) != 1 {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestUnknownVerb(t *testing.T) {
	var calls []call
	srv := fakeDevice(t, &calls, nil)
	d := newTestDevice(t, srv)
	if _, err := d.CallE(context.Background(), 0, "Switch.Toggle", nil); err == nil {
		t.Error("expected an error for an unregistered verb")
	}
	if len(calls) != 0 {
		t.Errorf("unexpected calls %+v", calls)
	}
}
