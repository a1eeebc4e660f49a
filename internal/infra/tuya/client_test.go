package tuya_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"askhome/internal/infra"
	"askhome/internal/infra/tuya"
)

type fakeTuya struct {
	mu            sync.Mutex
	devices       []map[string]any
	status        map[string][]map[string]any
	commands      map[string][][]tuya.Command
	tokens        int
	rejectTokenOn int
	offline       map[string]bool
}

func newFakeTuya() *fakeTuya {
	return &fakeTuya{
		status:   make(map[string][]map[string]any),
		commands: make(map[string][][]tuya.Command),
		offline:  make(map[string]bool),
	}
}

func (f *fakeTuya) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1.0/token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("sign") == "" || r.Header.Get("client_id") != "client-id" {
			t.Errorf("token request not signed: %v", r.Header)
		}
		f.mu.Lock()
		f.tokens++
		f.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result": map[string]any{
				"access_token": "test-token",
				"expire_time":  7200,
				"uid":          "test-uid",
			},
		})
	})
	mux.HandleFunc("GET /v1.0/iot-01/associated-users/devices", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  map[string]any{"devices": f.devices},
		})
	})
	mux.HandleFunc("GET /v1.0/iot-03/devices/{id}/status", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"result":  f.status[r.PathValue("id")],
		})
	})
	mux.HandleFunc("POST /v1.0/iot-03/devices/{id}/commands", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("access_token") != "test-token" {
			t.Errorf("access token: got %q", r.Header.Get("access_token"))
		}
		id := r.PathValue("id")

		f.mu.Lock()
		defer f.mu.Unlock()
		if f.rejectTokenOn > 0 {
			f.rejectTokenOn--
			json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 1010, "msg": "token invalid"})
			return
		}
		if f.offline[id] {
			json.NewEncoder(w).Encode(map[string]any{"success": false, "code": 2001, "msg": "device is offline"})
			return
		}

		var body struct {
			Commands []tuya.Command `json:"commands"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decoding commands: %v", err)
		}
		f.commands[id] = append(f.commands[id], body.Commands)
		json.NewEncoder(w).Encode(map[string]any{"success": true, "result": true})
	})
	return mux
}

func (f *fakeTuya) sent(id string) [][]tuya.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[id]
}

func (f *fakeTuya) tokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokens
}

func newClient(t *testing.T, fake *fakeTuya) *tuya.Client {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	return tuya.NewClientWithURL("client-id", "secret", server.URL).WithRetry(infra.RetryConfig{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
		Multiplier:   1,
	})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_GetDevices(t *testing.T) {
	fake := newFakeTuya()
	fake.devices = []map[string]any{
		{"id": "dev1", "name": "Living Light", "category": "dj", "online": true},
		{"id": "dev2", "name": "Kitchen Plug", "category": "cz", "online": false},
	}
	client := newClient(t, fake)

	devices, err := client.GetDevices(context.Background())
	if err != nil {
		t.Fatalf("GetDevices error: %v", err)
	}

	if len(devices) != 2 {
		t.Fatalf("devices count: got %d, want 2", len(devices))
	}
	if devices[0].Name != "Living Light" || devices[0].Category != "dj" || !devices[0].Online {
		t.Errorf("device: got %+v", devices[0])
	}
	if devices[1].Online {
		t.Errorf("device dev2 should be offline")
	}
}

func TestClient_SendCommands(t *testing.T) {
	fake := newFakeTuya()
	client := newClient(t, fake)

	err := client.SendCommands(context.Background(), "dev1", []tuya.Command{{Code: "switch_led", Value: true}})
	if err != nil {
		t.Fatalf("SendCommands error: %v", err)
	}

	sent := fake.sent("dev1")
	if len(sent) != 1 || sent[0][0].Code != "switch_led" || sent[0][0].Value != true {
		t.Errorf("commands: got %+v", sent)
	}

	// The token is cached between calls.
	if err := client.SendCommands(context.Background(), "dev1", nil); err != nil {
		t.Fatalf("SendCommands error: %v", err)
	}
	if got := fake.tokenCount(); got != 1 {
		t.Errorf("token requests: got %d, want 1", got)
	}
}

func TestClient_RefreshesRejectedToken(t *testing.T) {
	fake := newFakeTuya()
	fake.rejectTokenOn = 1
	client := newClient(t, fake)

	if err := client.SendCommands(context.Background(), "dev1", []tuya.Command{{Code: "switch_led", Value: false}}); err != nil {
		t.Fatalf("SendCommands error: %v", err)
	}
	if got := fake.tokenCount(); got != 2 {
		t.Errorf("token requests: got %d, want 2", got)
	}
	if len(fake.sent("dev1")) != 1 {
		t.Errorf("commands: got %+v", fake.sent("dev1"))
	}
}

func TestClient_DeviceOffline(t *testing.T) {
	fake := newFakeTuya()
	fake.offline["dev1"] = true
	client := newClient(t, fake)

	err := client.SendCommands(context.Background(), "dev1", []tuya.Command{{Code: "switch_led", Value: true}})
	if !errors.Is(err, tuya.ErrDeviceOffline) {
		t.Errorf("error: got %v, want ErrDeviceOffline", err)
	}

	var apiErr *tuya.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != 2001 {
		t.Errorf("api error: got %v", err)
	}
}

func TestClient_Status(t *testing.T) {
	fake := newFakeTuya()
	fake.status["dev1"] = []map[string]any{
		{"code": "switch_led", "value": true},
		{"code": "bright_value_v2", "value": 500},
	}
	client := newClient(t, fake)

	status, err := client.Status(context.Background(), "dev1")
	if err != nil {
		t.Fatalf("Status error: %v", err)
	}
	if status["switch_led"] != true || status["bright_value_v2"] != 500.0 {
		t.Errorf("status: got %v", status)
	}
}

func TestClient_Unreachable(t *testing.T) {
	client := tuya.NewClientWithURL("client-id", "secret", "http://127.0.0.1:1").WithRetry(infra.RetryConfig{MaxAttempts: 1})

	err := client.Ping(context.Background())
	if !errors.Is(err, tuya.ErrUnreachable) {
		t.Errorf("error: got %v, want ErrUnreachable", err)
	}
}
