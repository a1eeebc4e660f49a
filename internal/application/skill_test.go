package application_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"askhome/internal/alexa"
	"askhome/internal/application"
	"askhome/internal/infra/store"
	"askhome/internal/smarthome"
)

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) Notify(_ context.Context, message string) error {
	r.messages = append(r.messages, message)
	return nil
}

type mockHealth struct {
	err error
}

func (m *mockHealth) Ping(_ context.Context) error { return m.err }

type fixture struct {
	skill    *application.Skill
	notifier *recordingNotifier
	turnOns  int
}

func newFixture(t *testing.T, health application.HealthChecker) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{notifier: &recordingNotifier{}}

	registry := smarthome.NewRegistry(map[string]any{"manufacturer": "askhome"}, logger)

	lamp := smarthome.NewDevice(map[string]any{"name": "Lamp"}).
		Handle("turnOn", func(_ context.Context, req alexa.Request) (alexa.Envelope, error) {
			f.turnOns++
			return req.RawResponse(nil, nil), nil
		}).
		Handle("turnOff", func(_ context.Context, _ alexa.Request) (alexa.Envelope, error) {
			return alexa.Envelope{}, errors.New("relay stuck")
		})

	lock := smarthome.NewDevice(map[string]any{"name": "Front door"}).
		Handle("getLockState", func(_ context.Context, req alexa.Request) (alexa.Envelope, error) {
			return req.(*alexa.LockStateRequest).Response("LOCKED", alexa.Timestamp{}), nil
		}).
		Handle("setLockState", func(_ context.Context, _ alexa.Request) (alexa.Envelope, error) {
			return alexa.Envelope{}, alexa.NewTargetOfflineError()
		})

	if err := registry.Add("lamp-1", lamp, nil); err != nil {
		t.Fatalf("adding lamp: %v", err)
	}
	if err := registry.Add("lock-1", lock, map[string]any{"description": "Smart lock"}); err != nil {
		t.Fatalf("adding lock: %v", err)
	}

	f.skill = application.NewSkill(registry, store.NewMemoryStore(), health, f.notifier, logger, time.Minute)
	return f
}

func handle(t *testing.T, skill *application.Skill, env alexa.Envelope) alexa.Envelope {
	t.Helper()
	raw, err := env.Marshal()
	if err != nil {
		t.Fatalf("encoding directive: %v", err)
	}
	body, err := skill.Handle(context.Background(), raw, nil)
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	resp, err := alexa.Parse(body)
	if err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return resp
}

func target(id string) map[string]any {
	return map[string]any{
		"accessToken": "token",
		"appliance":   map[string]any{"applianceId": id, "additionalApplianceDetails": map[string]any{}},
	}
}

func TestSkill_Discovery(t *testing.T) {
	f := newFixture(t, nil)

	resp := handle(t, f.skill, alexa.NewDirective(alexa.DiscoveryNamespace, "DiscoverAppliancesRequest", map[string]any{"accessToken": "token"}))
	if resp.Header.Name() != "DiscoverAppliancesResponse" {
		t.Errorf("name: got %s", resp.Header.Name())
	}

	raw, _ := json.Marshal(resp.Payload["discoveredAppliances"])
	var discovered []struct {
		ApplianceID         string   `json:"applianceId"`
		ManufacturerName    string   `json:"manufacturerName"`
		FriendlyName        string   `json:"friendlyName"`
		FriendlyDescription string   `json:"friendlyDescription"`
		IsReachable         bool     `json:"isReachable"`
		Actions             []string `json:"actions"`
	}
	if err := json.Unmarshal(raw, &discovered); err != nil {
		t.Fatalf("decoding appliances: %v", err)
	}

	if len(discovered) != 2 {
		t.Fatalf("appliances: got %d, want 2", len(discovered))
	}
	lock := discovered[1]
	if lock.ApplianceID != "lock-1" || lock.ManufacturerName != "askhome" || lock.FriendlyName != "Front door" ||
		lock.FriendlyDescription != "Smart lock" || !lock.IsReachable {
		t.Errorf("lock: got %+v", lock)
	}
	if len(lock.Actions) != 2 || lock.Actions[0] != "getLockState" {
		t.Errorf("actions: got %v", lock.Actions)
	}
}

func TestSkill_HealthCheck(t *testing.T) {
	tests := []struct {
		name    string
		health  application.HealthChecker
		healthy bool
	}{
		{"no checker", nil, true},
		{"backend up", &mockHealth{}, true},
		{"backend down", &mockHealth{err: errors.New("connection refused")}, false},
		{"all backends up", application.HealthChecks{&mockHealth{}, &mockHealth{}}, true},
		{"one backend down", application.HealthChecks{&mockHealth{}, &mockHealth{err: errors.New("token rejected")}}, false},
		{"no backends", application.HealthChecks{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.health)
			resp := handle(t, f.skill, alexa.NewDirective(alexa.SystemNamespace, "HealthCheckRequest", nil))

			if resp.Header.Name() != "HealthCheckResponse" {
				t.Errorf("name: got %s", resp.Header.Name())
			}
			if resp.Payload["isHealthy"] != tt.healthy {
				t.Errorf("isHealthy: got %v, want %v", resp.Payload["isHealthy"], tt.healthy)
			}
			if desc, _ := resp.Payload["description"].(string); desc == "" {
				t.Error("description should not be empty")
			}
		})
	}
}

func TestSkill_ControlIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	directive := alexa.NewDirective(alexa.ControlNamespace, "TurnOnRequest", target("lamp-1"))

	first := handle(t, f.skill, directive)
	second := handle(t, f.skill, directive)

	if first.Header.Name() != "TurnOnConfirmation" || second.Header.Name() != "TurnOnConfirmation" {
		t.Errorf("names: got %s, %s", first.Header.Name(), second.Header.Name())
	}
	if first.Header.MessageID() != directive.Header.MessageID() {
		t.Errorf("message id: got %s, want %s", first.Header.MessageID(), directive.Header.MessageID())
	}
	if f.turnOns != 1 {
		t.Errorf("turnOn executed %d times, want 1", f.turnOns)
	}

	handle(t, f.skill, alexa.NewDirective(alexa.ControlNamespace, "TurnOnRequest", target("lamp-1")))
	if f.turnOns != 2 {
		t.Errorf("turnOn executed %d times, want 2", f.turnOns)
	}
}

func TestSkill_ReusedMessageIDForOtherDirective(t *testing.T) {
	f := newFixture(t, nil)
	on := alexa.NewDirective(alexa.ControlNamespace, "TurnOnRequest", target("lamp-1"))
	off := alexa.NewDirective(alexa.ControlNamespace, "TurnOffRequest", target("lamp-1"))
	off.Header["messageId"] = on.Header.MessageID()

	handle(t, f.skill, on)
	resp := handle(t, f.skill, off)

	if resp.Header.Name() == "TurnOnConfirmation" {
		t.Fatal("TurnOffRequest answered with the cached TurnOnConfirmation")
	}
	if resp.Header.Name() != "DriverInternalError" {
		t.Errorf("name: got %s, want DriverInternalError", resp.Header.Name())
	}
}

func TestSkill_Query(t *testing.T) {
	f := newFixture(t, nil)

	resp := handle(t, f.skill, alexa.NewDirective(alexa.QueryNamespace, "GetLockStateRequest", target("lock-1")))
	if resp.Header.Name() != "GetLockStateResponse" || resp.Payload["lockState"] != "LOCKED" {
		t.Errorf("response: got %v", resp)
	}
	if len(f.notifier.messages) != 0 {
		t.Errorf("unexpected notifications: %v", f.notifier.messages)
	}
}

func TestSkill_Failures(t *testing.T) {
	tests := []struct {
		name      string
		directive string
		payload   map[string]any
		want      string
	}{
		{"unknown appliance", "TurnOnRequest", target("garage"), "NoSuchTargetError"},
		{"unsupported action", "SetPercentageRequest", target("lamp-1"), "UnsupportedOperationError"},
		{"driver exception", "SetLockStateRequest", target("lock-1"), "TargetOfflineError"},
		{"driver failure", "TurnOffRequest", target("lamp-1"), "DriverInternalError"},
		{"no appliance", "TurnOnRequest", map[string]any{}, "UnexpectedInformationReceivedError"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			directive := alexa.NewDirective(alexa.ControlNamespace, tt.directive, tt.payload)

			resp := handle(t, f.skill, directive)
			if resp.Header.Name() != tt.want {
				t.Errorf("name: got %s, want %s", resp.Header.Name(), tt.want)
			}
			if resp.Header.Namespace() != alexa.ControlNamespace {
				t.Errorf("namespace: got %s", resp.Header.Namespace())
			}
			if resp.Header.MessageID() != directive.Header.MessageID() {
				t.Error("message id not preserved")
			}
			if len(f.notifier.messages) != 1 {
				t.Errorf("notifications: got %d, want 1", len(f.notifier.messages))
			}

			handle(t, f.skill, directive)
			if len(f.notifier.messages) != 2 {
				t.Error("failed directives should not be answered from cache")
			}
		})
	}
}

func TestSkill_InvalidDirective(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.skill.Handle(context.Background(), []byte(`{"payload": {}}`), nil); err == nil {
		t.Error("expected error for directive without header")
	}
}
