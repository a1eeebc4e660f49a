package smarthome

import (
	"context"
	"maps"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"askhome/internal/alexa"
)

// ActionFunc executes one directive against a device and builds the response.
type ActionFunc func(ctx context.Context, req alexa.Request) (alexa.Envelope, error)

// Appliance is a discoverable device that can also execute directives.
type Appliance interface {
	alexa.Appliance
	Perform(ctx context.Context, action string, req alexa.Request) (alexa.Envelope, error)
}

// Device is an Appliance assembled from a detail mapping and action handlers.
type Device struct {
	details map[string]any
	actions map[string]ActionFunc
}

func NewDevice(details map[string]any) *Device {
	return &Device{
		details: maps.Clone(details),
		actions: make(map[string]ActionFunc),
	}
}

// Handle registers fn for an action such as "turnOn".
func (d *Device) Handle(action string, fn ActionFunc) *Device {
	d.actions[action] = fn
	return d
}

func (d *Device) Detail(name string) (any, bool) {
	v, ok := d.details[name]
	return v, ok
}

func (d *Device) Actions() []string {
	return slices.Sorted(maps.Keys(d.actions))
}

func (d *Device) Perform(ctx context.Context, action string, req alexa.Request) (alexa.Envelope, error) {
	fn, ok := d.actions[action]
	if !ok {
		return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
	}
	return fn(ctx, req)
}

// ActionName maps a directive name to its action, e.g. TurnOnRequest -> turnOn.
func ActionName(directive string) string {
	name := strings.TrimSuffix(directive, "Request")
	r, size := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return name
	}
	return string(unicode.ToLower(r)) + name[size:]
}
