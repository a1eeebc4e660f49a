package homeassistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"askhome/internal/alexa"
	"askhome/internal/smarthome"
)

// Driver executes directives by calling Home Assistant services.
type Driver struct {
	client *Client
	logger *slog.Logger
	now    func() time.Time
}

func NewDriver(client *Client, logger *slog.Logger) *Driver {
	return &Driver{client: client, logger: logger, now: time.Now}
}

// Actions returns the handlers supported by the entity's domain.
func (d *Driver) Actions(entityID string) (map[string]smarthome.ActionFunc, error) {
	switch entityDomain(entityID) {
	case "light":
		return map[string]smarthome.ActionFunc{
			"turnOn":              d.service(entityID, "turn_on"),
			"turnOff":             d.service(entityID, "turn_off"),
			"setPercentage":       d.setBrightness(entityID),
			"incrementPercentage": d.stepBrightness(entityID, 1),
			"decrementPercentage": d.stepBrightness(entityID, -1),
		}, nil
	case "switch", "input_boolean", "fan":
		return map[string]smarthome.ActionFunc{
			"turnOn":  d.service(entityID, "turn_on"),
			"turnOff": d.service(entityID, "turn_off"),
		}, nil
	case "climate":
		return map[string]smarthome.ActionFunc{
			"setTargetTemperature":       d.changeTemperature(entityID, setTo),
			"incrementTargetTemperature": d.changeTemperature(entityID, increaseBy),
			"decrementTargetTemperature": d.changeTemperature(entityID, decreaseBy),
			"getTargetTemperature":       d.targetTemperature(entityID),
			"getTemperatureReading":      d.temperatureReading(entityID, "current_temperature"),
		}, nil
	case "sensor":
		return map[string]smarthome.ActionFunc{
			"getTemperatureReading": d.temperatureReading(entityID, ""),
		}, nil
	case "lock":
		return map[string]smarthome.ActionFunc{
			"setLockState": d.setLockState(entityID),
			"getLockState": d.lockState(entityID),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported entity domain: %s", entityID)
	}
}

func (d *Driver) service(entityID, service string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		if err := d.call(ctx, entityID, service, nil); err != nil {
			return alexa.Envelope{}, err
		}
		return req.RawResponse(nil, nil), nil
	}
}

func (d *Driver) setBrightness(entityID string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		pr, ok := req.(*alexa.PercentageRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}
		pct, ok := pr.Percentage()
		if !ok {
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError("percentageState")
		}
		if pct < 0 || pct > 100 {
			return alexa.Envelope{}, alexa.NewValueOutOfRangeError(0, 100)
		}

		if err := d.call(ctx, entityID, "turn_on", map[string]any{"brightness_pct": pct}); err != nil {
			return alexa.Envelope{}, err
		}
		return pr.Response(), nil
	}
}

func (d *Driver) stepBrightness(entityID string, sign float64) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		pr, ok := req.(*alexa.PercentageRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}
		delta, ok := pr.DeltaPercentage()
		if !ok {
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError("deltaPercentage")
		}
		if delta < 0 || delta > 100 {
			return alexa.Envelope{}, alexa.NewValueOutOfRangeError(0, 100)
		}

		if err := d.call(ctx, entityID, "turn_on", map[string]any{"brightness_step_pct": sign * delta}); err != nil {
			return alexa.Envelope{}, err
		}
		return pr.Response(), nil
	}
}

type temperatureChange func(current, requested float64) float64

func setTo(_, requested float64) float64         { return requested }
func increaseBy(current, delta float64) float64 { return current + delta }
func decreaseBy(current, delta float64) float64 { return current - delta }

func (d *Driver) changeTemperature(entityID string, change temperatureChange) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		tr, ok := req.(*alexa.ChangeTemperatureRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}

		field := "deltaTemperature"
		requested, ok := tr.DeltaTemperature()
		if tr.Name() == "SetTargetTemperatureRequest" {
			field = "targetTemperature"
			requested, ok = tr.Temperature()
		}
		if !ok {
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError(field)
		}

		entity, err := d.state(ctx, entityID)
		if err != nil {
			return alexa.Envelope{}, err
		}

		previous, hasPrevious := entity.Number("temperature")
		if !hasPrevious && tr.Name() != "SetTargetTemperatureRequest" {
			return alexa.Envelope{}, alexa.NewUnableToGetValueError("NO_TARGET", "thermostat reports no target temperature")
		}
		target := change(previous, requested)

		if minimum, maximum, ok := temperatureBounds(entity); ok && (target < minimum || target > maximum) {
			return alexa.Envelope{}, alexa.NewValueOutOfRangeError(minimum, maximum)
		}

		if err := d.call(ctx, entityID, "set_temperature", map[string]any{"temperature": target}); err != nil {
			return alexa.Envelope{}, err
		}

		mode, _ := temperatureMode(entity.State)
		result := alexa.TemperatureChange{Temperature: target, Mode: mode}
		if hasPrevious {
			result.PreviousTemperature = &previous
			result.PreviousMode = mode
		}
		return tr.Response(result), nil
	}
}

// Home Assistant's own limits for climate entities that do not declare one.
const (
	defaultMinTemp = 7.0
	defaultMaxTemp = 35.0
)

// temperatureBounds reports the thermostat's accepted setpoint range. A bound
// the entity does not declare falls back to Home Assistant's default, or to the
// declared bound when the default would invert the range.
func temperatureBounds(e *Entity) (float64, float64, bool) {
	minimum, hasMin := e.Number("min_temp")
	maximum, hasMax := e.Number("max_temp")
	switch {
	case !hasMin && !hasMax:
		return 0, 0, false
	case !hasMin:
		minimum = min(defaultMinTemp, maximum)
	case !hasMax:
		maximum = max(defaultMaxTemp, minimum)
	}
	return minimum, maximum, true
}

func (d *Driver) targetTemperature(entityID string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		gr, ok := req.(*alexa.GetTemperatureRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}

		entity, err := d.state(ctx, entityID)
		if err != nil {
			return alexa.Envelope{}, err
		}

		mode, name := temperatureMode(entity.State)
		state := alexa.TemperatureState{
			Temperature:        optional(entity.Number("temperature")),
			CoolingTemperature: optional(entity.Number("target_temp_high")),
			HeatingTemperature: optional(entity.Number("target_temp_low")),
			Mode:               mode,
			ModeName:           name,
			Timestamp:          updatedAt(entity),
		}
		return gr.Response(state), nil
	}
}

// temperatureReading reads attr, or the entity state itself when attr is empty.
func (d *Driver) temperatureReading(entityID, attr string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		rr, ok := req.(*alexa.TemperatureReadingRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}

		entity, err := d.state(ctx, entityID)
		if err != nil {
			return alexa.Envelope{}, err
		}

		var (
			value float64
			found bool
		)
		if attr == "" {
			parsed, err := strconv.ParseFloat(entity.State, 64)
			value, found = parsed, err == nil
		} else {
			value, found = entity.Number(attr)
		}
		if !found {
			return alexa.Envelope{}, alexa.NewUnableToGetValueError("NO_READING", "entity reports no temperature")
		}

		return rr.Response(value, updatedAt(entity)), nil
	}
}

func (d *Driver) setLockState(entityID string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		lr, ok := req.(*alexa.LockStateRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}
		state, err := lr.LockState()
		if err != nil {
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError("lockState")
		}

		var service string
		switch state {
		case "LOCKED":
			service = "lock"
		case "UNLOCKED":
			service = "unlock"
		default:
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError("lockState")
		}

		if err := d.call(ctx, entityID, service, nil); err != nil {
			return alexa.Envelope{}, err
		}
		return lr.Response(state, alexa.At(d.now())), nil
	}
}

func (d *Driver) lockState(entityID string) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		lr, ok := req.(*alexa.LockStateRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}

		entity, err := d.state(ctx, entityID)
		if err != nil {
			return alexa.Envelope{}, err
		}

		switch entity.State {
		case "locked":
			return lr.Response("LOCKED", updatedAt(entity)), nil
		case "unlocked":
			return lr.Response("UNLOCKED", updatedAt(entity)), nil
		case "jammed":
			return alexa.Envelope{}, alexa.NewTargetHardwareMalfunctionError()
		default:
			return alexa.Envelope{}, alexa.NewUnableToGetValueError("DEVICE_BUSY", "lock is "+entity.State)
		}
	}
}

func (d *Driver) state(ctx context.Context, entityID string) (*Entity, error) {
	entity, err := d.client.GetState(ctx, entityID)
	if err != nil {
		return nil, translate(err)
	}
	if !entity.Available() {
		return nil, alexa.NewTargetOfflineError()
	}
	return entity, nil
}

func (d *Driver) call(ctx context.Context, entityID, service string, data map[string]any) error {
	domain := entityDomain(entityID)
	d.logger.Debug("calling service", "entity", entityID, "service", domain+"."+service, "data", data)
	if err := d.client.CallService(ctx, domain, service, entityID, data); err != nil {
		return translate(err)
	}
	return nil
}

// translate maps client failures onto protocol errors. Anything else is left
// for the caller to report as an internal driver error.
func translate(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return errors.Join(err, alexa.NewNoSuchTargetError())
	case errors.Is(err, ErrUnreachable):
		return errors.Join(err, alexa.NewBridgeOfflineError())
	case errors.Is(err, ErrUnauthorized):
		return errors.Join(err, alexa.NewDependentServiceUnavailableError("Home Assistant"))
	default:
		return err
	}
}

// temperatureMode maps a climate hvac state to a protocol mode and, for modes
// the protocol has no name for, a friendly label.
func temperatureMode(state string) (string, *string) {
	switch state {
	case "heat":
		return "HEAT", nil
	case "cool":
		return "COOL", nil
	case "auto", "heat_cool":
		return "AUTO", nil
	case "off":
		return "OFF", nil
	default:
		name := strings.ReplaceAll(state, "_", " ")
		return "CUSTOM", &name
	}
}

func updatedAt(e *Entity) alexa.Timestamp {
	if e.LastUpdated == "" {
		return alexa.Timestamp{}
	}
	t, err := time.Parse(time.RFC3339Nano, e.LastUpdated)
	if err != nil {
		return alexa.Formatted(e.LastUpdated)
	}
	return alexa.At(t)
}

func optional(v float64, ok bool) *float64 {
	if !ok {
		return nil
	}
	return &v
}
