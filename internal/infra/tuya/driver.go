package tuya

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"askhome/internal/alexa"
	"askhome/internal/smarthome"
)

const (
	codeLight      = "switch_led"
	codeSwitch     = "switch_1"
	codeBrightness = "bright_value_v2"

	// bright_value_v2 ranges over 10..1000.
	minBrightness = 10
	maxBrightness = 1000
)

// Driver executes directives on Tuya cloud devices. Device metadata comes
// from the last Sync; before the first successful sync every device is
// treated as a dimmable light.
type Driver struct {
	client *Client
	logger *slog.Logger

	mu      sync.RWMutex
	devices map[string]Device
	synced  bool
}

func NewDriver(client *Client, logger *slog.Logger) *Driver {
	return &Driver{
		client:  client,
		logger:  logger,
		devices: make(map[string]Device),
	}
}

// Sync refreshes the device list from the cloud.
func (d *Driver) Sync(ctx context.Context) error {
	d.logger.Info("syncing devices from Tuya")

	devices, err := d.client.GetDevices(ctx)
	if err != nil {
		return err
	}

	index := make(map[string]Device, len(devices))
	online := 0
	for _, dev := range devices {
		index[dev.ID] = dev
		if dev.Online {
			online++
		}
	}

	d.mu.Lock()
	d.devices = index
	d.synced = true
	d.mu.Unlock()

	d.logger.Info("sync complete", "devices", len(devices), "online", online)
	return nil
}

// StartSync calls Sync every interval until ctx is done.
func (d *Driver) StartSync(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := d.Sync(ctx); err != nil {
				d.logger.Warn("periodic sync failed", "error", err)
			}
		}
	}
}

func (d *Driver) device(deviceID string) (Device, bool, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	dev, ok := d.devices[deviceID]
	return dev, ok, d.synced
}

// Actions returns the handlers for a device: power for switches and plugs,
// power and brightness for everything else.
func (d *Driver) Actions(deviceID string) (map[string]smarthome.ActionFunc, error) {
	if deviceID == "" {
		return nil, errors.New("empty tuya device id")
	}

	dev, known, synced := d.device(deviceID)
	if synced && !known {
		return nil, fmt.Errorf("unknown tuya device: %s", deviceID)
	}

	if isSwitch(dev.Category) {
		return map[string]smarthome.ActionFunc{
			"turnOn":  d.power(deviceID, codeSwitch, true),
			"turnOff": d.power(deviceID, codeSwitch, false),
		}, nil
	}

	return map[string]smarthome.ActionFunc{
		"turnOn":              d.power(deviceID, codeLight, true),
		"turnOff":             d.power(deviceID, codeLight, false),
		"setPercentage":       d.setBrightness(deviceID),
		"incrementPercentage": d.stepBrightness(deviceID, 1),
		"decrementPercentage": d.stepBrightness(deviceID, -1),
	}, nil
}

func (d *Driver) power(deviceID, code string, on bool) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		if err := d.send(ctx, deviceID, Command{Code: code, Value: on}); err != nil {
			return alexa.Envelope{}, err
		}
		return req.RawResponse(nil, nil), nil
	}
}

func (d *Driver) setBrightness(deviceID string) smarthome.ActionFunc {
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

		if err := d.send(ctx, deviceID, brightnessCommands(pct)...); err != nil {
			return alexa.Envelope{}, err
		}
		return pr.Response(), nil
	}
}

func (d *Driver) stepBrightness(deviceID string, sign float64) smarthome.ActionFunc {
	return func(ctx context.Context, req alexa.Request) (alexa.Envelope, error) {
		pr, ok := req.(*alexa.PercentageRequest)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnsupportedOperationError()
		}
		delta, ok := pr.DeltaPercentage()
		if !ok {
			return alexa.Envelope{}, alexa.NewUnexpectedInformationReceivedError("deltaPercentage")
		}

		if err := d.checkOnline(deviceID); err != nil {
			return alexa.Envelope{}, err
		}
		status, err := d.client.Status(ctx, deviceID)
		if err != nil {
			return alexa.Envelope{}, translate(err)
		}
		raw, ok := status[codeBrightness].(float64)
		if !ok {
			return alexa.Envelope{}, alexa.NewUnableToGetValueError("NO_BRIGHTNESS", "device reports no brightness")
		}

		pct := min(max(raw/10+sign*delta, 0), 100)
		if err := d.send(ctx, deviceID, brightnessCommands(pct)...); err != nil {
			return alexa.Envelope{}, err
		}
		return pr.Response(), nil
	}
}

// brightnessCommands turns the light off at 0% and otherwise on at the
// matching brightness.
func brightnessCommands(pct float64) []Command {
	if pct == 0 {
		return []Command{{Code: codeLight, Value: false}}
	}
	value := int(math.Round(pct * maxBrightness / 100))
	return []Command{
		{Code: codeLight, Value: true},
		{Code: codeBrightness, Value: max(value, minBrightness)},
	}
}

func (d *Driver) checkOnline(deviceID string) error {
	if dev, known, _ := d.device(deviceID); known && !dev.Online {
		return alexa.NewTargetOfflineError()
	}
	return nil
}

func (d *Driver) send(ctx context.Context, deviceID string, commands ...Command) error {
	if err := d.checkOnline(deviceID); err != nil {
		return err
	}
	d.logger.Debug("sending commands", "device", deviceID, "commands", commands)
	if err := d.client.SendCommands(ctx, deviceID, commands); err != nil {
		return translate(err)
	}
	return nil
}

// translate maps client failures onto protocol errors. Anything else is left
// for the caller to report as an internal driver error.
func translate(err error) error {
	switch {
	case errors.Is(err, ErrDeviceOffline):
		return errors.Join(err, alexa.NewTargetOfflineError())
	case errors.Is(err, ErrUnreachable):
		return errors.Join(err, alexa.NewBridgeOfflineError())
	case errors.Is(err, ErrUnauthorized):
		return errors.Join(err, alexa.NewDependentServiceUnavailableError("Tuya"))
	case errors.Is(err, ErrCommandUnsupported):
		return errors.Join(err, alexa.NewUnsupportedTargetSettingError())
	default:
		return err
	}
}

func isSwitch(category string) bool {
	switch category {
	case "cz", "pc", "kg", "tdq":
		return true
	default:
		return false
	}
}
