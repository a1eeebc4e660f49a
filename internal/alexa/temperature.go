package alexa

// DefaultTemperatureMode is used when a response does not name a mode.
const DefaultTemperatureMode = "AUTO"

// TemperatureRequest holds the accessors shared by the thermostat directives.
type TemperatureRequest struct {
	*BaseRequest
}

func (r TemperatureRequest) Temperature() (float64, bool) {
	return r.value("targetTemperature")
}

func (r TemperatureRequest) DeltaTemperature() (float64, bool) {
	return r.value("deltaTemperature")
}

type ChangeTemperatureRequest struct {
	TemperatureRequest
}

// TemperatureChange is the confirmed outcome of a set/increment/decrement.
// PreviousTemperature is optional even though the protocol documents
// previousState as required.
type TemperatureChange struct {
	Temperature         float64
	Mode                string
	PreviousTemperature *float64
	PreviousMode        string
}

func (r *ChangeTemperatureRequest) Response(change TemperatureChange) Envelope {
	payload := map[string]any{
		"targetTemperature": map[string]any{"value": change.Temperature},
		"temperatureMode":   map[string]any{"value": modeOrDefault(change.Mode)},
	}

	if change.PreviousTemperature != nil {
		payload["previousState"] = map[string]any{
			"targetTemperature": map[string]any{"value": *change.PreviousTemperature},
			"mode":              map[string]any{"value": modeOrDefault(change.PreviousMode)},
		}
	}

	return r.RawResponse(payload, nil)
}

type GetTemperatureRequest struct {
	TemperatureRequest
}

// TemperatureState answers GetTargetTemperatureRequest. Any subset of the
// three setpoints may be reported.
type TemperatureState struct {
	Temperature        *float64
	CoolingTemperature *float64
	HeatingTemperature *float64
	Mode               string
	// ModeName is reported as the mode's friendlyName when set, even if empty.
	ModeName           *string
	Timestamp          Timestamp
}

func (r *GetTemperatureRequest) Response(state TemperatureState) Envelope {
	mode := map[string]any{"value": modeOrDefault(state.Mode)}
	if state.ModeName != nil {
		mode["friendlyName"] = *state.ModeName
	}
	payload := map[string]any{"temperatureMode": mode}

	if state.Temperature != nil {
		payload["targetTemperature"] = map[string]any{"value": *state.Temperature}
	}
	if state.CoolingTemperature != nil {
		payload["coolingTargetTemperature"] = map[string]any{"value": *state.CoolingTemperature}
	}
	if state.HeatingTemperature != nil {
		payload["heatingTargetTemperature"] = map[string]any{"value": *state.HeatingTemperature}
	}
	state.Timestamp.attach(payload)

	return r.RawResponse(payload, nil)
}

type TemperatureReadingRequest struct {
	TemperatureRequest
}

func (r *TemperatureReadingRequest) Response(temperature float64, ts Timestamp) Envelope {
	payload := map[string]any{
		"temperatureReading": map[string]any{"value": temperature},
	}
	ts.attach(payload)
	return r.RawResponse(payload, nil)
}

func modeOrDefault(mode string) string {
	if mode == "" {
		return DefaultTemperatureMode
	}
	return mode
}
