package alexa

// PercentageRequest answers with the generic empty confirmation.
type PercentageRequest struct {
	*BaseRequest
}

// Percentage is the absolute target of SetPercentageRequest.
func (r *PercentageRequest) Percentage() (float64, bool) {
	return r.value("percentageState")
}

// DeltaPercentage is the step of Increment/DecrementPercentageRequest.
func (r *PercentageRequest) DeltaPercentage() (float64, bool) {
	return r.value("deltaPercentage")
}

type LockStateRequest struct {
	*BaseRequest
}

// LockState is required by the protocol; a directive without it yields an
// error wrapping ErrMissingField.
func (r *LockStateRequest) LockState() (string, error) {
	return r.requiredString("lockState")
}

// Response reports lockState as given ("LOCKED", "UNLOCKED", ...).
func (r *LockStateRequest) Response(lockState string, ts Timestamp) Envelope {
	payload := map[string]any{"lockState": lockState}
	ts.attach(payload)
	return r.RawResponse(payload, nil)
}

type HealthCheckRequest struct {
	*BaseRequest
}

func (r *HealthCheckRequest) Response(healthy bool, description string) Envelope {
	return r.RawResponse(map[string]any{
		"isHealthy":   healthy,
		"description": description,
	}, nil)
}
