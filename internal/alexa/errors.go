package alexa

import (
	"errors"
	"fmt"
)

// Exception is an already classified protocol error. ExceptionResponse uses
// Name as the response header name and Namespace as its namespace.
type Exception interface {
	error
	Name() string
	Namespace() string
	Payload() map[string]any
}

// Error is the Exception implementation for the protocol's error responses.
type Error struct {
	name      string
	namespace string
	payload   map[string]any
}

func NewError(name, namespace string, payload map[string]any) *Error {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Error{name: name, namespace: namespace, payload: payload}
}

func (e *Error) Name() string            { return e.name }
func (e *Error) Namespace() string       { return e.namespace }
func (e *Error) Payload() map[string]any { return e.payload }

func (e *Error) Error() string {
	if len(e.payload) == 0 {
		return e.name
	}
	return fmt.Sprintf("%s: %v", e.name, e.payload)
}

// AsException finds the first Exception in err's chain.
func AsException(err error) (Exception, bool) {
	var e Exception
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

func controlError(name string, payload map[string]any) *Error {
	return NewError(name, ControlNamespace, payload)
}

func NewValueOutOfRangeError(minimum, maximum float64) *Error {
	return controlError("ValueOutOfRangeError", map[string]any{
		"minimumValue": minimum,
		"maximumValue": maximum,
	})
}

func NewTargetOfflineError() *Error        { return controlError("TargetOfflineError", nil) }
func NewBridgeOfflineError() *Error        { return controlError("BridgeOfflineError", nil) }
func NewNoSuchTargetError() *Error         { return controlError("NoSuchTargetError", nil) }
func NewDriverInternalError() *Error       { return controlError("DriverInternalError", nil) }
func NewUnsupportedOperationError() *Error { return controlError("UnsupportedOperationError", nil) }
func NewUnsupportedTargetError() *Error    { return controlError("UnsupportedTargetError", nil) }
func NewRateLimitExceededError() *Error    { return controlError("RateLimitExceededError", nil) }
func NewTargetBatteryLowError() *Error     { return controlError("TargetBatteryLowError", nil) }

func NewUnsupportedTargetSettingError() *Error {
	return controlError("UnsupportedTargetSettingError", nil)
}

func NewTargetHardwareMalfunctionError() *Error {
	return controlError("TargetHardwareMalfunctionError", nil)
}

func NewExpiredAccessTokenError() *Error { return controlError("ExpiredAccessTokenError", nil) }
func NewInvalidAccessTokenError() *Error { return controlError("InvalidAccessTokenError", nil) }

func NewDependentServiceUnavailableError(service string) *Error {
	return controlError("DependentServiceUnavailableError", map[string]any{
		"dependentServiceName": service,
	})
}

func NewUnexpectedInformationReceivedError(faultingParameter string) *Error {
	return controlError("UnexpectedInformationReceivedError", map[string]any{
		"faultingParameter": faultingParameter,
	})
}

// NewNotSupportedInCurrentModeError takes the device mode, e.g. "COOLING".
func NewNotSupportedInCurrentModeError(mode string) *Error {
	return controlError("NotSupportedInCurrentModeError", map[string]any{
		"currentDeviceMode": mode,
	})
}

func NewTargetFirmwareOutdatedError(minimum, current string) *Error {
	return controlError("TargetFirmwareOutdatedError", map[string]any{
		"minimumFirmwareVersion": minimum,
		"currentFirmwareVersion": current,
	})
}

func NewUnableToGetValueError(code, description string) *Error {
	return controlError("UnableToGetValueError", errorInfo(code, description))
}

func NewUnableToSetValueError(code, description string) *Error {
	return controlError("UnableToSetValueError", errorInfo(code, description))
}

func errorInfo(code, description string) map[string]any {
	return map[string]any{
		"errorInfo": map[string]any{
			"code":        code,
			"description": description,
		},
	}
}
