package alexa

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ErrMissingField is returned by accessors for payload fields the protocol
// requires.
var ErrMissingField = errors.New("missing field")

// Request is the contract shared by every classified directive. Response
// builders live on the concrete types so each family keeps its own shape.
type Request interface {
	Header() Header
	Payload() map[string]any
	Name() string
	Namespace() string
	Context() any
	Family() Family

	ApplianceID() (string, bool)
	ApplianceDetails() (map[string]any, bool)
	AccessToken() (string, bool)

	ResponseHeader(name string) Header
	RawResponse(payload map[string]any, header Header) Envelope
	ExceptionResponse(e Exception) Envelope
}

// BaseRequest implements Request and is also the generic variant used for
// directive names without a dedicated family.
type BaseRequest struct {
	env    Envelope
	ctx    any
	family Family
}

func newBaseRequest(env Envelope, ctx any, family Family) *BaseRequest {
	return &BaseRequest{env: env, ctx: ctx, family: family}
}

func (r *BaseRequest) Header() Header          { return r.env.Header }
func (r *BaseRequest) Payload() map[string]any { return r.env.Payload }
func (r *BaseRequest) Name() string            { return r.env.Header.Name() }
func (r *BaseRequest) Namespace() string       { return r.env.Header.Namespace() }
func (r *BaseRequest) Context() any            { return r.ctx }
func (r *BaseRequest) Family() Family          { return r.family }

func (r *BaseRequest) AccessToken() (string, bool) {
	token, ok := r.env.Payload["accessToken"].(string)
	return token, ok
}

func (r *BaseRequest) ApplianceID() (string, bool) {
	appliance, ok := r.appliance()
	if !ok {
		return "", false
	}
	id, ok := appliance["applianceId"].(string)
	return id, ok
}

func (r *BaseRequest) ApplianceDetails() (map[string]any, bool) {
	appliance, ok := r.appliance()
	if !ok {
		return nil, false
	}
	details, ok := appliance["additionalApplianceDetails"].(map[string]any)
	return details, ok
}

func (r *BaseRequest) appliance() (map[string]any, bool) {
	appliance, ok := r.env.Payload["appliance"].(map[string]any)
	return appliance, ok
}

// ResponseHeader copies the request header and overwrites its name. An empty
// name is derived from the directive: commands in the control namespace are
// answered with a Confirmation, everything else with a Response.
func (r *BaseRequest) ResponseHeader(name string) Header {
	if name == "" {
		name = strings.TrimSuffix(r.Name(), "Request")
		if r.Namespace() == ControlNamespace {
			name += "Confirmation"
		} else {
			name += "Response"
		}
	}

	header := maps.Clone(r.env.Header)
	if header == nil {
		header = Header{}
	}
	header["name"] = name
	return header
}

func (r *BaseRequest) RawResponse(payload map[string]any, header Header) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	if header == nil {
		header = r.ResponseHeader("")
	}
	return Envelope{Header: header, Payload: payload}
}

// Response answers with an empty payload.
func (r *BaseRequest) Response() Envelope {
	return r.RawResponse(nil, nil)
}

func (r *BaseRequest) ExceptionResponse(e Exception) Envelope {
	header := r.ResponseHeader(e.Name())
	header["namespace"] = e.Namespace()
	return r.RawResponse(e.Payload(), header)
}

// value reads payload[key].value as a number.
func (r *BaseRequest) value(key string) (float64, bool) {
	obj, ok := r.env.Payload[key].(map[string]any)
	if !ok {
		return 0, false
	}
	return number(obj["value"])
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (r *BaseRequest) requiredString(key string) (string, error) {
	v, ok := r.env.Payload[key]
	if !ok {
		return "", fmt.Errorf("%s: %w", key, ErrMissingField)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected type %T", key, v)
	}
	return s, nil
}

// Timestamp is an optional applianceResponseTimestamp. The zero value means
// no timestamp was supplied.
type Timestamp struct {
	value string
	set   bool
}

// At formats t with whole-second precision.
func At(t time.Time) Timestamp {
	return Timestamp{value: t.Truncate(time.Second).Format(time.RFC3339), set: true}
}

// Formatted uses an already formatted timestamp verbatim.
func Formatted(s string) Timestamp {
	return Timestamp{value: s, set: true}
}

func (t Timestamp) IsZero() bool   { return !t.set }
func (t Timestamp) String() string { return t.value }

func (t Timestamp) attach(payload map[string]any) {
	if t.set {
		payload["applianceResponseTimestamp"] = t.value
	}
}
