package alexa

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"
)

// PayloadVersion is the directive protocol version emitted by NewDirective.
const PayloadVersion = "2"

// Header carries the protocol header fields. Fields this package does not
// know about (messageId, payloadVersion, ...) are kept as-is.
type Header map[string]any

func (h Header) Name() string {
	name, _ := h["name"].(string)
	return name
}

func (h Header) Namespace() string {
	ns, _ := h["namespace"].(string)
	return ns
}

func (h Header) MessageID() string {
	id, _ := h["messageId"].(string)
	return id
}

// Envelope is the {header, payload} wrapper used for directives and responses.
type Envelope struct {
	Header  Header         `json:"header"`
	Payload map[string]any `json:"payload"`
}

// Marshal encodes the envelope in its wire form.
func (e Envelope) Marshal() ([]byte, error) {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	data, err := json.Marshal(Envelope{Header: e.Header, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

// Parse decodes a raw directive.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("parsing directive: %w", err)
	}
	if env.Header == nil {
		return Envelope{}, errors.New("parsing directive: missing header")
	}
	if env.Header.Name() == "" {
		return Envelope{}, errors.New("parsing directive: missing header name")
	}
	if env.Payload == nil {
		env.Payload = map[string]any{}
	}
	return env, nil
}

// NewDirective builds a directive envelope with a fresh message id.
func NewDirective(namespace, name string, payload map[string]any) Envelope {
	if payload == nil {
		payload = map[string]any{}
	}
	return Envelope{
		Header: Header{
			"messageId":      uuid.NewString(),
			"name":           name,
			"namespace":      namespace,
			"payloadVersion": PayloadVersion,
		},
		Payload: maps.Clone(payload),
	}
}
