package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"askhome/internal/infra"
)

var (
	ErrNotFound     = errors.New("entity not found")
	ErrUnauthorized = errors.New("unauthorized: check your Home Assistant token")
	ErrUnreachable  = errors.New("home assistant unreachable")
)

type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retry      infra.RetryConfig
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 6 * time.Second},
		retry:      infra.DefaultRetryConfig(),
	}
}

// WithRetry replaces the retry policy used for every request.
func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// Entity represents a Home Assistant entity
type Entity struct {
	EntityID    string         `json:"entity_id"`
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastChanged string         `json:"last_changed"`
	LastUpdated string         `json:"last_updated"`
}

// Domain is the entity_id prefix, e.g. "light" for "light.kitchen".
func (e *Entity) Domain() string {
	return entityDomain(e.EntityID)
}

func (e *Entity) Available() bool {
	return e.State != "unavailable" && e.State != "unknown"
}

// Number reads a numeric attribute.
func (e *Entity) Number(attr string) (float64, bool) {
	switch v := e.Attributes[attr].(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (c *Client) GetState(ctx context.Context, entityID string) (*Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states/"+entityID, nil)
	if err != nil {
		return nil, fmt.Errorf("fetching state of %s: %w", entityID, err)
	}

	var entity Entity
	if err := json.Unmarshal(resp, &entity); err != nil {
		return nil, fmt.Errorf("parsing state of %s: %w", entityID, err)
	}
	return &entity, nil
}

func (c *Client) GetStates(ctx context.Context) ([]Entity, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/api/states", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching states: %w", err)
	}

	var entities []Entity
	if err := json.Unmarshal(resp, &entities); err != nil {
		return nil, fmt.Errorf("parsing states: %w", err)
	}
	return entities, nil
}

// CallService invokes e.g. light.turn_on for entityID with extra service data.
func (c *Client) CallService(ctx context.Context, domain, service, entityID string, data map[string]any) error {
	body := map[string]any{"entity_id": entityID}
	for k, v := range data {
		body[k] = v
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	path := fmt.Sprintf("/api/services/%s/%s", domain, service)
	if _, err := c.doRequest(ctx, http.MethodPost, path, encoded); err != nil {
		return fmt.Errorf("calling %s.%s: %w", domain, service, err)
	}
	return nil
}

// Ping checks that the API answers with the configured token.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/api/", nil)
	return err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var respBody []byte

	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}

		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w: %v", ErrUnreachable, err)
		}
		defer resp.Body.Close()

		respBody, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			return infra.Permanent(ErrUnauthorized)
		case resp.StatusCode == http.StatusNotFound:
			return infra.Permanent(ErrNotFound)
		case infra.IsRetryableHTTPStatus(resp.StatusCode):
			return fmt.Errorf("home assistant API error %d (retryable): %s", resp.StatusCode, string(respBody))
		case resp.StatusCode >= 400:
			return infra.Permanent(fmt.Errorf("home assistant API error %d: %s", resp.StatusCode, string(respBody)))
		}

		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}

	return respBody, nil
}

func entityDomain(entityID string) string {
	parts := strings.SplitN(entityID, ".", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[0]
}
