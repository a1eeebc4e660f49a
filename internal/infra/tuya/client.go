package tuya

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"askhome/internal/infra"
)

var (
	ErrUnauthorized       = errors.New("unauthorized: check your Tuya client id and secret")
	ErrUnreachable        = errors.New("tuya cloud unreachable")
	ErrDeviceOffline      = errors.New("tuya device offline")
	ErrCommandUnsupported = errors.New("command not supported by tuya device")
)

// Tuya cloud result codes with a meaning of their own.
const (
	codeSignInvalid    = 1004
	codeTokenInvalid   = 1010
	codeTokenExpired   = 1011
	codeDeviceOffline  = 2001
	codeCommandInvalid = 2008
)

// APIError is an unsuccessful result reported by the Tuya cloud.
type APIError struct {
	Code int
	Msg  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tuya error %d: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error {
	switch e.Code {
	case codeSignInvalid, codeTokenInvalid, codeTokenExpired:
		return ErrUnauthorized
	case codeDeviceOffline:
		return ErrDeviceOffline
	case codeCommandInvalid:
		return ErrCommandUnsupported
	default:
		return nil
	}
}

// Command is a single data point write, e.g. {"code": "switch_led", "value": true}.
type Command struct {
	Code  string `json:"code"`
	Value any    `json:"value"`
}

type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Online   bool   `json:"online"`
}

type result struct {
	Success bool            `json:"success"`
	Code    int             `json:"code"`
	Msg     string          `json:"msg"`
	Result  json.RawMessage `json:"result"`
}

type Client struct {
	clientID   string
	secret     string
	baseURL    string
	httpClient *http.Client
	retry      infra.RetryConfig
	now        func() time.Time

	mu       sync.RWMutex
	token    string
	expireAt time.Time
}

func NewClient(clientID, secret, region string) *Client {
	baseURL := "https://openapi.tuyaus.com"
	switch strings.ToLower(region) {
	case "eu":
		baseURL = "https://openapi.tuyaeu.com"
	case "cn":
		baseURL = "https://openapi.tuyacn.com"
	case "in":
		baseURL = "https://openapi.tuyain.com"
	}

	return NewClientWithURL(clientID, secret, baseURL)
}

func NewClientWithURL(clientID, secret, baseURL string) *Client {
	return &Client{
		clientID:   clientID,
		secret:     secret,
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 6 * time.Second},
		retry:      infra.DefaultRetryConfig(),
		now:        time.Now,
	}
}

// WithRetry replaces the retry policy used for every request.
func (c *Client) WithRetry(cfg infra.RetryConfig) *Client {
	c.retry = cfg
	return c
}

// SendCommands writes data points on a device.
func (c *Client) SendCommands(ctx context.Context, deviceID string, commands []Command) error {
	body, err := json.Marshal(map[string]any{"commands": commands})
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}

	path := fmt.Sprintf("/v1.0/iot-03/devices/%s/commands", deviceID)
	if _, err := c.call(ctx, http.MethodPost, path, body); err != nil {
		return fmt.Errorf("sending commands to %s: %w", deviceID, err)
	}
	return nil
}

// Status returns the device's current data point values by code.
func (c *Client) Status(ctx context.Context, deviceID string) (map[string]any, error) {
	path := fmt.Sprintf("/v1.0/iot-03/devices/%s/status", deviceID)
	raw, err := c.call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("reading status of %s: %w", deviceID, err)
	}

	var points []Command
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	status := make(map[string]any, len(points))
	for _, p := range points {
		status[p.Code] = p.Value
	}
	return status, nil
}

func (c *Client) GetDevices(ctx context.Context) ([]Device, error) {
	raw, err := c.call(ctx, http.MethodGet, "/v1.0/iot-01/associated-users/devices", nil)
	if err != nil {
		return nil, fmt.Errorf("fetching devices: %w", err)
	}

	var list struct {
		Devices []Device `json:"devices"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("parsing devices: %w", err)
	}
	return list.Devices, nil
}

// Ping checks that the cloud accepts the client credentials.
func (c *Client) Ping(ctx context.Context) error {
	return c.ensureToken(ctx)
}

// call performs a signed request and returns the result field of a successful
// answer. An expired token is refreshed once.
func (c *Client) call(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	raw, err := c.doRequest(ctx, method, path, body)
	var apiErr *APIError
	if errors.As(err, &apiErr) && (apiErr.Code == codeTokenInvalid || apiErr.Code == codeTokenExpired) {
		c.invalidateToken()
		raw, err = c.doRequest(ctx, method, path, body)
	}
	return raw, err
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	if err := c.ensureToken(ctx); err != nil {
		return nil, err
	}

	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()

	var out json.RawMessage
	retryErr := infra.WithRetry(ctx, c.retry, func() error {
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return infra.Permanent(fmt.Errorf("creating request: %w", err))
		}
		c.sign(req, token, body)
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		res, err := c.send(ctx, req)
		if err != nil {
			return err
		}
		out = res.Result
		return nil
	})

	if retryErr != nil {
		return nil, retryErr
	}
	return out, nil
}

// send executes req and decodes the Tuya result envelope. Only transport
// failures and retryable statuses are left retryable.
func (c *Client) send(ctx context.Context, req *http.Request) (*result, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if infra.IsRetryableHTTPStatus(resp.StatusCode) {
		return nil, fmt.Errorf("tuya API error %d (retryable): %s", resp.StatusCode, string(respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, infra.Permanent(fmt.Errorf("tuya API error %d: %s", resp.StatusCode, string(respBody)))
	}

	var res result
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, infra.Permanent(fmt.Errorf("parsing response: %w", err))
	}
	if !res.Success {
		return nil, infra.Permanent(&APIError{Code: res.Code, Msg: res.Msg})
	}
	return &res, nil
}

func (c *Client) ensureToken(ctx context.Context) error {
	c.mu.RLock()
	if c.tokenValid() {
		c.mu.RUnlock()
		return nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tokenValid() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1.0/token?grant_type=1", nil)
	if err != nil {
		return fmt.Errorf("creating token request: %w", err)
	}
	c.sign(req, "", nil)

	res, err := c.send(ctx, req)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("%w: %v", ErrUnauthorized, apiErr)
		}
		return fmt.Errorf("requesting token: %w", err)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpireTime  int64  `json:"expire_time"`
	}
	if err := json.Unmarshal(res.Result, &token); err != nil {
		return fmt.Errorf("parsing token response: %w", err)
	}

	c.token = token.AccessToken
	c.expireAt = c.now().Add(time.Duration(token.ExpireTime) * time.Second)
	return nil
}

// tokenValid reports whether the cached token outlives the next five minutes.
// Callers hold mu.
func (c *Client) tokenValid() bool {
	return c.token != "" && c.now().Add(5*time.Minute).Before(c.expireAt)
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// sign sets the HMAC-SHA256 request signature headers. token is empty when
// requesting a token.
func (c *Client) sign(req *http.Request, token string, body []byte) {
	timestamp := fmt.Sprintf("%d", c.now().UnixMilli())

	bodyHash := sha256.Sum256(body)
	stringToSign := req.Method + "\n" + hex.EncodeToString(bodyHash[:]) + "\n\n" + req.URL.RequestURI()

	h := hmac.New(sha256.New, []byte(c.secret))
	h.Write([]byte(c.clientID + token + timestamp + stringToSign))

	req.Header.Set("client_id", c.clientID)
	if token != "" {
		req.Header.Set("access_token", token)
	}
	req.Header.Set("sign", strings.ToUpper(hex.EncodeToString(h.Sum(nil))))
	req.Header.Set("t", timestamp)
	req.Header.Set("sign_method", "HMAC-SHA256")
}
