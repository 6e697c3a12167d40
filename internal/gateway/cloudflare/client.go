package cloudflare

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	domain "github.com/oshokin/cf-guard/internal/domain/guard"
	"github.com/oshokin/cf-guard/internal/version"
)

const (
	// DefaultBaseURL is the Cloudflare v4 API root.
	DefaultBaseURL = "https://api.cloudflare.com/client/v4"

	// DefaultCallTimeout bounds each API call.
	DefaultCallTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 20
)

var (
	// errZoneRequired is returned when no zone identifier is given.
	errZoneRequired = errors.New("zone id must be provided")
	// errTokenRequired is returned when no API token is given.
	errTokenRequired = errors.New("api token must be provided")
	// errEmptyMode is returned when the API answered without a value.
	errEmptyMode = errors.New("response carries no security level")
	// errNotSuccessful is returned when the API answered success=false.
	errNotSuccessful = errors.New("api reported failure")
)

// APIError describes a failed API call.
type APIError struct {
	// Op is the operation name, "get security level" or "set security level".
	Op string
	// Status is the HTTP status code, or 0 when no response was received.
	Status int
	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *APIError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}

	return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
}

// Unwrap returns the underlying cause.
func (e *APIError) Unwrap() error {
	return e.Err
}

// Client talks to the Cloudflare API on behalf of one zone.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// baseURL is the API root without a trailing slash.
	baseURL string
	// zoneID is the zone whose security level is managed.
	zoneID string
	// token is the bearer credential.
	token string

	// callTimeout is the timeout for individual API calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets the timeout for API calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithBaseURL overrides the API root.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = strings.TrimRight(baseURL, "/")
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// NewClient creates a client for zoneID authenticated with token.
func NewClient(zoneID, token string, opts ...Option) (*Client, error) {
	if zoneID == "" {
		return nil, errZoneRequired
	}

	if token == "" {
		return nil, errTokenRequired
	}

	client := &Client{
		httpClient:  new(http.Client),
		baseURL:     DefaultBaseURL,
		zoneID:      zoneID,
		token:       token,
		callTimeout: DefaultCallTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// settingEnvelope is the subset of the API response the guard reads.
type settingEnvelope struct {
	Success bool `json:"success"`
	Result  struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// GetMode returns the zone's current security level.
func (c *Client) GetMode(ctx context.Context) (domain.Mode, error) {
	const op = "get security level"

	status, envelope, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return domain.Mode{}, &APIError{Op: op, Status: status, Err: err}
	}

	if status != http.StatusOK {
		return domain.Mode{}, &APIError{Op: op, Status: status, Err: envelope.failure()}
	}

	if envelope.Result.Value == "" {
		return domain.Mode{}, &APIError{Op: op, Status: status, Err: errEmptyMode}
	}

	return domain.ParseMode(envelope.Result.Value), nil
}

// SetMode changes the zone's security level. Success is judged by the
// response body's success flag, not by the status code alone.
func (c *Client) SetMode(ctx context.Context, mode domain.Mode) error {
	const op = "set security level"

	body, err := json.Marshal(map[string]string{"value": mode.String()})
	if err != nil {
		return &APIError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}

	status, envelope, err := c.do(ctx, http.MethodPatch, body)
	if err != nil {
		return &APIError{Op: op, Status: status, Err: err}
	}

	if !envelope.Success {
		return &APIError{Op: op, Status: status, Err: envelope.failure()}
	}

	return nil
}

// do performs one request and decodes the envelope.
// A non-nil error means the status may be set but the body is unusable.
func (c *Client) do(ctx context.Context, method string, body []byte) (int, *settingEnvelope, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.settingURL(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send request: %w", err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}

	envelope := new(settingEnvelope)
	if len(bytes.TrimSpace(raw)) == 0 {
		return resp.StatusCode, envelope, nil
	}

	if err = json.Unmarshal(raw, envelope); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decode response: %w", err)
	}

	return resp.StatusCode, envelope, nil
}

// failure summarises the errors reported in the envelope.
func (e *settingEnvelope) failure() error {
	if len(e.Errors) == 0 {
		return errNotSuccessful
	}

	messages := make([]string, 0, len(e.Errors))
	for _, apiErr := range e.Errors {
		messages = append(messages, fmt.Sprintf("%d %s", apiErr.Code, apiErr.Message))
	}

	return fmt.Errorf("%w: %s", errNotSuccessful, strings.Join(messages, "; "))
}

func (c *Client) settingURL() string {
	return c.baseURL + "/zones/" + url.PathEscape(c.zoneID) + "/settings/security_level"
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
