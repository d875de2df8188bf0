// Package zap drives an OWASP ZAP instance through its JSON control API.
//
// Every call is GET {base}/JSON/{component}/{view|action}/{name}/ with the
// API key passed as a query parameter. Responses are JSON objects; errors
// surface as *GatewayError.
package zap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/webclient"
)

// ErrScanTimeout is returned by AwaitCompletion when the active scan does
// not reach 100% within the polling ceiling.
var ErrScanTimeout = errors.New("ZAP scan timed out")

// GatewayError is a failed call to the scanner's control API.
type GatewayError struct {
	Op         string
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("zap %s: %v", e.Op, e.Err)
	case e.Code != "":
		return fmt.Sprintf("zap %s: %s: %s", e.Op, e.Code, e.Message)
	default:
		return fmt.Sprintf("zap %s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Config addresses a ZAP instance.
type Config struct {
	BaseURL string
	APIKey  string
	// ContextName names the ZAP context used for scoping.
	ContextName string
	Polling     PollSettings
}

const DefaultContextName = "API Scan"

// SpecSource fetches an API description for the importFile fallback.
type SpecSource interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Client is the External Scanner Gateway.
type Client struct {
	base        string
	apiKey      string
	contextName string
	polling     PollSettings
	wc          webclient.WebClient
	specs       SpecSource
	logger      logging.Logger
	onError     func(op string)
}

// NewClient returns a gateway for cfg. specs may be nil, in which case the
// importFile fallback is unavailable.
func NewClient(cfg Config, wc webclient.WebClient, specs SpecSource, logger logging.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("zap: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("zap: invalid base url: %w", err)
	}
	name := cfg.ContextName
	if name == "" {
		name = DefaultContextName
	}
	return &Client{
		base:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		contextName: name,
		polling:     cfg.Polling.withDefaults(),
		wc:          wc,
		specs:       specs,
		logger:      logger.With(logging.Field{Key: "component", Value: "zap"}),
	}, nil
}

// OnError registers a hook called with the operation name of every failed
// gateway call.
func (c *Client) OnError(fn func(op string)) {
	c.onError = fn
}

// CheckReady verifies the scanner answers and returns its version.
func (c *Client) CheckReady(ctx context.Context) (string, error) {
	res, err := c.view(ctx, "core", "version", nil)
	if err != nil {
		return "", err
	}
	return stringField(res, "version"), nil
}

// CountMessages returns how many HTTP messages the scanner recorded under
// baseURL.
func (c *Client) CountMessages(ctx context.Context, baseURL string) (int, error) {
	res, err := c.view(ctx, "core", "numberOfMessages", url.Values{"baseurl": {baseURL}})
	if err != nil {
		return 0, err
	}
	return intField(res, "numberOfMessages"), nil
}

func (c *Client) view(ctx context.Context, component, name string, params url.Values) (map[string]json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, component, "view", name, params)
}

func (c *Client) action(ctx context.Context, component, name string, params url.Values) (map[string]json.RawMessage, error) {
	return c.call(ctx, http.MethodGet, component, "action", name, params)
}

func (c *Client) call(ctx context.Context, method, component, kind, name string, params url.Values) (map[string]json.RawMessage, error) {
	op := component + "/" + kind + "/" + name
	endpoint := c.base + "/JSON/" + op + "/"

	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	if c.apiKey != "" {
		q.Set("apikey", c.apiKey)
	}

	req := &webclient.Request{Method: method}
	if method == http.MethodPost {
		req.URL = endpoint
		req.Headers = http.Header{"Content-Type": {"application/x-www-form-urlencoded"}}
		req.Body = []byte(q.Encode())
	} else {
		req.URL = endpoint + "?" + q.Encode()
	}

	resp, err := c.wc.Do(ctx, req)
	if err != nil {
		return nil, c.fail(&GatewayError{Op: op, Err: err})
	}

	var body map[string]json.RawMessage
	decodeErr := json.Unmarshal(resp.Body, &body)

	if !resp.OK() {
		gerr := &GatewayError{Op: op, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(resp.Body))}
		if decodeErr == nil {
			if code := stringField(body, "code"); code != "" {
				gerr.Code = code
				gerr.Message = stringField(body, "message")
			}
		}
		return nil, c.fail(gerr)
	}
	if decodeErr != nil {
		return nil, c.fail(&GatewayError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", decodeErr)})
	}
	if code := stringField(body, "code"); code != "" && !strings.EqualFold(code, "ok") {
		return nil, c.fail(&GatewayError{Op: op, StatusCode: resp.StatusCode, Code: code, Message: stringField(body, "message")})
	}
	return body, nil
}

func (c *Client) fail(err *GatewayError) error {
	if c.onError != nil {
		c.onError(err.Op)
	}
	return err
}

// stringField reads key as a string, accepting JSON strings and numbers.
func stringField(m map[string]json.RawMessage, key string) string {
	raw, ok := m[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// intField reads key as an integer; ZAP reports numbers as strings.
func intField(m map[string]json.RawMessage, key string) int {
	n, err := strconv.Atoi(stringField(m, key))
	if err != nil {
		return 0
	}
	return n
}

func boolParam(b bool) string {
	return strconv.FormatBool(b)
}
