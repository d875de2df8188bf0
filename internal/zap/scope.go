package zap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/net/idna"
)

var schemePrefix = regexp.MustCompile(`(?i)^https?://`)

// ScopeRegex builds the include-in-context pattern for target: any scheme,
// the escaped host and path, then anything.
//
//	ScopeRegex("http://api.test:8080/v1") → `https?://api\.test:8080/v1.*`
func ScopeRegex(target string) string {
	rest := schemePrefix.ReplaceAllString(target, "")
	host, path, _ := strings.Cut(rest, "/")
	if path != "" || strings.HasSuffix(rest, "/") {
		path = "/" + path
	}

	h, port, hasPort := strings.Cut(host, ":")
	if strings.HasPrefix(host, "[") {
		h, port, hasPort = host, "", false
	}
	h = strings.ToLower(h)
	if puny, err := idna.Lookup.ToASCII(h); err == nil {
		h = puny
	}
	if hasPort {
		h += ":" + port
	}
	return "https?://" + regexp.QuoteMeta(h+path) + ".*"
}

// RegisterScope creates (or reuses) the scan context and includes target
// in it. It returns the context id.
func (c *Client) RegisterScope(ctx context.Context, target string) (string, error) {
	var contextID string
	res, err := c.action(ctx, "context", "newContext", url.Values{"contextName": {c.contextName}})
	switch {
	case err == nil:
		contextID = stringField(res, "contextId")
	case isAlreadyExists(err):
		contextID, err = c.lookupContext(ctx)
		if err != nil {
			return "", err
		}
	default:
		return "", err
	}

	_, err = c.action(ctx, "context", "includeInContext", url.Values{
		"contextName": {c.contextName},
		"regex":       {ScopeRegex(target)},
	})
	if err != nil {
		return "", err
	}
	return contextID, nil
}

func (c *Client) lookupContext(ctx context.Context) (string, error) {
	res, err := c.view(ctx, "context", "context", url.Values{"contextName": {c.contextName}})
	if err != nil {
		return "", err
	}
	var info map[string]json.RawMessage
	if err := json.Unmarshal(res["context"], &info); err != nil {
		return "", fmt.Errorf("zap context/view/context: decode context: %w", err)
	}
	return stringField(info, "id"), nil
}

func isAlreadyExists(err error) bool {
	var gerr *GatewayError
	if !errors.As(err, &gerr) || gerr.Err != nil {
		return false
	}
	return gerr.Code == "already_exists" || strings.Contains(strings.ToLower(gerr.Message), "already exist")
}
