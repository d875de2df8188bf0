package zap

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/raysh454/zapscan/internal/logging"
)

// APIScanPolicy is the scan policy used for whole-description API scans.
const APIScanPolicy = "API-Minimal"

// StartActiveScan starts a non-recursive active scan of target and returns
// the scan handle.
func (c *Client) StartActiveScan(ctx context.Context, target string) (string, error) {
	return c.startScan(ctx, target, false, "")
}

// StartAPIScan starts a recursive active scan of target under the API
// scan policy.
func (c *Client) StartAPIScan(ctx context.Context, target string) (string, error) {
	return c.startScan(ctx, target, true, APIScanPolicy)
}

func (c *Client) startScan(ctx context.Context, target string, recurse bool, policy string) (string, error) {
	params := url.Values{
		"url":         {target},
		"recurse":     {boolParam(recurse)},
		"inScopeOnly": {"true"},
	}
	if policy != "" {
		params.Set("scanPolicyName", policy)
	}
	res, err := c.action(ctx, "ascan", "scan", params)
	if err != nil {
		return "", err
	}
	handle := stringField(res, "scan")
	if handle == "" {
		return "", c.fail(&GatewayError{Op: "ascan/action/scan", Err: errors.New("no scan id in response")})
	}
	c.logger.Info("active scan started",
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "handle", Value: handle})
	return handle, nil
}

// AwaitCompletion polls the active scan until it reports 100%. It returns
// an error wrapping ErrScanTimeout when the ceiling is reached first.
func (c *Client) AwaitCompletion(ctx context.Context, handle string) error {
	p := c.polling.ActiveScan
	err := poll(ctx, p, func(ctx context.Context) (bool, error) {
		res, err := c.view(ctx, "ascan", "status", url.Values{"scanId": {handle}})
		if err != nil {
			return false, err
		}
		progress := intField(res, "status")
		c.logger.Debug("active scan progress",
			logging.Field{Key: "handle", Value: handle},
			logging.Field{Key: "progress", Value: progress})
		return progress >= 100, nil
	})
	if errors.Is(err, errPollExhausted) {
		return fmt.Errorf("%w after %d attempts", ErrScanTimeout, p.MaxAttempts)
	}
	return err
}
