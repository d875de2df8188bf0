package zap

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
)

const (
	detailedSpiderDepth   = 10
	detailedThreadPerHost = 5
)

// ApplyDetailedSettings raises crawl depth, thread count and duration
// ceilings for detailed scans. Every setting is attempted; failures are
// returned together.
func (c *Client) ApplyDetailedSettings(ctx context.Context, maxDurationMinutes int) error {
	settings := []struct {
		component, name string
		value           int
	}{
		{"spider", "setOptionMaxDepth", detailedSpiderDepth},
		{"ajaxSpider", "setOptionMaxDuration", maxDurationMinutes},
		{"ascan", "setOptionThreadPerHost", detailedThreadPerHost},
		{"ascan", "setOptionMaxScanDurationInMins", maxDurationMinutes},
	}

	var result error
	for _, s := range settings {
		if s.value <= 0 {
			continue
		}
		if _, err := c.action(ctx, s.component, s.name, url.Values{"Integer": {strconv.Itoa(s.value)}}); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result = multierror.Append(result, err)
		}
	}
	return result
}

// ApplyRateLimit spaces active-scan requests so that at most perSecond are
// sent each second. Zero or negative disables the limit.
func (c *Client) ApplyRateLimit(ctx context.Context, perSecond int) error {
	delay := 0
	if perSecond > 0 {
		delay = 1000 / perSecond
	}
	_, err := c.action(ctx, "ascan", "setOptionDelayInMs", url.Values{"Integer": {strconv.Itoa(delay)}})
	return err
}

// SetRequestTimeout sets how long the scanner waits for a target response.
// Sub-second values round up to one second.
func (c *Client) SetRequestTimeout(ctx context.Context, timeout time.Duration) error {
	secs := int((timeout + time.Second - 1) / time.Second)
	_, err := c.action(ctx, "core", "setOptionTimeoutInSecs", url.Values{"Integer": {strconv.Itoa(secs)}})
	return err
}

// SetPassiveEnabled turns every passive scan rule on or off.
func (c *Client) SetPassiveEnabled(ctx context.Context, enabled bool) error {
	name := "disableAllScanners"
	if enabled {
		name = "enableAllScanners"
	}
	_, err := c.action(ctx, "pscan", name, nil)
	return err
}
