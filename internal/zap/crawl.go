package zap

import (
	"context"
	"errors"
	"net/url"

	"github.com/raysh454/zapscan/internal/logging"
)

// CrawlMode selects the scanner's crawler.
type CrawlMode int

const (
	// CrawlStructure follows links in fetched markup (the traditional spider).
	CrawlStructure CrawlMode = iota
	// CrawlBehavior drives a headless browser (the AJAX spider).
	CrawlBehavior
)

func (m CrawlMode) String() string {
	if m == CrawlBehavior {
		return "behavior"
	}
	return "structure"
}

// CrawlOptions tune a crawl.
type CrawlOptions struct {
	SubtreeOnly bool
}

// Crawl runs one crawler against target and waits for it to finish. Crawl
// failures and timeouts are logged and swallowed; only cancellation of ctx
// is returned.
func (c *Client) Crawl(ctx context.Context, target string, mode CrawlMode, opts CrawlOptions) error {
	var err error
	if mode == CrawlBehavior {
		err = c.crawlBehavior(ctx, target, opts)
	} else {
		err = c.crawlStructure(ctx, target, opts)
	}
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	msg := "crawl failed, continuing"
	if errors.Is(err, errPollExhausted) {
		msg = "crawl timed out, continuing"
	}
	c.logger.Warn(msg,
		logging.Field{Key: "mode", Value: mode.String()},
		logging.Field{Key: "url", Value: target},
		logging.Field{Key: "error", Value: err.Error()})
	return nil
}

func (c *Client) crawlStructure(ctx context.Context, target string, opts CrawlOptions) error {
	res, err := c.action(ctx, "spider", "scan", url.Values{
		"url":         {target},
		"recurse":     {"true"},
		"contextName": {c.contextName},
		"subtreeOnly": {boolParam(opts.SubtreeOnly)},
	})
	if err != nil {
		return err
	}
	id := stringField(res, "scan")

	return poll(ctx, c.polling.StructureCrawl, func(ctx context.Context) (bool, error) {
		st, err := c.view(ctx, "spider", "status", url.Values{"scanId": {id}})
		if err != nil {
			return false, err
		}
		return intField(st, "status") >= 100, nil
	})
}

func (c *Client) crawlBehavior(ctx context.Context, target string, opts CrawlOptions) error {
	_, err := c.action(ctx, "ajaxSpider", "scan", url.Values{
		"url":         {target},
		"inScope":     {"true"},
		"contextName": {c.contextName},
		"subtreeOnly": {boolParam(opts.SubtreeOnly)},
	})
	if err != nil {
		return err
	}

	return poll(ctx, c.polling.BehaviorCrawl, func(ctx context.Context) (bool, error) {
		st, err := c.view(ctx, "ajaxSpider", "status", nil)
		if err != nil {
			return false, err
		}
		return stringField(st, "status") != "running", nil
	})
}

// RunPassiveAnalysis waits for the passive scanner's queue to drain. A
// queue that never drains is logged and swallowed.
func (c *Client) RunPassiveAnalysis(ctx context.Context) error {
	err := poll(ctx, c.polling.Passive, func(ctx context.Context) (bool, error) {
		res, err := c.view(ctx, "pscan", "recordsToScan", nil)
		if err != nil {
			return false, err
		}
		return intField(res, "recordsToScan") == 0, nil
	})
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.logger.Warn("passive analysis did not drain, continuing",
		logging.Field{Key: "error", Value: err.Error()})
	return nil
}
