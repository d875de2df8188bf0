package zap

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/raysh454/zapscan/internal/apispec"
	"github.com/raysh454/zapscan/internal/logging"
)

// ImportSpecification asks the scanner to import the API description at
// specURL. When the scanner answers with a rejection, the description is
// fetched locally, normalised, and submitted inline through importFile.
// hostOverride, when set, replaces the host the scanner targets.
func (c *Client) ImportSpecification(ctx context.Context, specURL, hostOverride string) error {
	params := url.Values{"url": {specURL}}
	if hostOverride != "" {
		params.Set("hostOverride", hostOverride)
	}

	_, err := c.action(ctx, "openapi", "importUrl", params)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var gerr *GatewayError
	if !errors.As(err, &gerr) || gerr.Err != nil || c.specs == nil {
		return err
	}

	c.logger.Warn("importUrl rejected, submitting document inline",
		logging.Field{Key: "url", Value: specURL},
		logging.Field{Key: "error", Value: err.Error()})

	data, ferr := c.specs.Fetch(ctx, specURL)
	if ferr != nil {
		return fmt.Errorf("import fallback: %w", ferr)
	}
	doc, nerr := apispec.Normalize(data)
	if nerr != nil {
		return fmt.Errorf("import fallback: %w", nerr)
	}

	fileParams := url.Values{"file": {base64.StdEncoding.EncodeToString(doc)}}
	if hostOverride != "" {
		fileParams.Set("target", hostOverride)
	}
	if _, err := c.call(ctx, http.MethodPost, "openapi", "action", "importFile", fileParams); err != nil {
		return fmt.Errorf("import fallback: %w", err)
	}
	return nil
}
