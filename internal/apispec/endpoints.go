package apispec

import (
	"encoding/json"
	"strings"

	"github.com/raysh454/zapscan/internal/logging"
	"github.com/raysh454/zapscan/internal/model"
)

var operationMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true,
	"options": true, "head": true, "patch": true, "trace": true,
}

// ExtractEndpoints lists every path+operation pair in doc, in source
// order. Keys of a path item that are not HTTP methods (parameters,
// summary, servers and so on) are skipped. Malformed path items or
// operations are skipped with a warning.
func ExtractEndpoints(doc *Document, logger logging.Logger) []model.Endpoint {
	var endpoints []model.Endpoint
	for _, item := range doc.Paths {
		ops, err := orderedFields(item.Raw)
		if err != nil {
			logger.Warn("skipping malformed path item",
				logging.Field{Key: "path", Value: item.Path},
				logging.Field{Key: "error", Value: err.Error()})
			continue
		}
		for _, op := range ops {
			method := strings.ToLower(op.Key)
			if !operationMethods[method] {
				continue
			}
			var operation struct {
				Parameters json.RawMessage `json:"parameters"`
			}
			if err := json.Unmarshal(op.Value, &operation); err != nil {
				logger.Warn("skipping malformed operation",
					logging.Field{Key: "path", Value: item.Path},
					logging.Field{Key: "method", Value: method},
					logging.Field{Key: "error", Value: err.Error()})
				continue
			}
			endpoints = append(endpoints, model.Endpoint{
				Path:       item.Path,
				Method:     strings.ToUpper(method),
				Parameters: parseParameters(operation.Parameters, item.Path, logger),
			})
		}
	}
	return endpoints
}

func parseParameters(raw json.RawMessage, path string, logger logging.Logger) []model.Parameter {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn("ignoring malformed parameter list",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "error", Value: err.Error()})
		return nil
	}
	params := make([]model.Parameter, 0, len(entries))
	for _, e := range entries {
		var p model.Parameter
		if err := json.Unmarshal(e, &p); err != nil {
			continue
		}
		params = append(params, p)
	}
	return params
}
