package apispec

import (
	"encoding/json"
	"fmt"
)

// Normalize rewrites data into JSON that the scanner's importer accepts.
// Path items or operations given as arrays collapse to their first object
// element, or to an empty object when there is none. Other non-object
// path items become empty objects.
func Normalize(data []byte) ([]byte, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}

	if paths, ok := doc["paths"].(map[string]interface{}); ok {
		for p, item := range paths {
			obj := collapse(item)
			for k, op := range obj {
				if operationMethods[k] {
					if _, isArr := op.([]interface{}); isArr {
						obj[k] = collapse(op)
					}
				}
			}
			paths[p] = obj
		}
	}

	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal normalized document: %w", err)
	}
	return out, nil
}

func collapse(v interface{}) map[string]interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return t
	case []interface{}:
		if len(t) > 0 {
			if m, ok := t[0].(map[string]interface{}); ok {
				return m
			}
		}
	}
	return map[string]interface{}{}
}
