// Package apispec loads OpenAPI / Swagger descriptions and extracts the
// endpoints they declare. Documents may be JSON or YAML; both are handled
// as JSON internally so key order from the source is preserved.
package apispec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidSpec is returned for documents that are neither JSON nor
	// YAML objects, or that lack a paths object.
	ErrInvalidSpec = errors.New("invalid api description")

	// ErrNoPaths is returned when the paths object is present but empty.
	ErrNoPaths = errors.New("api description declares no paths")
)

// Document is a parsed API description.
type Document struct {
	// Version is the value of the "openapi" or "swagger" key, if any.
	Version string
	// Paths holds each path item in source order.
	Paths []PathItem

	raw json.RawMessage
}

// PathItem is one entry of the paths object.
type PathItem struct {
	Path string
	Raw  json.RawMessage
}

// JSON returns the document as JSON.
func (d *Document) JSON() []byte {
	return d.raw
}

// Parse decodes data as JSON, falling back to YAML. The result must be an
// object with a non-empty paths object.
func Parse(data []byte) (*Document, error) {
	raw, err := toJSON(data)
	if err != nil {
		return nil, err
	}

	fields, err := orderedFields(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidSpec)
	}

	doc := &Document{raw: raw}
	var paths json.RawMessage
	for _, f := range fields {
		switch f.Key {
		case "openapi", "swagger":
			_ = json.Unmarshal(f.Value, &doc.Version)
		case "paths":
			paths = f.Value
		}
	}
	if paths == nil {
		return nil, fmt.Errorf("%w: missing paths", ErrInvalidSpec)
	}

	items, err := orderedFields(paths)
	if err != nil {
		return nil, fmt.Errorf("%w: paths is not an object", ErrInvalidSpec)
	}
	if len(items) == 0 {
		return nil, ErrNoPaths
	}
	for _, it := range items {
		doc.Paths = append(doc.Paths, PathItem{Path: it.Key, Raw: it.Value})
	}
	return doc, nil
}

func toJSON(data []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidSpec)
	}
	if json.Valid(trimmed) {
		return json.RawMessage(trimmed), nil
	}

	var node yaml.Node
	if err := yaml.Unmarshal(trimmed, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	var buf bytes.Buffer
	if err := writeYAMLAsJSON(&buf, &node); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// writeYAMLAsJSON emits node as JSON, keeping mapping keys in source order.
func writeYAMLAsJSON(buf *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLAsJSON(buf, node.Content[0])
	case yaml.AliasNode:
		return writeYAMLAsJSON(buf, node.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(node.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLAsJSON(buf, node.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range node.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLAsJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case yaml.ScalarNode:
		var v interface{}
		if err := node.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			// Timestamps and other exotic scalars fall back to their text.
			b, err = json.Marshal(node.Value)
			if err != nil {
				return err
			}
		}
		buf.Write(b)
	default:
		return fmt.Errorf("unsupported yaml node kind %d", node.Kind)
	}
	return nil
}

type field struct {
	Key   string
	Value json.RawMessage
}

// orderedFields splits a JSON object into its members in source order.
func orderedFields(raw json.RawMessage) ([]field, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("not an object")
	}

	var out []field
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.New("non-string key")
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, field{Key: key, Value: v})
	}
	return out, nil
}
