package network

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

const schemaBase = "https://gridstash.invalid/schemas/"

// Validator checks inbound client messages against the embedded schemas
// before they are decoded into payload structs.
type Validator struct {
	envelope *jsonschema.Schema
	payloads map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded schema.
func NewValidator() (*Validator, error) {
	files, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	var names []string
	for _, f := range files {
		b, err := schemaFS.ReadFile("schemas/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", f.Name(), err)
		}
		if err := c.AddResource(schemaBase+f.Name(), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("failed to add schema %s: %w", f.Name(), err)
		}
		names = append(names, f.Name())
	}

	v := &Validator{payloads: make(map[string]*jsonschema.Schema)}
	for _, name := range names {
		s, err := c.Compile(schemaBase + name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		msgType := strings.TrimSuffix(name, ".schema.json")
		if msgType == "envelope" {
			v.envelope = s
			continue
		}
		v.payloads[msgType] = s
	}
	if v.envelope == nil {
		return nil, fmt.Errorf("envelope schema missing")
	}
	return v, nil
}

// Parse validates raw and decodes it into a ClientMessage. Message types
// without a payload schema carry no payload worth checking.
func (v *Validator) Parse(raw []byte) (*ClientMessage, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("malformed json: %w", err)
	}
	if err := v.envelope.Validate(doc); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}

	var msg ClientMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid message: %w", err)
	}
	schema, ok := v.payloads[msg.Type]
	if !ok {
		return &msg, nil
	}

	var payload interface{} = map[string]interface{}{}
	if len(msg.Payload) > 0 && string(msg.Payload) != "null" {
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if err := schema.Validate(payload); err != nil {
		return nil, fmt.Errorf("invalid %s payload: %w", msg.Type, err)
	}
	return &msg, nil
}

// HasPayloadSchema reports whether msgType carries a validated payload.
func (v *Validator) HasPayloadSchema(msgType string) bool {
	_, ok := v.payloads[msgType]
	return ok
}
