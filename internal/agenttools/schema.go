package agenttools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles each distinct input schema once.
type schemaCache struct {
	compiled sync.Map
}

func (c *schemaCache) validate(schema map[string]any, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return fmt.Errorf("encode input schema: %w", err)
	}
	key := string(raw)
	var compiled *jsonschema.Schema
	if v, ok := c.compiled.Load(key); ok {
		compiled = v.(*jsonschema.Schema)
	} else {
		compiled, err = jsonschema.CompileString("tool-input.schema.json", key)
		if err != nil {
			return fmt.Errorf("compile input schema: %w", err)
		}
		c.compiled.Store(key, compiled)
	}

	var decoded any = map[string]any{}
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &decoded); err != nil {
			return fmt.Errorf("arguments are not valid JSON: %w", err)
		}
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
