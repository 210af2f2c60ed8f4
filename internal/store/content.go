package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/worldscript/pkg/schema"
)

// contentSchemaJSON is the JSON Schema for action content files.
// Embedded as a constant to avoid filesystem dependencies.
const contentSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://worldscript.dev/schemas/content.json",
  "type": "object",
  "required": ["actions"],
  "properties": {
    "actions": {
      "type": "array",
      "items": { "$ref": "#/$defs/action" }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "id": { "type": "integer", "minimum": 0, "maximum": 4294967295 },
    "action": {
      "type": "object",
      "required": ["id", "type"],
      "properties": {
        "id":    { "type": "integer", "minimum": 1, "maximum": 4294967295 },
        "type":  { "type": "integer" },
        "data":  { "type": "integer" },
        "param": { "type": "string" },
        "next":  { "$ref": "#/$defs/id" },
        "fail":  { "$ref": "#/$defs/id" }
      },
      "additionalProperties": false
    }
  }
}`

const contentSchemaURL = "https://worldscript.dev/schemas/content.json"

// Content is the on-disk document format for authored action graphs.
type Content struct {
	Actions []schema.ActionNode `json:"actions"`
}

var (
	contentSchemaOnce sync.Once
	contentSchema     *jsonschema.Schema
	contentSchemaErr  error
)

func compiledContentSchema() (*jsonschema.Schema, error) {
	contentSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(contentSchemaJSON))
		if err != nil {
			contentSchemaErr = fmt.Errorf("unmarshal content schema: %w", err)
			return
		}
		if err := c.AddResource(contentSchemaURL, doc); err != nil {
			contentSchemaErr = fmt.Errorf("add content schema resource: %w", err)
			return
		}
		contentSchema, contentSchemaErr = c.Compile(contentSchemaURL)
	})
	return contentSchema, contentSchemaErr
}

// LoadContent reads and validates an action content document. Structural
// problems are reported as a VALIDATION_ERROR listing every violation;
// duplicate IDs are rejected. Edges are not checked against existing IDs:
// the interpreter tolerates dangling edges at run time.
func LoadContent(r io.Reader) (*Content, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}

	sch, err := compiledContentSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "content is not valid JSON").WithCause(err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, toScriptError(err)
	}

	var c Content
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode content").WithCause(err)
	}

	seen := make(map[uint32]struct{}, len(c.Actions))
	for _, a := range c.Actions {
		if _, dup := seen[a.ID]; dup {
			return nil, schema.NewErrorf(schema.ErrCodeValidation, "duplicate action id %d", a.ID)
		}
		seen[a.ID] = struct{}{}
	}
	return &c, nil
}

// toScriptError converts a jsonschema.ValidationError into a ScriptError.
func toScriptError(err error) *schema.ScriptError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "content invalid with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/" + strings.Join(verr.InstanceLocation, "/")
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
