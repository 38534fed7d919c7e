// Package validation implements input validation for the trust boundary:
// named schemas compiled once at startup, input sanitization, request
// rate limiting, PII redaction, and content moderation.
package validation

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	shielderrors "github.com/storyforge/shield/internal/errors"
)

// schemaDefinitions holds the JSON Schema document for each named input.
// Every schema constrains length and allowed characters; storyTheme is
// additionally an enumeration.
var schemaDefinitions = map[string]string{
	"storyPrompt": `{
		"type": "string",
		"minLength": 1,
		"maxLength": 1000,
		"pattern": "^[a-zA-Z0-9\\s.,!?'\"():;-]*$"
	}`,
	"userChoice": `{
		"type": "string",
		"minLength": 1,
		"maxLength": 500,
		"pattern": "^[a-zA-Z0-9\\s.,!?'\"():;-]*$"
	}`,
	"sessionId": `{
		"type": "string",
		"pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
	}`,
	"userId": `{
		"type": "string",
		"minLength": 1,
		"maxLength": 64,
		"pattern": "^[a-zA-Z0-9_-]*$"
	}`,
	"storyTheme": `{
		"type": "string",
		"enum": ["adventure", "mystery", "fantasy", "scifi", "fable"]
	}`,
}

// SchemaSet holds the compiled, immutable schemas. A SchemaSet is built
// once at startup and shared read-only across all requests.
type SchemaSet struct {
	schemas map[string]*gojsonschema.Schema
}

// CompileSchemas compiles every named schema. Compilation failures are
// programming errors and surface immediately.
func CompileSchemas() (*SchemaSet, error) {
	set := &SchemaSet{schemas: make(map[string]*gojsonschema.Schema, len(schemaDefinitions))}
	for name, def := range schemaDefinitions {
		schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(def))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		set.schemas[name] = schema
	}
	return set, nil
}

// SchemaNames returns the names of all compiled schemas.
func (s *SchemaSet) SchemaNames() []string {
	names := make([]string, 0, len(s.schemas))
	for name := range s.schemas {
		names = append(names, name)
	}
	return names
}

// Validate sanitizes raw input and checks it against the named schema,
// returning the sanitized value. Non-string input is rejected outright.
func (s *SchemaSet) Validate(schemaName string, raw interface{}) (string, error) {
	schema, ok := s.schemas[schemaName]
	if !ok {
		return "", shielderrors.ValidationError{Field: schemaName, Message: "unknown schema"}
	}

	str, ok := raw.(string)
	if !ok {
		return "", shielderrors.ValidationError{Field: schemaName, Message: "must be a string"}
	}

	sanitized := Sanitize(str)

	result, err := schema.Validate(gojsonschema.NewGoLoader(sanitized))
	if err != nil {
		return "", shielderrors.ValidationError{Field: schemaName, Message: "invalid input"}
	}
	if !result.Valid() {
		msg := "invalid input"
		if errs := result.Errors(); len(errs) > 0 {
			msg = errs[0].Description()
		}
		return "", shielderrors.ValidationError{Field: schemaName, Message: msg}
	}

	return sanitized, nil
}
