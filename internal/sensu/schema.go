package sensu

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const checkSchemaURL = "sensu-health-check.json"

// checkSchema describes a Sensu health check declaration. Properties it does not
// name are passed through to the definition untouched.
const checkSchema = `{
  "$schema": "http://json-schema.org/draft-04/schema#",
  "type": "object",
  "required": ["name"],
  "properties": {
    "name": {"type": "string", "minLength": 1},
    "http": {"type": "string", "minLength": 1},
    "local_script": {"type": "string", "minLength": 1},
    "server_script": {"type": "string", "minLength": 1},
    "script": {"type": "string", "minLength": 1},
    "plugin": {"type": "string", "minLength": 1},
    "script_arguments": {"type": "string"},
    "interval": {"type": "integer", "minimum": 1},
    "timeout": {"type": "integer", "minimum": 1},
    "ttl": {"type": "integer", "minimum": 1},
    "occurrences": {"type": "integer", "minimum": 1},
    "refresh": {"type": "integer", "minimum": 1},
    "realert_every": {"type": "integer", "minimum": 1},
    "alert_after": {"type": "integer", "minimum": 0},
    "standalone": {"type": "boolean"},
    "aggregate": {"type": "boolean"},
    "page": {"type": "boolean"},
    "ticket": {"type": "boolean"},
    "handlers": {"type": "array", "items": {"type": "string"}},
    "subscribers": {"type": "array", "items": {"type": "string"}},
    "notification_email": {"type": "array", "items": {"type": "string"}},
    "team": {"type": "string"},
    "project": {"type": "string"},
    "runbook": {"type": "string"},
    "tip": {"type": "string"},
    "slack_channel": {"type": "string"}
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(checkSchema))
		if err != nil {
			compileErr = fmt.Errorf("parse check schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		compiler.DefaultDraft(jsonschema.Draft4)
		if err := compiler.AddResource(checkSchemaURL, doc); err != nil {
			compileErr = fmt.Errorf("add check schema: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(checkSchemaURL)
	})
	return compiledSchema, compileErr
}

// validateSchema checks raw declaration properties against the check schema.
// Properties are round-tripped through JSON so YAML-decoded values are
// validated exactly as they will later be written.
func validateSchema(props map[string]any) error {
	sch, err := schema()
	if err != nil {
		return err
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
