package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema constrains externally supplied JSON configuration documents.
// It is deliberately strict about shapes and loose about presence: every
// section is optional because documents are layered over the defaults.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "trianglescan://config",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "correlation": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "window_sec": {"type": "integer", "minimum": 1},
        "min_categories": {"type": "integer", "minimum": 2}
      }
    },
    "rules": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "sms": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "attachments_root": {"type": "string", "minLength": 1},
            "baseline": {"type": "string", "format": "date-time"}
          }
        },
        "preferences": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "files": {"type": "array", "items": {"type": "string", "minLength": 1}},
            "baseline": {"type": "string", "format": "date-time"}
          }
        },
        "network": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "usage_database": {"type": "string"},
            "analytics_plist": {"type": "string"},
            "exact_processes": {"type": "array", "items": {"type": "string"}},
            "implicit_processes": {"type": "array", "items": {"type": "string"}},
            "min_bytes": {"type": "integer", "minimum": 0}
          }
        },
        "location": {
          "type": "object",
          "additionalProperties": false,
          "properties": {
            "clients_plist": {"type": "string", "minLength": 1},
            "bundle_ids": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"enum": ["debug", "info", "warn", "error"]},
        "format": {"enum": ["text", "json"]},
        "output": {"enum": ["stdout", "stderr"]}
      }
    }
  }
}`

// ValidateJSON checks a JSON configuration document against the embedded
// schema before it is decoded.
func ValidateJSON(data []byte) error {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("config.schema.json", strings.NewReader(configSchema)); err != nil {
		return fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := compiler.Compile("config.schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
