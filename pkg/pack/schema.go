package pack

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// packSchema validates the outer shape of a pack document. Internal
// referential integrity (template -> failure mode, duplicate ids) is
// checked separately after decode.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "name", "version"],
  "properties": {
    "id": {"type": "string", "pattern": "^[a-z0-9]+(-[a-z0-9]+)*$"},
    "name": {"type": "string", "minLength": 1},
    "version": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "tags": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "failure_modes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "severity"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "severity": {"enum": ["low", "medium", "high", "critical"]},
          "symptoms": {"type": "array", "items": {"type": "string"}},
          "root_causes": {"type": "array", "items": {"type": "string"}},
          "mitigation_strategies": {"type": "array", "items": {"type": "string"}},
          "tags": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "test_templates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["id", "name", "failure_mode_id"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "name": {"type": "string", "minLength": 1},
          "failure_mode_id": {"type": "string", "minLength": 1},
          "priority": {"type": "integer", "minimum": 0},
          "setup_steps": {"type": "array", "items": {"type": "string"}},
          "execution_steps": {"type": "array", "items": {"type": "string"}},
          "assertions": {
            "type": "array",
            "items": {
              "type": "object",
              "required": ["description"],
              "properties": {
                "description": {"type": "string", "minLength": 1},
                "expression": {"type": "string"}
              },
              "additionalProperties": false
            }
          },
          "cleanup_steps": {"type": "array", "items": {"type": "string"}},
          "requires_privileged": {"type": "boolean"},
          "fallback_available": {"type": "boolean"},
          "obligation_ids": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "obligations_covered": {"type": "array", "items": {"type": "string", "minLength": 1}},
    "recipes": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "steps": {"type": "array", "items": {"type": "string"}}
        },
        "additionalProperties": false
      }
    },
    "references": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

var (
	schemaOnce    sync.Once
	compiled      *jsonschema.Schema
	schemaCompile error
)

func compiledPackSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://vigil.schemas.local/pack.schema.json"
		if err := c.AddResource(url, strings.NewReader(packSchema)); err != nil {
			schemaCompile = fmt.Errorf("pack schema load failed: %w", err)
			return
		}
		compiled, schemaCompile = c.Compile(url)
	})
	return compiled, schemaCompile
}
