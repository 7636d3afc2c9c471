package obligation

import (
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// obligationSchema is the Draft 2020-12 schema every obligation source
// must satisfy before it is decoded into a typed record. Untyped maps
// never cross this boundary.
const obligationSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["id", "title", "domain", "risk", "pass_criteria"],
  "properties": {
    "id": {
      "type": "string",
      "pattern": "^[a-z0-9_-]+(\\.[a-z0-9_-]+)+$"
    },
    "title": {"type": "string", "minLength": 1},
    "domain": {"type": "string", "minLength": 1},
    "risk": {"enum": ["low", "medium", "high"]},
    "safe_in_prod": {"type": "boolean"},
    "required_signals": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "pass_criteria": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "minLength": 1}
    },
    "suggested_checks": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "method"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "method": {"type": "string", "minLength": 1}
        },
        "additionalProperties": false
      }
    },
    "evidence_to_capture": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  },
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaCompile  error
)

// compiledObligationSchema compiles the obligation schema once per process.
func compiledObligationSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://vigil.schemas.local/obligation.schema.json"
		if err := c.AddResource(url, strings.NewReader(obligationSchema)); err != nil {
			schemaCompile = fmt.Errorf("obligation schema load failed: %w", err)
			return
		}
		compiledSchema, schemaCompile = c.Compile(url)
	})
	return compiledSchema, schemaCompile
}
