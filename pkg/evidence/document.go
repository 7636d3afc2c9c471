// Package evidence loads the captured evidence documents a gate run consumes.
//
// Evidence is produced out of band, one JSON document per obligation, and
// handed to the gate evaluator as a read-only set. A missing document means
// the obligation was never exercised; the evaluator treats that as
// unverified, never as a failure. A malformed document is a load error
// because a gate must not run on evidence it cannot trust.
package evidence

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Document is one captured evidence record for a single obligation.
type Document struct {
	ObligationID string          `json:"obligation_id"`
	CapturedAt   time.Time       `json:"captured_at"`
	Criteria     map[string]bool `json:"criteria,omitempty"`
	Metrics      map[string]any  `json:"metrics,omitempty"`
	Artifacts    []string        `json:"artifacts,omitempty"`

	// Source is the path the document was loaded from. Set by the loader,
	// empty for documents built in memory.
	Source string `json:"-"`
}

// CriterionState reports whether the document attests the named criterion
// and, if so, whether it held. ok is false when the producer never recorded
// the criterion at all, which is weaker than recording it as false.
func (d *Document) CriterionState(name string) (value, ok bool) {
	if d.Criteria == nil {
		return false, false
	}
	value, ok = d.Criteria[name]
	return value, ok
}

// Payload renders the document as the generic map handed to assertion
// programs. Criteria and metrics keep their document keys; absent sections
// become empty maps so lookups fail softly instead of on a nil map.
func (d *Document) Payload() map[string]any {
	criteria := make(map[string]any, len(d.Criteria))
	for k, v := range d.Criteria {
		criteria[k] = v
	}
	metrics := make(map[string]any, len(d.Metrics))
	for k, v := range d.Metrics {
		metrics[k] = v
	}
	return map[string]any{
		"obligation_id": d.ObligationID,
		"captured_at":   d.CapturedAt.UTC().Format(time.RFC3339),
		"criteria":      criteria,
		"metrics":       metrics,
		"artifacts":     append([]string(nil), d.Artifacts...),
	}
}

// Paths returns the source path followed by every artifact reference, in
// document order. Used to fill a check's evidence trail.
func (d *Document) Paths() []string {
	paths := make([]string, 0, len(d.Artifacts)+1)
	if d.Source != "" {
		paths = append(paths, d.Source)
	}
	paths = append(paths, d.Artifacts...)
	return paths
}

const documentSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "title": "Evidence document",
  "type": "object",
  "required": ["obligation_id", "captured_at"],
  "properties": {
    "obligation_id": {"type": "string", "minLength": 1},
    "captured_at": {"type": "string", "format": "date-time"},
    "criteria": {
      "type": "object",
      "additionalProperties": {"type": "boolean"}
    },
    "metrics": {
      "type": "object",
      "additionalProperties": {"type": ["number", "string", "boolean"]}
    },
    "artifacts": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    }
  },
  "additionalProperties": false
}`

var compiledDocumentSchema = jsonschema.MustCompileString("evidence/document.schema.json", documentSchema)

// ParseDocument validates and decodes a single evidence document. source is
// recorded on the document and used in error messages.
func ParseDocument(data []byte, source string) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InvalidDocumentError{Source: source, Detail: err.Error()}
	}
	if err := compiledDocumentSchema.Validate(raw); err != nil {
		return nil, &InvalidDocumentError{Source: source, Detail: err.Error()}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, &InvalidDocumentError{Source: source, Detail: err.Error()}
	}
	doc.Source = source
	return &doc, nil
}

// InvalidDocumentError reports an evidence document that failed schema or
// JSON validation.
type InvalidDocumentError struct {
	Source string
	Detail string
}

func (e *InvalidDocumentError) Error() string {
	return fmt.Sprintf("evidence: invalid document %s: %s", e.Source, e.Detail)
}

// MismatchedDocumentError reports a document whose obligation_id does not
// match the file name it was loaded under. The mismatch is rejected so a
// stray copy cannot satisfy the wrong obligation.
type MismatchedDocumentError struct {
	Source string
	Want   string
	Got    string
}

func (e *MismatchedDocumentError) Error() string {
	return fmt.Sprintf("evidence: document %s declares obligation %q, file name implies %q", e.Source, e.Got, e.Want)
}
