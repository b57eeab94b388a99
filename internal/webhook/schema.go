package webhook

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/agentmesh/core/internal/resilience"
)

// githubEventSchema is deliberately loose: GitHub payloads vary shape per
// event, so this only enforces the structural minimum the dispatcher
// relies on (an object body; optional nested objects are typed when
// present). Field extraction itself is done with gjson, which tolerates
// absent paths — this schema exists to turn a badly-shaped payload into a
// MalformedPayload before extraction runs, rather than a panic or a
// silent nil-map lookup.
const githubEventSchemaJSON = `{
  "type": "object",
  "properties": {
    "action": {"type": "string"},
    "repository": {
      "type": "object",
      "properties": {"full_name": {"type": "string"}}
    },
    "sender": {
      "type": "object",
      "properties": {"login": {"type": "string"}}
    },
    "comment": {
      "type": "object",
      "properties": {
        "body": {"type": "string"},
        "html_url": {"type": "string"},
        "user": {"type": "object", "properties": {"login": {"type": "string"}}}
      }
    },
    "issue": {
      "type": "object",
      "properties": {
        "number": {"type": "integer"},
        "title": {"type": "string"},
        "body": {"type": "string"},
        "html_url": {"type": "string"},
        "user": {"type": "object", "properties": {"login": {"type": "string"}}},
        "labels": {"type": "array"}
      }
    }
  }
}`

// SchemaValidator validates inbound webhook payloads before field
// extraction runs.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// NewSchemaValidator compiles the fixed GitHub event schema once at
// startup.
func NewSchemaValidator() (*SchemaValidator, error) {
	// jsonschema.UnmarshalJSON keeps numbers as json.Number, which the
	// validator requires.
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(githubEventSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("webhook: unmarshal schema JSON: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("github-event.json", doc); err != nil {
		return nil, fmt.Errorf("webhook: add schema resource: %w", err)
	}
	schema, err := compiler.Compile("github-event.json")
	if err != nil {
		return nil, fmt.Errorf("webhook: compile schema: %w", err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// Validate parses payload as JSON and checks it against the schema,
// returning *resilience.MalformedPayloadError on either failure.
func (v *SchemaValidator) Validate(payload []byte) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(payload)))
	if err != nil {
		return &resilience.MalformedPayloadError{Reason: "invalid JSON: " + err.Error()}
	}
	if err := v.schema.Validate(doc); err != nil {
		return &resilience.MalformedPayloadError{Reason: "schema violation: " + err.Error()}
	}
	return nil
}
