package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rvergara/maestro/pkg/schema"
)

// submissionSchemaJSON is the JSON Schema for workflow submissions.
// Embedded as a constant to avoid filesystem dependencies.
const submissionSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://maestro.dev/schemas/submission.json",
  "type": "object",
  "required": ["request"],
  "properties": {
    "request": {
      "type": "string",
      "minLength": 1,
      "maxLength": 10000
    },
    "workflow_type": {
      "type": "string",
      "minLength": 1
    },
    "async": {
      "type": "boolean"
    }
  },
  "additionalProperties": false
}`

// Submission is a workflow execution request from the HTTP surface.
type Submission struct {
	Request      string `json:"request"`
	WorkflowType string `json:"workflow_type,omitempty"`
	Async        bool   `json:"async,omitempty"`
}

// SubmissionValidator checks workflow submissions against the embedded JSON
// Schema. Safe for concurrent use; the schema is compiled once.
type SubmissionValidator struct {
	compiled *jsonschema.Schema
}

// NewSubmissionValidator compiles the submission schema.
func NewSubmissionValidator() (*SubmissionValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(submissionSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal submission schema: %w", err)
	}
	if err := c.AddResource("https://maestro.dev/schemas/submission.json", doc); err != nil {
		return nil, fmt.Errorf("add submission schema resource: %w", err)
	}
	compiled, err := c.Compile("https://maestro.dev/schemas/submission.json")
	if err != nil {
		return nil, fmt.Errorf("compile submission schema: %w", err)
	}
	return &SubmissionValidator{compiled: compiled}, nil
}

// Validate checks the raw submission body and decodes it on success.
func (v *SubmissionValidator) Validate(body []byte) (*Submission, error) {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(body)))
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "request body is not valid JSON").WithCause(err)
	}
	if err := v.compiled.Validate(doc); err != nil {
		return nil, toValidationError(err)
	}

	var sub Submission
	if err := json.Unmarshal(body, &sub); err != nil {
		return nil, schema.NewError(schema.ErrCodeValidation, "decode submission").WithCause(err)
	}
	return &sub, nil
}

// toValidationError flattens a jsonschema error tree into a structured error
// with per-field violation messages.
func toValidationError(err error) *schema.Error {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks the error tree and collects leaf messages with
// their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
