// Package plan implements the plan side of the RFC ⇄ plan lifecycle:
// generation handoff, schema validation, hash-based drift tracking, status
// moves, and deletion.
package plan

import (
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/aiwhisperer/aiwhisperer/pkg/models"
)

// planSchema is the contract every generated plan.json must satisfy before
// it is written to disk. Generation is LLM-driven, so the schema is the
// only thing standing between a hallucinated structure and the store.
const planSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["plan_type", "title", "tdd_phases", "tasks"],
  "properties": {
    "plan_type": {"type": "string", "minLength": 1},
    "title": {"type": "string", "minLength": 1},
    "description": {"type": "string"},
    "agent_type": {"type": "string"},
    "tdd_phases": {
      "type": "object",
      "required": ["red", "green", "refactor"],
      "properties": {
        "red": {"type": "array", "items": {"type": "string"}},
        "green": {"type": "array", "items": {"type": "string"}},
        "refactor": {"type": "array", "items": {"type": "string"}}
      }
    },
    "tasks": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["name", "description", "dependencies", "tdd_phase", "validation_criteria"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "agent_type": {"type": "string"},
          "dependencies": {"type": "array", "items": {"type": "string"}},
          "tdd_phase": {"enum": ["red", "green", "refactor"]},
          "validation_criteria": {"type": "array", "items": {"type": "string"}},
          "status": {"enum": ["pending", "in_progress", "completed"]}
        }
      }
    },
    "validation_criteria": {"type": "array", "items": {"type": "string"}}
  }
}`

var compiledPlanSchema = jsonschema.MustCompileString("plan.schema.json", planSchema)

// ValidatePlan checks raw plan JSON against the plan schema and decodes it.
func ValidatePlan(raw json.RawMessage) (*models.Plan, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, models.NewToolError(models.ErrSyntax, "plan is not valid JSON: %v", err)
	}
	if err := compiledPlanSchema.Validate(doc); err != nil {
		return nil, planValidationError(err)
	}
	var p models.Plan
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, models.NewToolError(models.ErrSyntax, "plan does not decode: %v", err)
	}
	return &p, nil
}

// planValidationError surfaces the deepest cause with its JSON Pointer, the
// same shape tool argument validation uses.
func planValidationError(err error) error {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return models.NewToolError(models.ErrInvalidArguments, "plan validation failed: %v", err)
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	loc := leaf.InstanceLocation
	if loc == "" {
		loc = "/"
	}
	return models.NewToolError(models.ErrInvalidArguments,
		"plan validation failed at %s: %s", loc, leaf.Message).
		WithSuggestions("regenerate the plan; every task needs name, description, dependencies, tdd_phase and validation_criteria",
			strings.TrimSpace("tdd_phase must be one of red, green, refactor"))
}
