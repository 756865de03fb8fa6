package validator

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schemas/*.json
var schemasFS embed.FS

// ValidationError represents a single validation error.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// ValidationResult holds the result of schema validation.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Validator validates model-generated form JSON against the embedded schema.
type Validator struct {
	formSchema *jsonschema.Schema
}

// New creates a new Validator with embedded schemas.
func New() (*Validator, error) {
	schemaData, err := schemasFS.ReadFile("schemas/GeneratedForm.schema.json")
	if err != nil {
		return nil, fmt.Errorf("read form schema: %w", err)
	}

	var schemaDoc interface{}
	if err := json.Unmarshal(schemaData, &schemaDoc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("form.json", schemaDoc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	schema, err := c.Compile("form.json")
	if err != nil {
		return nil, fmt.Errorf("compile form schema: %w", err)
	}

	return &Validator{formSchema: schema}, nil
}

// ValidateGeneratedForm validates the model's form JSON against the
// GeneratedForm schema.
func (v *Validator) ValidateGeneratedForm(formJSON []byte) ValidationResult {
	var doc interface{}
	if err := json.Unmarshal(formJSON, &doc); err != nil {
		return ValidationResult{
			Valid: false,
			Errors: []ValidationError{{
				Path:    "/",
				Message: fmt.Sprintf("invalid JSON: %v", err),
			}},
		}
	}

	err := v.formSchema.Validate(doc)
	if err == nil {
		return ValidationResult{Valid: true}
	}

	var errors []ValidationError
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		errors = extractErrors(ve)
	} else {
		errors = []ValidationError{{
			Path:    "/",
			Message: err.Error(),
		}}
	}

	return ValidationResult{Valid: false, Errors: errors}
}

func extractErrors(ve *jsonschema.ValidationError) []ValidationError {
	var errors []ValidationError

	// Recursively extract errors from causes
	if len(ve.Causes) > 0 {
		for _, cause := range ve.Causes {
			errors = append(errors, extractErrors(cause)...)
		}
	} else {
		// Leaf error
		path := "/" + strings.Join(ve.InstanceLocation, "/")
		errors = append(errors, ValidationError{
			Path:    path,
			Message: ve.Error(),
		})
	}

	return errors
}
