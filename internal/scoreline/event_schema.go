package scoreline

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const callEventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["orgId", "repId", "answered"],
	"properties": {
		"orgId": {"type": "string", "minLength": 1},
		"repId": {"type": "string", "minLength": 1},
		"callId": {"type": "string"},
		"durationSeconds": {"type": "integer", "minimum": 0},
		"answered": {"type": "boolean"},
		"disposition": {
			"type": "string",
			"enum": ["", "qualified", "converted", "callback", "neutral", "not_interested"]
		},
		"occurredAt": {"type": "string"}
	},
	"additionalProperties": false
}`

const followupEventSchemaJSON = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["orgId", "repId", "daysLate"],
	"properties": {
		"orgId": {"type": "string", "minLength": 1},
		"repId": {"type": "string", "minLength": 1},
		"followupId": {"type": "string"},
		"daysLate": {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

var (
	schemaOnce          sync.Once
	schemaErr           error
	callEventSchema     *jsonschema.Schema
	followupEventSchema *jsonschema.Schema
)

func compileEventSchemas() error {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		for name, raw := range map[string]string{
			"call-event.json":     callEventSchemaJSON,
			"followup-event.json": followupEventSchemaJSON,
		} {
			doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
			if err != nil {
				schemaErr = err
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				schemaErr = err
				return
			}
		}
		callEventSchema, schemaErr = compiler.Compile("call-event.json")
		if schemaErr != nil {
			return
		}
		followupEventSchema, schemaErr = compiler.Compile("followup-event.json")
	})
	return schemaErr
}

func validateAgainst(schema *jsonschema.Schema, body []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: invalid json: %v", ErrInvalidInput, err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

// ValidateCallEventJSON checks a raw call-completion payload against the
// embedded schema. Violations wrap ErrInvalidInput.
func ValidateCallEventJSON(body []byte) error {
	if err := compileEventSchemas(); err != nil {
		return err
	}
	return validateAgainst(callEventSchema, body)
}

// ValidateFollowupEventJSON checks a raw missed-followup payload against the
// embedded schema. Violations wrap ErrInvalidInput.
func ValidateFollowupEventJSON(body []byte) error {
	if err := compileEventSchemas(); err != nil {
		return err
	}
	return validateAgainst(followupEventSchema, body)
}
