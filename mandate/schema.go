package mandate

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is the JSON schema every emitted mandate document satisfies
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["@context", "type", "issuer", "issuanceDate", "credentialSubject", "proof"],
  "properties": {
    "@context": {"type": "array", "items": {"type": "string"}, "minItems": 1},
    "type": {"type": "array", "contains": {"const": "PaymentMandate"}},
    "issuer": {"type": "string", "minLength": 1},
    "issuanceDate": {"type": "string", "format": "date-time"},
    "credentialSubject": {
      "type": "object",
      "required": ["id", "payee", "amount", "condition"],
      "properties": {
        "id": {"type": "string", "pattern": "^urn:uuid:"},
        "payee": {"type": "string", "minLength": 1},
        "amount": {
          "type": "object",
          "required": ["currency", "value"],
          "properties": {
            "currency": {"type": "string", "minLength": 1},
            "value": {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
          }
        },
        "condition": {"type": "string", "minLength": 1}
      }
    },
    "proof": {
      "type": "object",
      "required": ["type", "created", "proofPurpose", "verificationMethod"],
      "properties": {
        "type": {"type": "string"},
        "created": {"type": "string", "format": "date-time"},
        "proofPurpose": {"type": "string"},
        "verificationMethod": {"type": "string"},
        "signature": {"type": "string"}
      }
    }
  }
}`

// ValidationResult contains the result of validating a mandate document
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks a mandate against Schema
func Validate(m *Mandate) ValidationResult {
	doc, err := json.Marshal(m)
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Failed to marshal mandate: %v", err)},
		}
	}
	return ValidateDocument(doc)
}

// ValidateDocument checks a raw mandate document against Schema
func ValidateDocument(doc []byte) ValidationResult {
	result, err := gojsonschema.Validate(gojsonschema.NewStringLoader(Schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return ValidationResult{
			Valid:  false,
			Errors: []string{fmt.Sprintf("Schema validation failed: %v", err)},
		}
	}

	if result.Valid() {
		return ValidationResult{Valid: true}
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return ValidationResult{Valid: false, Errors: errors}
}
