// Package validate performs structural and semantic checks on incoming
// evidence before any expensive processing.
//
// Validation is a pure function over the evidence item: no I/O, no
// retries. Items that fail here go straight to a terminal Rejected state
// and must never reach the provider gateway.
package validate

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/attestly/evidenceflow/internal/types"
)

// DefaultMaxPayloadBytes bounds evidence payload size. Oversized evidence
// is rejected before it can burn provider tokens.
const DefaultMaxPayloadBytes = 1 << 20 // 1 MiB

// Outcome is the result of validating an evidence item.
type Outcome struct {
	// Valid is true if the item passed all checks
	Valid bool `json:"valid"`
	// Reasons lists every check that failed (empty when valid)
	Reasons []string `json:"reasons,omitempty"`
}

// Validator checks evidence items. Safe for concurrent use.
type Validator struct {
	validate        *validator.Validate
	maxPayloadBytes int
}

// New creates a validator. maxPayloadBytes <= 0 uses DefaultMaxPayloadBytes.
func New(maxPayloadBytes int) *Validator {
	if maxPayloadBytes <= 0 {
		maxPayloadBytes = DefaultMaxPayloadBytes
	}
	return &Validator{
		validate:        validator.New(validator.WithRequiredStructEnabled()),
		maxPayloadBytes: maxPayloadBytes,
	}
}

// Validate runs all structural and semantic checks and returns every
// failure at once, so a caller fixing its submission doesn't have to
// iterate one error at a time.
func (v *Validator) Validate(item *types.EvidenceItem) Outcome {
	var reasons []string

	// Structural: required fields and declared-type enum via struct tags.
	if err := v.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if ok := asValidationErrors(err, &verrs); ok {
			for _, fe := range verrs {
				reasons = append(reasons, structuralReason(fe))
			}
		} else {
			reasons = append(reasons, fmt.Sprintf("structural validation failed: %v", err))
		}
	}

	// Structural: size bounds.
	if len(item.Payload) > v.maxPayloadBytes {
		reasons = append(reasons, fmt.Sprintf("payload exceeds size bound (%d > %d bytes)", len(item.Payload), v.maxPayloadBytes))
	}

	// Semantic: declared type must match what the payload actually looks
	// like. Only meaningful when the structural checks left us a payload
	// and a recognizable declared type.
	if len(item.Payload) > 0 && types.IsValidEvidenceType(item.DeclaredType) {
		inferred := InferContentType(item.Payload)
		if !typeMatches(item.DeclaredType, inferred) {
			reasons = append(reasons, fmt.Sprintf("declared type %q does not match inferred content type %q", item.DeclaredType, inferred))
		}
	}

	return Outcome{Valid: len(reasons) == 0, Reasons: reasons}
}

// InferContentType classifies a payload into one of the evidence types
// from its bytes alone.
func InferContentType(payload []byte) string {
	if json.Valid(payload) && looksStructural(payload) {
		return types.EvidenceTypeJSON
	}

	sniffed := http.DetectContentType(payload)
	if strings.HasPrefix(sniffed, "image/") {
		return types.EvidenceTypeScreenshot
	}

	if utf8.Valid(payload) {
		return types.EvidenceTypeText
	}
	return "binary"
}

// typeMatches reports whether a declared type is compatible with the
// inferred one. Text and log are both free-form UTF-8; we cannot tell
// them apart from bytes, so either declaration matches inferred text.
func typeMatches(declared, inferred string) bool {
	switch declared {
	case types.EvidenceTypeJSON:
		return inferred == types.EvidenceTypeJSON
	case types.EvidenceTypeText, types.EvidenceTypeLog:
		// JSON is valid UTF-8 text too; declaring it as text is harmless.
		return inferred == types.EvidenceTypeText || inferred == types.EvidenceTypeJSON
	case types.EvidenceTypeScreenshot:
		return inferred == types.EvidenceTypeScreenshot
	}
	return false
}

// looksStructural reports whether JSON-valid bytes are an object or array
// rather than a bare scalar. A payload of just "42" is text, not evidence
// JSON.
func looksStructural(payload []byte) bool {
	trimmed := strings.TrimSpace(string(payload))
	return strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")
}

// structuralReason renders one field error in caller-facing terms.
func structuralReason(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", strings.ToLower(fe.Field()))
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", strings.ToLower(fe.Field()), fe.Param())
	default:
		return fmt.Sprintf("%s failed %s check", strings.ToLower(fe.Field()), fe.Tag())
	}
}

// asValidationErrors unwraps err into validator.ValidationErrors if possible.
func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = verrs
	}
	return ok
}
