package validate

import (
	"strings"
	"testing"
	"time"

	"github.com/attestly/evidenceflow/internal/types"
)

func validItem() *types.EvidenceItem {
	return &types.EvidenceItem{
		TenantID:     "t1",
		Payload:      []byte(`{"bucket":"audit-logs","encrypted":true}`),
		DeclaredType: types.EvidenceTypeJSON,
		SubmittedAt:  time.Now(),
		SourceRef:    "aws:config-rule/s3-encryption",
	}
}

func TestValidateAcceptsWellFormedEvidence(t *testing.T) {
	v := New(0)
	outcome := v.Validate(validItem())
	if !outcome.Valid {
		t.Errorf("expected valid, got reasons: %v", outcome.Reasons)
	}
}

func TestValidateStructural(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*types.EvidenceItem)
		reason string
	}{
		{
			name:   "missing tenant",
			mutate: func(e *types.EvidenceItem) { e.TenantID = "" },
			reason: "tenantid is required",
		},
		{
			name:   "missing payload",
			mutate: func(e *types.EvidenceItem) { e.Payload = nil },
			reason: "payload is required",
		},
		{
			name:   "unknown declared type",
			mutate: func(e *types.EvidenceItem) { e.DeclaredType = "spreadsheet" },
			reason: "declaredtype must be one of",
		},
	}

	v := New(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := validItem()
			tt.mutate(item)
			outcome := v.Validate(item)
			if outcome.Valid {
				t.Fatal("expected invalid")
			}
			found := false
			for _, r := range outcome.Reasons {
				if strings.Contains(r, tt.reason) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected reason containing %q, got %v", tt.reason, outcome.Reasons)
			}
		})
	}
}

func TestValidateSizeBound(t *testing.T) {
	v := New(64)
	item := validItem()
	item.DeclaredType = types.EvidenceTypeText
	item.Payload = []byte(strings.Repeat("a", 65))

	outcome := v.Validate(item)
	if outcome.Valid {
		t.Fatal("expected oversized payload to be invalid")
	}
	if !strings.Contains(outcome.Reasons[0], "size bound") {
		t.Errorf("expected size bound reason, got %v", outcome.Reasons)
	}
}

func TestValidateSemanticTypeMismatch(t *testing.T) {
	v := New(0)

	item := validItem()
	item.DeclaredType = types.EvidenceTypeScreenshot // payload is JSON
	outcome := v.Validate(item)
	if outcome.Valid {
		t.Fatal("expected declared/inferred mismatch to be invalid")
	}

	// JSON declared as text is allowed: JSON is text.
	item = validItem()
	item.DeclaredType = types.EvidenceTypeText
	outcome = v.Validate(item)
	if !outcome.Valid {
		t.Errorf("JSON declared as text should pass, got %v", outcome.Reasons)
	}
}

func TestValidateCollectsAllReasons(t *testing.T) {
	v := New(16)
	item := &types.EvidenceItem{
		TenantID:     "",
		Payload:      []byte(strings.Repeat("x", 32)),
		DeclaredType: "spreadsheet",
	}
	outcome := v.Validate(item)
	if outcome.Valid {
		t.Fatal("expected invalid")
	}
	if len(outcome.Reasons) < 3 {
		t.Errorf("expected at least 3 reasons (tenant, type, size), got %v", outcome.Reasons)
	}
}

func TestInferContentType(t *testing.T) {
	// Minimal PNG header bytes.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}

	tests := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"json object", []byte(`{"a":1}`), types.EvidenceTypeJSON},
		{"json array", []byte(`[1,2,3]`), types.EvidenceTypeJSON},
		{"bare number is text", []byte(`42`), types.EvidenceTypeText},
		{"plain text", []byte("access reviewed on 2026-08-01"), types.EvidenceTypeText},
		{"png image", png, types.EvidenceTypeScreenshot},
		{"binary", []byte{0x00, 0x01, 0x02, 0xff, 0xfe}, "binary"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InferContentType(tt.payload); got != tt.want {
				t.Errorf("InferContentType = %q, want %q", got, tt.want)
			}
		})
	}
}
