package orchestrator

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/attestly/evidenceflow/internal/provider"
	"github.com/attestly/evidenceflow/internal/types"
)

// Pre-compiled patterns for cleaning AI responses. Models wrap JSON in
// markdown fences often enough that stripping them is table stakes.
var (
	codeFenceRegex = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?([\\s\\S]*?)\\n?```")
	objectRegex    = regexp.MustCompile(`(?s)\{[\s\S]*\}`)
)

// providerPayload is the JSON shape the analysis prompt asks providers for
type providerPayload struct {
	Summary  string          `json:"summary"`
	Findings []types.Finding `json:"findings"`
}

// buildAnalysisPrompt renders the analysis request for one evidence item.
// The same item always renders the same prompt, which keeps request digests
// stable across retries and providers.
func buildAnalysisPrompt(item *types.EvidenceItem) string {
	var sb strings.Builder
	sb.WriteString("You are a compliance evidence analyst. Analyze the evidence below and respond with JSON only, no prose.\n\n")
	sb.WriteString("Response format:\n")
	sb.WriteString(`{"summary": "<one paragraph>", "findings": [{"framework": "<e.g. SOC2>", "control": "<e.g. CC6.1>", "status": "satisfied|gap|inconclusive", "note": "<rationale>"}]}`)
	sb.WriteString("\n\n")
	sb.WriteString(fmt.Sprintf("Evidence type: %s\n", item.DeclaredType))
	if item.SourceRef != "" {
		sb.WriteString(fmt.Sprintf("Evidence source: %s\n", item.SourceRef))
	}
	sb.WriteString("Evidence payload:\n")
	sb.Write(item.Payload)
	return sb.String()
}

// aggregateResult normalizes the winning provider response into the single
// AnalysisResult for the run. Aggregation is deterministic: identical
// provider output always yields an identical result, and nothing from the
// response is silently dropped: unparseable output degrades to a raw-text
// summary rather than an error.
func aggregateResult(run *types.WorkflowRun, inv *provider.Invocation) *types.AnalysisResult {
	result := &types.AnalysisResult{
		RunID:       run.ID,
		TenantID:    run.TenantID,
		ContentHash: run.ContentHash,
		ProviderID:  inv.Response.ProviderID,
		CostUnits:   inv.TotalCost,
		CompletedAt: time.Now().UTC(),
	}

	payload, ok := parsePayload(inv.Response.Text)
	if !ok {
		result.Summary = strings.TrimSpace(inv.Response.Text)
		return result
	}

	result.Summary = strings.TrimSpace(payload.Summary)
	for _, f := range payload.Findings {
		if f.Control == "" {
			// A finding without a control cannot be attributed; fold its
			// note into the summary rather than losing it.
			if f.Note != "" {
				result.Summary += "\n" + f.Note
			}
			continue
		}
		if !types.IsValidFindingStatus(f.Status) {
			f.Status = types.FindingInconclusive
		}
		result.Findings = append(result.Findings, f)
	}
	return result
}

// parsePayload extracts the structured payload from provider output,
// tolerating code fences and surrounding prose.
func parsePayload(text string) (providerPayload, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return providerPayload{}, false
	}

	// Direct parse first
	var payload providerPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, true
	}

	// Strip markdown fences and retry
	cleaned := codeFenceRegex.ReplaceAllString(trimmed, "$1")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned != trimmed {
		if err := json.Unmarshal([]byte(cleaned), &payload); err == nil {
			return payload, true
		}
	}

	// Extract the first object from mixed content
	if match := objectRegex.FindString(cleaned); match != "" {
		if err := json.Unmarshal([]byte(match), &payload); err == nil {
			return payload, true
		}
	}

	return providerPayload{}, false
}
