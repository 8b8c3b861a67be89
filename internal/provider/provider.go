package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Request is one analysis request sent to an AI provider
type Request struct {
	TenantID string
	RunID    string
	// Prompt is the fully-rendered analysis prompt, evidence included
	Prompt string
	// MaxTokens bounds the response size
	MaxTokens int
}

// Digest returns a short stable digest of the prompt, used to correlate
// call records across providers without storing the prompt itself.
func (r Request) Digest() string {
	sum := sha256.Sum256([]byte(r.Prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// Response is the raw output of a provider call
type Response struct {
	// ProviderID identifies which provider produced the response
	ProviderID string
	// Text is the model's reply
	Text string
	// InputTokens and OutputTokens come from the provider's usage report
	InputTokens  int
	OutputTokens int
	// CostUnits is the accounted cost of the call in abstract units
	CostUnits float64
}

// Provider is one AI backend the gateway can call. Implementations must be
// safe for concurrent use.
type Provider interface {
	// ID returns a stable identifier, e.g. "anthropic" or "openai"
	ID() string
	// Call performs one request. The context carries the per-call timeout.
	Call(ctx context.Context, req Request) (*Response, error)
}

// RetryConfig controls per-provider retry behavior for transient errors
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
	// InitialBackoff is the delay before the first retry
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff"`
	// MaxBackoff caps the exponential backoff
	MaxBackoff time.Duration `json:"max_backoff" yaml:"max_backoff"`
}

// DefaultRetryConfig returns conservative retry settings
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     2,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     8 * time.Second,
	}
}

// isRetriableError determines if an error is transient and worth retrying
// against the same provider. Malformed requests (4xx other than 429) are
// not retriable: the request will not get better by repeating it.
func isRetriableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// Rate limits and server-side errors are transient
	retriablePatterns := []string{
		"429",
		"rate limit",
		"overloaded",
		"500",
		"502",
		"503",
		"504",
		"internal server error",
		"bad gateway",
		"service unavailable",
		"gateway timeout",
		"connection refused",
		"connection reset",
		"timeout",
		"deadline exceeded",
		"temporary failure",
		"eof",
	}

	for _, pattern := range retriablePatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isMalformedError reports whether the provider rejected the request itself
// (bad request, auth, not found). These count as failures for the breaker
// but skip retries and surface a distinct outcome.
func isMalformedError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	// 429 is rate limiting, not a malformed request
	if strings.Contains(errStr, "429") || strings.Contains(errStr, "rate limit") {
		return false
	}

	malformedPatterns := []string{
		"400",
		"bad request",
		"invalid request",
		"401",
		"unauthorized",
		"invalid api key",
		"403",
		"forbidden",
		"404",
		"not found",
		"422",
	}

	for _, pattern := range malformedPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
