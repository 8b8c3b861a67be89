package graph

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/attestly/evidenceflow/internal/types"
)

// BeaconRef is a Weaviate cross-reference beacon
type BeaconRef struct {
	Beacon string `json:"beacon"`
}

// Store projects completed analysis results into the Weaviate graph. The
// relational store is the system of record; the graph carries the
// traversable view compliance queries run against.
type Store struct {
	client *weaviate.Client
}

// New creates a graph store against the Weaviate instance at weaviateURL
// (e.g. "http://localhost:8080") and ensures the schema exists.
func New(ctx context.Context, weaviateURL string) (*Store, error) {
	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid weaviate URL: %s", weaviateURL)
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	if err := EnsureSchema(ctx, client); err != nil {
		return nil, err
	}

	return &Store{client: client}, nil
}

// NewWithClient creates a graph store over an existing client without
// touching the schema. Used by tests.
func NewWithClient(client *weaviate.Client) *Store {
	return &Store{client: client}
}

// InsertProjection writes the graph projection of a completed result,
// linked into one compliance scope per framework the findings mention.
func (s *Store) InsertProjection(ctx context.Context, result *types.AnalysisResult) error {
	props, frameworks := buildProjectionProps(result)

	// Link into the per-framework scopes. A scope lookup failure degrades
	// to an unlinked projection rather than failing the saga's second leg
	// for a missing reference.
	var beacons []BeaconRef
	for framework := range frameworks {
		scopeUUID, err := s.findOrCreateScope(ctx, result.TenantID, framework)
		if err != nil {
			fmt.Printf("Warning: failed to resolve compliance scope %s/%s: %v (projection unlinked)\n",
				result.TenantID, framework, err)
			continue
		}
		beacons = append(beacons, BeaconRef{
			Beacon: fmt.Sprintf("weaviate://localhost/%s/%s", ComplianceScopeClass, scopeUUID),
		})
	}
	if len(beacons) > 0 {
		props["inScope"] = beacons
	}

	_, err := s.client.Data().Creator().
		WithClassName(EvidenceResultClass).
		WithProperties(props).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert graph projection for run %s: %w", result.RunID, err)
	}

	return nil
}

// buildProjectionProps flattens a result into Weaviate properties and
// collects the frameworks its findings mention.
func buildProjectionProps(result *types.AnalysisResult) (map[string]interface{}, map[string]bool) {
	props := map[string]interface{}{
		"run_id":       result.RunID,
		"tenant_id":    result.TenantID,
		"content_hash": result.ContentHash,
		"summary":      result.Summary,
		"provider_id":  result.ProviderID,
		"completed_at": result.CompletedAt.UnixMilli(),
	}

	var satisfied, gaps []string
	frameworks := make(map[string]bool)
	for _, f := range result.Findings {
		switch f.Status {
		case types.FindingSatisfied:
			satisfied = append(satisfied, f.Control)
		case types.FindingGap:
			gaps = append(gaps, f.Control)
		}
		if f.Framework != "" {
			frameworks[f.Framework] = true
		}
	}
	props["controls_satisfied"] = satisfied
	props["controls_gap"] = gaps
	return props, frameworks
}

// findOrCreateScope finds the scope object for a (tenant, framework) pair
// and returns its UUID, creating it when absent.
func (s *Store) findOrCreateScope(ctx context.Context, tenantID, framework string) (string, error) {
	where := filters.Where().WithOperator(filters.And).WithOperands([]*filters.WhereBuilder{
		filters.Where().
			WithPath([]string{"tenant_id"}).
			WithOperator(filters.Equal).
			WithValueString(tenantID),
		filters.Where().
			WithPath([]string{"framework"}).
			WithOperator(filters.Equal).
			WithValueString(framework),
	})

	fields := []graphql.Field{
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}}},
	}

	resp, err := s.client.GraphQL().Get().
		WithClassName(ComplianceScopeClass).
		WithWhere(where).
		WithFields(fields...).
		WithLimit(1).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("error querying for scope: %w", err)
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("scope query returned errors: %v", resp.Errors[0].Message)
	}

	if uuid := extractFirstID(resp.Data, ComplianceScopeClass); uuid != "" {
		return uuid, nil
	}

	// Not found, create it
	result, err := s.client.Data().Creator().
		WithClassName(ComplianceScopeClass).
		WithProperties(map[string]interface{}{
			"tenant_id":  tenantID,
			"framework":  framework,
			"created_at": time.Now().UnixMilli(),
		}).
		Do(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create scope: %w", err)
	}
	if result == nil || result.Object == nil {
		return "", fmt.Errorf("weaviate created a scope but returned a nil result")
	}
	return result.Object.ID.String(), nil
}

// extractFirstID pulls the first object's _additional.id out of a GraphQL
// Get response for the given class
func extractFirstID(data map[string]models.JSONObject, className string) string {
	get, ok := data["Get"].(map[string]interface{})
	if !ok {
		return ""
	}
	objects, ok := get[className].([]interface{})
	if !ok || len(objects) == 0 {
		return ""
	}
	obj, ok := objects[0].(map[string]interface{})
	if !ok {
		return ""
	}
	additional, ok := obj["_additional"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := additional["id"].(string)
	return id
}
