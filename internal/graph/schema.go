package graph

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// EvidenceResultClass is the graph class holding analysis result projections
const EvidenceResultClass = "EvidenceResult"

// ComplianceScopeClass is the graph class for (tenant, framework) scopes that
// result projections link into
const ComplianceScopeClass = "ComplianceScope"

// GetEvidenceResultSchema returns the class definition for analysis result
// projections. The relational store remains the system of record; this class
// only carries what compliance queries traverse.
func GetEvidenceResultSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       EvidenceResultClass,
		Description: "Projection of a completed evidence analysis result.",
		Vectorizer:  "none",
		InvertedIndexConfig: &models.InvertedIndexConfig{
			IndexTimestamps: true,
		},
		Properties: []*models.Property{
			{
				Name:            "run_id",
				DataType:        []string{"text"},
				Description:     "Workflow run that produced this result.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "tenant_id",
				DataType:        []string{"text"},
				Description:     "Owning tenant.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "content_hash",
				DataType:        []string{"text"},
				Description:     "Normalized evidence fingerprint.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:         "summary",
				DataType:     []string{"text"},
				Description:  "Normalized analysis summary.",
				Tokenization: "word",
			},
			{
				Name:            "controls_satisfied",
				DataType:        []string{"text[]"},
				Description:     "Control identifiers determined satisfied.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "controls_gap",
				DataType:        []string{"text[]"},
				Description:     "Control identifiers with gaps.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:            "provider_id",
				DataType:        []string{"text"},
				Description:     "Provider whose response won the fallback chain.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "completed_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when the result was produced.",
				IndexFilterable: indexFilterable,
			},
			{
				Name:        "inScope",
				DataType:    []string{ComplianceScopeClass},
				Description: "Compliance scopes this result contributes evidence to.",
			},
		},
	}
}

// GetComplianceScopeSchema returns the class definition for compliance
// scopes. One scope exists per (tenant, framework) pair.
func GetComplianceScopeSchema() *models.Class {
	indexFilterable := new(bool)
	*indexFilterable = true

	return &models.Class{
		Class:       ComplianceScopeClass,
		Description: "A tenant's compliance scope for one framework.",
		Vectorizer:  "none",
		Properties: []*models.Property{
			{
				Name:            "tenant_id",
				DataType:        []string{"text"},
				Description:     "Owning tenant.",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "framework",
				DataType:        []string{"text"},
				Description:     "Compliance framework (e.g. SOC2, ISO27001).",
				IndexFilterable: indexFilterable,
				Tokenization:    "field",
			},
			{
				Name:            "created_at",
				DataType:        []string{"number"},
				Description:     "Unix milliseconds when this scope was created.",
				IndexFilterable: indexFilterable,
			},
		},
	}
}

// EnsureSchema creates the graph classes if they do not exist. The
// ComplianceScope class must exist before EvidenceResult because the latter
// references it.
func EnsureSchema(ctx context.Context, client *weaviate.Client) error {
	schemaGetters := []func() *models.Class{
		GetComplianceScopeSchema,
		GetEvidenceResultSchema,
	}

	for _, getSchema := range schemaGetters {
		class := getSchema()

		_, err := client.Schema().ClassGetter().WithClassName(class.Class).Do(ctx)
		if err == nil {
			continue // class already exists
		}

		fmt.Printf("Graph class %s not found, creating it\n", class.Class)
		if err := client.Schema().ClassCreator().WithClass(class).Do(ctx); err != nil {
			return fmt.Errorf("failed to create graph class %s: %w", class.Class, err)
		}
	}

	return nil
}
