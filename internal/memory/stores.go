package memory

import (
	"context"
	"time"

	"mnemo/internal/model"
)

// GraphStore is the slice of the graph repository the orchestrators need.
// Implementations are always bound to one tenant's graph.
type GraphStore interface {
	CreateEntity(ctx context.Context, identifier model.Identifier, metadata map[string]string) (*model.Entity, *model.Identifier, bool, error)
	FindEntityByIdentifier(ctx context.Context, identifierType, value string) (*model.EntityBundle, error)
	FindEntityByID(ctx context.Context, entityID string) (*model.EntityBundle, error)
	CreateSource(ctx context.Context, content string, timestamp time.Time) (*model.Source, error)
	AddFactToEntity(ctx context.Context, entityID string, fact model.Fact, source model.Source, verb string, confidence float64) (*model.FactTriple, error)
	HasFactEdge(ctx context.Context, entityID, factID, verb string) (bool, error)
	ExpandFromFact(ctx context.Context, entityID, factID string) ([]model.FactTriple, error)
	ListFactEdges(ctx context.Context, entityID string) ([]model.EdgeRef, error)
	DeleteEntityByID(ctx context.Context, entityID string) (bool, error)
}

// VectorStore is the slice of the vector repository the orchestrators need.
// Implementations are always bound to one tenant.
type VectorStore interface {
	TenantID() string
	AddSemantic(ctx context.Context, entityID string, fact model.Fact, verb string) (bool, error)
	SearchSemantic(ctx context.Context, entityID, queryText string, topK int, minScore float32) ([]model.SemanticHit, error)
	DeleteSemantic(ctx context.Context, entityID, factID, verb string) (bool, error)
}

// Extractor is the text-to-facts collaborator. Failures mean "zero facts
// extracted"; they never abort an assimilation.
type Extractor interface {
	Extract(ctx context.Context, content string, priorTurns []string) ([]model.FactCandidate, error)
}
