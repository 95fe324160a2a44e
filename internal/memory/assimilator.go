package memory

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"mnemo/internal/model"
	"mnemo/pkg/logger"
)

// maxConcurrentFactWrites bounds the per-assimilation fan-out across the
// graph and vector stores
const maxConcurrentFactWrites = 4

// Assimilator ingests raw content for one tenant: it anchors an entity,
// persists the episodic source, distills facts, and mirrors each accepted
// fact into the semantic index. Constructed per request with repositories
// already bound to the tenant.
type Assimilator struct {
	graph     GraphStore
	vectors   VectorStore
	extractor Extractor
	logger    *zap.Logger
}

// NewAssimilator creates an assimilation orchestrator
func NewAssimilator(graphStore GraphStore, vectorStore VectorStore, extractor Extractor) *Assimilator {
	return &Assimilator{
		graph:     graphStore,
		vectors:   vectorStore,
		extractor: extractor,
		logger:    logger.Named("assimilator"),
	}
}

// AssimilationResult reports what one ingestion produced
type AssimilationResult struct {
	Entity        model.Entity       `json:"entity"`
	EntityCreated bool               `json:"entity_created"`
	Source        model.Source       `json:"source"`
	Facts         []model.FactTriple `json:"facts"`
}

// Assimilate runs the write path. The source write completes before any
// fact or vector write starts, so a crash mid-way never leaves a fact
// pointing at a missing source. A vector write failing after its graph
// write succeeded is logged with its relationship key and tolerated: the
// graph stays the source of truth and a missing vector only degrades
// recall.
func (a *Assimilator) Assimilate(ctx context.Context, identifier model.Identifier, content string, timestamp time.Time, priorTurns []string) (*AssimilationResult, error) {
	// Reject bad input before any store call.
	if err := identifier.Validate(); err != nil {
		return nil, err
	}
	trimmed, err := model.ValidateSourceContent(content)
	if err != nil {
		return nil, err
	}

	entity, _, created, err := a.graph.CreateEntity(ctx, identifier, nil)
	if err != nil {
		return nil, err
	}

	// The episodic record is kept even when nothing is extracted from it.
	source, err := a.graph.CreateSource(ctx, trimmed, timestamp)
	if err != nil {
		return nil, err
	}

	candidates, err := a.extractor.Extract(ctx, trimmed, priorTurns)
	if err != nil {
		a.logger.Warn("Extraction failed, keeping episodic record only",
			zap.String("entity_id", entity.ID),
			zap.String("source_id", source.ID),
			zap.Error(err),
		)
		candidates = nil
	}

	accepted := make([]*model.FactTriple, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFactWrites)

	for idx, candidate := range candidates {
		idx, candidate := idx, candidate
		g.Go(func() error {
			fact := model.Fact{Name: candidate.Name, Type: candidate.Type}

			// Graph first. The vector index is only ever a mirror of an
			// edge that already exists.
			triple, err := a.graph.AddFactToEntity(gctx, entity.ID, fact, *source, candidate.Verb, candidate.Confidence)
			if err != nil {
				return err
			}
			if triple == nil {
				a.logger.Warn("Entity vanished during assimilation",
					zap.String("entity_id", entity.ID),
					zap.String("fact_id", fact.FactID()),
				)
				return nil
			}
			accepted[idx] = triple

			if _, err := a.vectors.AddSemantic(gctx, entity.ID, fact, candidate.Verb); err != nil {
				a.logger.Error("Vector write failed after graph write, continuing",
					zap.String("relationship_key", model.RelationshipKey(a.vectors.TenantID(), entity.ID, candidate.Verb, fact.FactID())),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &AssimilationResult{
		Entity:        *entity,
		EntityCreated: created,
		Source:        *source,
		Facts:         make([]model.FactTriple, 0, len(candidates)),
	}
	for _, triple := range accepted {
		if triple != nil {
			result.Facts = append(result.Facts, *triple)
		}
	}

	a.logger.Info("Content assimilated",
		zap.String("entity_id", entity.ID),
		zap.Bool("entity_created", created),
		zap.String("source_id", source.ID),
		zap.Int("facts", len(result.Facts)),
	)
	return result, nil
}

// Forget removes an entity entirely: its semantic vectors first, then the
// graph cascade. A vector delete failure is logged and does not block the
// graph delete; the point id stays derivable from the edge, so cleanup can
// be replayed.
func (a *Assimilator) Forget(ctx context.Context, entityID string) (bool, error) {
	edges, err := a.graph.ListFactEdges(ctx, entityID)
	if err != nil {
		return false, err
	}
	for _, edge := range edges {
		if _, err := a.vectors.DeleteSemantic(ctx, entityID, edge.FactID, edge.Verb); err != nil {
			a.logger.Error("Vector delete failed during forget, continuing",
				zap.String("relationship_key", model.RelationshipKey(a.vectors.TenantID(), entityID, edge.Verb, edge.FactID)),
				zap.Error(err),
			)
		}
	}
	return a.graph.DeleteEntityByID(ctx, entityID)
}
