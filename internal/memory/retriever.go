package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"mnemo/internal/model"
	"mnemo/pkg/logger"
)

// Retrieval modes
const (
	ModeExhaustive = "exhaustive"
	ModeSemantic   = "semantic"
)

// Retriever reads an entity's memory either exhaustively or through
// vector-anchored graph traversal. The vector index proposes, the graph
// disposes: no hit is surfaced without a matching HAS_FACT edge.
type Retriever struct {
	graph   GraphStore
	vectors VectorStore
	logger  *zap.Logger
}

// NewRetriever creates a retrieval orchestrator
func NewRetriever(graphStore GraphStore, vectorStore VectorStore) *Retriever {
	return &Retriever{
		graph:   graphStore,
		vectors: vectorStore,
		logger:  logger.Named("retriever"),
	}
}

// RecallOptions shape a recall. An empty Query selects the exhaustive mode.
type RecallOptions struct {
	Query    string
	TopK     int
	MinScore float32
	// Depth > 0 expands one hop from each verified anchor
	Depth int
}

// RecalledFact is one fact in a recall result. Score is the vector score
// for anchors; expanded facts carry the anchor flag unset.
type RecalledFact struct {
	model.FactTriple
	Score  float32 `json:"score,omitempty"`
	Anchor bool    `json:"anchor"`
}

// RecallResult is everything a recall returns
type RecallResult struct {
	Entity      model.Entity       `json:"entity"`
	Identifiers []model.Identifier `json:"identifiers"`
	Facts       []RecalledFact     `json:"facts"`
	Mode        string             `json:"mode"`
	// DroppedUnverified counts vector hits discarded because no matching
	// graph edge exists. Expected to be zero in steady state.
	DroppedUnverified int `json:"dropped_unverified,omitempty"`
}

// Recall resolves the entity by identifier and returns its facts. Nil means
// the identifier is unknown.
func (r *Retriever) Recall(ctx context.Context, identifierType, value string, opts RecallOptions) (*RecallResult, error) {
	bundle, err := r.graph.FindEntityByIdentifier(ctx, identifierType, value)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, nil
	}

	if opts.Query == "" {
		return r.exhaustive(bundle), nil
	}
	return r.anchorAndExpand(ctx, bundle, opts)
}

// RecallByID is Recall keyed by system id
func (r *Retriever) RecallByID(ctx context.Context, entityID string, opts RecallOptions) (*RecallResult, error) {
	bundle, err := r.graph.FindEntityByID(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if bundle == nil {
		return nil, nil
	}

	if opts.Query == "" {
		return r.exhaustive(bundle), nil
	}
	return r.anchorAndExpand(ctx, bundle, opts)
}

func (r *Retriever) exhaustive(bundle *model.EntityBundle) *RecallResult {
	result := &RecallResult{
		Entity:      bundle.Entity,
		Identifiers: bundle.Identifiers,
		Facts:       make([]RecalledFact, 0, len(bundle.Facts)),
		Mode:        ModeExhaustive,
	}
	for _, triple := range bundle.Facts {
		result.Facts = append(result.Facts, RecalledFact{FactTriple: triple})
	}
	return result
}

// anchorAndExpand implements the hybrid search: vector candidates, graph
// verification, optional one-hop expansion. Anchors keep vector-score
// order; expansions are appended after them, unscored.
func (r *Retriever) anchorAndExpand(ctx context.Context, bundle *model.EntityBundle, opts RecallOptions) (*RecallResult, error) {
	entityID := bundle.Entity.ID

	hits, err := r.vectors.SearchSemantic(ctx, entityID, opts.Query, opts.TopK, opts.MinScore)
	if err != nil {
		return nil, err
	}

	result := &RecallResult{
		Entity:      bundle.Entity,
		Identifiers: bundle.Identifiers,
		Facts:       []RecalledFact{},
		Mode:        ModeSemantic,
	}
	seen := map[string]bool{}
	var verified []model.SemanticHit

	// Anchors first. A fact reachable both directly and through expansion
	// keeps its anchor flag and score.
	for _, hit := range hits {
		// The store applies the threshold too; filtering again here keeps
		// the contract independent of store behavior.
		if opts.MinScore > 0 && hit.Score < opts.MinScore {
			continue
		}

		// A hit the graph cannot confirm is never surfaced: the edge may
		// have been deleted after the vector was written, or the point may
		// be stale. The graph is the authority.
		ok, err := r.graph.HasFactEdge(ctx, entityID, hit.FactID, hit.Verb)
		if err != nil {
			return nil, err
		}
		if !ok {
			result.DroppedUnverified++
			r.logger.Warn("Dropping unverified vector hit",
				zap.String("entity_id", entityID),
				zap.String("fact_id", hit.FactID),
				zap.String("verb", hit.Verb),
			)
			continue
		}
		verified = append(verified, hit)

		for _, anchor := range anchorTriples(bundle, hit) {
			key := tripleKey(anchor)
			if seen[key] {
				continue
			}
			seen[key] = true
			result.Facts = append(result.Facts, RecalledFact{
				FactTriple: anchor,
				Score:      hit.Score,
				Anchor:     true,
			})
		}
	}

	if opts.Depth > 0 {
		for _, hit := range verified {
			siblings, err := r.graph.ExpandFromFact(ctx, entityID, hit.FactID)
			if err != nil {
				return nil, err
			}
			for _, sibling := range siblings {
				key := tripleKey(sibling)
				if seen[key] {
					continue
				}
				seen[key] = true
				result.Facts = append(result.Facts, RecalledFact{FactTriple: sibling})
			}
		}
	}

	return result, nil
}

// anchorTriples pulls the verified edge's triples out of the already-loaded
// bundle. An edge written after the bundle was fetched is reconstructed
// from the hit itself.
func anchorTriples(bundle *model.EntityBundle, hit model.SemanticHit) []model.FactTriple {
	var triples []model.FactTriple
	for _, triple := range bundle.Facts {
		if triple.Fact.FactID() == hit.FactID && triple.Relationship.Verb == hit.Verb {
			triples = append(triples, triple)
		}
	}
	if len(triples) == 0 {
		if fact, ok := model.ParseFactID(hit.FactID); ok {
			triples = append(triples, model.FactTriple{
				Fact:         fact,
				Relationship: model.FactRelationship{Verb: hit.Verb},
			})
		}
	}
	return triples
}

func tripleKey(triple model.FactTriple) string {
	sourceID := ""
	if triple.Source != nil {
		sourceID = triple.Source.ID
	}
	return fmt.Sprintf("%s|%s|%s", triple.Fact.FactID(), triple.Relationship.Verb, sourceID)
}
