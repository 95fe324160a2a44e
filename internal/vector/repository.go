package vector

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"mnemo/internal/model"
	"mnemo/pkg/errors"
	"mnemo/pkg/logger"
)

// Embedder maps text to a fixed-dimension vector. The dimension is a
// deployment-time constant checked against the collection at startup.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Repository upserts and searches semantic-memory vectors in a tenant- and
// entity-partitioned index. Always constructed bound to one tenant; every
// query and write carries the tenant filter, so no cross-tenant point can be
// observed or touched.
type Repository struct {
	client     *qdrant.Client
	embedder   Embedder
	collection string
	tenantID   string
	logger     *zap.Logger
}

// NewRepository creates a vector repository bound to one tenant
func NewRepository(client *qdrant.Client, embedder Embedder, collection, tenantID string) *Repository {
	return &Repository{
		client:     client,
		embedder:   embedder,
		collection: collection,
		tenantID:   tenantID,
		logger:     logger.Named("vector").With(zap.String("tenant_id", tenantID)),
	}
}

// TenantID returns the tenant this repository is bound to
func (r *Repository) TenantID() string {
	return r.tenantID
}

// AddSemantic mirrors one HAS_FACT edge into the semantic index. The point
// id is derived deterministically from (tenant, entity, verb, fact), so
// re-adding the same triple overwrites rather than duplicates.
func (r *Repository) AddSemantic(ctx context.Context, entityID string, fact model.Fact, verb string) (bool, error) {
	if entityID == "" {
		return false, errors.NewBaseError(errors.ErrorTypeValidation, "entity id is required for semantic writes", nil)
	}
	if err := fact.Validate(); err != nil {
		return false, err
	}

	sentence := SemanticSentence(verb, fact)
	embedding, err := r.embedder.Embed(ctx, sentence)
	if err != nil {
		return false, err
	}

	factID := fact.FactID()
	key := model.RelationshipKey(r.tenantID, entityID, verb, factID)
	pointID := model.PointID(r.tenantID, entityID, verb, factID)

	point := &qdrant.PointStruct{
		Id:      qdrant.NewID(pointID),
		Vectors: qdrant.NewVectors(embedding...),
		Payload: qdrant.NewValueMap(map[string]any{
			"tenant_id":        r.tenantID,
			"entity_id":        entityID,
			"fact_id":          factID,
			"verb":             verb,
			"relationship_key": key,
		}),
	}

	_, err = r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	})
	if err != nil {
		return false, errors.NewVectorWriteFailed(key, err)
	}

	r.logger.Debug("Semantic point upserted",
		zap.String("entity_id", entityID),
		zap.String("fact_id", factID),
		zap.String("verb", verb),
	)
	return true, nil
}

// SearchSemantic embeds the query and searches the index. Both the tenant
// and entity filters are mandatory; calling without an entity is a
// programming error, not a broader search.
func (r *Repository) SearchSemantic(ctx context.Context, entityID, queryText string, topK int, minScore float32) ([]model.SemanticHit, error) {
	if entityID == "" {
		return nil, errors.NewBaseError(errors.ErrorTypeValidation, "entity id is required for semantic search", nil)
	}
	if strings.TrimSpace(queryText) == "" {
		return nil, errors.NewBaseError(errors.ErrorTypeValidation, "query text is required for semantic search", nil)
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := r.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	query := &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("tenant_id", r.tenantID),
				qdrant.NewMatch("entity_id", entityID),
			},
		},
	}
	if minScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(minScore)
	}

	points, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, errors.NewVectorSearchFailed(r.collection, err)
	}

	hits := make([]model.SemanticHit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, model.SemanticHit{
			FactID:          payload["fact_id"].GetStringValue(),
			Verb:            payload["verb"].GetStringValue(),
			RelationshipKey: payload["relationship_key"].GetStringValue(),
			Score:           p.GetScore(),
		})
	}
	return hits, nil
}

// DeleteSemantic removes the point for one exact (entity, fact, verb)
// triple. Called whenever the corresponding graph edge goes away; orphaned
// vectors are not permitted.
func (r *Repository) DeleteSemantic(ctx context.Context, entityID, factID, verb string) (bool, error) {
	if entityID == "" || factID == "" {
		return false, errors.NewBaseError(errors.ErrorTypeValidation, "entity id and fact id are required for semantic delete", nil)
	}

	pointID := model.PointID(r.tenantID, entityID, verb, factID)
	_, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(qdrant.NewID(pointID)),
	})
	if err != nil {
		key := model.RelationshipKey(r.tenantID, entityID, verb, factID)
		return false, errors.NewVectorWriteFailed(key, err)
	}

	r.logger.Debug("Semantic point deleted",
		zap.String("entity_id", entityID),
		zap.String("fact_id", factID),
		zap.String("verb", verb),
	)
	return true, nil
}

// SemanticSentence renders a fact assertion as natural language for
// embedding, e.g. verb "enjoys" and fact Hobby:Hiking become
// "The entity enjoys Hobby: Hiking".
func SemanticSentence(verb string, fact model.Fact) string {
	readableVerb := strings.ReplaceAll(verb, "_", " ")
	return fmt.Sprintf("The entity %s %s: %s", readableVerb, fact.Type, fact.Name)
}

// EnsureCollection creates the collection when absent and verifies the
// vector dimension when present. A dimension mismatch with the configured
// embedder is a fatal startup error, never a per-call one.
func EnsureCollection(ctx context.Context, client *qdrant.Client, collection string, dimension int) error {
	exists, err := client.CollectionExists(ctx, collection)
	if err != nil {
		return errors.NewVectorSearchFailed(collection, err)
	}

	if !exists {
		err := client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return errors.NewVectorSearchFailed(collection, err)
		}
		logger.Named("vector").Info("Collection created",
			zap.String("collection", collection),
			zap.Int("dimension", dimension),
		)
		return nil
	}

	info, err := client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return errors.NewVectorSearchFailed(collection, err)
	}
	size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
	if size != uint64(dimension) {
		return errors.NewDimensionMismatch(dimension, int(size))
	}
	return nil
}
