package graph

import (
	"context"
	"time"

	"go.uber.org/zap"
	"mnemo/internal/model"
	"mnemo/pkg/errors"
)

// ============================================================================
// Fact and Source Operations
// ============================================================================

// CreateSource persists an immutable episodic record. It is written even when
// no facts are extracted from it; the record stays as an auditable anchor.
func (r *Repository) CreateSource(ctx context.Context, content string, timestamp time.Time) (*model.Source, error) {
	trimmed, err := model.ValidateSourceContent(content)
	if err != nil {
		return nil, err
	}

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	sourceID := model.NewSourceID()
	now := time.Now().UTC()
	if timestamp.IsZero() {
		timestamp = now
	}

	query := `
		CREATE (s:Source {
			id: $sourceID,
			content: $content,
			timestamp: datetime($timestamp),
			created_at: datetime($now)
		})
		RETURN s.id AS id
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"sourceID":  sourceID,
		"content":   trimmed,
		"timestamp": timestamp.UTC().Format(time.RFC3339),
		"now":       now.Format(time.RFC3339),
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("create source", err)
	}
	if _, err := result.Single(ctx); err != nil {
		return nil, errors.NewGraphQueryFailed("create source", err)
	}

	r.logger.Debug("Source created", zap.String("source_id", sourceID))

	return &model.Source{
		ID:        sourceID,
		Content:   trimmed,
		Timestamp: timestamp,
		CreatedAt: now,
	}, nil
}

// AddFactToEntity merges the fact and source nodes by their natural keys and
// creates the HAS_FACT and DERIVED_FROM edges. Idempotent on the
// (entity_id, verb, fact_id) triple: re-asserting the same fact with the
// same verb updates the confidence instead of duplicating the edge.
// A nil triple means the entity does not exist.
func (r *Repository) AddFactToEntity(ctx context.Context, entityID string, fact model.Fact, source model.Source, verb string, confidence float64) (*model.FactTriple, error) {
	if err := fact.Validate(); err != nil {
		return nil, err
	}
	trimmed, err := model.ValidateSourceContent(source.Content)
	if err != nil {
		return nil, err
	}
	confidence = model.ClampConfidence(confidence)

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)
	timestamp := source.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	query := `
		MATCH (e:Entity {id: $entityID})
		MERGE (f:Fact {fact_id: $factID})
		ON CREATE SET f.name = $name, f.type = $type, f.created_at = datetime($now)
		MERGE (s:Source {id: $sourceID})
		ON CREATE SET s.content = $content, s.timestamp = datetime($timestamp),
		              s.created_at = datetime($now)
		MERGE (e)-[rel:HAS_FACT {verb: $verb}]->(f)
		ON CREATE SET rel.confidence_score = $confidence, rel.created_at = datetime($now)
		ON MATCH SET rel.confidence_score = $confidence
		MERGE (f)-[d:DERIVED_FROM]->(s)
		ON CREATE SET d.created_at = datetime($now)
		RETURN rel.created_at AS rel_created_at, s.content AS source_content,
		       s.timestamp AS source_timestamp
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"entityID":   entityID,
		"factID":     fact.FactID(),
		"name":       fact.Name,
		"type":       fact.Type,
		"sourceID":   source.ID,
		"content":    trimmed,
		"timestamp":  timestamp.UTC().Format(time.RFC3339),
		"verb":       verb,
		"confidence": confidence,
		"now":        now,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("add fact", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, errors.NewGraphQueryFailed("add fact", err)
		}
		return nil, nil
	}
	record := result.Record()

	r.logger.Info("Fact asserted",
		zap.String("entity_id", entityID),
		zap.String("fact_id", fact.FactID()),
		zap.String("verb", verb),
		zap.Float64("confidence", confidence),
	)

	return &model.FactTriple{
		Fact: fact,
		Relationship: model.FactRelationship{
			Verb:            verb,
			ConfidenceScore: confidence,
			CreatedAt:       getTimeFromRecord(record, "rel_created_at"),
		},
		Source: &model.Source{
			ID:        source.ID,
			Content:   getStringFromRecord(record, "source_content"),
			Timestamp: getTimeFromRecord(record, "source_timestamp"),
		},
	}, nil
}

// HasFactEdge reports whether this exact entity asserts this exact fact with
// this exact verb. Retrieval trusts a vector hit only after this check.
func (r *Repository) HasFactEdge(ctx context.Context, entityID, factID, verb string) (bool, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (:Entity {id: $entityID})-[rel:HAS_FACT {verb: $verb}]->(:Fact {fact_id: $factID})
		RETURN count(rel) AS edges
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"entityID": entityID,
		"factID":   factID,
		"verb":     verb,
	})
	if err != nil {
		return false, errors.NewGraphQueryFailed("verify fact edge", err)
	}
	record, err := result.Single(ctx)
	if err != nil {
		return false, errors.NewGraphQueryFailed("verify fact edge", err)
	}
	return getInt64FromRecord(record, "edges") > 0, nil
}

// ListFactEdges enumerates every HAS_FACT edge on an entity. Used to clean
// up semantic vectors before a cascade delete.
func (r *Repository) ListFactEdges(ctx context.Context, entityID string) ([]model.EdgeRef, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (:Entity {id: $entityID})-[rel:HAS_FACT]->(f:Fact)
		RETURN f.fact_id AS fact_id, rel.verb AS verb
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"entityID": entityID,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("list fact edges", err)
	}

	var edges []model.EdgeRef
	for result.Next(ctx) {
		record := result.Record()
		edges = append(edges, model.EdgeRef{
			FactID: getStringFromRecord(record, "fact_id"),
			Verb:   getStringFromRecord(record, "verb"),
		})
	}
	if err := result.Err(); err != nil {
		return nil, errors.NewGraphQueryFailed("list fact edges", err)
	}
	return edges, nil
}

// ExpandFromFact walks one hop out from a verified anchor: sibling facts on
// the same entity that share a source with the anchor fact.
func (r *Repository) ExpandFromFact(ctx context.Context, entityID, factID string) ([]model.FactTriple, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity {id: $entityID})-[:HAS_FACT]->(anchor:Fact {fact_id: $factID})
		MATCH (anchor)-[:DERIVED_FROM]->(s:Source)
		MATCH (e)-[rel:HAS_FACT]->(f:Fact)-[:DERIVED_FROM]->(s)
		WHERE f.fact_id <> $factID
		RETURN DISTINCT f.fact_id AS fact_id, f.name AS fact_name, f.type AS fact_type,
		       rel.verb AS verb, rel.confidence_score AS confidence,
		       rel.created_at AS rel_created_at,
		       s.id AS source_id, s.content AS source_content,
		       s.timestamp AS source_timestamp
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"entityID": entityID,
		"factID":   factID,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("expand from fact", err)
	}

	var triples []model.FactTriple
	for result.Next(ctx) {
		record := result.Record()
		triples = append(triples, model.FactTriple{
			Fact: model.Fact{
				Name: getStringFromRecord(record, "fact_name"),
				Type: getStringFromRecord(record, "fact_type"),
			},
			Relationship: model.FactRelationship{
				Verb:            getStringFromRecord(record, "verb"),
				ConfidenceScore: getFloat64FromRecord(record, "confidence"),
				CreatedAt:       getTimeFromRecord(record, "rel_created_at"),
			},
			Source: &model.Source{
				ID:        getStringFromRecord(record, "source_id"),
				Content:   getStringFromRecord(record, "source_content"),
				Timestamp: getTimeFromRecord(record, "source_timestamp"),
			},
		})
	}
	if err := result.Err(); err != nil {
		return nil, errors.NewGraphQueryFailed("expand from fact", err)
	}
	return triples, nil
}

// FindFactByID returns a fact with its provenance and the ids of every
// entity asserting it. Nil means not found.
func (r *Repository) FindFactByID(ctx context.Context, factID string) (*model.FactDetail, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (f:Fact {fact_id: $factID})
		OPTIONAL MATCH (f)-[:DERIVED_FROM]->(s:Source)
		OPTIONAL MATCH (e:Entity)-[:HAS_FACT]->(f)
		RETURN f.name AS name, f.type AS type, f.created_at AS created_at,
		       collect(DISTINCT {id: s.id, content: s.content, timestamp: s.timestamp}) AS sources,
		       collect(DISTINCT e.id) AS entity_ids
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"factID": factID,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("find fact", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, errors.NewGraphQueryFailed("find fact", err)
		}
		return nil, nil
	}
	record := result.Record()

	detail := &model.FactDetail{
		Fact: model.Fact{
			Name: getStringFromRecord(record, "name"),
			Type: getStringFromRecord(record, "type"),
		},
		CreatedAt: getTimeFromRecord(record, "created_at"),
		EntityIDs: getStringSliceFromRecord(record, "entity_ids"),
	}
	for _, m := range getMapSliceFromRecord(record, "sources") {
		id := getStringFromMap(m, "id")
		if id == "" {
			continue
		}
		detail.Sources = append(detail.Sources, model.Source{
			ID:        id,
			Content:   getStringFromMap(m, "content"),
			Timestamp: getTimeFromMap(m, "timestamp"),
		})
	}
	return detail, nil
}
