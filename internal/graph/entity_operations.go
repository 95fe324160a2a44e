package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"mnemo/internal/model"
	"mnemo/pkg/errors"
)

// ============================================================================
// Entity Operations
// ============================================================================

// CreateEntity merges the identifier node and creates a new entity only if
// no entity already holds that identifier. Idempotent: repeated calls with
// the same identifier return the existing entity. The whole check-and-create
// runs in one write transaction so concurrent calls for the same identifier
// converge on a single node.
func (r *Repository) CreateEntity(ctx context.Context, identifier model.Identifier, metadata map[string]string) (*model.Entity, *model.Identifier, bool, error) {
	if err := identifier.Validate(); err != nil {
		return nil, nil, false, err
	}

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	newEntityID := model.NewEntityID()
	now := time.Now().UTC().Format(time.RFC3339)
	metadataJSON, err := encodeMetadata(metadata)
	if err != nil {
		return nil, nil, false, err
	}

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		mergeQuery := `
			MERGE (i:Identifier {value: $value})
			ON CREATE SET i.type = $type, i.created_at = datetime($now)
			WITH i
			OPTIONAL MATCH (owner:Entity)-[:HAS_IDENTIFIER]->(i)
			RETURN i.type AS id_type, i.created_at AS id_created_at, owner.id AS owner_id,
			       owner.created_at AS owner_created_at, owner.metadata AS owner_metadata
		`
		res, err := tx.Run(ctx, mergeQuery, map[string]interface{}{
			"value": identifier.Value,
			"type":  identifier.Type,
			"now":   now,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		stored := model.Identifier{
			Type:      getStringFromRecord(record, "id_type"),
			Value:     identifier.Value,
			CreatedAt: getTimeFromRecord(record, "id_created_at"),
		}

		if ownerID := getStringFromRecord(record, "owner_id"); ownerID != "" {
			entity := &model.Entity{
				ID:        ownerID,
				CreatedAt: getTimeFromRecord(record, "owner_created_at"),
				Metadata:  decodeMetadata(getStringFromRecord(record, "owner_metadata")),
			}
			return createEntityOutcome{entity: entity, identifier: stored, created: false}, nil
		}

		// The first identifier an entity receives is its primary one.
		createQuery := `
			MATCH (i:Identifier {value: $value})
			CREATE (e:Entity {id: $entityID, created_at: datetime($now), metadata: $metadata})
			CREATE (e)-[:HAS_IDENTIFIER {is_primary: true, created_at: datetime($now)}]->(i)
			RETURN e.created_at AS created_at
		`
		res, err = tx.Run(ctx, createQuery, map[string]interface{}{
			"value":    identifier.Value,
			"entityID": newEntityID,
			"now":      now,
			"metadata": metadataJSON,
		})
		if err != nil {
			return nil, err
		}
		record, err = res.Single(ctx)
		if err != nil {
			return nil, err
		}

		stored.IsPrimary = true
		entity := &model.Entity{
			ID:        newEntityID,
			CreatedAt: getTimeFromRecord(record, "created_at"),
			Metadata:  metadata,
		}
		return createEntityOutcome{entity: entity, identifier: stored, created: true}, nil
	})
	if err != nil {
		return nil, nil, false, errors.NewGraphQueryFailed("create entity", err)
	}

	outcome := result.(createEntityOutcome)
	if outcome.created {
		r.logger.Info("Entity created",
			zap.String("entity_id", outcome.entity.ID),
			zap.String("identifier_type", outcome.identifier.Type),
		)
	}
	return outcome.entity, &outcome.identifier, outcome.created, nil
}

type createEntityOutcome struct {
	entity     *model.Entity
	identifier model.Identifier
	created    bool
}

// AddIdentifierToEntity attaches an additional identifier to an existing
// entity. The value uniqueness invariant holds: a value already owned by a
// different entity is rejected. Repeated calls for the same pair are no-ops.
func (r *Repository) AddIdentifierToEntity(ctx context.Context, entityID string, identifier model.Identifier) (*model.Identifier, error) {
	if err := identifier.Validate(); err != nil {
		return nil, err
	}

	session := r.writeSession(ctx)
	defer session.Close(ctx)

	now := time.Now().UTC().Format(time.RFC3339)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		ownerQuery := `
			MERGE (i:Identifier {value: $value})
			ON CREATE SET i.type = $type, i.created_at = datetime($now)
			WITH i
			OPTIONAL MATCH (owner:Entity)-[:HAS_IDENTIFIER]->(i)
			RETURN i.type AS id_type, i.created_at AS id_created_at, owner.id AS owner_id
		`
		res, err := tx.Run(ctx, ownerQuery, map[string]interface{}{
			"value": identifier.Value,
			"type":  identifier.Type,
			"now":   now,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		ownerID := getStringFromRecord(record, "owner_id")
		if ownerID != "" && ownerID != entityID {
			return nil, errors.NewIdentifierConflict(identifier.Value, ownerID, entityID)
		}

		stored := model.Identifier{
			Type:      getStringFromRecord(record, "id_type"),
			Value:     identifier.Value,
			CreatedAt: getTimeFromRecord(record, "id_created_at"),
		}
		if ownerID == entityID {
			return &stored, nil
		}

		linkQuery := `
			MATCH (e:Entity {id: $entityID})
			MATCH (i:Identifier {value: $value})
			MERGE (e)-[rel:HAS_IDENTIFIER]->(i)
			ON CREATE SET rel.is_primary = false, rel.created_at = datetime($now)
			RETURN e.id AS entity_id
		`
		res, err = tx.Run(ctx, linkQuery, map[string]interface{}{
			"entityID": entityID,
			"value":    identifier.Value,
			"now":      now,
		})
		if err != nil {
			return nil, err
		}
		if _, err := res.Single(ctx); err != nil {
			return nil, fmt.Errorf("entity not found: %s", entityID)
		}
		return &stored, nil
	})
	if err != nil {
		if _, ok := err.(*errors.ErrIdentifierConflict); ok {
			return nil, err
		}
		return nil, errors.NewGraphQueryFailed("add identifier", err)
	}

	stored := result.(*model.Identifier)
	r.logger.Info("Identifier attached",
		zap.String("entity_id", entityID),
		zap.String("identifier_type", stored.Type),
	)
	return stored, nil
}

// entityBundleQuery returns the entity plus all identifiers and every
// (fact, relationship, source) triple reachable via HAS_FACT/DERIVED_FROM.
// A fact derived from two sources yields two triples.
const entityBundleQuery = `
	OPTIONAL MATCH (e)-[ir:HAS_IDENTIFIER]->(i:Identifier)
	WITH e, collect(DISTINCT {
		type: i.type, value: i.value,
		is_primary: ir.is_primary, created_at: ir.created_at
	}) AS identifiers
	OPTIONAL MATCH (e)-[rel:HAS_FACT]->(f:Fact)
	OPTIONAL MATCH (f)-[:DERIVED_FROM]->(s:Source)
	RETURN e.id AS id, e.created_at AS created_at, e.metadata AS metadata,
	       identifiers,
	       collect({
	           fact_id: f.fact_id, fact_name: f.name, fact_type: f.type,
	           verb: rel.verb, confidence: rel.confidence_score,
	           rel_created_at: rel.created_at,
	           source_id: s.id, source_content: s.content,
	           source_timestamp: s.timestamp
	       }) AS facts
`

// FindEntityByIdentifier resolves an entity through one of its external
// handles. A nil bundle means not found; that is a normal result, not an
// error.
func (r *Repository) FindEntityByIdentifier(ctx context.Context, identifierType, value string) (*model.EntityBundle, error) {
	ident := model.Identifier{Type: identifierType, Value: value}
	if err := ident.Validate(); err != nil {
		return nil, err
	}

	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (e:Entity)-[:HAS_IDENTIFIER]->(:Identifier {value: $value, type: $type})
		WITH e LIMIT 1
	` + entityBundleQuery

	result, err := session.Run(ctx, query, map[string]interface{}{
		"value": value,
		"type":  identifierType,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("find entity by identifier", err)
	}
	return r.collectBundle(ctx, result)
}

// FindEntityByID returns the same bundle keyed by system id
func (r *Repository) FindEntityByID(ctx context.Context, entityID string) (*model.EntityBundle, error) {
	session := r.readSession(ctx)
	defer session.Close(ctx)

	query := `MATCH (e:Entity {id: $entityID})` + entityBundleQuery

	result, err := session.Run(ctx, query, map[string]interface{}{
		"entityID": entityID,
	})
	if err != nil {
		return nil, errors.NewGraphQueryFailed("find entity by id", err)
	}
	return r.collectBundle(ctx, result)
}

func (r *Repository) collectBundle(ctx context.Context, result neo4j.ResultWithContext) (*model.EntityBundle, error) {
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, errors.NewGraphQueryFailed("collect entity bundle", err)
		}
		return nil, nil
	}
	record := result.Record()

	bundle := &model.EntityBundle{
		Entity: model.Entity{
			ID:        getStringFromRecord(record, "id"),
			CreatedAt: getTimeFromRecord(record, "created_at"),
			Metadata:  decodeMetadata(getStringFromRecord(record, "metadata")),
		},
		Identifiers: []model.Identifier{},
		Facts:       []model.FactTriple{},
	}

	for _, m := range getMapSliceFromRecord(record, "identifiers") {
		value := getStringFromMap(m, "value")
		if value == "" {
			continue
		}
		bundle.Identifiers = append(bundle.Identifiers, model.Identifier{
			Type:      getStringFromMap(m, "type"),
			Value:     value,
			IsPrimary: getBoolFromMap(m, "is_primary"),
			CreatedAt: getTimeFromMap(m, "created_at"),
		})
	}

	for _, m := range getMapSliceFromRecord(record, "facts") {
		if getStringFromMap(m, "fact_id") == "" {
			continue
		}
		bundle.Facts = append(bundle.Facts, factTripleFromMap(m))
	}

	return bundle, nil
}

func factTripleFromMap(m map[string]interface{}) model.FactTriple {
	triple := model.FactTriple{
		Fact: model.Fact{
			Name: getStringFromMap(m, "fact_name"),
			Type: getStringFromMap(m, "fact_type"),
		},
		Relationship: model.FactRelationship{
			Verb:            getStringFromMap(m, "verb"),
			ConfidenceScore: getFloat64FromMap(m, "confidence"),
			CreatedAt:       getTimeFromMap(m, "rel_created_at"),
		},
	}
	if sourceID := getStringFromMap(m, "source_id"); sourceID != "" {
		triple.Source = &model.Source{
			ID:        sourceID,
			Content:   getStringFromMap(m, "source_content"),
			Timestamp: getTimeFromMap(m, "source_timestamp"),
		}
	}
	return triple
}

// Metadata is advisory only; it rides along as a JSON blob on the node.

func encodeMetadata(metadata map[string]string) (string, error) {
	if len(metadata) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", errors.NewBaseError(errors.ErrorTypeValidation, "metadata is not serializable", err)
	}
	return string(raw), nil
}

func decodeMetadata(raw string) map[string]string {
	if raw == "" {
		return nil
	}
	var metadata map[string]string
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil
	}
	return metadata
}
