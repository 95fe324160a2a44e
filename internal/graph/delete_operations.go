package graph

import (
	"context"

	"go.uber.org/zap"
	"mnemo/pkg/errors"
)

// ============================================================================
// Cascade Delete
// ============================================================================

// DeleteEntityByID removes an entity and everything that becomes orphaned by
// its removal. Returns false without error when the entity does not exist.
//
// The cascade runs as ordered, individually-committed statements rather than
// one big transaction: identify the entity, compute which identifiers and
// facts are referenced by no other entity, delete those orphans, and finally
// detach-delete the entity itself. Each step only removes nodes that are
// already safe to remove, so a failure partway through leaves no dangling
// edges and never touches shared nodes.
func (r *Repository) DeleteEntityByID(ctx context.Context, entityID string) (bool, error) {
	session := r.writeSession(ctx)
	defer session.Close(ctx)

	// Step 1: locate the entity.
	existsQuery := `MATCH (e:Entity {id: $entityID}) RETURN e.id AS id`
	result, err := session.Run(ctx, existsQuery, map[string]interface{}{"entityID": entityID})
	if err != nil {
		return false, errors.NewGraphQueryFailed("delete entity", err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return false, errors.NewGraphQueryFailed("delete entity", err)
		}
		return false, nil
	}

	// Step 2: identifiers referenced by no other entity.
	orphanIdentifiersQuery := `
		MATCH (e:Entity {id: $entityID})-[:HAS_IDENTIFIER]->(i:Identifier)
		OPTIONAL MATCH (other:Entity)-[:HAS_IDENTIFIER]->(i)
		WHERE other.id <> $entityID
		WITH i, count(other) AS others
		WHERE others = 0
		RETURN collect(i.value) AS values
	`
	result, err = session.Run(ctx, orphanIdentifiersQuery, map[string]interface{}{"entityID": entityID})
	if err != nil {
		return false, errors.NewGraphQueryFailed("delete entity", err)
	}
	var orphanIdentifiers []string
	if result.Next(ctx) {
		orphanIdentifiers = getStringSliceFromRecord(result.Record(), "values")
	}

	// Step 3: facts asserted by no other entity.
	orphanFactsQuery := `
		MATCH (e:Entity {id: $entityID})-[:HAS_FACT]->(f:Fact)
		OPTIONAL MATCH (other:Entity)-[:HAS_FACT]->(f)
		WHERE other.id <> $entityID
		WITH f, count(other) AS others
		WHERE others = 0
		RETURN collect(f.fact_id) AS fact_ids
	`
	result, err = session.Run(ctx, orphanFactsQuery, map[string]interface{}{"entityID": entityID})
	if err != nil {
		return false, errors.NewGraphQueryFailed("delete entity", err)
	}
	var orphanFacts []string
	if result.Next(ctx) {
		orphanFacts = getStringSliceFromRecord(result.Record(), "fact_ids")
	}

	// Step 4: delete the orphans. Shared nodes were excluded above, so this
	// only touches nodes whose last referencing entity is the one going away.
	// Sources are kept; they remain valid provenance for surviving facts and
	// auditable episodic records either way.
	if len(orphanIdentifiers) > 0 {
		deleteIdentifiersQuery := `
			MATCH (i:Identifier)
			WHERE i.value IN $values
			DETACH DELETE i
		`
		if _, err := session.Run(ctx, deleteIdentifiersQuery, map[string]interface{}{"values": orphanIdentifiers}); err != nil {
			return false, errors.NewGraphQueryFailed("delete entity", err)
		}
	}
	if len(orphanFacts) > 0 {
		deleteFactsQuery := `
			MATCH (f:Fact)
			WHERE f.fact_id IN $factIDs
			DETACH DELETE f
		`
		if _, err := session.Run(ctx, deleteFactsQuery, map[string]interface{}{"factIDs": orphanFacts}); err != nil {
			return false, errors.NewGraphQueryFailed("delete entity", err)
		}
	}

	// Step 5: the entity itself, taking its remaining edges with it.
	deleteEntityQuery := `MATCH (e:Entity {id: $entityID}) DETACH DELETE e`
	if _, err := session.Run(ctx, deleteEntityQuery, map[string]interface{}{"entityID": entityID}); err != nil {
		return false, errors.NewGraphQueryFailed("delete entity", err)
	}

	r.logger.Info("Entity deleted",
		zap.String("entity_id", entityID),
		zap.Int("orphaned_identifiers", len(orphanIdentifiers)),
		zap.Int("orphaned_facts", len(orphanFacts)),
	)
	return true, nil
}
