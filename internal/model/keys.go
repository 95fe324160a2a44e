package model

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ============================================================================
// Identity Codec
// ============================================================================
//
// Stable key derivation. Entities and sources get random UUIDs; facts are
// content-addressed by "{type}:{name}"; vector points get a UUID derived
// deterministically from the (tenant, entity, verb, fact) tuple so that
// re-adding the same triple overwrites instead of duplicating.

// pointIDNamespace seeds the SHA1-derived point UUIDs. Changing it orphans
// every existing point, so it never changes.
var pointIDNamespace = uuid.MustParse("8f1c2a4e-6b3d-4f5a-9c80-d21e7a0b4c9f")

// NewEntityID returns a fresh system id for an entity
func NewEntityID() string {
	return uuid.New().String()
}

// NewSourceID returns a fresh system id for a source
func NewSourceID() string {
	return uuid.New().String()
}

// FactID derives the system-wide key for a fact
func FactID(factType, name string) string {
	return fmt.Sprintf("%s:%s", factType, name)
}

// FactID derives this fact's system-wide key
func (f Fact) FactID() string {
	return FactID(f.Type, f.Name)
}

// ParseFactID splits a fact id back into (type, name). The name may itself
// contain colons; only the first separator counts.
func ParseFactID(factID string) (Fact, bool) {
	idx := strings.Index(factID, ":")
	if idx <= 0 || idx == len(factID)-1 {
		return Fact{}, false
	}
	return Fact{Type: factID[:idx], Name: factID[idx+1:]}, true
}

// RelationshipKey serializes the (tenant, entity, verb, fact) tuple. It is
// stored on the vector point both as a debuggable provenance trail and as
// the preimage of the point id.
func RelationshipKey(tenantID, entityID, verb, factID string) string {
	return fmt.Sprintf("%s|%s|%s|%s", tenantID, entityID, verb, factID)
}

// PointID derives the deterministic vector point id for one HAS_FACT edge
func PointID(tenantID, entityID, verb, factID string) string {
	key := RelationshipKey(tenantID, entityID, verb, factID)
	return uuid.NewSHA1(pointIDNamespace, []byte(key)).String()
}
