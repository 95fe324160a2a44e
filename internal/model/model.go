package model

import (
	"strings"
	"time"

	"mnemo/pkg/errors"
)

// ============================================================================
// Knowledge Graph Types
// ============================================================================

// Entity is the canonical anchor for a real-world subject. Its id is
// system-generated and never reused for a different subject.
type Entity struct {
	ID        string            `json:"id"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Identifier is an external handle (email, phone, ...) resolving to exactly
// one entity. Value is unique system-wide.
type Identifier struct {
	Type      string    `json:"type"`
	Value     string    `json:"value"`
	IsPrimary bool      `json:"is_primary"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// Fact is a reusable, content-addressed knowledge atom. Two assimilations
// producing the same (type, name) merge onto the same node.
type Fact struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Source is an immutable record of where information came from. Timestamp is
// event time, distinct from the system CreatedAt.
type Source struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

// FactRelationship carries the semantics of a HAS_FACT edge. The edge, not
// the fact node, is the assertion.
type FactRelationship struct {
	Verb            string    `json:"verb"`
	ConfidenceScore float64   `json:"confidence_score"`
	CreatedAt       time.Time `json:"created_at,omitempty"`
}

// FactTriple is one (fact, relationship, source) reachable from an entity
type FactTriple struct {
	Fact         Fact             `json:"fact"`
	Relationship FactRelationship `json:"relationship"`
	Source       *Source          `json:"source,omitempty"`
}

// EntityBundle is an entity with everything attached to it
type EntityBundle struct {
	Entity      Entity       `json:"entity"`
	Identifiers []Identifier `json:"identifiers"`
	Facts       []FactTriple `json:"facts"`
}

// FactDetail is a fact with its provenance and the entities asserting it
type FactDetail struct {
	Fact      Fact      `json:"fact"`
	CreatedAt time.Time `json:"created_at"`
	Sources   []Source  `json:"sources"`
	EntityIDs []string  `json:"entity_ids"`
}

// EdgeRef names one HAS_FACT edge by its idempotency triple minus the entity
type EdgeRef struct {
	FactID string `json:"fact_id"`
	Verb   string `json:"verb"`
}

// FactCandidate is one typed fact proposed by the extraction collaborator
type FactCandidate struct {
	Name       string  `json:"name"`
	Type       string  `json:"type"`
	Verb       string  `json:"verb"`
	Confidence float64 `json:"confidence"`
}

// SemanticHit is one vector search result, ordered by score
type SemanticHit struct {
	FactID          string  `json:"fact_id"`
	Verb            string  `json:"verb"`
	RelationshipKey string  `json:"relationship_key"`
	Score           float32 `json:"score"`
}

// ============================================================================
// Validation
// ============================================================================

// Identifier types form a closed set; anything else is rejected before any
// store call.
const (
	IdentifierTypeEmail      = "email"
	IdentifierTypePhone      = "phone"
	IdentifierTypeUsername   = "username"
	IdentifierTypeExternalID = "external_id"
)

var validIdentifierTypes = map[string]bool{
	IdentifierTypeEmail:      true,
	IdentifierTypePhone:      true,
	IdentifierTypeUsername:   true,
	IdentifierTypeExternalID: true,
}

// ValidIdentifierType reports whether t is in the supported set
func ValidIdentifierType(t string) bool {
	return validIdentifierTypes[t]
}

// Validate checks the identifier type and value
func (i Identifier) Validate() error {
	if !ValidIdentifierType(i.Type) {
		return errors.NewInvalidIdentifier(i.Type, i.Value, "unsupported type")
	}
	if strings.TrimSpace(i.Value) == "" {
		return errors.NewInvalidIdentifier(i.Type, i.Value, "value cannot be empty")
	}
	return nil
}

// Validate checks the fact name and type
func (f Fact) Validate() error {
	if strings.TrimSpace(f.Name) == "" || strings.TrimSpace(f.Type) == "" {
		return errors.NewBaseError(errors.ErrorTypeValidation, "fact name and type cannot be empty", nil)
	}
	return nil
}

// ValidateSourceContent rejects empty content; returns the trimmed content
func ValidateSourceContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", errors.ErrEmptySourceContent
	}
	return trimmed, nil
}

// ClampConfidence forces a confidence score into [0, 1]
func ClampConfidence(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
