package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemo/internal/model"
)

// seedEntity assimilates the canonical two-fact scenario and returns the
// stores plus the created entity id.
func seedEntity(t *testing.T) (*mockGraphStore, *mockVectorStore, string) {
	t.Helper()
	graph := newMockGraphStore()
	vectors := newMockVectorStore("tenant-a")
	extractor := &mockExtractor{candidates: []model.FactCandidate{
		{Name: "Paris", Type: "Location", Verb: "lives_in", Confidence: 0.95},
		{Name: "Hiking", Type: "Hobby", Verb: "enjoys", Confidence: 0.9},
	}}

	a := NewAssimilator(graph, vectors, extractor)
	result, err := a.Assimilate(context.Background(), testIdentifier(), "I live in Paris and enjoy hiking.", time.Now(), nil)
	require.NoError(t, err)
	return graph, vectors, result.Entity.ID
}

func TestRecallUnknownIdentifier(t *testing.T) {
	graph := newMockGraphStore()
	vectors := newMockVectorStore("tenant-a")

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "nobody@example.com", RecallOptions{})
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestRecallExhaustive(t *testing.T) {
	graph, vectors, _ := seedEntity(t)

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, ModeExhaustive, result.Mode)
	assert.Len(t, result.Facts, 2)
	require.Len(t, result.Identifiers, 1)
	assert.True(t, result.Identifiers[0].IsPrimary)
	assert.Empty(t, vectors.searchLog, "exhaustive recall must not touch the vector store")
}

func TestRecallSemanticAnchors(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Paris", Verb: "lives_in", Score: 0.92},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "where does she live", TopK: 5})
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, ModeSemantic, result.Mode)
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "Location:Paris", result.Facts[0].Fact.FactID())
	assert.Equal(t, "lives_in", result.Facts[0].Relationship.Verb)
	assert.True(t, result.Facts[0].Anchor)
	assert.InDelta(t, 0.92, result.Facts[0].Score, 1e-6)
	assert.Zero(t, result.DroppedUnverified)
}

func TestRecallDropsUnverifiedHits(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	// A stale point whose graph edge no longer exists must never surface.
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Lyon", Verb: "lives_in", Score: 0.99},
		{FactID: "Location:Paris", Verb: "lives_in", Score: 0.91},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "city", TopK: 5})
	require.NoError(t, err)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "Location:Paris", result.Facts[0].Fact.FactID())
	assert.Equal(t, 1, result.DroppedUnverified)
}

func TestRecallVerbMismatchIsUnverified(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Paris", Verb: "visited", Score: 0.9},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "city", TopK: 5})
	require.NoError(t, err)

	assert.Empty(t, result.Facts)
	assert.Equal(t, 1, result.DroppedUnverified)
}

func TestRecallMinScoreFilter(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Paris", Verb: "lives_in", Score: 0.9},
		{FactID: "Hobby:Hiking", Verb: "enjoys", Score: 0.4},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "city", TopK: 5, MinScore: 0.7})
	require.NoError(t, err)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "Location:Paris", result.Facts[0].Fact.FactID())
	assert.Zero(t, result.DroppedUnverified, "sub-threshold hits are filtered, not counted as unverified")
}

func TestRecallDepthExpandsSharedSource(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Paris", Verb: "lives_in", Score: 0.92},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "where does she live", TopK: 5, Depth: 1})
	require.NoError(t, err)

	// Hiking shares the episodic source with the anchor, so depth 1 pulls
	// it in, unscored.
	require.Len(t, result.Facts, 2)
	assert.True(t, result.Facts[0].Anchor)
	assert.False(t, result.Facts[1].Anchor)
	assert.Equal(t, "Hobby:Hiking", result.Facts[1].Fact.FactID())
	assert.Zero(t, result.Facts[1].Score)
}

func TestRecallDeduplicatesExpansion(t *testing.T) {
	graph, vectors, _ := seedEntity(t)
	// Both facts anchor; each is the other's sibling. Nothing repeats.
	vectors.hits = []model.SemanticHit{
		{FactID: "Location:Paris", Verb: "lives_in", Score: 0.92},
		{FactID: "Hobby:Hiking", Verb: "enjoys", Score: 0.88},
	}

	r := NewRetriever(graph, vectors)
	result, err := r.Recall(context.Background(), model.IdentifierTypeEmail, "jane@example.com", RecallOptions{Query: "about her", TopK: 5, Depth: 1})
	require.NoError(t, err)

	require.Len(t, result.Facts, 2)
	for _, fact := range result.Facts {
		assert.True(t, fact.Anchor, "a fact hit directly must keep its anchor flag even when also reachable by expansion")
	}
}

func TestRecallByID(t *testing.T) {
	graph, vectors, entityID := seedEntity(t)

	r := NewRetriever(graph, vectors)
	result, err := r.RecallByID(context.Background(), entityID, RecallOptions{})
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, entityID, result.Entity.ID)
	assert.Len(t, result.Facts, 2)

	missing, err := r.RecallByID(context.Background(), "no-such-entity", RecallOptions{})
	require.NoError(t, err)
	assert.Nil(t, missing)
}
