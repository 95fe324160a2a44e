package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mnemo/internal/model"
)

// In-memory fakes for the orchestrator tests. They track call order so the
// ordering guarantees of the write path can be asserted.

type mockGraphStore struct {
	mu       sync.Mutex
	calls    []string
	entities map[string]*model.EntityBundle // by entity id
	byIdent  map[string]string              // identifier value -> entity id
	sources  map[string]*model.Source

	addFactErr error
}

func newMockGraphStore() *mockGraphStore {
	return &mockGraphStore{
		entities: map[string]*model.EntityBundle{},
		byIdent:  map[string]string{},
		sources:  map[string]*model.Source{},
	}
}

func (m *mockGraphStore) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockGraphStore) CreateEntity(_ context.Context, identifier model.Identifier, metadata map[string]string) (*model.Entity, *model.Identifier, bool, error) {
	if err := identifier.Validate(); err != nil {
		return nil, nil, false, err
	}
	m.record("CreateEntity")
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.byIdent[identifier.Value]; ok {
		bundle := m.entities[id]
		return &bundle.Entity, &identifier, false, nil
	}

	entity := model.Entity{ID: model.NewEntityID(), CreatedAt: time.Now(), Metadata: metadata}
	identifier.IsPrimary = true
	m.entities[entity.ID] = &model.EntityBundle{
		Entity:      entity,
		Identifiers: []model.Identifier{identifier},
	}
	m.byIdent[identifier.Value] = entity.ID
	return &entity, &identifier, true, nil
}

func (m *mockGraphStore) FindEntityByIdentifier(_ context.Context, _, value string) (*model.EntityBundle, error) {
	m.record("FindEntityByIdentifier")
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byIdent[value]; ok {
		return m.entities[id], nil
	}
	return nil, nil
}

func (m *mockGraphStore) FindEntityByID(_ context.Context, entityID string) (*model.EntityBundle, error) {
	m.record("FindEntityByID")
	m.mu.Lock()
	defer m.mu.Unlock()
	if bundle, ok := m.entities[entityID]; ok {
		return bundle, nil
	}
	return nil, nil
}

func (m *mockGraphStore) CreateSource(_ context.Context, content string, timestamp time.Time) (*model.Source, error) {
	trimmed, err := model.ValidateSourceContent(content)
	if err != nil {
		return nil, err
	}
	m.record("CreateSource")
	m.mu.Lock()
	defer m.mu.Unlock()
	source := &model.Source{ID: model.NewSourceID(), Content: trimmed, Timestamp: timestamp, CreatedAt: time.Now()}
	m.sources[source.ID] = source
	return source, nil
}

func (m *mockGraphStore) AddFactToEntity(_ context.Context, entityID string, fact model.Fact, source model.Source, verb string, confidence float64) (*model.FactTriple, error) {
	if m.addFactErr != nil {
		return nil, m.addFactErr
	}
	m.record("AddFactToEntity:" + fact.FactID())
	m.mu.Lock()
	defer m.mu.Unlock()

	bundle, ok := m.entities[entityID]
	if !ok {
		return nil, nil
	}
	for _, existing := range bundle.Facts {
		if existing.Fact.FactID() == fact.FactID() && existing.Relationship.Verb == verb && existing.Source != nil && existing.Source.ID == source.ID {
			return &existing, nil
		}
	}
	triple := model.FactTriple{
		Fact:         fact,
		Relationship: model.FactRelationship{Verb: verb, ConfidenceScore: confidence, CreatedAt: time.Now()},
		Source:       &source,
	}
	bundle.Facts = append(bundle.Facts, triple)
	return &triple, nil
}

func (m *mockGraphStore) HasFactEdge(_ context.Context, entityID, factID, verb string) (bool, error) {
	m.record("HasFactEdge:" + factID)
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.entities[entityID]
	if !ok {
		return false, nil
	}
	for _, triple := range bundle.Facts {
		if triple.Fact.FactID() == factID && triple.Relationship.Verb == verb {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockGraphStore) ExpandFromFact(_ context.Context, entityID, factID string) ([]model.FactTriple, error) {
	m.record("ExpandFromFact:" + factID)
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.entities[entityID]
	if !ok {
		return nil, nil
	}

	var anchorSources []string
	for _, triple := range bundle.Facts {
		if triple.Fact.FactID() == factID && triple.Source != nil {
			anchorSources = append(anchorSources, triple.Source.ID)
		}
	}
	var siblings []model.FactTriple
	for _, triple := range bundle.Facts {
		if triple.Fact.FactID() == factID || triple.Source == nil {
			continue
		}
		for _, sourceID := range anchorSources {
			if triple.Source.ID == sourceID {
				siblings = append(siblings, triple)
				break
			}
		}
	}
	return siblings, nil
}

func (m *mockGraphStore) ListFactEdges(_ context.Context, entityID string) ([]model.EdgeRef, error) {
	m.record("ListFactEdges")
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.entities[entityID]
	if !ok {
		return nil, nil
	}
	var edges []model.EdgeRef
	for _, triple := range bundle.Facts {
		edges = append(edges, model.EdgeRef{FactID: triple.Fact.FactID(), Verb: triple.Relationship.Verb})
	}
	return edges, nil
}

func (m *mockGraphStore) DeleteEntityByID(_ context.Context, entityID string) (bool, error) {
	m.record("DeleteEntityByID")
	m.mu.Lock()
	defer m.mu.Unlock()
	bundle, ok := m.entities[entityID]
	if !ok {
		return false, nil
	}
	for _, ident := range bundle.Identifiers {
		delete(m.byIdent, ident.Value)
	}
	delete(m.entities, entityID)
	return true, nil
}

type storedPoint struct {
	entityID string
	factID   string
	verb     string
}

type mockVectorStore struct {
	mu       sync.Mutex
	tenantID string
	points   map[string]storedPoint // keyed by point id
	hits     []model.SemanticHit    // canned search results

	addErr    error
	addCalls  []string
	delCalls  []string
	searchLog []string
}

func newMockVectorStore(tenantID string) *mockVectorStore {
	return &mockVectorStore{tenantID: tenantID, points: map[string]storedPoint{}}
}

func (m *mockVectorStore) TenantID() string { return m.tenantID }

func (m *mockVectorStore) AddSemantic(_ context.Context, entityID string, fact model.Fact, verb string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls = append(m.addCalls, fact.FactID())
	if m.addErr != nil {
		return false, m.addErr
	}
	id := model.PointID(m.tenantID, entityID, verb, fact.FactID())
	m.points[id] = storedPoint{entityID: entityID, factID: fact.FactID(), verb: verb}
	return true, nil
}

func (m *mockVectorStore) SearchSemantic(_ context.Context, entityID, queryText string, topK int, minScore float32) ([]model.SemanticHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchLog = append(m.searchLog, fmt.Sprintf("%s|%s|%d", entityID, queryText, topK))
	if topK > 0 && len(m.hits) > topK {
		return m.hits[:topK], nil
	}
	return m.hits, nil
}

func (m *mockVectorStore) DeleteSemantic(_ context.Context, entityID, factID, verb string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delCalls = append(m.delCalls, factID)
	delete(m.points, model.PointID(m.tenantID, entityID, verb, factID))
	return true, nil
}

type mockExtractor struct {
	candidates []model.FactCandidate
	err        error
	lastPrior  []string
}

func (m *mockExtractor) Extract(_ context.Context, _ string, priorTurns []string) ([]model.FactCandidate, error) {
	m.lastPrior = priorTurns
	if m.err != nil {
		return nil, m.err
	}
	return m.candidates, nil
}
