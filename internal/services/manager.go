package services

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"mnemo/internal/graph"
	"mnemo/internal/tenant"
	"mnemo/internal/vector"
	"mnemo/pkg/logger"
)

// Manager owns the process-wide shared clients (graph connection pool,
// vector client, embedder) and hands out per-request repositories bound to
// a resolved tenant. There is no default tenant and no cached binding; a
// repository pair lives for one request.
type Manager struct {
	driver     neo4j.DriverWithContext
	qdrant     *qdrant.Client
	embedder   vector.Embedder
	collection string
	logger     *zap.Logger
}

// NewManager creates the shared-resource manager
func NewManager(driver neo4j.DriverWithContext, qdrantClient *qdrant.Client, embedder vector.Embedder, collection string) *Manager {
	return &Manager{
		driver:     driver,
		qdrant:     qdrantClient,
		embedder:   embedder,
		collection: collection,
		logger:     logger.Named("services"),
	}
}

// ForTenant constructs fresh repositories bound to one tenant's graph and
// vector partition
func (m *Manager) ForTenant(t tenant.Tenant) (*graph.Repository, *vector.Repository) {
	graphRepo := graph.NewRepository(m.driver, t.GraphName)
	vectorRepo := vector.NewRepository(m.qdrant, m.embedder, m.collection, t.ID)
	return graphRepo, vectorRepo
}

// Close releases the shared clients
func (m *Manager) Close(ctx context.Context) {
	if err := m.driver.Close(ctx); err != nil {
		m.logger.Warn("Failed to close graph driver", zap.Error(err))
	}
	if err := m.qdrant.Close(); err != nil {
		m.logger.Warn("Failed to close vector client", zap.Error(err))
	}
}
