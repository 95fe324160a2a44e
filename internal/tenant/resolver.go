package tenant

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"
	"mnemo/pkg/errors"
	"mnemo/pkg/logger"
)

// Tenant is the pair every repository instance is bound to. GraphName is the
// tenant's isolated database; no cross-tenant edge can exist because no
// session ever spans two databases.
type Tenant struct {
	ID        string `json:"id"`
	GraphName string `json:"graph_name"`
}

// Resolver maps an authenticated caller's API key to a tenant. A nil tenant
// means the key is unknown; that is a normal result.
type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (*Tenant, error)
}

// HashAPIKey derives the stored lookup key. Raw API keys never touch the
// registry.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Graph-backed resolver
// ============================================================================

// GraphResolver looks tenants up in the control database registry.
// Provisioning of the registry itself is an operator concern, not handled
// here.
type GraphResolver struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

// NewGraphResolver creates a resolver over the control database
func NewGraphResolver(driver neo4j.DriverWithContext, controlDatabase string) *GraphResolver {
	return &GraphResolver{
		driver:   driver,
		database: controlDatabase,
		logger:   logger.Named("tenant"),
	}
}

// Resolve maps an API key to its tenant via the registry
func (r *GraphResolver) Resolve(ctx context.Context, apiKey string) (*Tenant, error) {
	if apiKey == "" {
		return nil, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: r.database,
	})
	defer session.Close(ctx)

	query := `
		MATCH (t:Tenant {api_key_hash: $hash})
		RETURN t.id AS id, t.graph_name AS graph_name
	`
	result, err := session.Run(ctx, query, map[string]interface{}{
		"hash": HashAPIKey(apiKey),
	})
	if err != nil {
		return nil, errors.NewTenantNotResolved(err)
	}
	if !result.Next(ctx) {
		if err := result.Err(); err != nil {
			return nil, errors.NewTenantNotResolved(err)
		}
		return nil, nil
	}
	record := result.Record()

	tenant := &Tenant{}
	if id, ok := record.Get("id"); ok {
		tenant.ID, _ = id.(string)
	}
	if graphName, ok := record.Get("graph_name"); ok {
		tenant.GraphName, _ = graphName.(string)
	}
	if tenant.ID == "" || tenant.GraphName == "" {
		r.logger.Warn("Tenant registry entry is incomplete", zap.String("tenant_id", tenant.ID))
		return nil, nil
	}
	return tenant, nil
}

// ============================================================================
// Static resolver
// ============================================================================

// StaticResolver serves a fixed key-to-tenant map. Used for tests and
// single-tenant deployments.
type StaticResolver struct {
	tenants map[string]Tenant // keyed by API key hash
}

// NewStaticResolver builds a resolver from raw API keys
func NewStaticResolver(byAPIKey map[string]Tenant) *StaticResolver {
	tenants := make(map[string]Tenant, len(byAPIKey))
	for key, t := range byAPIKey {
		tenants[HashAPIKey(key)] = t
	}
	return &StaticResolver{tenants: tenants}
}

// Resolve looks the key up in the fixed map
func (r *StaticResolver) Resolve(_ context.Context, apiKey string) (*Tenant, error) {
	if t, ok := r.tenants[HashAPIKey(apiKey)]; ok {
		return &t, nil
	}
	return nil, nil
}
