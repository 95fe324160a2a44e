package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"mnemo/internal/tenant"
	"mnemo/pkg/config"
	"mnemo/pkg/logger"
)

// Registers a tenant in the control database and prepares its graph with
// the uniqueness constraints and indexes the repositories rely on.
//
//	go run scripts/seed_tenant.go -tenant-id acme -graph acme_graph -api-key <key>
func main() {
	tenantID := flag.String("tenant-id", "", "Tenant id to register")
	graphName := flag.String("graph", "", "Neo4j database holding the tenant's graph")
	apiKey := flag.String("api-key", "", "API key the tenant will authenticate with")
	flag.Parse()

	if *tenantID == "" || *graphName == "" || *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Usage: seed_tenant -tenant-id <id> -graph <database> -api-key <key>")
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init("development"); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Seeding tenant...", zap.String("tenant_id", *tenantID), zap.String("graph", *graphName))

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize Neo4j driver
	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4jURI,
		neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""),
	)
	if err != nil {
		log.Fatal("Failed to create Neo4j driver", zap.Error(err))
	}
	defer driver.Close(context.Background())

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		log.Fatal("Failed to verify Neo4j connectivity", zap.Error(err))
	}

	// Register the tenant in the control database. The api key is stored
	// only as its hash.
	if err := registerTenant(ctx, driver, cfg.ControlDatabase, *tenantID, *graphName, *apiKey); err != nil {
		log.Fatal("Failed to register tenant", zap.Error(err))
	}

	// Prepare the tenant's graph.
	log.Info("Creating constraints...")
	if err := createConstraints(ctx, driver, *graphName); err != nil {
		log.Warn("Failed to create some constraints (may already exist)", zap.Error(err))
	}

	log.Info("Creating indexes...")
	if err := createIndexes(ctx, driver, *graphName); err != nil {
		log.Warn("Failed to create some indexes (may already exist)", zap.Error(err))
	}

	log.Info("Tenant seeded successfully", zap.String("tenant_id", *tenantID))
}

func registerTenant(ctx context.Context, driver neo4j.DriverWithContext, controlDatabase, tenantID, graphName, apiKey string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: controlDatabase})
	defer session.Close(ctx)

	_, err := session.Run(ctx, `
		MERGE (t:Tenant {id: $id})
		SET t.graph_name = $graph_name,
		    t.api_key_hash = $api_key_hash,
		    t.updated_at = datetime()
	`, map[string]interface{}{
		"id":           tenantID,
		"graph_name":   graphName,
		"api_key_hash": tenant.HashAPIKey(apiKey),
	})
	return err
}

// createConstraints creates the uniqueness constraints the merge queries
// depend on
func createConstraints(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	constraints := []string{
		"CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
		// Value uniqueness alone: the merge queries key identifiers by value,
		// so two entities can never share one value even across types.
		"CREATE CONSTRAINT identifier_value_unique IF NOT EXISTS FOR (i:Identifier) REQUIRE i.value IS UNIQUE",
		"CREATE CONSTRAINT fact_id_unique IF NOT EXISTS FOR (f:Fact) REQUIRE f.fact_id IS UNIQUE",
		"CREATE CONSTRAINT source_id_unique IF NOT EXISTS FOR (s:Source) REQUIRE s.id IS UNIQUE",
	}

	for _, constraint := range constraints {
		if _, err := session.Run(ctx, constraint, nil); err != nil {
			return err
		}
	}
	return nil
}

// createIndexes creates lookup indexes for the hot query paths
func createIndexes(ctx context.Context, driver neo4j.DriverWithContext, database string) error {
	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite, DatabaseName: database})
	defer session.Close(ctx)

	// The identifier value lookup is backed by the uniqueness constraint's
	// own index, so it needs no entry here.
	indexes := []string{
		"CREATE INDEX fact_type_idx IF NOT EXISTS FOR (f:Fact) ON (f.type)",
		"CREATE INDEX source_timestamp_idx IF NOT EXISTS FOR (s:Source) ON (s.timestamp)",
	}

	for _, index := range indexes {
		if _, err := session.Run(ctx, index, nil); err != nil {
			return err
		}
	}
	return nil
}
