package neo4j

import (
	"context"
	"fmt"

	driver "github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Row is one result record keyed by column name.
type Row = map[string]any

// CypherClient runs parameterised Cypher. Each call is one round trip.
type CypherClient interface {
	Read(ctx context.Context, cypher string, params map[string]any) ([]Row, error)
	Write(ctx context.Context, cypher string, params map[string]any) ([]Row, error)
	Close(ctx context.Context) error
}

// Config holds Neo4j connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
	// Database defaults to "neo4j".
	Database string
}

// DriverClient is a CypherClient backed by the official Neo4j driver.
type DriverClient struct {
	driver   driver.DriverWithContext
	database string
}

var _ CypherClient = (*DriverClient)(nil)

// NewDriverClient connects to Neo4j and verifies connectivity.
func NewDriverClient(ctx context.Context, cfg Config) (*DriverClient, error) {
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}

	drv, err := driver.NewDriverWithContext(cfg.URI, driver.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := drv.VerifyConnectivity(ctx); err != nil {
		_ = drv.Close(ctx)
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	return &DriverClient{driver: drv, database: cfg.Database}, nil
}

// Read runs cypher in a managed read transaction.
func (c *DriverClient) Read(ctx context.Context, cypher string, params map[string]any) ([]Row, error) {
	return c.run(ctx, driver.AccessModeRead, cypher, params)
}

// Write runs cypher in a managed write transaction.
func (c *DriverClient) Write(ctx context.Context, cypher string, params map[string]any) ([]Row, error) {
	return c.run(ctx, driver.AccessModeWrite, cypher, params)
}

// Close closes the driver and its connection pool.
func (c *DriverClient) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// EnsureIndexes creates the indexes the store's queries rely on.
func (c *DriverClient) EnsureIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
		"CREATE INDEX node_type_index IF NOT EXISTS FOR (n:Node) ON (n.type)",
	}
	for _, q := range indexes {
		if _, err := c.Write(ctx, q, nil); err != nil {
			return fmt.Errorf("creating index: %w", err)
		}
	}
	return nil
}

func (c *DriverClient) run(ctx context.Context, mode driver.AccessMode, cypher string, params map[string]any) ([]Row, error) {
	session := c.driver.NewSession(ctx, driver.SessionConfig{DatabaseName: c.database, AccessMode: mode})
	defer session.Close(ctx)

	work := func(tx driver.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		var rows []Row
		for result.Next(ctx) {
			record := result.Record()
			row := make(Row, len(record.Keys))
			for _, key := range record.Keys {
				val, _ := record.Get(key)
				row[key] = val
			}
			rows = append(rows, row)
		}
		return rows, result.Err()
	}

	var (
		out any
		err error
	)
	if mode == driver.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}
	if err != nil {
		return nil, err
	}
	rows, _ := out.([]Row)
	return rows, nil
}
