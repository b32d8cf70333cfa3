// Package datasource manages connection pools and adapters for
// user-registered databases. One pool is owned by exactly one registered
// source; nothing outside this package touches raw connections.
package datasource

import (
	"context"
	"database/sql"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// ConnectionTester verifies reachability with the supplied credentials.
// Each implementation owns its connection and must be closed when done.
type ConnectionTester interface {
	// TestConnection returns nil if the database is reachable with valid
	// credentials.
	TestConnection(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// SchemaDiscoverer extracts the schema allow-list for a source: user
// tables, their columns, and their FULLTEXT indexes. Discovery runs on a
// slow cadence (registration and explicit refresh), never per-query.
type SchemaDiscoverer interface {
	// DiscoverSchema returns all user tables with columns and FULLTEXT
	// indexes, excluding system schemas.
	DiscoverSchema(ctx context.Context) ([]models.TableSchema, error)
}

// AdapterInfo describes a registered adapter type.
type AdapterInfo struct {
	Type        string `json:"type"`         // "mysql", "mariadb"
	DisplayName string `json:"display_name"` // "MySQL"
	Description string `json:"description"`
}

// Registration bundles an adapter's info with its factory functions. The
// pool manager owns sizing and lifecycle of the returned handles.
type Registration struct {
	Info AdapterInfo

	// OpenPool builds an unpinged *sql.DB from decrypted config.
	OpenPool func(config map[string]any) (*sql.DB, error)

	// NewTester opens a standalone connection for pre-save validation.
	NewTester func(ctx context.Context, config map[string]any) (ConnectionTester, error)

	// NewSchemaDiscoverer wraps an existing pool for schema extraction.
	NewSchemaDiscoverer func(db *sql.DB) SchemaDiscoverer
}
