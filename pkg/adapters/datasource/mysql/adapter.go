// Package mysql provides the adapter for MySQL-compatible datasources
// (MySQL, MariaDB, TiDB and other wire-compatible engines).
package mysql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver

	"github.com/fedsearch-io/fedsearch-engine/pkg/adapters/datasource"
)

// Adapter tests connectivity against a MySQL-compatible database. It owns
// its connection and must be closed when done.
type Adapter struct {
	config *Config
	db     *sql.DB
}

// NewAdapter opens a standalone (non-pooled) connection for validating a
// datasource config before it is saved.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := sql.Open("mysql", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &Adapter{config: cfg, db: db}, nil
}

// TestConnection verifies the database is reachable with valid credentials.
func (a *Adapter) TestConnection(ctx context.Context) error {
	if err := a.db.PingContext(ctx); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// Close releases the connection.
func (a *Adapter) Close() error {
	return a.db.Close()
}

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "mysql",
			DisplayName: "MySQL",
			Description: "Connect to MySQL 5.7+, MariaDB, TiDB and compatible engines",
		},
		OpenPool: func(config map[string]any) (*sql.DB, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return sql.Open("mysql", cfg.DSN())
		},
		NewTester: func(_ context.Context, config map[string]any) (datasource.ConnectionTester, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(cfg)
		},
		NewSchemaDiscoverer: func(db *sql.DB) datasource.SchemaDiscoverer {
			return NewSchemaDiscoverer(db)
		},
	})
}
