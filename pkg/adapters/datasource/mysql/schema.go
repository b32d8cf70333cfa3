package mysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
)

// SchemaDiscoverer extracts tables, columns, and FULLTEXT indexes from
// information_schema. The result becomes the identifier allow-list the
// query builder validates against.
type SchemaDiscoverer struct {
	db *sql.DB
}

// NewSchemaDiscoverer wraps an existing pool for schema extraction.
func NewSchemaDiscoverer(db *sql.DB) *SchemaDiscoverer {
	return &SchemaDiscoverer{db: db}
}

// DiscoverSchema returns all base tables in the connected database with
// their columns and FULLTEXT indexes. System schemas are excluded by
// scoping to DATABASE().
func (d *SchemaDiscoverer) DiscoverSchema(ctx context.Context) ([]models.TableSchema, error) {
	tables, err := d.discoverTables(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]models.TableSchema, 0, len(tables))
	for _, table := range tables {
		columns, err := d.discoverColumns(ctx, table)
		if err != nil {
			return nil, err
		}
		indexes, err := d.discoverFullTextIndexes(ctx, table)
		if err != nil {
			return nil, err
		}
		result = append(result, models.TableSchema{
			Name:            table,
			Columns:         columns,
			FullTextIndexes: indexes,
		})
	}
	return result, nil
}

func (d *SchemaDiscoverer) discoverTables(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`)
	if err != nil {
		return nil, fmt.Errorf("discover tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

func (d *SchemaDiscoverer) discoverColumns(ctx context.Context, table string) ([]models.ColumnSchema, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, fmt.Errorf("discover columns for %s: %w", table, err)
	}
	defer rows.Close()

	var columns []models.ColumnSchema
	for rows.Next() {
		var name, dataType, nullable, columnKey string
		if err := rows.Scan(&name, &dataType, &nullable, &columnKey); err != nil {
			return nil, fmt.Errorf("scan column for %s: %w", table, err)
		}
		columns = append(columns, models.ColumnSchema{
			Name:         name,
			DataType:     dataType,
			IsNullable:   nullable == "YES",
			IsPrimaryKey: columnKey == "PRI",
		})
	}
	return columns, rows.Err()
}

// discoverFullTextIndexes enumerates FULLTEXT indexes from
// information_schema.STATISTICS, grouping columns by index name in
// sequence order.
func (d *SchemaDiscoverer) discoverFullTextIndexes(ctx context.Context, table string) ([]models.FullTextIndex, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE()
		  AND TABLE_NAME = ?
		  AND INDEX_TYPE = 'FULLTEXT'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, fmt.Errorf("discover fulltext indexes for %s: %w", table, err)
	}
	defer rows.Close()

	var indexes []models.FullTextIndex
	byName := make(map[string]int)
	for rows.Next() {
		var indexName, columnName string
		if err := rows.Scan(&indexName, &columnName); err != nil {
			return nil, fmt.Errorf("scan fulltext index for %s: %w", table, err)
		}
		if i, ok := byName[indexName]; ok {
			indexes[i].Columns = append(indexes[i].Columns, columnName)
		} else {
			byName[indexName] = len(indexes)
			indexes = append(indexes, models.FullTextIndex{
				Name:    indexName,
				Columns: []string{columnName},
			})
		}
	}
	return indexes, rows.Err()
}
