package models

import (
	"time"

	"github.com/google/uuid"
)

// ColumnSchema describes one column of a discovered table.
type ColumnSchema struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	IsNullable   bool   `json:"is_nullable"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// FullTextIndex describes one FULLTEXT index on a table. A search against a
// set of columns is only valid when some index covers all of them.
type FullTextIndex struct {
	Name    string   `json:"name"`
	Columns []string `json:"columns"`
}

// TableSchema is the discovered shape of one table.
type TableSchema struct {
	Name            string          `json:"name"`
	Columns         []ColumnSchema  `json:"columns"`
	FullTextIndexes []FullTextIndex `json:"fulltext_indexes"`
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableSchema) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// PrimaryKey returns the first primary-key column name, or "" if the table
// has no discovered primary key.
func (t *TableSchema) PrimaryKey() string {
	for _, c := range t.Columns {
		if c.IsPrimaryKey {
			return c.Name
		}
	}
	return ""
}

// CoveringIndex returns the first FULLTEXT index whose column set contains
// every requested column, and false when none covers them.
func (t *TableSchema) CoveringIndex(columns []string) (*FullTextIndex, bool) {
	for i := range t.FullTextIndexes {
		idx := &t.FullTextIndexes[i]
		if coversAll(idx.Columns, columns) {
			return idx, true
		}
	}
	return nil, false
}

func coversAll(indexCols, wanted []string) bool {
	set := make(map[string]struct{}, len(indexCols))
	for _, c := range indexCols {
		set[c] = struct{}{}
	}
	for _, w := range wanted {
		if _, ok := set[w]; !ok {
			return false
		}
	}
	return true
}

// SourceSchema is the discovered schema allow-list for one datasource,
// refreshed on registration and on explicit request rather than per-query.
type SourceSchema struct {
	SourceID    uuid.UUID              `json:"source_id"`
	Tables      map[string]TableSchema `json:"tables"`
	RefreshedAt time.Time              `json:"refreshed_at"`
}

// Table returns the schema for the named table, if discovered.
func (s *SourceSchema) Table(name string) (TableSchema, bool) {
	t, ok := s.Tables[name]
	return t, ok
}
