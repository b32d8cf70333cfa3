// Package search implements the federated search core: statement
// construction, per-source execution, result normalization, merging, and
// the orchestrator that ties them to the cache and the AI optimizer.
package search

import (
	"fmt"
	"strings"

	libinjection "github.com/corazawaf/libinjection-go"
	"github.com/google/uuid"

	"github.com/fedsearch-io/fedsearch-engine/pkg/apperrors"
	"github.com/fedsearch-io/fedsearch-engine/pkg/models"
	"github.com/fedsearch-io/fedsearch-engine/pkg/schema"
)

// scoreColumn is the alias for the full-text relevance score in every
// generated statement. Prefixed to avoid colliding with user columns.
const scoreColumn = "_fedsearch_score"

// Statement is one parameterized full-text query bound to a single table of
// a single source. Only the search text and filter values travel as bound
// parameters; every identifier is validated against the discovered schema
// before interpolation.
type Statement struct {
	SourceID     uuid.UUID
	Table        string
	MatchColumns []string
	PKColumn     string
	SQL          string
	Args         []any
}

// Builder constructs per-source statements from a logical query.
type Builder struct {
	schemas *schema.Registry
}

// NewBuilder creates a statement builder backed by the schema registry.
func NewBuilder(schemas *schema.Registry) *Builder {
	return &Builder{schemas: schemas}
}

// Build produces one statement per target table for the given source.
// searchText is the text to match, which for semantic mode is the rewritten
// expression; originalText is the caller's text, used as a fallback
// disjunct so a poor rewrite cannot lose results the literal phrase would
// have matched. For natural and boolean modes originalText is ignored.
func (b *Builder) Build(q *models.SearchQuery, sourceID uuid.UUID, searchText, originalText string) ([]Statement, error) {
	if isSQLi, _ := libinjection.IsSQLi(q.RawText); isSQLi {
		return nil, fmt.Errorf("%w: search text contains SQL injection pattern", apperrors.ErrValidation)
	}

	src, err := b.schemas.Get(sourceID)
	if err != nil {
		return nil, fmt.Errorf("%w: no schema for source %s", apperrors.ErrInvalidTarget, sourceID)
	}

	tables, err := b.resolveTables(q, src)
	if err != nil {
		return nil, err
	}

	if q.Mode == models.ModeBoolean {
		searchText, err = SanitizeBooleanExpression(searchText)
		if err != nil {
			return nil, err
		}
	}

	// Each source must return enough rows to fill any page of the merged
	// result set.
	perSourceLimit := q.Limit + q.Offset

	statements := make([]Statement, 0, len(tables))
	for _, tbl := range tables {
		matchCols, err := b.resolveMatchColumns(q, tbl)
		if err != nil {
			return nil, err
		}

		filterSQL, filterArgs, err := buildFilterPredicates(q.Filters, tbl)
		if err != nil {
			return nil, err
		}

		sqlText, args := buildStatementSQL(q.Mode, tbl.Name, matchCols, filterSQL, searchText, originalText, perSourceLimit)
		args = append(args, filterArgs...)

		statements = append(statements, Statement{
			SourceID:     sourceID,
			Table:        tbl.Name,
			MatchColumns: matchCols,
			PKColumn:     tbl.PrimaryKey(),
			SQL:          sqlText,
			Args:         args,
		})
	}
	return statements, nil
}

func (b *Builder) resolveTables(q *models.SearchQuery, src *models.SourceSchema) ([]models.TableSchema, error) {
	if len(q.Tables) == 0 {
		// Default to every table that carries a full-text index.
		var tables []models.TableSchema
		for _, tbl := range src.Tables {
			if len(tbl.FullTextIndexes) > 0 {
				tables = append(tables, tbl)
			}
		}
		if len(tables) == 0 {
			return nil, fmt.Errorf("%w: source %s has no full-text indexed tables", apperrors.ErrInvalidTarget, src.SourceID)
		}
		return tables, nil
	}

	tables := make([]models.TableSchema, 0, len(q.Tables))
	for _, name := range q.Tables {
		tbl, ok := src.Table(name)
		if !ok {
			return nil, fmt.Errorf("%w: table %q not found in source %s", apperrors.ErrInvalidTarget, name, src.SourceID)
		}
		tables = append(tables, tbl)
	}
	return tables, nil
}

// resolveMatchColumns picks the column list for the MATCH clause. MySQL
// requires the list to exactly match a FULLTEXT index definition, so the
// caller's columns are resolved to a covering index rather than used as-is.
func (b *Builder) resolveMatchColumns(q *models.SearchQuery, tbl models.TableSchema) ([]string, error) {
	if len(q.Columns) == 0 {
		if len(tbl.FullTextIndexes) == 0 {
			return nil, fmt.Errorf("%w: table %q has no full-text index", apperrors.ErrInvalidTarget, tbl.Name)
		}
		return tbl.FullTextIndexes[0].Columns, nil
	}

	for _, col := range q.Columns {
		if !tbl.HasColumn(col) {
			return nil, fmt.Errorf("%w: column %q not found in table %q", apperrors.ErrInvalidTarget, col, tbl.Name)
		}
	}

	idx, ok := tbl.CoveringIndex(q.Columns)
	if !ok {
		return nil, fmt.Errorf("%w: no full-text index covers columns %v on table %q", apperrors.ErrInvalidTarget, q.Columns, tbl.Name)
	}
	return idx.Columns, nil
}

func buildStatementSQL(mode models.SearchMode, table string, matchCols []string, filterSQL string, searchText, originalText string, limit int) (string, []any) {
	match := matchClause(matchCols)

	var sb strings.Builder
	var args []any

	switch mode {
	case models.ModeBoolean:
		fmt.Fprintf(&sb, "SELECT *, %s AGAINST (? IN BOOLEAN MODE) AS %s FROM %s WHERE %s AGAINST (? IN BOOLEAN MODE)",
			match, scoreColumn, quoteIdentifier(table), match)
		args = append(args, searchText, searchText)
	case models.ModeSemantic:
		// Rank on the better of the rewritten and original expressions;
		// match on either so the rewrite can only widen recall.
		fmt.Fprintf(&sb,
			"SELECT *, GREATEST(%s AGAINST (? IN NATURAL LANGUAGE MODE), %s AGAINST (? IN NATURAL LANGUAGE MODE)) AS %s FROM %s WHERE %s AGAINST (? IN NATURAL LANGUAGE MODE) OR %s AGAINST (? IN NATURAL LANGUAGE MODE)",
			match, match, scoreColumn, quoteIdentifier(table), match, match)
		args = append(args, searchText, originalText, searchText, originalText)
	default: // natural
		fmt.Fprintf(&sb, "SELECT *, %s AGAINST (? IN NATURAL LANGUAGE MODE) AS %s FROM %s WHERE %s AGAINST (? IN NATURAL LANGUAGE MODE)",
			match, scoreColumn, quoteIdentifier(table), match)
		args = append(args, searchText, searchText)
	}

	if filterSQL != "" {
		fmt.Fprintf(&sb, " AND %s", filterSQL)
	}

	fmt.Fprintf(&sb, " ORDER BY %s DESC LIMIT %d", scoreColumn, limit)
	return sb.String(), args
}

func buildFilterPredicates(filters []models.Filter, tbl models.TableSchema) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	var predicates []string
	var args []any

	for _, f := range filters {
		if !tbl.HasColumn(f.Column) {
			return "", nil, fmt.Errorf("%w: filter column %q not found in table %q", apperrors.ErrInvalidTarget, f.Column, tbl.Name)
		}
		col := quoteIdentifier(f.Column)

		switch f.Op {
		case models.OpEq:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: eq filter on %q requires exactly one value", apperrors.ErrValidation, f.Column)
			}
			predicates = append(predicates, col+" = ?")
			args = append(args, f.Values[0])
		case models.OpIn:
			if len(f.Values) == 0 {
				return "", nil, fmt.Errorf("%w: in filter on %q requires at least one value", apperrors.ErrValidation, f.Column)
			}
			placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(f.Values)), ", ")
			predicates = append(predicates, col+" IN ("+placeholders+")")
			for _, v := range f.Values {
				args = append(args, v)
			}
		case models.OpGte:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: gte filter on %q requires exactly one value", apperrors.ErrValidation, f.Column)
			}
			predicates = append(predicates, col+" >= ?")
			args = append(args, f.Values[0])
		case models.OpLte:
			if len(f.Values) != 1 {
				return "", nil, fmt.Errorf("%w: lte filter on %q requires exactly one value", apperrors.ErrValidation, f.Column)
			}
			predicates = append(predicates, col+" <= ?")
			args = append(args, f.Values[0])
		case models.OpBetween:
			if len(f.Values) != 2 {
				return "", nil, fmt.Errorf("%w: between filter on %q requires exactly two values", apperrors.ErrValidation, f.Column)
			}
			predicates = append(predicates, col+" BETWEEN ? AND ?")
			args = append(args, f.Values[0], f.Values[1])
		default:
			return "", nil, fmt.Errorf("%w: unsupported filter op %q", apperrors.ErrValidation, f.Op)
		}
	}

	return strings.Join(predicates, " AND "), args, nil
}

func matchClause(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = quoteIdentifier(c)
	}
	return "MATCH (" + strings.Join(quoted, ", ") + ")"
}

// quoteIdentifier backtick-quotes an identifier that has already passed the
// schema allow-list. Embedded backticks are doubled per MySQL quoting rules.
func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
