package schema

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/wenqu/procurement-assistant/internal/domain"
)

// CoreTables are the three tables the analyst reasons over.
var CoreTables = []string{
	"base_procurement_info_new",
	"procurement_notices",
	"procurement_intention",
}

// Relationships is the fixed join descriptor embedded in every prompt.
const Relationships = "三张表通过 url 字段关联（LEFT JOIN），base_procurement_info_new 为主表。"

// Columns excluded from sample reads per table; procurement_notices.content
// holds full announcement bodies and would blow up the prompt.
var sampleExcludedColumns = map[string][]string{
	"procurement_notices": {"content"},
}

// Introspector reads live schema metadata and one sample row per core table.
type Introspector struct {
	pool *pgxpool.Pool
}

// NewIntrospector creates an introspector over the shared pool.
func NewIntrospector(pool *pgxpool.Pool) *Introspector {
	return &Introspector{pool: pool}
}

// Describe builds a fresh SchemaDescription. It is rebuilt on every analysis
// request; correctness over staleness. On any metadata error it returns an
// empty description and the caller surfaces an unavailability message instead
// of guessing a schema.
func (in *Introspector) Describe(ctx context.Context) *domain.SchemaDescription {
	desc := &domain.SchemaDescription{
		Samples:       make(map[string]map[string]any),
		Relationships: Relationships,
	}

	for _, table := range CoreTables {
		cols, err := in.describeColumns(ctx, table)
		if err != nil {
			log.Error().Err(err).Str("table", table).Msg("schema introspection failed")
			return &domain.SchemaDescription{}
		}
		if len(cols) == 0 {
			log.Error().Str("table", table).Msg("core table not found")
			return &domain.SchemaDescription{}
		}
		desc.Tables = append(desc.Tables, domain.TableSchema{Name: table, Columns: cols})

		sample, err := in.sampleRow(ctx, table, cols)
		if err != nil {
			log.Warn().Err(err).Str("table", table).Msg("sample row read failed")
			continue
		}
		if sample != nil {
			desc.Samples[table] = sample
		}
	}

	return desc
}

func (in *Introspector) describeColumns(ctx context.Context, table string) ([]domain.ColumnInfo, error) {
	query := `
		SELECT column_name, data_type, is_nullable, COALESCE(column_default, '')
		FROM information_schema.columns
		WHERE table_schema = 'public' AND table_name = $1
		ORDER BY ordinal_position
	`

	rows, err := in.pool.Query(ctx, query, table)
	if err != nil {
		return nil, fmt.Errorf("failed to describe table %s: %w", table, err)
	}
	defer rows.Close()

	var columns []domain.ColumnInfo
	for rows.Next() {
		var name, dataType, isNullable, columnDefault string
		if err := rows.Scan(&name, &dataType, &isNullable, &columnDefault); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}
		columns = append(columns, domain.ColumnInfo{
			Name:     name,
			DataType: dataType,
			Nullable: isNullable == "YES",
			Default:  columnDefault,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("column iteration error: %w", err)
	}

	return columns, nil
}

func (in *Introspector) sampleRow(ctx context.Context, table string, cols []domain.ColumnInfo) (map[string]any, error) {
	excluded := make(map[string]bool)
	for _, c := range sampleExcludedColumns[table] {
		excluded[c] = true
	}

	var names []string
	for _, c := range cols {
		if !excluded[c.Name] {
			names = append(names, quoteIdent(c.Name))
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf("SELECT %s FROM %s LIMIT 1", strings.Join(names, ", "), quoteIdent(table))
	rows, err := in.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sample query failed: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	values, err := rows.Values()
	if err != nil {
		return nil, fmt.Errorf("failed to read sample values: %w", err)
	}

	sample := make(map[string]any, len(values))
	for i, fd := range rows.FieldDescriptions() {
		sample[string(fd.Name)] = domain.DecodeCell(values[i])
	}
	return sample, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
