package localsql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/athenakit/athenakit/internal/table"
)

// Engine runs SQL over materialized tables in an in-memory DuckDB database.
type Engine struct {
	db *sql.DB
}

// Open starts an empty in-memory database.
func Open() (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &Engine{db: db}, nil
}

func NewWithDB(db *sql.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) Close() error {
	return e.db.Close()
}

// Load replaces table name with the contents of t.
func (e *Engine) Load(ctx context.Context, name string, t *table.Table) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("table name is required")
	}
	if t == nil || len(t.Columns) == 0 {
		return fmt.Errorf("table %q has no columns", name)
	}

	definitions := make([]string, len(t.Columns))
	for i, column := range t.Columns {
		definitions[i] = quoteIdent(column.Name) + " " + duckdbType(column.Type)
	}
	createSQL := fmt.Sprintf("CREATE OR REPLACE TABLE %s (%s)", quoteIdent(name), strings.Join(definitions, ", "))
	if _, err := e.db.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	if len(t.Rows) == 0 {
		return nil
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load of %q: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(name), placeholders))
	if err != nil {
		return fmt.Errorf("prepare insert into %q: %w", name, err)
	}
	defer func() { _ = stmt.Close() }()

	for r, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("row %d has %d values, want %d", r, len(row), len(t.Columns))
		}
		args := make([]any, len(row))
		for i, value := range row {
			args[i] = argValue(value)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d into %q: %w", r, name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit load of %q: %w", name, err)
	}
	return nil
}

// Query runs sqlText and returns the result as a table. A positive rowLimit
// caps the number of rows.
func (e *Engine) Query(ctx context.Context, sqlText string, rowLimit int) (*table.Table, error) {
	sqlText = stripTrailingSemicolons(sqlText)
	if sqlText == "" {
		return nil, fmt.Errorf("sql is required")
	}
	if rowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, rowLimit)
	}

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	result := &table.Table{Columns: make([]table.Column, len(columnTypes))}
	for i, columnType := range columnTypes {
		result.Columns[i] = table.Column{Name: columnType.Name(), Type: tableType(columnType.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]any, len(columnTypes))
		scanTargets := make([]any, len(columnTypes))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, value := range values {
			values[i] = table.Normalize(value)
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	for i := range result.Columns {
		if result.Columns[i].Type != table.Unknown {
			continue
		}
		for _, row := range result.Rows {
			if row[i] != nil {
				result.Columns[i].Type = table.TypeOf(row[i])
				break
			}
		}
	}
	return result, nil
}

func duckdbType(t table.Type) string {
	switch t {
	case table.Bool:
		return "BOOLEAN"
	case table.Int:
		return "BIGINT"
	case table.Float:
		return "DOUBLE"
	case table.Bytes:
		return "BLOB"
	case table.Timestamp:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func tableType(databaseType string) table.Type {
	switch strings.ToUpper(databaseType) {
	case "BOOLEAN":
		return table.Bool
	case "TINYINT", "SMALLINT", "INTEGER", "BIGINT", "UTINYINT", "USMALLINT", "UINTEGER":
		return table.Int
	case "FLOAT", "DOUBLE":
		return table.Float
	case "VARCHAR":
		return table.String
	case "BLOB":
		return table.Bytes
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ", "TIMESTAMP_S", "TIMESTAMP_MS", "TIMESTAMP_NS":
		return table.Timestamp
	default:
		return table.Unknown
	}
}

// argValue maps values DuckDB cannot bind, such as repeated fields, to text.
func argValue(value any) any {
	switch typed := value.(type) {
	case nil, bool, int64, float64, string, []byte, time.Time:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
