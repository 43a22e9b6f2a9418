package main

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSampleLimit bounds get_sample_data when the caller omits a limit.
const DefaultSampleLimit = 10

// Every schema enumeration excludes the system schemas
// information_schema, pg_catalog, and pg_toast.
const (
	listSchemasQuery = `
	SELECT schema_name, schema_owner
	FROM information_schema.schemata
	WHERE schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
	ORDER BY schema_name`

	listTablesQuery = `
	SELECT table_name, table_type, table_schema
	FROM information_schema.tables
	WHERE table_schema = $1
	ORDER BY table_name`

	tableColumnsQuery = `
	SELECT column_name, data_type, is_nullable, column_default,
		character_maximum_length, numeric_precision, numeric_scale, ordinal_position
	FROM information_schema.columns
	WHERE table_name = $1 AND table_schema = $2
	ORDER BY ordinal_position`

	tableConstraintsQuery = `
	SELECT tc.constraint_name, tc.constraint_type, kcu.column_name,
		ccu.table_name AS foreign_table_name, ccu.column_name AS foreign_column_name
	FROM information_schema.table_constraints tc
	LEFT JOIN information_schema.key_column_usage kcu
		ON tc.constraint_name = kcu.constraint_name
	LEFT JOIN information_schema.constraint_column_usage ccu
		ON tc.constraint_name = ccu.constraint_name
	WHERE tc.table_name = $1 AND tc.table_schema = $2`

	overviewQuery = `
	SELECT s.schema_name, COUNT(t.table_name) AS table_count,
		string_agg(t.table_name, ', ' ORDER BY t.table_name) AS tables
	FROM information_schema.schemata s
	LEFT JOIN information_schema.tables t
		ON s.schema_name = t.table_schema
		AND t.table_type = 'BASE TABLE'
	WHERE s.schema_name NOT IN ('information_schema', 'pg_catalog', 'pg_toast')
	GROUP BY s.schema_name
	ORDER BY s.schema_name`

	structureColumnsQuery = `
	SELECT column_name, data_type, is_nullable, column_default
	FROM information_schema.columns
	WHERE table_name = $1 AND table_schema = $2
	ORDER BY ordinal_position`
)

// SchemaInfo is one row of the schema enumeration.
type SchemaInfo struct {
	SchemaName  string `json:"schema_name"`
	SchemaOwner string `json:"schema_owner"`
}

// TableInfo is one row of the per-schema table enumeration.
type TableInfo struct {
	TableName   string `json:"table_name"`
	TableType   string `json:"table_type"`
	TableSchema string `json:"table_schema"`
}

// ColumnDescriptor describes one table column, ordered by ordinal position.
type ColumnDescriptor struct {
	ColumnName             string  `json:"column_name"`
	DataType               string  `json:"data_type"`
	IsNullable             string  `json:"is_nullable"`
	ColumnDefault          *string `json:"column_default"`
	CharacterMaximumLength *int64  `json:"character_maximum_length"`
	NumericPrecision       *int64  `json:"numeric_precision"`
	NumericScale           *int64  `json:"numeric_scale"`
	OrdinalPosition        int     `json:"ordinal_position"`
}

// ConstraintDescriptor describes one table constraint. Only FOREIGN KEY
// rows carry the referenced table/column identity.
type ConstraintDescriptor struct {
	ConstraintName    string  `json:"constraint_name"`
	ConstraintType    string  `json:"constraint_type"`
	ColumnName        *string `json:"column_name"`
	ForeignTableName  *string `json:"foreign_table_name"`
	ForeignColumnName *string `json:"foreign_column_name"`
}

// TableDescription combines both halves of describe_table. Either sequence
// may be empty without the whole lookup being an error.
type TableDescription struct {
	TableName   string                 `json:"table_name"`
	SchemaName  string                 `json:"schema_name"`
	Columns     []ColumnDescriptor     `json:"columns"`
	Constraints []ConstraintDescriptor `json:"constraints"`
}

// SchemaOverview is one row of get_database_overview. Tables is nil for a
// schema with no base tables.
type SchemaOverview struct {
	SchemaName string  `json:"schema_name"`
	TableCount int64   `json:"table_count"`
	Tables     *string `json:"tables"`
}

// StructureColumn is the reduced column shape used by the structure walk.
type StructureColumn struct {
	ColumnName    string  `json:"column_name"`
	DataType      string  `json:"data_type"`
	IsNullable    string  `json:"is_nullable"`
	ColumnDefault *string `json:"column_default"`
}

// TableStructure is one table inside DatabaseStructure.
type TableStructure struct {
	Type    string            `json:"type"`
	Columns []StructureColumn `json:"columns"`
}

// DatabaseStructure maps schema name to table name to table layout.
type DatabaseStructure map[string]map[string]TableStructure

// Inspector builds and runs the catalog queries behind each introspection
// operation. Scalar inputs are always bound as parameters; the one place
// identifiers enter statement text (SampleData) validates and quotes them
// first.
type Inspector struct {
	db   *sql.DB
	exec *Executor
}

// NewInspector returns an Inspector over db, using exec for the paths
// that return free-form rows (sample data and ad-hoc queries).
func NewInspector(db *sql.DB, exec *Executor) *Inspector {
	return &Inspector{db: db, exec: exec}
}

// ListSchemas enumerates non-system schemas, ordered by name.
func (ins *Inspector) ListSchemas(ctx context.Context) ([]SchemaInfo, error) {
	rows, err := ins.db.QueryContext(ctx, listSchemasQuery)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	schemas := []SchemaInfo{}
	for rows.Next() {
		var s SchemaInfo
		if err := rows.Scan(&s.SchemaName, &s.SchemaOwner); err != nil {
			return nil, errors.Wrap(err, "scan schema row")
		}
		schemas = append(schemas, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return schemas, nil
}

// ListTables enumerates the tables of one schema, ordered by name. An
// empty slice for a schema with no tables is a valid result.
func (ins *Inspector) ListTables(ctx context.Context, schemaName string) ([]TableInfo, error) {
	rows, err := ins.db.QueryContext(ctx, listTablesQuery, schemaName)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	tables := []TableInfo{}
	for rows.Next() {
		var t TableInfo
		if err := rows.Scan(&t.TableName, &t.TableType, &t.TableSchema); err != nil {
			return nil, errors.Wrap(err, "scan table row")
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return tables, nil
}

// DescribeTable returns column metadata ordered by ordinal position plus
// constraint metadata for one table.
func (ins *Inspector) DescribeTable(ctx context.Context, tableName, schemaName string) (*TableDescription, error) {
	columns, err := ins.tableColumns(ctx, tableName, schemaName)
	if err != nil {
		return nil, err
	}
	constraints, err := ins.tableConstraints(ctx, tableName, schemaName)
	if err != nil {
		return nil, err
	}
	return &TableDescription{
		TableName:   tableName,
		SchemaName:  schemaName,
		Columns:     columns,
		Constraints: constraints,
	}, nil
}

func (ins *Inspector) tableColumns(ctx context.Context, tableName, schemaName string) ([]ColumnDescriptor, error) {
	rows, err := ins.db.QueryContext(ctx, tableColumnsQuery, tableName, schemaName)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	columns := []ColumnDescriptor{}
	for rows.Next() {
		var (
			c                 ColumnDescriptor
			def               sql.NullString
			maxLen, prec, scl sql.NullInt64
		)
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &def,
			&maxLen, &prec, &scl, &c.OrdinalPosition); err != nil {
			return nil, errors.Wrap(err, "scan column row")
		}
		c.ColumnDefault = nullString(def)
		c.CharacterMaximumLength = nullInt(maxLen)
		c.NumericPrecision = nullInt(prec)
		c.NumericScale = nullInt(scl)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return columns, nil
}

func (ins *Inspector) tableConstraints(ctx context.Context, tableName, schemaName string) ([]ConstraintDescriptor, error) {
	rows, err := ins.db.QueryContext(ctx, tableConstraintsQuery, tableName, schemaName)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	constraints := []ConstraintDescriptor{}
	for rows.Next() {
		var (
			c                         ConstraintDescriptor
			column, fkTable, fkColumn sql.NullString
		)
		if err := rows.Scan(&c.ConstraintName, &c.ConstraintType, &column, &fkTable, &fkColumn); err != nil {
			return nil, errors.Wrap(err, "scan constraint row")
		}
		c.ColumnName = nullString(column)
		// constraint_column_usage also matches the constraint's own table
		// for PK/unique rows; the referenced identity is meaningful only
		// on foreign keys.
		if c.ConstraintType == "FOREIGN KEY" {
			c.ForeignTableName = nullString(fkTable)
			c.ForeignColumnName = nullString(fkColumn)
		}
		constraints = append(constraints, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return constraints, nil
}

// SampleData returns at most limit rows of one table. schemaName and
// tableName are the only identifiers that ever enter statement text, so
// both are allow-list validated and then quoted with PostgreSQL identifier
// quoting; the limit is bound as a parameter.
func (ins *Inspector) SampleData(ctx context.Context, tableName, schemaName string, limit int) ([]Row, error) {
	qualified, err := qualifyTable(schemaName, tableName)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	return ins.exec.Execute(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT $1", qualified), limit)
}

// RunQuery executes caller-supplied SQL after the read-only check. The
// check runs before any connection is touched.
func (ins *Inspector) RunQuery(ctx context.Context, query string) ([]Row, error) {
	if err := validateReadOnlyQuery(query); err != nil {
		return nil, err
	}
	return ins.exec.Execute(ctx, query)
}

// Overview returns per-schema base-table counts and aggregated table name
// lists, grouped and ordered by schema name.
func (ins *Inspector) Overview(ctx context.Context) ([]SchemaOverview, error) {
	rows, err := ins.db.QueryContext(ctx, overviewQuery)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	overview := []SchemaOverview{}
	for rows.Next() {
		var (
			o      SchemaOverview
			tables sql.NullString
		)
		if err := rows.Scan(&o.SchemaName, &o.TableCount, &tables); err != nil {
			return nil, errors.Wrap(err, "scan overview row")
		}
		o.Tables = nullString(tables)
		overview = append(overview, o)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return overview, nil
}

// Structure walks the whole catalog: one schema query, one table query per
// schema, one column query per table. The query count scales with catalog
// size; intentionally unbounded, for small databases.
func (ins *Inspector) Structure(ctx context.Context) (DatabaseStructure, error) {
	schemas, err := ins.ListSchemas(ctx)
	if err != nil {
		return nil, err
	}

	structure := make(DatabaseStructure, len(schemas))
	for _, schema := range schemas {
		tables, err := ins.ListTables(ctx, schema.SchemaName)
		if err != nil {
			return nil, err
		}
		structure[schema.SchemaName] = make(map[string]TableStructure, len(tables))
		for _, table := range tables {
			columns, err := ins.structureColumns(ctx, table.TableName, schema.SchemaName)
			if err != nil {
				return nil, err
			}
			structure[schema.SchemaName][table.TableName] = TableStructure{
				Type:    table.TableType,
				Columns: columns,
			}
		}
	}
	return structure, nil
}

func (ins *Inspector) structureColumns(ctx context.Context, tableName, schemaName string) ([]StructureColumn, error) {
	rows, err := ins.db.QueryContext(ctx, structureColumnsQuery, tableName, schemaName)
	if err != nil {
		return nil, &QueryError{Err: err}
	}
	defer rows.Close()

	columns := []StructureColumn{}
	for rows.Next() {
		var (
			c   StructureColumn
			def sql.NullString
		)
		if err := rows.Scan(&c.ColumnName, &c.DataType, &c.IsNullable, &def); err != nil {
			return nil, errors.Wrap(err, "scan structure column row")
		}
		c.ColumnDefault = nullString(def)
		columns = append(columns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Err: err}
	}
	return columns, nil
}

// identifierPattern accepts the simple identifiers PostgreSQL treats as
// unquoted names: a letter or underscore, then letters, digits,
// underscores, or dollar signs.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_$]*$`)

func validateIdentifier(kind, name string) error {
	if name == "" {
		return &ValidationError{Reason: fmt.Sprintf("%s name is empty", kind)}
	}
	if len(name) > 63 {
		return &ValidationError{Reason: fmt.Sprintf("%s name exceeds 63 bytes", kind)}
	}
	if !identifierPattern.MatchString(name) {
		return &ValidationError{Reason: fmt.Sprintf(
			"invalid %s name %q: only letters, digits, underscores, and dollar signs are allowed", kind, name)}
	}
	return nil
}

// quoteIdentifier wraps name in double quotes, doubling any embedded
// quote, per PostgreSQL identifier quoting rules.
func quoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualifyTable validates both identifiers and returns the quoted
// schema.table form safe to interpolate into statement text.
func qualifyTable(schemaName, tableName string) (string, error) {
	if err := validateIdentifier("schema", schemaName); err != nil {
		return "", err
	}
	if err := validateIdentifier("table", tableName); err != nil {
		return "", err
	}
	return quoteIdentifier(schemaName) + "." + quoteIdentifier(tableName), nil
}

func nullString(v sql.NullString) *string {
	if v.Valid {
		return &v.String
	}
	return nil
}

func nullInt(v sql.NullInt64) *int64 {
	if v.Valid {
		return &v.Int64
	}
	return nil
}
