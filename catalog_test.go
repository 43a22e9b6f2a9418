package main

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockInspector(t *testing.T) (*Inspector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewInspector(db, NewExecutor(db, 0)), mock
}

func TestListSchemas(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.schemata`).WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "schema_owner"}).
			AddRow("analytics", "postgres").
			AddRow("public", "postgres"))

	schemas, err := ins.ListSchemas(context.Background())
	require.NoError(t, err)
	require.Len(t, schemas, 2)
	assert.Equal(t, SchemaInfo{SchemaName: "analytics", SchemaOwner: "postgres"}, schemas[0])
	assert.Equal(t, "public", schemas[1].SchemaName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListSchemasQueryExcludesSystemSchemas(t *testing.T) {
	for _, system := range []string{"information_schema", "pg_catalog", "pg_toast"} {
		assert.Contains(t, listSchemasQuery, "'"+system+"'")
	}
	assert.Contains(t, listSchemasQuery, "ORDER BY schema_name")
}

func TestListTablesBindsSchemaName(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.tables`).
		WithArgs("sales").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "table_schema"}).
			AddRow("invoices", "BASE TABLE", "sales"))

	tables, err := ins.ListTables(context.Background(), "sales")
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, TableInfo{TableName: "invoices", TableType: "BASE TABLE", TableSchema: "sales"}, tables[0])

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListTablesEmptySchemaIsNotAnError(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.tables`).
		WithArgs("empty").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "table_schema"}))

	tables, err := ins.ListTables(context.Background(), "empty")
	require.NoError(t, err)
	require.NotNil(t, tables)
	assert.Empty(t, tables)
}

func TestDescribeTable(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.columns`).
		WithArgs("users", "public").
		WillReturnRows(sqlmock.NewRows([]string{
			"column_name", "data_type", "is_nullable", "column_default",
			"character_maximum_length", "numeric_precision", "numeric_scale", "ordinal_position",
		}).
			AddRow("id", "integer", "NO", "nextval('users_id_seq')", nil, int64(32), int64(0), 1).
			AddRow("name", "character varying", "YES", nil, int64(255), nil, nil, 2))

	mock.ExpectQuery(`FROM information_schema\.table_constraints`).
		WithArgs("users", "public").
		WillReturnRows(sqlmock.NewRows([]string{
			"constraint_name", "constraint_type", "column_name", "foreign_table_name", "foreign_column_name",
		}).
			AddRow("users_pkey", "PRIMARY KEY", "id", "users", "id").
			AddRow("users_org_fkey", "FOREIGN KEY", "org_id", "orgs", "id"))

	description, err := ins.DescribeTable(context.Background(), "users", "public")
	require.NoError(t, err)

	assert.Equal(t, "users", description.TableName)
	assert.Equal(t, "public", description.SchemaName)

	require.Len(t, description.Columns, 2)
	id := description.Columns[0]
	assert.Equal(t, "id", id.ColumnName)
	assert.Equal(t, 1, id.OrdinalPosition)
	require.NotNil(t, id.ColumnDefault)
	assert.Equal(t, "nextval('users_id_seq')", *id.ColumnDefault)
	assert.Nil(t, id.CharacterMaximumLength)
	require.NotNil(t, id.NumericPrecision)
	assert.Equal(t, int64(32), *id.NumericPrecision)

	name := description.Columns[1]
	assert.Nil(t, name.ColumnDefault)
	require.NotNil(t, name.CharacterMaximumLength)
	assert.Equal(t, int64(255), *name.CharacterMaximumLength)

	require.Len(t, description.Constraints, 2)
	pk := description.Constraints[0]
	assert.Equal(t, "PRIMARY KEY", pk.ConstraintType)
	assert.Nil(t, pk.ForeignTableName, "referenced identity only on foreign keys")
	assert.Nil(t, pk.ForeignColumnName)

	fk := description.Constraints[1]
	assert.Equal(t, "FOREIGN KEY", fk.ConstraintType)
	require.NotNil(t, fk.ForeignTableName)
	assert.Equal(t, "orgs", *fk.ForeignTableName)
	require.NotNil(t, fk.ForeignColumnName)
	assert.Equal(t, "id", *fk.ForeignColumnName)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDescribeTableEmptyIsNotAnError(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.columns`).
		WithArgs("ghost", "public").
		WillReturnRows(sqlmock.NewRows([]string{
			"column_name", "data_type", "is_nullable", "column_default",
			"character_maximum_length", "numeric_precision", "numeric_scale", "ordinal_position",
		}))
	mock.ExpectQuery(`FROM information_schema\.table_constraints`).
		WithArgs("ghost", "public").
		WillReturnRows(sqlmock.NewRows([]string{
			"constraint_name", "constraint_type", "column_name", "foreign_table_name", "foreign_column_name",
		}))

	description, err := ins.DescribeTable(context.Background(), "ghost", "public")
	require.NoError(t, err)
	assert.Empty(t, description.Columns)
	assert.Empty(t, description.Constraints)
}

func TestSampleDataQuotesIdentifiersAndBindsLimit(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`SELECT \* FROM "public"\."users" LIMIT \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(int64(1)).
			AddRow(int64(2)).
			AddRow(int64(3)))

	rows, err := ins.SampleData(context.Background(), "users", "public", 3)
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleDataDefaultsLimit(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`SELECT \* FROM "public"\."users" LIMIT \$1`).
		WithArgs(DefaultSampleLimit).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ins.SampleData(context.Background(), "users", "public", 0)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSampleDataRejectsBadIdentifiers(t *testing.T) {
	ins, mock := newMockInspector(t)

	bad := []struct {
		table  string
		schema string
	}{
		{"users; DROP TABLE users", "public"},
		{"users", "public\".\"secret"},
		{`users"`, "public"},
		{"users name", "public"},
		{"", "public"},
		{"users", ""},
		{"1users", "public"},
	}

	for _, tc := range bad {
		rows, err := ins.SampleData(context.Background(), tc.table, tc.schema, 10)
		require.Errorf(t, err, "table=%q schema=%q", tc.table, tc.schema)
		assert.Nil(t, rows)

		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}

	// Nothing above may touch the database.
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunQueryRejectsBeforeConnecting(t *testing.T) {
	ins, mock := newMockInspector(t)

	rows, err := ins.RunQuery(context.Background(), "DELETE FROM x")
	require.Error(t, err)
	assert.Nil(t, rows)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	require.NoError(t, mock.ExpectationsWereMet(), "validation must run before the database is touched")
}

func TestRunQueryAllowsSelect(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`select 1`).WillReturnRows(
		sqlmock.NewRows([]string{"?column?"}).AddRow(int64(1)))

	rows, err := ins.RunQuery(context.Background(), "  select 1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(1), rows[0]["?column?"])
}

func TestOverview(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`string_agg`).WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "table_count", "tables"}).
			AddRow("empty_schema", int64(0), nil).
			AddRow("public", int64(2), "orders, users"))

	overview, err := ins.Overview(context.Background())
	require.NoError(t, err)
	require.Len(t, overview, 2)

	assert.Equal(t, int64(0), overview[0].TableCount)
	assert.Nil(t, overview[0].Tables, "empty schema aggregates to NULL")

	require.NotNil(t, overview[1].Tables)
	assert.Equal(t, "orders, users", *overview[1].Tables)
}

func TestStructureWalk(t *testing.T) {
	ins, mock := newMockInspector(t)

	mock.ExpectQuery(`FROM information_schema\.schemata`).WillReturnRows(
		sqlmock.NewRows([]string{"schema_name", "schema_owner"}).
			AddRow("public", "postgres"))

	mock.ExpectQuery(`FROM information_schema\.tables`).
		WithArgs("public").
		WillReturnRows(sqlmock.NewRows([]string{"table_name", "table_type", "table_schema"}).
			AddRow("users", "BASE TABLE", "public").
			AddRow("v_active", "VIEW", "public"))

	mock.ExpectQuery(`FROM information_schema\.columns`).
		WithArgs("users", "public").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("id", "integer", "NO", "nextval('users_id_seq')").
			AddRow("name", "text", "YES", nil))

	mock.ExpectQuery(`FROM information_schema\.columns`).
		WithArgs("v_active", "public").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable", "column_default"}).
			AddRow("id", "integer", "YES", nil))

	structure, err := ins.Structure(context.Background())
	require.NoError(t, err)

	require.Contains(t, structure, "public")
	require.Len(t, structure["public"], 2)

	users := structure["public"]["users"]
	assert.Equal(t, "BASE TABLE", users.Type)
	require.Len(t, users.Columns, 2)
	assert.Equal(t, "id", users.Columns[0].ColumnName)
	require.NotNil(t, users.Columns[0].ColumnDefault)
	assert.Nil(t, users.Columns[1].ColumnDefault)

	assert.Equal(t, "VIEW", structure["public"]["v_active"].Type)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"users", "_private", "Table1", "order_items", "col$1", "a"}
	for _, name := range valid {
		assert.NoErrorf(t, validateIdentifier("table", name), "expected %q to be valid", name)
	}

	invalid := []string{"", "1users", "user name", "users;", `us"ers`, "users.orders", "über"}
	for _, name := range invalid {
		assert.Errorf(t, validateIdentifier("table", name), "expected %q to be rejected", name)
	}

	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	assert.Error(t, validateIdentifier("table", string(long)))
}

func TestQuoteIdentifier(t *testing.T) {
	assert.Equal(t, `"users"`, quoteIdentifier("users"))
	assert.Equal(t, `"us""ers"`, quoteIdentifier(`us"ers`))
}

func TestQualifyTable(t *testing.T) {
	qualified, err := qualifyTable("public", "users")
	require.NoError(t, err)
	assert.Equal(t, `"public"."users"`, qualified)

	_, err = qualifyTable("public", "users; DROP TABLE users")
	require.Error(t, err)
}
