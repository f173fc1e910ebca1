package dialect

import (
	"context"
	"testing"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

func mustDialect(t *testing.T, kind string) Dialect {
	t.Helper()
	d, err := For(kind)
	require.NoError(t, err)
	return d
}

func TestForUnknownKind(t *testing.T) {
	_, err := For("oracle")
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))
}

func TestValidIdent(t *testing.T) {
	assert.NoError(t, ValidIdent("users"))
	assert.NoError(t, ValidIdent("_private_2"))

	for _, bad := range []string{"", "1abc", "users; DROP TABLE users", `us"ers`, "na me", "täble"} {
		err := ValidIdent(bad)
		assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err), "identifier %q", bad)
	}
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"users"`, mustDialect(t, "sqlite").QuoteIdent("users"))
	assert.Equal(t, `"users"`, mustDialect(t, "postgres").QuoteIdent("users"))
	assert.Equal(t, "`users`", mustDialect(t, "mysql").QuoteIdent("users"))
	assert.Equal(t, "[users]", mustDialect(t, "mssql").QuoteIdent("users"))
}

func TestRebind(t *testing.T) {
	query := "SELECT * FROM users WHERE age > ? AND name = ?"

	assert.Equal(t, query, mustDialect(t, "sqlite").Rebind(query))
	assert.Equal(t, query, mustDialect(t, "mysql").Rebind(query))
	assert.Equal(t,
		"SELECT * FROM users WHERE age > $1 AND name = $2",
		mustDialect(t, "postgres").Rebind(query))
	assert.Equal(t,
		"SELECT * FROM users WHERE age > @p1 AND name = @p2",
		mustDialect(t, "mssql").Rebind(query))
}

func TestCreateTable(t *testing.T) {
	cols := []types.Column{
		{Name: "id", Type: "INTEGER", PrimaryKey: true},
		{Name: "name", Type: "TEXT", Nullable: false},
		{Name: "score", Type: "REAL", Nullable: true, Default: 1.5},
		{Name: "team_id", Type: "INTEGER", Nullable: true, References: "teams(id)"},
	}

	sql, err := mustDialect(t, "sqlite").CreateTable("players", cols)
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE "players" ("id" INTEGER PRIMARY KEY, "name" TEXT NOT NULL, `+
			`"score" REAL DEFAULT 1.5, "team_id" INTEGER REFERENCES "teams"("id"))`,
		sql)

	sql, err = mustDialect(t, "postgres").CreateTable("players", cols)
	require.NoError(t, err)
	assert.Contains(t, sql, `"id" BIGINT PRIMARY KEY`)
	assert.Contains(t, sql, `"score" DOUBLE PRECISION DEFAULT 1.5`)

	sql, err = mustDialect(t, "mysql").CreateTable("players", cols)
	require.NoError(t, err)
	assert.Contains(t, sql, "`id` BIGINT PRIMARY KEY")
	assert.Contains(t, sql, "`name` TEXT NOT NULL")

	sql, err = mustDialect(t, "mssql").CreateTable("players", cols)
	require.NoError(t, err)
	assert.Contains(t, sql, "[name] NVARCHAR(MAX) NOT NULL")
}

func TestCreateTableRejectsBadInput(t *testing.T) {
	d := mustDialect(t, "sqlite")

	_, err := d.CreateTable("t", nil)
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	_, err = d.CreateTable("t; DROP TABLE x", []types.Column{{Name: "id", Type: "INTEGER"}})
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	_, err = d.CreateTable("t", []types.Column{{Name: "id", Type: "UUID"}})
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	_, err = d.CreateTable("t", []types.Column{{Name: "id", Type: "INTEGER", References: "bad ref"}})
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))
}

func TestDefaultLiteralQuotesStrings(t *testing.T) {
	sql, err := mustDialect(t, "sqlite").CreateTable("t", []types.Column{
		{Name: "name", Type: "TEXT", Nullable: true, Default: "it's"},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, `DEFAULT 'it''s'`)
}

func TestDropTable(t *testing.T) {
	sql, err := mustDialect(t, "sqlite").DropTable("users")
	require.NoError(t, err)
	assert.Equal(t, `DROP TABLE IF EXISTS "users"`, sql)

	// SQL Server has no IF EXISTS on older versions.
	sql, err = mustDialect(t, "mssql").DropTable("users")
	require.NoError(t, err)
	assert.Equal(t, "DROP TABLE [users]", sql)
}

func TestCreateIndex(t *testing.T) {
	idx := types.Index{Name: "idx_users_email", Table: "users", Columns: []string{"email"}, Unique: true}

	sql, err := mustDialect(t, "postgres").CreateIndex(idx)
	require.NoError(t, err)
	assert.Equal(t, `CREATE UNIQUE INDEX "idx_users_email" ON "users" ("email")`, sql)

	idx.Unique = false
	idx.Columns = []string{"email", "name"}
	sql, err = mustDialect(t, "sqlite").CreateIndex(idx)
	require.NoError(t, err)
	assert.Equal(t, `CREATE INDEX "idx_users_email" ON "users" ("email", "name")`, sql)

	idx.Columns = nil
	_, err = mustDialect(t, "sqlite").CreateIndex(idx)
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))
}

func TestDropIndex(t *testing.T) {
	sql, err := mustDialect(t, "sqlite").DropIndex("idx_a", "")
	require.NoError(t, err)
	assert.Equal(t, `DROP INDEX IF EXISTS "idx_a"`, sql)

	// mysql and mssql scope indexes to their table.
	_, err = mustDialect(t, "mysql").DropIndex("idx_a", "")
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))

	sql, err = mustDialect(t, "mysql").DropIndex("idx_a", "users")
	require.NoError(t, err)
	assert.Equal(t, "DROP INDEX `idx_a` ON `users`", sql)

	sql, err = mustDialect(t, "mssql").DropIndex("idx_a", "users")
	require.NoError(t, err)
	assert.Equal(t, "DROP INDEX [idx_a] ON [users]", sql)
}

func TestAlterTable(t *testing.T) {
	d := mustDialect(t, "postgres")

	sql, err := d.AlterTable("users", types.AlterOp{
		Action: "add_column",
		Column: &types.Column{Name: "age", Type: "INTEGER", Nullable: true},
	})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "users" ADD COLUMN "age" BIGINT`, sql)

	sql, err = d.AlterTable("users", types.AlterOp{Action: "drop_column", Name: "age"})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "users" DROP COLUMN "age"`, sql)

	sql, err = d.AlterTable("users", types.AlterOp{Action: "rename_column", Name: "age", NewName: "years"})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "users" RENAME COLUMN "age" TO "years"`, sql)

	sql, err = d.AlterTable("users", types.AlterOp{Action: "rename_table", NewName: "people"})
	require.NoError(t, err)
	assert.Equal(t, `ALTER TABLE "users" RENAME TO "people"`, sql)

	_, err = d.AlterTable("users", types.AlterOp{Action: "truncate"})
	assert.Equal(t, dberr.InvalidParams, dberr.KindOf(err))
}

func TestAlterTableMSSQLRenames(t *testing.T) {
	d := mustDialect(t, "mssql")

	sql, err := d.AlterTable("users", types.AlterOp{Action: "rename_column", Name: "age", NewName: "years"})
	require.NoError(t, err)
	assert.Equal(t, "EXEC sp_rename 'users.age', 'years', 'COLUMN'", sql)

	sql, err = d.AlterTable("users", types.AlterOp{Action: "rename_table", NewName: "people"})
	require.NoError(t, err)
	assert.Equal(t, "EXEC sp_rename 'users', 'people'", sql)

	sql, err = d.AlterTable("users", types.AlterOp{
		Action: "add_column",
		Column: &types.Column{Name: "age", Type: "INTEGER", Nullable: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "ALTER TABLE [users] ADD [age] BIGINT", sql)
}

func TestPaginate(t *testing.T) {
	assert.Equal(t, " LIMIT 10 OFFSET 5", mustDialect(t, "sqlite").Paginate(10, 5, false))
	assert.Equal(t, " LIMIT 10", mustDialect(t, "postgres").Paginate(10, 0, false))
	assert.Equal(t, " OFFSET 5", mustDialect(t, "postgres").Paginate(0, 5, false))
	assert.Equal(t, "", mustDialect(t, "postgres").Paginate(0, 0, false))

	assert.Equal(t, " LIMIT 18446744073709551615 OFFSET 5", mustDialect(t, "mysql").Paginate(0, 5, false))
	assert.Equal(t, " LIMIT 10 OFFSET 5", mustDialect(t, "mysql").Paginate(10, 5, true))

	assert.Equal(t,
		" ORDER BY (SELECT NULL) OFFSET 0 ROWS FETCH NEXT 10 ROWS ONLY",
		mustDialect(t, "mssql").Paginate(10, 0, false))
	assert.Equal(t,
		" OFFSET 5 ROWS FETCH NEXT 10 ROWS ONLY",
		mustDialect(t, "mssql").Paginate(10, 5, true))
}

func TestClassifyCommon(t *testing.T) {
	for _, kind := range []string{"sqlite", "postgres", "mysql", "mssql"} {
		d := mustDialect(t, kind)
		assert.Equal(t, dberr.Timeout, d.Classify(context.DeadlineExceeded), kind)
		assert.Equal(t, dberr.Timeout, d.Classify(context.Canceled), kind)
	}
}

func TestClassifySQLite(t *testing.T) {
	d := mustDialect(t, "sqlite")
	assert.Equal(t, dberr.ConnectionFailed, d.Classify(sqlite3.Error{Code: sqlite3.ErrCantOpen}))
	assert.Equal(t, dberr.Timeout, d.Classify(sqlite3.Error{Code: sqlite3.ErrBusy}))
	assert.Equal(t, dberr.StatementError, d.Classify(sqlite3.Error{Code: sqlite3.ErrError}))
}

func TestClassifyPostgres(t *testing.T) {
	d := mustDialect(t, "postgres")
	assert.Equal(t, dberr.ConnectionFailed, d.Classify(&pgconn.PgError{Code: "08006"}))
	assert.Equal(t, dberr.Timeout, d.Classify(&pgconn.PgError{Code: "57014"}))
	assert.Equal(t, dberr.StatementError, d.Classify(&pgconn.PgError{Code: "23505"}))
}

func TestClassifyMySQL(t *testing.T) {
	d := mustDialect(t, "mysql")
	assert.Equal(t, dberr.ConnectionFailed, d.Classify(mysql.ErrInvalidConn))
	assert.Equal(t, dberr.Timeout, d.Classify(&mysql.MySQLError{Number: 1205}))
	assert.Equal(t, dberr.ConnectionFailed, d.Classify(&mysql.MySQLError{Number: 1045}))
	assert.Equal(t, dberr.StatementError, d.Classify(&mysql.MySQLError{Number: 1062}))
}

func TestClassifyMSSQL(t *testing.T) {
	d := mustDialect(t, "mssql")
	assert.Equal(t, dberr.Timeout, d.Classify(mssql.Error{Number: 1222}))
	assert.Equal(t, dberr.ConnectionFailed, d.Classify(mssql.Error{Number: 18456}))
	assert.Equal(t, dberr.StatementError, d.Classify(mssql.Error{Number: 2627}))
}
