package dialect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

type postgresDialect struct {
	core
}

var postgresCore = core{
	name:   "postgres",
	driver: "pgx",
	quoteL: `"`,
	quoteR: `"`,
	typeNames: map[string]string{
		types.TypeInteger:  "BIGINT",
		types.TypeText:     "TEXT",
		types.TypeReal:     "DOUBLE PRECISION",
		types.TypeBlob:     "BYTEA",
		types.TypeBoolean:  "BOOLEAN",
		types.TypeDate:     "DATE",
		types.TypeDatetime: "TIMESTAMP",
	},
}

func (d postgresDialect) Open(dsn string) (*sqlx.DB, error) {
	config, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.PreferSimpleProtocol = true
	return sqlx.NewDb(stdlib.OpenDB(*config), "pgx"), nil
}

func (d postgresDialect) ListTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	return scanTableNames(ctx, q, `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_type = 'BASE TABLE'
		AND table_schema = 'public'
		ORDER BY table_name
	`)
}

func (d postgresDialect) TableSchema(ctx context.Context, q sqlx.QueryerContext, table string) ([]types.Column, error) {
	if err := ValidIdent(table); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT c.column_name, c.data_type, c.is_nullable, c.column_default,
			EXISTS (
				SELECT 1
				FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name
					AND kcu.table_schema = tc.table_schema
				WHERE tc.table_name = c.table_name
				AND tc.table_schema = c.table_schema
				AND tc.constraint_type = 'PRIMARY KEY'
				AND kcu.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_name = $1 AND c.table_schema = 'public'
		ORDER BY c.ordinal_position
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var name, dataType, isNullable string
		var defaultValue *string
		var isPK bool

		if err := rows.Scan(&name, &dataType, &isNullable, &defaultValue, &isPK); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := types.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: isPK,
		}
		if defaultValue != nil {
			col.Default = *defaultValue
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, dberr.New(dberr.StatementError, "table %q not found", table)
	}
	return columns, nil
}

func (d postgresDialect) Classify(err error) dberr.Kind {
	if kind, ok := classifyCommon(err); ok {
		return kind
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception class
			return dberr.ConnectionFailed
		case pgErr.Code == "57014": // query_canceled
			return dberr.Timeout
		case pgErr.Code == "55P03": // lock_not_available
			return dberr.Timeout
		}
	}
	return dberr.StatementError
}
