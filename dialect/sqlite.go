package dialect

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

type sqliteDialect struct {
	core
}

var sqliteCore = core{
	name:       "sqlite",
	driver:     "sqlite3",
	quoteL:     `"`,
	quoteR:     `"`,
	lastInsert: true,
	typeNames: map[string]string{
		types.TypeInteger:  "INTEGER",
		types.TypeText:     "TEXT",
		types.TypeReal:     "REAL",
		types.TypeBlob:     "BLOB",
		types.TypeBoolean:  "BOOLEAN",
		types.TypeDate:     "DATE",
		types.TypeDatetime: "DATETIME",
	},
}

func (d sqliteDialect) ListTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	return scanTableNames(ctx, q, `
		SELECT name
		FROM sqlite_master
		WHERE type='table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`)
}

func (d sqliteDialect) TableSchema(ctx context.Context, q sqlx.QueryerContext, table string) ([]types.Column, error) {
	if err := ValidIdent(table); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", d.QuoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue *string

		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := types.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   notNull == 0,
			PrimaryKey: pk > 0,
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

func (d sqliteDialect) Classify(err error) dberr.Kind {
	if kind, ok := classifyCommon(err); ok {
		return kind
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch se.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrPerm:
			return dberr.ConnectionFailed
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return dberr.Timeout
		}
	}
	return dberr.StatementError
}
