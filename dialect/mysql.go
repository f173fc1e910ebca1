package dialect

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

type mysqlDialect struct {
	core
}

var mysqlCore = core{
	name:       "mysql",
	driver:     "mysql",
	quoteL:     "`",
	quoteR:     "`",
	lastInsert: true,
	typeNames: map[string]string{
		types.TypeInteger:  "BIGINT",
		types.TypeText:     "TEXT",
		types.TypeReal:     "DOUBLE",
		types.TypeBlob:     "BLOB",
		types.TypeBoolean:  "TINYINT(1)",
		types.TypeDate:     "DATE",
		types.TypeDatetime: "DATETIME",
	},
}

// Paginate: MySQL has no standalone OFFSET; an offset without a limit needs
// the documented max-rows LIMIT.
func (d mysqlDialect) Paginate(limit, offset int, ordered bool) string {
	switch {
	case limit > 0 && offset > 0:
		return fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset)
	case limit > 0:
		return fmt.Sprintf(" LIMIT %d", limit)
	case offset > 0:
		return fmt.Sprintf(" LIMIT 18446744073709551615 OFFSET %d", offset)
	default:
		return ""
	}
}

func (d mysqlDialect) DropIndex(name, table string) (string, error) {
	if err := ValidIdent(name); err != nil {
		return "", err
	}
	if table == "" {
		return "", dberr.New(dberr.InvalidParams, "drop_index on mysql requires the table name")
	}
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(name), d.QuoteIdent(table)), nil
}

func (d mysqlDialect) ListTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	return scanTableNames(ctx, q, `
		SELECT TABLE_NAME
		FROM information_schema.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		AND TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME
	`)
}

func (d mysqlDialect) TableSchema(ctx context.Context, q sqlx.QueryerContext, table string) ([]types.Column, error) {
	if err := ValidIdent(table); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_DEFAULT, COLUMN_KEY
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var name, dataType, isNullable, columnKey string
		var defaultValue *string

		if err := rows.Scan(&name, &dataType, &isNullable, &defaultValue, &columnKey); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := types.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: columnKey == "PRI",
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

func (d mysqlDialect) Classify(err error) dberr.Kind {
	if kind, ok := classifyCommon(err); ok {
		return kind
	}
	if errors.Is(err, mysql.ErrInvalidConn) {
		return dberr.ConnectionFailed
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1205: // lock wait timeout
			return dberr.Timeout
		case 1040, 1042, 1043, 1045, 1129, 1130: // connection and auth failures
			return dberr.ConnectionFailed
		}
	}
	return dberr.StatementError
}
