package dialect

import (
	"context"
	"errors"
	"fmt"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/jmoiron/sqlx"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

type mssqlDialect struct {
	core
}

var mssqlCore = core{
	name:   "mssql",
	driver: "sqlserver",
	quoteL: "[",
	quoteR: "]",
	typeNames: map[string]string{
		types.TypeInteger:  "BIGINT",
		types.TypeText:     "NVARCHAR(MAX)",
		types.TypeReal:     "FLOAT",
		types.TypeBlob:     "VARBINARY(MAX)",
		types.TypeBoolean:  "BIT",
		types.TypeDate:     "DATE",
		types.TypeDatetime: "DATETIME2",
	},
}

// Paginate: SQL Server pages with OFFSET ... FETCH, which requires an
// ORDER BY clause.
func (d mssqlDialect) Paginate(limit, offset int, ordered bool) string {
	if limit <= 0 && offset <= 0 {
		return ""
	}
	suffix := ""
	if !ordered {
		suffix = " ORDER BY (SELECT NULL)"
	}
	if offset < 0 {
		offset = 0
	}
	suffix += fmt.Sprintf(" OFFSET %d ROWS", offset)
	if limit > 0 {
		suffix += fmt.Sprintf(" FETCH NEXT %d ROWS ONLY", limit)
	}
	return suffix
}

func (d mssqlDialect) DropTable(table string) (string, error) {
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	return "DROP TABLE " + d.QuoteIdent(table), nil
}

func (d mssqlDialect) DropIndex(name, table string) (string, error) {
	if err := ValidIdent(name); err != nil {
		return "", err
	}
	if table == "" {
		return "", dberr.New(dberr.InvalidParams, "drop_index on mssql requires the table name")
	}
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(name), d.QuoteIdent(table)), nil
}

func (d mssqlDialect) AlterTable(table string, op types.AlterOp) (string, error) {
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	switch op.Action {
	case "add_column":
		if op.Column == nil {
			return "", dberr.New(dberr.InvalidParams, "add_column requires a column definition")
		}
		def, err := d.columnDef(*op.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD %s", d.QuoteIdent(table), def), nil
	case "rename_column":
		if err := ValidIdent(op.Name); err != nil {
			return "", err
		}
		if err := ValidIdent(op.NewName); err != nil {
			return "", err
		}
		return fmt.Sprintf("EXEC sp_rename '%s.%s', '%s', 'COLUMN'", table, op.Name, op.NewName), nil
	case "rename_table":
		if err := ValidIdent(op.NewName); err != nil {
			return "", err
		}
		return fmt.Sprintf("EXEC sp_rename '%s', '%s'", table, op.NewName), nil
	default:
		return d.core.AlterTable(table, op)
	}
}

func (d mssqlDialect) ListTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error) {
	return scanTableNames(ctx, q, `
		SELECT TABLE_NAME
		FROM INFORMATION_SCHEMA.TABLES
		WHERE TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME
	`)
}

func (d mssqlDialect) TableSchema(ctx context.Context, q sqlx.QueryerContext, table string) ([]types.Column, error) {
	if err := ValidIdent(table); err != nil {
		return nil, err
	}
	rows, err := q.QueryContext(ctx, `
		SELECT c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE, c.COLUMN_DEFAULT,
			CASE WHEN EXISTS (
				SELECT 1
				FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
				JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
					ON kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
				WHERE tc.TABLE_NAME = c.TABLE_NAME
				AND tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
				AND kcu.COLUMN_NAME = c.COLUMN_NAME
			) THEN 1 ELSE 0 END AS IS_PK
		FROM INFORMATION_SCHEMA.COLUMNS c
		WHERE c.TABLE_NAME = @p1
		ORDER BY c.ORDINAL_POSITION
	`, table)
	if err != nil {
		return nil, fmt.Errorf("failed to query columns: %w", err)
	}
	defer rows.Close()

	var columns []types.Column
	for rows.Next() {
		var name, dataType, isNullable string
		var defaultValue *string
		var isPK int

		if err := rows.Scan(&name, &dataType, &isNullable, &defaultValue, &isPK); err != nil {
			return nil, fmt.Errorf("failed to scan column: %w", err)
		}

		col := types.Column{
			Name:       name,
			Type:       dataType,
			Nullable:   isNullable == "YES",
			PrimaryKey: isPK == 1,
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

func (d mssqlDialect) Classify(err error) dberr.Kind {
	if kind, ok := classifyCommon(err); ok {
		return kind
	}
	var sqlErr mssql.Error
	if errors.As(err, &sqlErr) {
		switch sqlErr.Number {
		case 1222: // lock request timeout
			return dberr.Timeout
		case 4060, 18456: // cannot open database, login failed
			return dberr.ConnectionFailed
		}
	}
	return dberr.StatementError
}
