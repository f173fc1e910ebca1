// Package dialect translates abstract table, column and index descriptors
// into backend-native SQL and normalizes backend errors. One Dialect exists
// per supported backend kind; the rest of the server is backend-agnostic.
package dialect

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/types"
)

type Dialect interface {
	// Name is the backend kind tag: sqlite, postgres, mysql or mssql.
	Name() string

	// Open opens a live handle for the given DSN. It does not probe
	// connectivity; the registry pings after opening.
	Open(dsn string) (*sqlx.DB, error)

	// QuoteIdent quotes an already-validated identifier.
	QuoteIdent(name string) string

	// Rebind rewrites ? placeholders into the backend's native form.
	Rebind(query string) string

	// NoopQuery is the trivial round-trip used by connection tests.
	NoopQuery() string

	// SupportsLastInsertID reports whether the driver returns generated
	// keys through sql.Result.
	SupportsLastInsertID() bool

	// Paginate returns the row-limiting suffix for a SELECT. ordered
	// reports whether the statement already has an ORDER BY clause.
	Paginate(limit, offset int, ordered bool) string

	CreateTable(table string, cols []types.Column) (string, error)
	DropTable(table string) (string, error)
	CreateIndex(idx types.Index) (string, error)
	DropIndex(name, table string) (string, error)
	AlterTable(table string, op types.AlterOp) (string, error)

	ListTables(ctx context.Context, q sqlx.QueryerContext) ([]string, error)
	TableSchema(ctx context.Context, q sqlx.QueryerContext, table string) ([]types.Column, error)

	// Classify maps a backend error into the common taxonomy.
	Classify(err error) dberr.Kind
}

// For returns the dialect for a backend kind tag.
func For(kind string) (Dialect, error) {
	switch kind {
	case "sqlite":
		return sqliteDialect{sqliteCore}, nil
	case "postgres":
		return postgresDialect{postgresCore}, nil
	case "mysql":
		return mysqlDialect{mysqlCore}, nil
	case "mssql":
		return mssqlDialect{mssqlCore}, nil
	default:
		return nil, dberr.New(dberr.InvalidParams, "unsupported backend kind %q", kind)
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdent rejects table, column and index names outside the safe
// identifier charset. Structured operations quote identifiers, but only
// names that pass this check ever reach the quoting step.
func ValidIdent(name string) error {
	if !identRe.MatchString(name) {
		return dberr.New(dberr.InvalidParams, "invalid identifier %q", name)
	}
	return nil
}

var referencesRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\(([A-Za-z_][A-Za-z0-9_]*)\)$`)

// core carries the per-backend configuration shared method implementations
// read from. Concrete dialects embed it and override what differs.
type core struct {
	name       string
	driver     string
	quoteL     string
	quoteR     string
	lastInsert bool
	typeNames  map[string]string
}

func (c core) Name() string               { return c.name }
func (c core) NoopQuery() string          { return "SELECT 1" }
func (c core) SupportsLastInsertID() bool { return c.lastInsert }

func (c core) Open(dsn string) (*sqlx.DB, error) {
	return sqlx.Open(c.driver, dsn)
}

func (c core) QuoteIdent(name string) string {
	return c.quoteL + name + c.quoteR
}

func (c core) Rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(c.driver), query)
}

func (c core) typeName(logical string) (string, error) {
	native, ok := c.typeNames[strings.ToUpper(logical)]
	if !ok {
		return "", dberr.New(dberr.InvalidParams, "unknown column type %q", logical)
	}
	return native, nil
}

func (c core) Paginate(limit, offset int, ordered bool) string {
	var b strings.Builder
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

func (c core) columnDef(col types.Column) (string, error) {
	if err := ValidIdent(col.Name); err != nil {
		return "", err
	}
	native, err := c.typeName(col.Type)
	if err != nil {
		return "", err
	}
	def := c.QuoteIdent(col.Name) + " " + native
	if col.PrimaryKey {
		def += " PRIMARY KEY"
	}
	if !col.Nullable && !col.PrimaryKey {
		def += " NOT NULL"
	}
	if col.Default != nil {
		lit, err := defaultLiteral(col.Default)
		if err != nil {
			return "", err
		}
		def += " DEFAULT " + lit
	}
	if col.References != "" {
		m := referencesRe.FindStringSubmatch(col.References)
		if m == nil {
			return "", dberr.New(dberr.InvalidParams, "invalid foreign key reference %q", col.References)
		}
		def += fmt.Sprintf(" REFERENCES %s(%s)", c.QuoteIdent(m[1]), c.QuoteIdent(m[2]))
	}
	return def, nil
}

func (c core) CreateTable(table string, cols []types.Column) (string, error) {
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	if len(cols) == 0 {
		return "", dberr.New(dberr.InvalidParams, "no columns provided for table %q", table)
	}
	defs := make([]string, 0, len(cols))
	for _, col := range cols {
		def, err := c.columnDef(col)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", c.QuoteIdent(table), strings.Join(defs, ", ")), nil
}

func (c core) DropTable(table string) (string, error) {
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + c.QuoteIdent(table), nil
}

func (c core) CreateIndex(idx types.Index) (string, error) {
	if err := ValidIdent(idx.Name); err != nil {
		return "", err
	}
	if err := ValidIdent(idx.Table); err != nil {
		return "", err
	}
	if len(idx.Columns) == 0 {
		return "", dberr.New(dberr.InvalidParams, "no columns provided for index %q", idx.Name)
	}
	quoted := make([]string, len(idx.Columns))
	for i, col := range idx.Columns {
		if err := ValidIdent(col); err != nil {
			return "", err
		}
		quoted[i] = c.QuoteIdent(col)
	}
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	return fmt.Sprintf("CREATE %sINDEX %s ON %s (%s)",
		unique, c.QuoteIdent(idx.Name), c.QuoteIdent(idx.Table), strings.Join(quoted, ", ")), nil
}

func (c core) DropIndex(name, table string) (string, error) {
	if err := ValidIdent(name); err != nil {
		return "", err
	}
	return "DROP INDEX IF EXISTS " + c.QuoteIdent(name), nil
}

func (c core) AlterTable(table string, op types.AlterOp) (string, error) {
	if err := ValidIdent(table); err != nil {
		return "", err
	}
	switch op.Action {
	case "add_column":
		if op.Column == nil {
			return "", dberr.New(dberr.InvalidParams, "add_column requires a column definition")
		}
		def, err := c.columnDef(*op.Column)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", c.QuoteIdent(table), def), nil
	case "drop_column":
		if err := ValidIdent(op.Name); err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", c.QuoteIdent(table), c.QuoteIdent(op.Name)), nil
	case "rename_column":
		if err := ValidIdent(op.Name); err != nil {
			return "", err
		}
		if err := ValidIdent(op.NewName); err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			c.QuoteIdent(table), c.QuoteIdent(op.Name), c.QuoteIdent(op.NewName)), nil
	case "rename_table":
		if err := ValidIdent(op.NewName); err != nil {
			return "", err
		}
		return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", c.QuoteIdent(table), c.QuoteIdent(op.NewName)), nil
	default:
		return "", dberr.New(dberr.InvalidParams, "unknown alter_table action %q", op.Action)
	}
}

// defaultLiteral renders a DEFAULT value inline; DDL cannot carry bound
// parameters on any of the supported backends.
func defaultLiteral(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'", nil
	case bool:
		if val {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int:
		return strconv.Itoa(val), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case nil:
		return "NULL", nil
	default:
		return "", dberr.New(dberr.InvalidParams, "unsupported default value %v (%T)", v, v)
	}
}

// classifyCommon handles driver-independent failure modes. The boolean
// reports whether the error was recognized.
func classifyCommon(err error) (dberr.Kind, bool) {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dberr.Timeout, true
	}
	if errors.Is(err, driver.ErrBadConn) {
		return dberr.ConnectionFailed, true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		if ne.Timeout() {
			return dberr.Timeout, true
		}
		return dberr.ConnectionFailed, true
	}
	return "", false
}

func scanTableNames(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) ([]string, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query tables: %w", err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}
