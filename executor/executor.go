// Package executor runs raw and structured statements against registered
// connections. Parameters are always bound through the driver; the only
// text ever spliced into a statement is a validated, quoted identifier.
package executor

import (
	"context"
	"strings"
	"time"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/dialect"
	"github.com/astreltsov/db-mcp-server/registry"
	"github.com/astreltsov/db-mcp-server/types"
)

type Executor struct {
	reg *registry.Registry
}

func New(reg *registry.Registry) *Executor {
	return &Executor{reg: reg}
}

// Query executes backend SQL text with bound parameters. Statements run in
// whatever transaction state the connection currently holds; nothing here
// begins or ends a transaction.
func (e *Executor) Query(ctx context.Context, id, query string, params []any) (*types.QueryResult, error) {
	var res *types.QueryResult
	err := e.reg.Do(id, func(h *registry.Handle) error {
		bound := h.Dialect().Rebind(query)
		var err error
		if returnsRows(query) {
			res, err = queryRows(ctx, h, bound, params)
		} else {
			res, err = execStmt(ctx, h, bound, params, true)
		}
		return err
	})
	return res, err
}

// GetRecords selects rows via a structured filter.
func (e *Executor) GetRecords(ctx context.Context, id, table string, columns []string, filter map[string]any, orderBy []string, limit, offset int) (*types.QueryResult, error) {
	var res *types.QueryResult
	err := e.reg.Do(id, func(h *registry.Handle) error {
		query, args, err := dialect.BuildSelect(h.Dialect(), table, columns, filter, orderBy, limit, offset)
		if err != nil {
			return err
		}
		res, err = queryRows(ctx, h, query, args)
		return err
	})
	return res, err
}

func (e *Executor) InsertRecord(ctx context.Context, id, table string, data map[string]any) (*types.QueryResult, error) {
	var res *types.QueryResult
	err := e.reg.Do(id, func(h *registry.Handle) error {
		query, args, err := dialect.BuildInsert(h.Dialect(), table, data)
		if err != nil {
			return err
		}
		res, err = execStmt(ctx, h, query, args, true)
		return err
	})
	return res, err
}

func (e *Executor) UpdateRecord(ctx context.Context, id, table string, data, filter map[string]any) (*types.QueryResult, error) {
	var res *types.QueryResult
	err := e.reg.Do(id, func(h *registry.Handle) error {
		query, args, err := dialect.BuildUpdate(h.Dialect(), table, data, filter)
		if err != nil {
			return err
		}
		res, err = execStmt(ctx, h, query, args, false)
		return err
	})
	return res, err
}

func (e *Executor) DeleteRecord(ctx context.Context, id, table string, filter map[string]any) (*types.QueryResult, error) {
	var res *types.QueryResult
	err := e.reg.Do(id, func(h *registry.Handle) error {
		query, args, err := dialect.BuildDelete(h.Dialect(), table, filter)
		if err != nil {
			return err
		}
		res, err = execStmt(ctx, h, query, args, false)
		return err
	})
	return res, err
}

func (e *Executor) CreateTable(ctx context.Context, id, table string, cols []types.Column) error {
	return e.execDDL(ctx, id, func(d dialect.Dialect) (string, error) {
		return d.CreateTable(table, cols)
	})
}

func (e *Executor) DropTable(ctx context.Context, id, table string) error {
	return e.execDDL(ctx, id, func(d dialect.Dialect) (string, error) {
		return d.DropTable(table)
	})
}

func (e *Executor) CreateIndex(ctx context.Context, id string, idx types.Index) error {
	return e.execDDL(ctx, id, func(d dialect.Dialect) (string, error) {
		return d.CreateIndex(idx)
	})
}

func (e *Executor) DropIndex(ctx context.Context, id, name, table string) error {
	return e.execDDL(ctx, id, func(d dialect.Dialect) (string, error) {
		return d.DropIndex(name, table)
	})
}

// AlterTable applies operations in order and stops at the first failure;
// already-applied operations are not undone unless the caller wrapped the
// call in a transaction.
func (e *Executor) AlterTable(ctx context.Context, id, table string, ops []types.AlterOp) error {
	if len(ops) == 0 {
		return dberr.New(dberr.InvalidParams, "no alter_table operations provided")
	}
	return e.reg.Do(id, func(h *registry.Handle) error {
		for _, op := range ops {
			query, err := h.Dialect().AlterTable(table, op)
			if err != nil {
				return err
			}
			if _, err := execStmt(ctx, h, query, nil, false); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListTables is read-only introspection; a transient connection failure is
// retried once.
func (e *Executor) ListTables(ctx context.Context, id string) ([]string, error) {
	var tables []string
	err := e.reg.Do(id, func(h *registry.Handle) error {
		var err error
		tables, err = h.Dialect().ListTables(ctx, h.Ext())
		if err != nil && h.Dialect().Classify(err) == dberr.ConnectionFailed {
			tables, err = h.Dialect().ListTables(ctx, h.Ext())
		}
		if err != nil {
			return classified(h, err, "failed to list tables on %q", id)
		}
		return nil
	})
	return tables, err
}

// TableSchema is read-only introspection; a transient connection failure
// is retried once.
func (e *Executor) TableSchema(ctx context.Context, id, table string) ([]types.Column, error) {
	var cols []types.Column
	err := e.reg.Do(id, func(h *registry.Handle) error {
		var err error
		cols, err = h.Dialect().TableSchema(ctx, h.Ext(), table)
		if err != nil && h.Dialect().Classify(err) == dberr.ConnectionFailed {
			cols, err = h.Dialect().TableSchema(ctx, h.Ext(), table)
		}
		if err != nil {
			return classified(h, err, "failed to read schema of %q on %q", table, id)
		}
		return nil
	})
	return cols, err
}

func (e *Executor) execDDL(ctx context.Context, id string, render func(dialect.Dialect) (string, error)) error {
	return e.reg.Do(id, func(h *registry.Handle) error {
		query, err := render(h.Dialect())
		if err != nil {
			return err
		}
		_, err = execStmt(ctx, h, query, nil, false)
		return err
	})
}

func queryRows(ctx context.Context, h *registry.Handle, query string, args []any) (*types.QueryResult, error) {
	rows, err := h.Ext().QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, classified(h, err, "query failed on %q", h.ID())
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, classified(h, err, "query failed on %q", h.ID())
	}

	res := &types.QueryResult{Columns: cols}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, classified(h, err, "unable to scan row on %q", h.ID())
		}
		res.Rows = append(res.Rows, normalizeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, classified(h, err, "query failed on %q", h.ID())
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

func execStmt(ctx context.Context, h *registry.Handle, query string, args []any, wantKey bool) (*types.QueryResult, error) {
	result, err := h.Ext().ExecContext(ctx, query, args...)
	if err != nil {
		return nil, classified(h, err, "statement failed on %q", h.ID())
	}

	res := &types.QueryResult{}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		res.AffectedRows = n
	}
	if wantKey && h.Dialect().SupportsLastInsertID() {
		if key, err := result.LastInsertId(); err == nil && key > 0 {
			res.LastInsertID = &key
		}
	}
	return res, nil
}

func classified(h *registry.Handle, err error, format string, args ...any) error {
	if kind := dberr.KindOf(err); kind != "" {
		return err
	}
	return dberr.Wrap(h.Dialect().Classify(err), err, format, args...)
}

// returnsRows reports whether raw SQL is expected to produce a result set.
func returnsRows(query string) bool {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToUpper(fields[0]) {
	case "SELECT", "WITH", "PRAGMA", "SHOW", "EXPLAIN", "DESCRIBE", "VALUES":
		return true
	default:
		return false
	}
}

// normalizeRow converts driver-native values into the small language
// neutral set the wire contract promises.
func normalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		switch val := v.(type) {
		case []byte:
			row[k] = string(val)
		case time.Time:
			row[k] = val.Format(time.RFC3339Nano)
		}
	}
	return row
}
