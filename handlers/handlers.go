// Package handlers implements one MCP tool handler per server operation.
// Handlers only translate between tool arguments and the core; every
// decision about connections, transactions and SQL lives below them.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/astreltsov/db-mcp-server/dberr"
	"github.com/astreltsov/db-mcp-server/executor"
	"github.com/astreltsov/db-mcp-server/registry"
	"github.com/astreltsov/db-mcp-server/types"
)

type HandlerFunc = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

// AddConnectionHandler creates a handler for the add_connection tool
func AddConnectionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		kind, err := request.RequireString("type")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing type parameter: %v", err)), nil
		}

		args := argsMap(request)
		params := registry.Params{
			Host:       stringArg(args, "host"),
			Port:       intArg(args, "port"),
			Database:   stringArg(args, "database"),
			User:       stringArg(args, "user"),
			Password:   stringArg(args, "password"),
			Path:       stringArg(args, "path"),
			ConnString: stringArg(args, "connection_string"),
		}

		if err := reg.Add(ctx, id, kind, params, registry.SourceRuntime); err != nil {
			return errorResult(err), nil
		}
		return successResult("Connection %q added and tested successfully", id), nil
	}
}

// TestConnectionHandler creates a handler for the test_connection tool
func TestConnectionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		if err := reg.Test(ctx, id); err != nil {
			return errorResult(err), nil
		}
		return successResult("Connection %q is working", id), nil
	}
}

// ListConnectionsHandler creates a handler for the list_connections tool
func ListConnectionsHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(map[string]any{"connections": reg.List()}), nil
	}
}

// RemoveConnectionHandler creates a handler for the remove_connection tool
func RemoveConnectionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		if err := reg.Remove(id); err != nil {
			return errorResult(err), nil
		}
		return successResult("Connection %q removed", id), nil
	}
}

// ExecuteQueryHandler creates a handler for the execute_query tool
func ExecuteQueryHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		query, err := request.RequireString("query")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing query parameter: %v", err)), nil
		}
		params := sliceArg(argsMap(request), "params")

		res, err := exec.Query(ctx, id, query, params)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res), nil
	}
}

// GetRecordsHandler creates a handler for the get_records tool
func GetRecordsHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		args := argsMap(request)

		res, err := exec.GetRecords(ctx, id, table,
			stringSliceArg(args, "columns"),
			mapArg(args, "filter"),
			stringSliceArg(args, "order_by"),
			intArg(args, "limit"),
			intArg(args, "offset"),
		)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{
			"records": res.Rows,
			"count":   res.RowCount,
		}), nil
	}
}

// InsertRecordHandler creates a handler for the insert_record tool
func InsertRecordHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		data := mapArg(argsMap(request), "data")
		if len(data) == 0 {
			return mcp.NewToolResultError("Record data is required"), nil
		}

		res, err := exec.InsertRecord(ctx, id, table, data)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res), nil
	}
}

// UpdateRecordHandler creates a handler for the update_record tool
func UpdateRecordHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		args := argsMap(request)
		data := mapArg(args, "data")
		if len(data) == 0 {
			return mcp.NewToolResultError("Update data is required"), nil
		}
		filter := mapArg(args, "filter")
		if len(filter) == 0 {
			return mcp.NewToolResultError("Filter conditions are required"), nil
		}

		res, err := exec.UpdateRecord(ctx, id, table, data, filter)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res), nil
	}
}

// DeleteRecordHandler creates a handler for the delete_record tool
func DeleteRecordHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		filter := mapArg(argsMap(request), "filter")
		if len(filter) == 0 {
			return mcp.NewToolResultError("Filter conditions are required"), nil
		}

		res, err := exec.DeleteRecord(ctx, id, table, filter)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res), nil
	}
}

// ListTablesHandler creates a handler for the list_tables tool
func ListTablesHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		tables, err := exec.ListTables(ctx, id)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{"tables": tables}), nil
	}
}

// GetTableSchemaHandler creates a handler for the get_table_schema tool
func GetTableSchemaHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		schema, err := exec.TableSchema(ctx, id, table)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(map[string]any{"schema": schema}), nil
	}
}

// CreateTableHandler creates a handler for the create_table tool
func CreateTableHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		var cols []types.Column
		if err := decodeArg(argsMap(request), "columns", &cols); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid columns definition: %v", err)), nil
		}
		if len(cols) == 0 {
			return mcp.NewToolResultError("Columns definition is required"), nil
		}

		if err := exec.CreateTable(ctx, id, table, cols); err != nil {
			return errorResult(err), nil
		}
		return successResult("Table %q created", table), nil
	}
}

// DropTableHandler creates a handler for the drop_table tool
func DropTableHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		if err := exec.DropTable(ctx, id, table); err != nil {
			return errorResult(err), nil
		}
		return successResult("Table %q dropped", table), nil
	}
}

// CreateIndexHandler creates a handler for the create_index tool
func CreateIndexHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		name, err := request.RequireString("index_name")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing index_name parameter: %v", err)), nil
		}
		args := argsMap(request)
		columns := stringSliceArg(args, "columns")
		if len(columns) == 0 {
			return mcp.NewToolResultError("Columns list is required"), nil
		}

		idx := types.Index{
			Name:    name,
			Table:   table,
			Columns: columns,
			Unique:  boolArg(args, "unique"),
		}
		if err := exec.CreateIndex(ctx, id, idx); err != nil {
			return errorResult(err), nil
		}
		return successResult("Index %q created on %q", name, table), nil
	}
}

// DropIndexHandler creates a handler for the drop_index tool
func DropIndexHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		name, err := request.RequireString("index_name")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing index_name parameter: %v", err)), nil
		}
		table := stringArg(argsMap(request), "table")

		if err := exec.DropIndex(ctx, id, name, table); err != nil {
			return errorResult(err), nil
		}
		return successResult("Index %q dropped", name), nil
	}
}

// AlterTableHandler creates a handler for the alter_table tool
func AlterTableHandler(exec *executor.Executor) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, table, errResult := connAndTable(request)
		if errResult != nil {
			return errResult, nil
		}
		var ops []types.AlterOp
		if err := decodeArg(argsMap(request), "operations", &ops); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid operations list: %v", err)), nil
		}
		if len(ops) == 0 {
			return mcp.NewToolResultError("Alteration operations are required"), nil
		}

		if err := exec.AlterTable(ctx, id, table, ops); err != nil {
			return errorResult(err), nil
		}
		return successResult("Table %q altered", table), nil
	}
}

// BeginTransactionHandler creates a handler for the begin_transaction tool
func BeginTransactionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		if err := reg.Begin(ctx, id); err != nil {
			return errorResult(err), nil
		}
		return successResult("Transaction started"), nil
	}
}

// CommitTransactionHandler creates a handler for the commit_transaction tool
func CommitTransactionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		if err := reg.Commit(id); err != nil {
			return errorResult(err), nil
		}
		return successResult("Transaction committed"), nil
	}
}

// RollbackTransactionHandler creates a handler for the rollback_transaction tool
func RollbackTransactionHandler(reg *registry.Registry) HandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := request.RequireString("connection_id")
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err)), nil
		}
		if err := reg.Rollback(id); err != nil {
			return errorResult(err), nil
		}
		return successResult("Transaction rolled back"), nil
	}
}

func connAndTable(request mcp.CallToolRequest) (id, table string, errResult *mcp.CallToolResult) {
	id, err := request.RequireString("connection_id")
	if err != nil {
		return "", "", mcp.NewToolResultError(fmt.Sprintf("Missing connection_id parameter: %v", err))
	}
	table, err = request.RequireString("table")
	if err != nil {
		return "", "", mcp.NewToolResultError(fmt.Sprintf("Missing table parameter: %v", err))
	}
	return id, table, nil
}

func jsonResult(v any) *mcp.CallToolResult {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to marshal results: %v", err))
	}
	return mcp.NewToolResultText(string(jsonData))
}

func successResult(format string, args ...any) *mcp.CallToolResult {
	return jsonResult(map[string]any{
		"success": true,
		"message": fmt.Sprintf(format, args...),
	})
}

// errorResult tags the message with the error kind so callers can react
// without parsing free text.
func errorResult(err error) *mcp.CallToolResult {
	if kind := dberr.KindOf(err); kind != "" {
		return mcp.NewToolResultError(fmt.Sprintf("[%s] %v", kind, err))
	}
	return mcp.NewToolResultError(err.Error())
}

func argsMap(request mcp.CallToolRequest) map[string]any {
	if m, ok := request.Params.Arguments.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func intArg(args map[string]any, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func boolArg(args map[string]any, key string) bool {
	b, _ := args[key].(bool)
	return b
}

func mapArg(args map[string]any, key string) map[string]any {
	m, _ := args[key].(map[string]any)
	return m
}

func sliceArg(args map[string]any, key string) []any {
	s, _ := args[key].([]any)
	return s
}

func stringSliceArg(args map[string]any, key string) []string {
	raw, ok := args[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// decodeArg converts a raw argument value into a typed descriptor via a
// JSON round-trip.
func decodeArg(args map[string]any, key string, dst any) error {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
