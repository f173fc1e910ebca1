package mcp

import (
	goMCP "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/astreltsov/db-mcp-server/executor"
	"github.com/astreltsov/db-mcp-server/handlers"
	"github.com/astreltsov/db-mcp-server/registry"
)

// RegisterTools declares every tool schema and wires it to its handler.
func RegisterTools(s *server.MCPServer, reg *registry.Registry, exec *executor.Executor) {
	// Connection management
	addConnectionTool := goMCP.NewTool("add_connection",
		goMCP.WithDescription("Register a named database connection and test it"),
		goMCP.WithString("connection_id",
			goMCP.Required(),
			goMCP.Description("Caller-chosen unique identifier for the connection"),
		),
		goMCP.WithString("type",
			goMCP.Required(),
			goMCP.Description("Backend kind: sqlite, postgres, mysql or mssql"),
		),
		goMCP.WithString("host", goMCP.Description("Database server host")),
		goMCP.WithNumber("port", goMCP.Description("Database server port (backend default when omitted)")),
		goMCP.WithString("database", goMCP.Description("Database name")),
		goMCP.WithString("user", goMCP.Description("Login user")),
		goMCP.WithString("password", goMCP.Description("Login password")),
		goMCP.WithString("path", goMCP.Description("SQLite database file path")),
		goMCP.WithString("connection_string", goMCP.Description("Full DSN, overrides the individual fields")),
	)

	testConnectionTool := goMCP.NewTool("test_connection",
		goMCP.WithDescription("Round-trip a trivial statement on a registered connection"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to test")),
	)

	listConnectionsTool := goMCP.NewTool("list_connections",
		goMCP.WithDescription("List registered connections with masked credentials"),
	)

	removeConnectionTool := goMCP.NewTool("remove_connection",
		goMCP.WithDescription("Close and remove a registered connection; an active transaction is rolled back"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to remove")),
	)

	// Query execution
	executeQueryTool := goMCP.NewTool("execute_query",
		goMCP.WithDescription("Execute raw SQL with bound parameters"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("query",
			goMCP.Required(),
			goMCP.Description("SQL text; use ? placeholders for parameters"),
		),
		goMCP.WithArray("params", goMCP.Description("Positional parameter values")),
	)

	getRecordsTool := goMCP.NewTool("get_records",
		goMCP.WithDescription("Select rows from a table with an optional structured filter"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to query")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Table to select from")),
		goMCP.WithArray("columns", goMCP.Description("Columns to return (all when omitted)")),
		goMCP.WithObject("filter", goMCP.Description("Column filters: value, null, or {\"op\": ..., \"value\": ...}")),
		goMCP.WithArray("order_by", goMCP.Description("Columns to order by; prefix with - for descending")),
		goMCP.WithNumber("limit", goMCP.Description("Maximum rows to return")),
		goMCP.WithNumber("offset", goMCP.Description("Rows to skip")),
	)

	insertRecordTool := goMCP.NewTool("insert_record",
		goMCP.WithDescription("Insert one record into a table"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Target table")),
		goMCP.WithObject("data", goMCP.Required(), goMCP.Description("Column-value pairs to insert")),
	)

	updateRecordTool := goMCP.NewTool("update_record",
		goMCP.WithDescription("Update table records matching a filter"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Target table")),
		goMCP.WithObject("data", goMCP.Required(), goMCP.Description("Column-value pairs to set")),
		goMCP.WithObject("filter", goMCP.Required(), goMCP.Description("Filter selecting the records to update")),
	)

	deleteRecordTool := goMCP.NewTool("delete_record",
		goMCP.WithDescription("Delete table records matching a filter"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Target table")),
		goMCP.WithObject("filter", goMCP.Required(), goMCP.Description("Filter selecting the records to delete")),
	)

	// Schema management
	listTablesTool := goMCP.NewTool("list_tables",
		goMCP.WithDescription("List tables on a connection"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to inspect")),
	)

	getTableSchemaTool := goMCP.NewTool("get_table_schema",
		goMCP.WithDescription("Describe the columns of a table"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to inspect")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Table to describe")),
	)

	createTableTool := goMCP.NewTool("create_table",
		goMCP.WithDescription("Create a table from abstract column descriptors"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Name of the new table")),
		goMCP.WithArray("columns",
			goMCP.Required(),
			goMCP.Description("Column descriptors: name, type (INTEGER/TEXT/REAL/BLOB/BOOLEAN/DATE/DATETIME), nullable, primary_key, default, references"),
		),
	)

	dropTableTool := goMCP.NewTool("drop_table",
		goMCP.WithDescription("Drop a table"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Table to drop")),
	)

	createIndexTool := goMCP.NewTool("create_index",
		goMCP.WithDescription("Create an index on a table"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Table to index")),
		goMCP.WithString("index_name", goMCP.Required(), goMCP.Description("Name of the new index")),
		goMCP.WithArray("columns", goMCP.Required(), goMCP.Description("Ordered column names to index")),
		goMCP.WithBoolean("unique", goMCP.Description("Whether the index enforces uniqueness")),
	)

	dropIndexTool := goMCP.NewTool("drop_index",
		goMCP.WithDescription("Drop an index"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("index_name", goMCP.Required(), goMCP.Description("Index to drop")),
		goMCP.WithString("table", goMCP.Description("Owning table (required for mysql and mssql)")),
	)

	alterTableTool := goMCP.NewTool("alter_table",
		goMCP.WithDescription("Apply alteration operations to a table"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to execute on")),
		goMCP.WithString("table", goMCP.Required(), goMCP.Description("Table to alter")),
		goMCP.WithArray("operations",
			goMCP.Required(),
			goMCP.Description("Operations: {action: add_column|drop_column|rename_column|rename_table, column, name, new_name}"),
		),
	)

	// Transactions
	beginTransactionTool := goMCP.NewTool("begin_transaction",
		goMCP.WithDescription("Begin a transaction on a connection"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection to start the transaction on")),
	)

	commitTransactionTool := goMCP.NewTool("commit_transaction",
		goMCP.WithDescription("Commit the active transaction"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection whose transaction to commit")),
	)

	rollbackTransactionTool := goMCP.NewTool("rollback_transaction",
		goMCP.WithDescription("Roll back the active transaction"),
		goMCP.WithString("connection_id", goMCP.Required(), goMCP.Description("Connection whose transaction to roll back")),
	)

	s.AddTool(addConnectionTool, handlers.AddConnectionHandler(reg))
	s.AddTool(testConnectionTool, handlers.TestConnectionHandler(reg))
	s.AddTool(listConnectionsTool, handlers.ListConnectionsHandler(reg))
	s.AddTool(removeConnectionTool, handlers.RemoveConnectionHandler(reg))
	s.AddTool(executeQueryTool, handlers.ExecuteQueryHandler(exec))
	s.AddTool(getRecordsTool, handlers.GetRecordsHandler(exec))
	s.AddTool(insertRecordTool, handlers.InsertRecordHandler(exec))
	s.AddTool(updateRecordTool, handlers.UpdateRecordHandler(exec))
	s.AddTool(deleteRecordTool, handlers.DeleteRecordHandler(exec))
	s.AddTool(listTablesTool, handlers.ListTablesHandler(exec))
	s.AddTool(getTableSchemaTool, handlers.GetTableSchemaHandler(exec))
	s.AddTool(createTableTool, handlers.CreateTableHandler(exec))
	s.AddTool(dropTableTool, handlers.DropTableHandler(exec))
	s.AddTool(createIndexTool, handlers.CreateIndexHandler(exec))
	s.AddTool(dropIndexTool, handlers.DropIndexHandler(exec))
	s.AddTool(alterTableTool, handlers.AlterTableHandler(exec))
	s.AddTool(beginTransactionTool, handlers.BeginTransactionHandler(reg))
	s.AddTool(commitTransactionTool, handlers.CommitTransactionHandler(reg))
	s.AddTool(rollbackTransactionTool, handlers.RollbackTransactionHandler(reg))
}
