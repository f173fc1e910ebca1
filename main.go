package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/astreltsov/db-mcp-server/config"
	"github.com/astreltsov/db-mcp-server/executor"
	"github.com/astreltsov/db-mcp-server/mcp"
	"github.com/astreltsov/db-mcp-server/registry"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Warn("config not loaded, starting with no preconfigured connections", "error", err)
		cfg = &config.Config{}
	}

	reg := registry.New(slog.Default())
	defer reg.CloseAll()

	// Seed connections from the config file. A backend that is down at
	// startup is skipped, not fatal; it can be re-added at runtime.
	ctx := context.Background()
	for id, conn := range cfg.Connections {
		if err := reg.Add(ctx, id, conn.Type, conn.Params, registry.SourceConfig); err != nil {
			slog.Error("failed to register configured connection", "id", id, "error", err)
		}
	}

	exec := executor.New(reg)

	s := server.NewMCPServer(
		"db-mcp-server",
		"0.1.0",
		server.WithToolCapabilities(false),
		server.WithLogging(),
	)

	mcp.RegisterTools(s, reg, exec)
	slog.Info("server ready", "connections", len(reg.List()))

	// Start the stdio server
	if err := server.ServeStdio(s); err != nil {
		fmt.Printf("Server error: %v\n", err)
	}
}
