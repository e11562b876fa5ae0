// Package main provides the standalone entry point for the COI compliance MCP server.
// It requires no external services: SQLite, YAML templates and an in-memory cache.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/coi-compliance-server/internal/config"
	"github.com/coi-compliance-server/internal/mcp"
)

func main() {
	// stdout carries MCP traffic
	log.SetOutput(os.Stderr)

	cfg := config.LoadLiteConfig()

	log.Printf("Starting COI compliance MCP server (lite), data directory: %s", cfg.DataDir)

	server, err := mcp.NewLiteServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create MCP server: %v", err)
	}
	defer server.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := server.Start(ctx); err != nil {
		log.Printf("MCP server failed: %v", err)
		return
	}

	log.Println("COI compliance MCP server (lite) stopped")
}
