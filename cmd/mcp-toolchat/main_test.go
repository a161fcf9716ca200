// SPDX-License-Identifier: AGPL-3.0-only
package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jolks/mcp-toolchat/internal/config"
	"github.com/jolks/mcp-toolchat/internal/singleton"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Server.TransportMode = "streamable"
	cfg.Logging.Level = "error"
	cfg.Logging.FilePath = filepath.Join(dir, "toolchat.log")
	cfg.AI.OpenAIAPIKey = "test-key"
	cfg.MCP.DiscoverTools = false
	cfg.Store.DBPath = filepath.Join(dir, "toolchat.db")
	cfg.Data.Dir = dir
	cfg.Schedules = []config.ScheduleConfig{
		{Name: "digest", Schedule: "@daily", Prompt: "List the available competitors", Enabled: true},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config is invalid: %v", err)
	}
	return cfg
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	toml := `
[companies_house]
api_host = "https://example.test"

[[competitors]]
name = "Acme Ltd"
number = "06440931"

[model]
provider = "anthropic"
`
	if err := os.WriteFile(path, []byte(toml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.CompaniesHouse.APIHost != "https://example.test" {
		t.Errorf("Expected api host from file, got %s", cfg.CompaniesHouse.APIHost)
	}
	if len(cfg.Competitors) != 1 || cfg.Competitors[0].Number != "06440931" {
		t.Errorf("Expected one competitor from file, got %+v", cfg.Competitors)
	}
	if cfg.AI.Model != config.DefaultModels["anthropic"] {
		t.Errorf("Expected default anthropic model, got %s", cfg.AI.Model)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("Expected an explicit missing config file to fail")
	}
}

func TestCreateServerApp(t *testing.T) {
	app, err := createApp(context.Background(), testConfig(t), modeServer)
	if err != nil {
		t.Fatalf("Failed to create server app: %v", err)
	}
	if app.server == nil {
		t.Fatal("Expected an MCP server")
	}
	if app.controller != nil || app.scheduler != nil {
		t.Error("Server mode should not wire the chat loop")
	}
}

func TestCreateChatApp(t *testing.T) {
	cfg := testConfig(t)
	app, err := createApp(context.Background(), cfg, modeChat)
	if err != nil {
		t.Fatalf("Failed to create chat app: %v", err)
	}
	defer func() { _ = app.Stop() }()

	if app.controller == nil || app.store == nil {
		t.Fatal("Expected controller and store to be wired")
	}
	if app.scheduler == nil || app.lock == nil {
		t.Fatal("Expected the first process to own the schedules")
	}
	if _, err := app.scheduler.GetPrompt("digest"); err != nil {
		t.Errorf("Expected configured schedule to be loaded: %v", err)
	}
	if _, err := singleton.Acquire(cfg.Store.DBPath); err != singleton.ErrHeld {
		t.Errorf("Expected the database lock to be held, got %v", err)
	}
}

func TestStopEndsTerminalSessionBeforeClosingStore(t *testing.T) {
	app, err := createApp(context.Background(), testConfig(t), modeChat)
	if err != nil {
		t.Fatalf("Failed to create chat app: %v", err)
	}
	in, w := io.Pipe()
	defer w.Close()
	var out bytes.Buffer
	app.stdin = in
	app.stdout = &out

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	select {
	case <-app.replDone:
	default:
		t.Fatal("Expected Stop to wait for the terminal session to end")
	}
	if !strings.Contains(out.String(), "Type 'exit' to quit") {
		t.Errorf("Expected the banner to be printed, got %q", out.String())
	}
}

func TestChatAppManagesSchedules(t *testing.T) {
	app, err := createApp(context.Background(), testConfig(t), modeChat)
	if err != nil {
		t.Fatalf("Failed to create chat app: %v", err)
	}
	var out bytes.Buffer
	app.stdin = strings.NewReader("/disable digest\n/schedules\nexit\n")
	app.stdout = &out

	if err := app.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	select {
	case <-app.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Expected the terminal session to end after exit")
	}
	if err := app.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if !strings.Contains(out.String(), "digest  disabled") {
		t.Errorf("Expected the configured schedule to be listed as disabled, got %q", out.String())
	}
}

func TestCreateGatewayApp(t *testing.T) {
	app, err := createApp(context.Background(), testConfig(t), modeGateway)
	if err != nil {
		t.Fatalf("Failed to create gateway app: %v", err)
	}
	defer func() { _ = app.Stop() }()

	if app.gateway == nil {
		t.Fatal("Expected a gateway")
	}
}

func TestCreateAppUnknownMode(t *testing.T) {
	if _, err := createApp(context.Background(), testConfig(t), "telepathy"); err == nil {
		t.Error("Expected unknown mode to fail")
	}
}

func TestCreateChatAppWithoutKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.AI.OpenAIAPIKey = ""
	cfg.AI.APIKey = ""
	if _, err := createApp(context.Background(), cfg, modeChat); err == nil {
		t.Error("Expected missing API key to fail")
	}
}
