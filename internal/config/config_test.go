// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should be valid: %v", err)
	}
	if cfg.AI.Model != "gpt-4o" {
		t.Errorf("Expected default OpenAI model gpt-4o, got %q", cfg.AI.Model)
	}
	if cfg.MCP.CallTimeout != 30*time.Second {
		t.Errorf("Expected 30s call timeout, got %v", cfg.MCP.CallTimeout)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeConfig(t, `
[companies_house]
api_host = "https://ch.example.test"

[[competitors]]
name = "Acme Ltd"
number = "06440931"

[[competitors]]
name = "Globex"
number = "01234567"

[model]
provider = "gemini"
max_tool_iterations = 4

[mcp]
transport = "sse"
url = "http://localhost:9000/sse"
call_timeout = "5s"

[gateway]
allowed_origins = ["https://chat.example"]

[[schedules]]
name = "weekly-filings"
schedule = "0 9 * * 1"
prompt = "Summarise the latest filings of every competitor"
enabled = true
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if cfg.CompaniesHouse.APIHost != "https://ch.example.test" {
		t.Errorf("api_host = %q", cfg.CompaniesHouse.APIHost)
	}
	if len(cfg.Competitors) != 2 || cfg.Competitors[0].Name != "Acme Ltd" || cfg.Competitors[1].Number != "01234567" {
		t.Errorf("unexpected competitors: %+v", cfg.Competitors)
	}
	if cfg.AI.Provider != "gemini" || cfg.AI.Model != "gemini-2.0-flash" {
		t.Errorf("expected gemini defaults, got provider=%q model=%q", cfg.AI.Provider, cfg.AI.Model)
	}
	if cfg.AI.MaxToolIterations != 4 {
		t.Errorf("max_tool_iterations = %d, want 4", cfg.AI.MaxToolIterations)
	}
	if cfg.MCP.Transport != "sse" || cfg.MCP.CallTimeout != 5*time.Second {
		t.Errorf("unexpected mcp config: %+v", cfg.MCP)
	}
	// Untouched sections keep their defaults.
	if cfg.Server.Name != "mcp-toolchat" {
		t.Errorf("server name default lost: %q", cfg.Server.Name)
	}
	if len(cfg.Schedules) != 1 || !cfg.Schedules[0].Enabled {
		t.Errorf("unexpected schedules: %+v", cfg.Schedules)
	}
	if len(cfg.Gateway.AllowedOrigins) != 1 || cfg.Gateway.AllowedOrigins[0] != "https://chat.example" {
		t.Errorf("allowed_origins = %v", cfg.Gateway.AllowedOrigins)
	}
	if cfg.Gateway.AllowAnyOrigin || cfg.Gateway.Path != "/ws" {
		t.Errorf("unexpected gateway config: %+v", cfg.Gateway)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("MCP_SERVER_URL", "http://remote:8000/mcp")
	t.Setenv("COMPANIES_HOUSE_API_KEY", "ch-key")
	t.Setenv("MCP_TOOLCHAT_AI_MAX_TOOL_ITERATIONS", "7")
	t.Setenv("MCP_TOOLCHAT_MCP_CALL_TIMEOUT", "2s")

	cfg := DefaultConfig()
	FromEnv(cfg)

	if cfg.MCP.URL != "http://remote:8000/mcp" {
		t.Errorf("MCP URL = %q", cfg.MCP.URL)
	}
	if cfg.CompaniesHouse.APIKey != "ch-key" {
		t.Errorf("API key = %q", cfg.CompaniesHouse.APIKey)
	}
	if cfg.AI.MaxToolIterations != 7 {
		t.Errorf("MaxToolIterations = %d", cfg.AI.MaxToolIterations)
	}
	if cfg.MCP.CallTimeout != 2*time.Second {
		t.Errorf("CallTimeout = %v", cfg.MCP.CallTimeout)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"bad transport mode": func(c *Config) { c.Server.TransportMode = "carrier-pigeon" },
		"bad provider":       func(c *Config) { c.AI.Provider = "mystery" },
		"zero iterations":    func(c *Config) { c.AI.MaxToolIterations = 0 },
		"command without cmd": func(c *Config) {
			c.MCP.Transport = "command"
			c.MCP.Command = ""
		},
		"zero call timeout":   func(c *Config) { c.MCP.CallTimeout = 0 },
		"incomplete schedule": func(c *Config) { c.Schedules = []ScheduleConfig{{Name: "x"}} },
		"competitor no number": func(c *Config) {
			c.Competitors = []Competitor{{Name: "Nameless"}}
		},
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}
