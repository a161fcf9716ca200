// SPDX-License-Identifier: AGPL-3.0-only
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration.
type Config struct {
	Server         ServerConfig         `mapstructure:"server"`
	AI             AIConfig             `mapstructure:"model"`
	MCP            MCPConfig            `mapstructure:"mcp"`
	CompaniesHouse CompaniesHouseConfig `mapstructure:"companies_house"`
	Competitors    []Competitor         `mapstructure:"competitors"`
	Data           DataConfig           `mapstructure:"data"`
	Logging        LoggingConfig        `mapstructure:"logging"`
	Store          StoreConfig          `mapstructure:"store"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler"`
	Schedules      []ScheduleConfig     `mapstructure:"schedules"`
	Gateway        GatewayConfig        `mapstructure:"gateway"`
}

// ServerConfig configures the MCP tool server.
type ServerConfig struct {
	Address       string `mapstructure:"address"`
	Port          int    `mapstructure:"port"`
	TransportMode string `mapstructure:"transport_mode"` // stdio, sse or streamable
	Name          string `mapstructure:"name"`
	Version       string `mapstructure:"version"`
}

// AIConfig configures the chat model.
type AIConfig struct {
	Provider          string `mapstructure:"provider"` // openai, anthropic or gemini
	Model             string `mapstructure:"model"`
	BaseURL           string `mapstructure:"base_url"`
	APIKey            string `mapstructure:"api_key"`
	OpenAIAPIKey      string `mapstructure:"openai_api_key"`
	AnthropicAPIKey   string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey      string `mapstructure:"gemini_api_key"`
	SystemPrompt      string `mapstructure:"system_prompt"`
	MaxToolIterations int    `mapstructure:"max_tool_iterations"`
}

// MCPConfig points the tool invoker at the remote tool-execution endpoint.
type MCPConfig struct {
	Transport     string        `mapstructure:"transport"` // streamable, sse or command
	URL           string        `mapstructure:"url"`
	Command       string        `mapstructure:"command"`
	Args          []string      `mapstructure:"args"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	DiscoverTools bool          `mapstructure:"discover_tools"`
}

// CompaniesHouseConfig configures the companies registry client.
type CompaniesHouseConfig struct {
	APIHost string        `mapstructure:"api_host"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
	Retries int           `mapstructure:"retries"`
}

// Competitor is a known company offered to the user when a company number is missing.
type Competitor struct {
	Name   string `mapstructure:"name" json:"name"`
	Number string `mapstructure:"number" json:"number"`
}

// DataConfig locates the files served by the CSV tool.
type DataConfig struct {
	Dir string `mapstructure:"dir"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	FilePath string `mapstructure:"file_path"`
	Format   string `mapstructure:"format"`
}

// StoreConfig configures transcript persistence.
type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

// SchedulerConfig configures scheduled prompt execution.
type SchedulerConfig struct {
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ScheduleConfig declares a prompt that runs on a cron expression.
type ScheduleConfig struct {
	Name     string `mapstructure:"name"`
	Schedule string `mapstructure:"schedule"`
	Prompt   string `mapstructure:"prompt"`
	Enabled  bool   `mapstructure:"enabled"`
}

// GatewayConfig configures the WebSocket chat gateway.
// Browser origins other than the gateway's own host are refused unless listed
// in AllowedOrigins or AllowAnyOrigin is set.
type GatewayConfig struct {
	Address        string   `mapstructure:"address"`
	Port           int      `mapstructure:"port"`
	Path           string   `mapstructure:"path"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowAnyOrigin bool     `mapstructure:"allow_any_origin"`
}

// DefaultModels maps a provider to the model used when none is configured.
var DefaultModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4-5",
	"gemini":    "gemini-2.0-flash",
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	dbPath := filepath.Join(".mcp-toolchat", "toolchat.db")
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".mcp-toolchat", "toolchat.db")
	}

	return &Config{
		Server: ServerConfig{
			Address:       "localhost",
			Port:          8080,
			TransportMode: "stdio",
			Name:          "mcp-toolchat",
			Version:       "0.1.0",
		},
		AI: AIConfig{
			Provider:          "openai",
			MaxToolIterations: 10,
		},
		MCP: MCPConfig{
			Transport:     "streamable",
			URL:           "http://localhost:8080/mcp",
			CallTimeout:   30 * time.Second,
			DiscoverTools: true,
		},
		CompaniesHouse: CompaniesHouseConfig{
			APIHost: "https://api.company-information.service.gov.uk",
			Timeout: 15 * time.Second,
			Retries: 2,
		},
		Data: DataConfig{
			Dir: "data",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			DBPath: dbPath,
		},
		Scheduler: SchedulerConfig{
			DefaultTimeout: 5 * time.Minute,
		},
		Gateway: GatewayConfig{
			Address: "localhost",
			Port:    8090,
			Path:    "/ws",
		},
	}
}

// Load reads a TOML configuration file on top of the defaults. An empty path
// looks for config.toml in the working directory and tolerates its absence.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		return cfg, nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// FromEnv overrides configuration values from environment variables.
func FromEnv(cfg *Config) {
	setString(&cfg.Server.Address, "MCP_TOOLCHAT_SERVER_ADDRESS")
	setInt(&cfg.Server.Port, "MCP_TOOLCHAT_SERVER_PORT")
	setString(&cfg.Server.TransportMode, "MCP_TOOLCHAT_SERVER_TRANSPORT")

	setString(&cfg.AI.Provider, "MCP_TOOLCHAT_AI_PROVIDER")
	setString(&cfg.AI.Model, "MCP_TOOLCHAT_AI_MODEL")
	setString(&cfg.AI.BaseURL, "MCP_TOOLCHAT_AI_BASE_URL")
	setString(&cfg.AI.APIKey, "MCP_TOOLCHAT_AI_API_KEY")
	setString(&cfg.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&cfg.AI.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	setString(&cfg.AI.GeminiAPIKey, "GEMINI_API_KEY")
	setInt(&cfg.AI.MaxToolIterations, "MCP_TOOLCHAT_AI_MAX_TOOL_ITERATIONS")

	setString(&cfg.MCP.URL, "MCP_SERVER_URL")
	setString(&cfg.MCP.Transport, "MCP_TOOLCHAT_MCP_TRANSPORT")
	setDuration(&cfg.MCP.CallTimeout, "MCP_TOOLCHAT_MCP_CALL_TIMEOUT")

	setString(&cfg.CompaniesHouse.APIKey, "COMPANIES_HOUSE_API_KEY")
	setString(&cfg.CompaniesHouse.APIHost, "COMPANIES_HOUSE_API_HOST")

	setString(&cfg.Data.Dir, "MCP_TOOLCHAT_DATA_DIR")
	setString(&cfg.Logging.Level, "MCP_TOOLCHAT_LOG_LEVEL")
	setString(&cfg.Logging.FilePath, "MCP_TOOLCHAT_LOG_FILE")
	setString(&cfg.Store.DBPath, "MCP_TOOLCHAT_DB_PATH")
}

// Validate checks the configuration and fills provider-dependent defaults.
func (c *Config) Validate() error {
	switch c.Server.TransportMode {
	case "stdio", "sse", "streamable":
	default:
		return fmt.Errorf("invalid server transport mode: %q", c.Server.TransportMode)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	c.AI.Provider = strings.ToLower(c.AI.Provider)
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	def, ok := DefaultModels[c.AI.Provider]
	if !ok {
		return fmt.Errorf("unsupported AI provider: %q", c.AI.Provider)
	}
	if c.AI.Model == "" {
		c.AI.Model = def
	}
	if c.AI.MaxToolIterations < 1 {
		return fmt.Errorf("max tool iterations must be at least 1, got %d", c.AI.MaxToolIterations)
	}

	switch c.MCP.Transport {
	case "streamable", "sse":
		if c.MCP.URL == "" {
			return fmt.Errorf("mcp url is required for %s transport", c.MCP.Transport)
		}
	case "command":
		if c.MCP.Command == "" {
			return fmt.Errorf("mcp command is required for command transport")
		}
	default:
		return fmt.Errorf("invalid mcp transport: %q", c.MCP.Transport)
	}
	if c.MCP.CallTimeout <= 0 {
		return fmt.Errorf("mcp call timeout must be positive")
	}

	if c.Scheduler.DefaultTimeout <= 0 {
		return fmt.Errorf("scheduler default timeout must be positive")
	}
	for i, s := range c.Schedules {
		if s.Name == "" || s.Schedule == "" || s.Prompt == "" {
			return fmt.Errorf("schedule %d: name, schedule and prompt are required", i)
		}
	}
	for i, comp := range c.Competitors {
		if comp.Number == "" {
			return fmt.Errorf("competitor %d (%s): number is required", i, comp.Name)
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
