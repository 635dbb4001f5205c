// Package config resolves runtime settings from the environment and the
// agent manifest file.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/flitsinc/go-a2a/internal/agentcard"
	"github.com/flitsinc/go-a2a/internal/toolbridge"
)

type Config struct {
	HTTPAddr   string
	OllamaHost string

	Model          string
	FallbackModels []string
	// RetryDelay overrides the processor's pause between failed model
	// calls. Zero keeps the built-in default.
	RetryDelay time.Duration

	ManifestPath string
}

// Load reads settings from the environment, after merging a .env file from
// the working directory when one exists. Environment values win over .env.
func Load() Config {
	loadDotEnv(".env")
	return Config{
		HTTPAddr:       getEnv("A2A_HTTP_ADDR", ":8000"),
		OllamaHost:     getEnv("A2A_OLLAMA_HOST", "http://localhost:11434"),
		Model:          getEnv("A2A_MODEL", "gemma3:27b"),
		FallbackModels: splitComma(getEnv("A2A_FALLBACK_MODELS", "")),
		RetryDelay:     getDuration("A2A_RETRY_DELAY", 0),
		ManifestPath:   getEnv("A2A_AGENT_MANIFEST", "agent.yaml"),
	}
}

// Manifest is the parsed agent manifest: the card served for discovery plus
// the MCP servers whose tools the agent may call.
type Manifest struct {
	Card       agentcard.Card
	MCPServers []toolbridge.ServerCommand
}

// LoadManifest reads the YAML manifest. The card fields sit at the top
// level; tool servers are listed under mcp_servers.
func LoadManifest(path string) (Manifest, error) {
	card, err := agentcard.FromFile(path)
	if err != nil {
		return Manifest{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read agent manifest: %w", err)
	}
	var extra struct {
		MCPServers []toolbridge.ServerCommand `yaml:"mcp_servers"`
	}
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return Manifest{}, fmt.Errorf("parse agent manifest: %w", err)
	}
	return Manifest{Card: card, MCPServers: extra.MCPServers}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration value, using default", "key", key, "value", v, "error", err)
		return fallback
	}
	return parsed
}

func splitComma(value string) []string {
	parts := strings.Split(value, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func loadDotEnv(path string) {
	file, err := os.Open(path)
	if err != nil {
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "export ") {
			line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"'`)
		if _, exists := os.LookupEnv(key); exists {
			continue
		}
		_ = os.Setenv(key, value)
	}
}
