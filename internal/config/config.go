// Package config handles daemon configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/caleb/config.yaml, /etc/caleb/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "caleb", "config.yaml"))
	}

	paths = append(paths, "/etc/caleb/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all daemon configuration.
type Config struct {
	Listen   ListenConfig  `yaml:"listen"`
	Groq     GroqConfig    `yaml:"groq"`
	Asaas    AsaasConfig   `yaml:"asaas"`
	Twilio   TwilioConfig  `yaml:"twilio"`
	Redis    RedisConfig   `yaml:"redis"`
	MQTT     MQTTConfig    `yaml:"mqtt"`
	SMTP     SMTPConfig    `yaml:"smtp"`
	Console  ConsoleConfig `yaml:"console"`
	DBPath   string        `yaml:"db_path"`
	LogLevel string        `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// GroqConfig defines the chat-completion provider settings.
type GroqConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Default: https://api.groq.com/openai/v1
	Model   string `yaml:"model"`    // Default: openai/gpt-oss-120b
}

// AsaasConfig defines the payment provider settings.
type AsaasConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // Default: https://api.asaas.com/v3
	// WebhookToken, when set, must match the asaas-access-token header
	// on inbound payment webhooks.
	WebhookToken string `yaml:"webhook_token"`
}

// TwilioConfig defines the WhatsApp transport settings.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`
	// FromNumber is the WhatsApp sender, e.g. "whatsapp:+14155238886".
	FromNumber string `yaml:"from_number"`
	// BusinessNumber receives operational alerts.
	BusinessNumber string `yaml:"business_number"`
}

// RedisConfig defines conversation-state persistence. When Addr is
// empty the daemon falls back to an in-memory store (single-process
// dev mode; state is lost on restart).
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	// TTLHours bounds how long an idle conversation is kept (default 72).
	TTLHours int `yaml:"ttl_hours"`
}

// MQTTConfig defines the optional ops-event publisher.
type MQTTConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Broker     string `yaml:"broker"` // e.g. "mqtt://host:1883" or "mqtts://host:8883"
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	DeviceName string `yaml:"device_name"` // Topic segment; default "caleb"
}

// SMTPConfig defines voucher email delivery. Optional; when Host is
// empty vouchers go out over WhatsApp only.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"` // 465 implicit TLS unless StartTLS
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	StartTLS bool   `yaml:"starttls"`
	From     string `yaml:"from"` // e.g. "Caleb's Tour <reservas@calebstour.com.br>"
}

// ConsoleConfig defines the operator console WebSocket endpoint.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file. Environment variable
// references in the file (${VAR}) are expanded before parsing, which
// is how secrets stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Groq: GroqConfig{
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "openai/gpt-oss-120b",
		},
		Asaas: AsaasConfig{
			BaseURL: "https://api.asaas.com/v3",
		},
		Redis:  RedisConfig{TTLHours: 72},
		MQTT:   MQTTConfig{DeviceName: "caleb"},
		SMTP:   SMTPConfig{Port: 465},
		DBPath: "caleb.db",
	}
}
