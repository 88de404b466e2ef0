// Package config handles Voice Wizard configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/voicewizard/config.yaml,
// /etc/voicewizard/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "voicewizard", "config.yaml"))
	}

	paths = append(paths, "/etc/voicewizard/config.yaml")
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

// Config holds all Voice Wizard configuration.
type Config struct {
	Listen          ListenConfig              `yaml:"listen"`
	DataDir         string                    `yaml:"data_dir"`
	StorageDriver   string                    `yaml:"storage_driver"` // sqlite3 (cgo) or sqlite (pure Go)
	LogLevel        string                    `yaml:"log_level"`
	LogFormat       string                    `yaml:"log_format"` // text or json
	Phone           PhoneConfig               `yaml:"phone"`
	VMEnabled       bool                      `yaml:"vm_enabled"`
	Agents          []AgentConfig             `yaml:"agents"`
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	ProductsFile    string                    `yaml:"products_file"`
	MQTT            MQTTConfig                `yaml:"mqtt"`
	CardDAV         CardDAVConfig             `yaml:"carddav"`
}

// ListenConfig defines the API server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// PhoneConfig seeds the settings store on first start. Once the user
// changes a setting through the API the persisted value wins.
type PhoneConfig struct {
	AutoAnswer         bool `yaml:"auto_answer"`
	WorkingHoursStart  int  `yaml:"working_hours_start"`
	WorkingHoursEnd    int  `yaml:"working_hours_end"`
	SilentMode         bool `yaml:"silent_mode"`
	HandleInBackground bool `yaml:"handle_in_background"`
}

// AgentConfig defines a seed AI agent.
type AgentConfig struct {
	ID                 string `yaml:"id"`
	Name               string `yaml:"name"`
	Purpose            string `yaml:"purpose"`
	SystemInstructions string `yaml:"system_instructions"`
	IsDefault          bool   `yaml:"is_default"`
	VoiceLabel         string `yaml:"voice_label"`
}

// Provider kinds understood by the chat bridge.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai" // any OpenAI-compatible chat completions endpoint
)

// ProviderConfig defines one LLM provider. Providers without an API key
// stay registered so the bridge can tell the user what is missing.
type ProviderConfig struct {
	Kind          string `yaml:"kind"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	SupportsTools bool   `yaml:"supports_tools"`
	TimeoutSec    int    `yaml:"timeout_sec"` // default 60
}

// Timeout returns the request timeout for the provider.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(p.TimeoutSec) * time.Second
}

// MQTTConfig defines the optional Home Assistant MQTT bridge.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Broker          string `yaml:"broker"` // mqtt://host:1883 or mqtts://host:8883
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	DeviceName      string `yaml:"device_name"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`

	// PublishIntervalSec is how often every sensor is republished even
	// without a change (default 60).
	PublishIntervalSec int `yaml:"publish_interval_sec"`
	// Commands exposes HA buttons that drive the call controller.
	Commands bool `yaml:"commands"`
}

// CardDAVConfig defines the optional address book to pull contacts from.
type CardDAVConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AddressBook string `yaml:"address_book"` // path; empty = first book found
	Category    string `yaml:"category"`     // category assigned to synced contacts
	// SyncIntervalMin repeats the sync while serving; 0 syncs once at
	// startup.
	SyncIntervalMin int `yaml:"sync_interval_min"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.StorageDriver == "" {
		c.StorageDriver = "sqlite3"
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "voicewizard"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.PublishIntervalSec <= 0 {
		c.MQTT.PublishIntervalSec = 60
	}
	if c.CardDAV.Category == "" {
		c.CardDAV.Category = "Kunde"
	}
	for name, p := range c.Providers {
		if p.APIKey == "" {
			p.APIKey = os.Getenv(APIKeyEnv(name))
			c.Providers[name] = p
		}
	}
}

// APIKeyEnv returns the environment variable consulted for a provider
// whose api_key is empty, e.g. "gemini" -> "GEMINI_API_KEY".
func APIKeyEnv(provider string) string {
	return strings.ToUpper(strings.ReplaceAll(provider, "-", "_")) + "_API_KEY"
}

// Validate checks the loaded configuration for values that would only
// fail later at runtime.
func (c *Config) Validate() error {
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unknown log_format %q (valid: text, json)", c.LogFormat)
	}
	switch c.StorageDriver {
	case "sqlite3", "sqlite":
	default:
		return fmt.Errorf("unknown storage_driver %q (valid: sqlite3, sqlite)", c.StorageDriver)
	}
	if c.Phone.WorkingHoursStart < 0 || c.Phone.WorkingHoursStart > 24 ||
		c.Phone.WorkingHoursEnd < 0 || c.Phone.WorkingHoursEnd > 24 {
		return fmt.Errorf("working hours must be within 0-24 (got %d-%d)",
			c.Phone.WorkingHoursStart, c.Phone.WorkingHoursEnd)
	}
	for name, p := range c.Providers {
		switch p.Kind {
		case ProviderGemini, ProviderOpenAI:
		default:
			return fmt.Errorf("provider %q: unknown kind %q (valid: gemini, openai)", name, p.Kind)
		}
		if p.Kind == ProviderOpenAI && p.BaseURL == "" {
			return fmt.Errorf("provider %q: base_url is required for openai-compatible providers", name)
		}
	}
	if c.DefaultProvider != "" {
		if _, ok := c.Providers[c.DefaultProvider]; !ok {
			return fmt.Errorf("default_provider %q is not defined in providers", c.DefaultProvider)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if c.CardDAV.Enabled && c.CardDAV.URL == "" {
		return fmt.Errorf("carddav.url is required when carddav is enabled")
	}
	return nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen:        ListenConfig{Port: 8080},
		DataDir:       "./data",
		StorageDriver: "sqlite3",
		Phone: PhoneConfig{
			AutoAnswer:        true,
			WorkingHoursStart: 7,
			WorkingHoursEnd:   17,
			SilentMode:        true,
		},
		VMEnabled: true,
		Agents: []AgentConfig{
			{
				ID:                 "reception",
				Name:               "Empfang",
				Purpose:            "Nimmt Anrufe entgegen und vereinbart Termine",
				SystemInstructions: "Begrüße den Anrufer freundlich, nimm sein Anliegen auf und biete einen Termin an.",
				IsDefault:          true,
			},
			{
				ID:                 "tech",
				Name:               "Technik",
				Purpose:            "Beantwortet technische Fragen zu Photovoltaik und Speichern",
				SystemInstructions: "Beantworte technische Fragen präzise. Verweise bei Störungen auf einen Servicetermin.",
			},
		},
		DefaultProvider: "gemini",
		Providers: map[string]ProviderConfig{
			"gemini": {
				Kind:          ProviderGemini,
				Model:         "gemini-2.0-flash",
				SupportsTools: true,
			},
			"deepseek": {
				Kind:          ProviderOpenAI,
				BaseURL:       "https://api.deepseek.com/v1",
				Model:         "deepseek-chat",
				SupportsTools: true,
			},
			"perplexity": {
				Kind:    ProviderOpenAI,
				BaseURL: "https://api.perplexity.ai",
				Model:   "sonar",
			},
		},
		MQTT: MQTTConfig{
			DeviceName:         "voicewizard",
			DiscoveryPrefix:    "homeassistant",
			PublishIntervalSec: 60,
		},
		CardDAV: CardDAVConfig{Category: "Kunde"},
	}
}
