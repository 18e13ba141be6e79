// Package config loads memchat settings from defaults, an optional YAML file,
// MEMCHAT_* environment variables and command-line flags, in increasing
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName         = "memchat"
	EnvPrefix       = "MEMCHAT"
	DefaultDocument = "historia_czatu_drive.txt"
)

// Config is the effective configuration of one run.
type Config struct {
	Document  DocumentConfig  `mapstructure:"document" json:"document"`
	Store     StoreConfig     `mapstructure:"store" json:"store"`
	Model     ModelConfig     `mapstructure:"model" json:"model"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" json:"telemetry"`
	UI        UIConfig        `mapstructure:"ui" json:"ui"`

	settings map[string]any
	file     string
}

type DocumentConfig struct {
	Name string `mapstructure:"name" json:"name" jsonschema_description:"Name of the history document in the store"`
}

type StoreConfig struct {
	Backend    string        `mapstructure:"backend" json:"backend" jsonschema:"enum=drive,enum=local,enum=sqlite,enum=memory"`
	Timeout    time.Duration `mapstructure:"timeout" json:"timeout" jsonschema:"type=string" jsonschema_description:"Per-call timeout such as 30s"`
	Retries    int           `mapstructure:"retries" json:"retries" jsonschema:"minimum=0"`
	RetryDelay time.Duration `mapstructure:"retry_delay" json:"retry_delay" jsonschema:"type=string"`
	RateLimit  float64       `mapstructure:"rate_limit" json:"rate_limit" jsonschema:"minimum=0" jsonschema_description:"Store calls per second; 0 disables limiting"`
	Local      LocalConfig   `mapstructure:"local" json:"local"`
	SQLite     SQLiteConfig  `mapstructure:"sqlite" json:"sqlite"`
	Drive      DriveConfig   `mapstructure:"drive" json:"drive"`
}

type LocalConfig struct {
	Root string `mapstructure:"root" json:"root"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path" json:"path"`
}

// DriveConfig carries Google Drive credentials. Which fields are required
// depends on CredentialSource.
type DriveConfig struct {
	CredentialSource string `mapstructure:"credential_source" json:"credential_source" jsonschema:"enum=service_account,enum=user_oauth,enum=local_oauth"`
	CredentialsJSON  string `mapstructure:"credentials_json" json:"credentials_json,omitempty" jsonschema_description:"Inline credentials JSON; also read from GCP_CREDENTIALS"`
	CredentialsFile  string `mapstructure:"credentials_file" json:"credentials_file,omitempty"`
	ClientID         string `mapstructure:"client_id" json:"client_id,omitempty"`
	ClientSecret     string `mapstructure:"client_secret" json:"client_secret,omitempty"`
	RefreshToken     string `mapstructure:"refresh_token" json:"refresh_token,omitempty"`
	TokenFile        string `mapstructure:"token_file" json:"token_file"`
}

type ModelConfig struct {
	Provider      string `mapstructure:"provider" json:"provider" jsonschema:"enum=gemini,enum=anthropic,enum=openai"`
	Name          string `mapstructure:"name" json:"name,omitempty" jsonschema_description:"Model name; empty selects the provider default"`
	APIKey        string `mapstructure:"api_key" json:"api_key,omitempty"`
	BaseURL       string `mapstructure:"base_url" json:"base_url,omitempty"`
	MaxTokens     int    `mapstructure:"max_tokens" json:"max_tokens" jsonschema:"minimum=1"`
	ContextBudget int    `mapstructure:"context_budget" json:"context_budget" jsonschema:"minimum=0" jsonschema_description:"Estimated input tokens per call; 0 sends the whole history"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" json:"level" jsonschema:"enum=trace,enum=debug,enum=info,enum=warn,enum=error"`
	Format string `mapstructure:"format" json:"format" jsonschema:"enum=console,enum=json"`
}

type TelemetryConfig struct {
	Observe       bool   `mapstructure:"observe" json:"observe"`
	Dir           string `mapstructure:"dir" json:"dir"`
	LocalFeatures bool   `mapstructure:"local_features" json:"local_features"`
}

type UIConfig struct {
	Markdown bool `mapstructure:"markdown" json:"markdown"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("document.name", DefaultDocument)

	v.SetDefault("store.backend", "drive")
	v.SetDefault("store.timeout", "30s")
	v.SetDefault("store.retries", 1)
	v.SetDefault("store.retry_delay", "500ms")
	v.SetDefault("store.rate_limit", 0)
	v.SetDefault("store.local.root", ".memchat")
	v.SetDefault("store.sqlite.path", "memchat.db")

	v.SetDefault("store.drive.credential_source", "service_account")
	v.SetDefault("store.drive.credentials_json", "")
	v.SetDefault("store.drive.credentials_file", "")
	v.SetDefault("store.drive.client_id", "")
	v.SetDefault("store.drive.client_secret", "")
	v.SetDefault("store.drive.refresh_token", "")
	v.SetDefault("store.drive.token_file", "token.json")

	v.SetDefault("model.provider", "gemini")
	v.SetDefault("model.name", "")
	v.SetDefault("model.api_key", "")
	v.SetDefault("model.base_url", "")
	v.SetDefault("model.max_tokens", 1024)
	v.SetDefault("model.context_budget", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("telemetry.observe", false)
	v.SetDefault("telemetry.dir", ".agent")
	v.SetDefault("telemetry.local_features", false)

	v.SetDefault("ui.markdown", true)
}

// flagKeys maps command-line flags onto configuration keys.
var flagKeys = map[string]string{
	"provider":  "model.provider",
	"model":     "model.name",
	"store":     "store.backend",
	"document":  "document.name",
	"log-level": "log.level",
}

// NewFlagSet declares every memchat flag.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to a YAML config file")
	fs.String("provider", "", "model provider: gemini, anthropic or openai")
	fs.String("model", "", "model name (default depends on provider)")
	fs.String("store", "", "history store: drive, local, sqlite or memory")
	fs.String("document", "", "history document name")
	fs.String("log-level", "", "log level: trace, debug, info, warn or error")
	fs.Bool("plain", false, "print replies as plain text instead of rendered markdown")
	fs.Bool("print-config", false, "print the effective configuration and exit")
	fs.Bool("print-schema", false, "print the configuration JSON schema and exit")
	return fs
}

// Load builds the configuration. fs may be nil; when given it must have been
// created by NewFlagSet and already parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("store.drive.credentials_json", EnvPrefix+"_STORE_DRIVE_CREDENTIALS_JSON", "GCP_CREDENTIALS"); err != nil {
		return nil, err
	}

	configPath := ""
	if fs != nil {
		configPath, _ = fs.GetString("config")
		for flag, key := range flagKeys {
			if f := fs.Lookup(flag); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag --%s: %w", flag, err)
				}
			}
		}
		if plain, _ := fs.GetBool("plain"); plain {
			v.Set("ui.markdown", false)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", AppName))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Model.Provider = strings.ToLower(cfg.Model.Provider)
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = os.Getenv(providerKeyEnv[cfg.Model.Provider])
	}
	cfg.settings = v.AllSettings()
	cfg.file = v.ConfigFileUsed()
	return &cfg, nil
}

// providerKeyEnv is the conventional API key variable of each provider.
var providerKeyEnv = map[string]string{
	"gemini":    "GEMINI_API_KEY",
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
}

// File returns the config file that was read, or "" when none was found.
func (c *Config) File() string { return c.file }
