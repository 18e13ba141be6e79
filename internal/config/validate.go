package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rs/zerolog"
)

var (
	Backends          = []string{"drive", "local", "sqlite", "memory"}
	CredentialSources = []string{"service_account", "user_oauth", "local_oauth"}
	Providers         = []string{"gemini", "anthropic", "openai"}
	LogFormats        = []string{"console", "json"}
)

// Validate reports every problem at once, joined into a single error.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	oneOf := func(key, val string, allowed []string) bool {
		if !slices.Contains(allowed, val) {
			add("%s: %q is not one of %s", key, val, strings.Join(allowed, ", "))
			return false
		}
		return true
	}

	if strings.TrimSpace(c.Document.Name) == "" {
		add("document.name: must not be empty")
	}

	if oneOf("store.backend", c.Store.Backend, Backends) && c.Store.Backend == "drive" {
		errs = append(errs, c.Store.Drive.validate()...)
	}
	if c.Store.Timeout <= 0 {
		add("store.timeout: must be positive")
	}
	if c.Store.Retries < 0 {
		add("store.retries: must not be negative")
	}
	if c.Store.RetryDelay < 0 {
		add("store.retry_delay: must not be negative")
	}
	if c.Store.RateLimit < 0 {
		add("store.rate_limit: must not be negative")
	}
	if c.Store.Backend == "local" && c.Store.Local.Root == "" {
		add("store.local.root: must not be empty")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLite.Path == "" {
		add("store.sqlite.path: must not be empty")
	}

	if oneOf("model.provider", c.Model.Provider, Providers) && c.Model.APIKey == "" {
		add("model.api_key: required for provider %s (or set %s)", c.Model.Provider, providerKeyEnv[c.Model.Provider])
	}
	if c.Model.MaxTokens <= 0 {
		add("model.max_tokens: must be positive")
	}
	if c.Model.ContextBudget < 0 {
		add("model.context_budget: must not be negative")
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil || c.Log.Level == "" {
		add("log.level: %q is not a valid level", c.Log.Level)
	}
	oneOf("log.format", c.Log.Format, LogFormats)

	return errors.Join(errs...)
}

func (d DriveConfig) validate() []error {
	if !slices.Contains(CredentialSources, d.CredentialSource) {
		return []error{fmt.Errorf("store.drive.credential_source: %q is not one of %s",
			d.CredentialSource, strings.Join(CredentialSources, ", "))}
	}
	var errs []error
	switch d.CredentialSource {
	case "service_account":
		if d.CredentialsJSON == "" && d.CredentialsFile == "" {
			errs = append(errs, errors.New("store.drive: service_account needs credentials_json (or GCP_CREDENTIALS) or credentials_file"))
		}
	case "user_oauth":
		if d.ClientID == "" || d.ClientSecret == "" || d.RefreshToken == "" {
			errs = append(errs, errors.New("store.drive: user_oauth needs client_id, client_secret and refresh_token"))
		}
	case "local_oauth":
		if d.CredentialsFile == "" && d.CredentialsJSON == "" && (d.ClientID == "" || d.ClientSecret == "") {
			errs = append(errs, errors.New("store.drive: local_oauth needs a client secrets file or client_id and client_secret"))
		}
		if d.TokenFile == "" {
			errs = append(errs, errors.New("store.drive.token_file: must not be empty for local_oauth"))
		}
	}
	return errs
}
