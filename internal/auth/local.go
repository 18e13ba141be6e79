package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/petasbytes/memchat/internal/config"
)

func (f Factory) localOAuth(ctx context.Context, d config.DriveConfig) (oauth2.TokenSource, error) {
	if d.TokenFile == "" {
		return nil, errors.New("local_oauth: token_file is required")
	}
	conf, err := f.installedConfig(d)
	if err != nil {
		return nil, err
	}

	tok, err := LoadToken(d.TokenFile)
	switch {
	case err == nil:
		f.Logger.Debug().Str("path", d.TokenFile).Msg("using cached token")
	case errors.Is(err, fs.ErrNotExist):
		if f.Prompter == nil {
			return nil, ErrNoPrompter
		}
		tok, err = f.exchange(ctx, conf)
		if err != nil {
			return nil, err
		}
		if err := SaveToken(d.TokenFile, tok); err != nil {
			return nil, err
		}
		f.Logger.Info().Str("path", d.TokenFile).Msg("authorization token cached")
	default:
		return nil, err
	}

	return &cachingSource{
		path:   d.TokenFile,
		src:    conf.TokenSource(ctx, tok),
		last:   tok.AccessToken,
		logger: f.Logger,
	}, nil
}

// installedConfig reads a client secrets file when one is configured and
// falls back to client_id/client_secret.
func (f Factory) installedConfig(d config.DriveConfig) (*oauth2.Config, error) {
	data, err := credentialsJSON(d)
	if err != nil {
		return nil, err
	}
	if data != nil {
		conf, err := google.ConfigFromJSON(data, DriveScope)
		if err != nil {
			return nil, fmt.Errorf("local_oauth: %w", err)
		}
		if f.Endpoint.TokenURL != "" {
			conf.Endpoint = f.Endpoint
		}
		return conf, nil
	}
	if d.ClientID == "" || d.ClientSecret == "" {
		return nil, errors.New("local_oauth: client secrets or client_id and client_secret are required")
	}
	return f.oauthConfig(d.ClientID, d.ClientSecret), nil
}

func (f Factory) exchange(ctx context.Context, conf *oauth2.Config) (*oauth2.Token, error) {
	authURL := conf.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)
	code, err := f.Prompter.AuthCode(ctx, authURL)
	if err != nil {
		return nil, fmt.Errorf("read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, errors.New("empty authorization code")
	}
	tok, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// LoadToken reads a token cached by SaveToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("decode token file %s: %w", path, err)
	}
	return &tok, nil
}

// SaveToken writes tok to path, readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create token dir: %w", err)
		}
	}
	data, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write token file: %w", err)
	}
	return nil
}

// cachingSource rewrites the token file whenever the wrapped source
// refreshes the access token.
type cachingSource struct {
	mu     sync.Mutex
	path   string
	src    oauth2.TokenSource
	last   string
	logger zerolog.Logger
}

func (c *cachingSource) Token() (*oauth2.Token, error) {
	tok, err := c.src.Token()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if tok.AccessToken != c.last {
		if err := SaveToken(c.path, tok); err != nil {
			c.logger.Warn().Err(err).Msg("failed to cache refreshed token")
		} else {
			c.last = tok.AccessToken
		}
	}
	return tok, nil
}
