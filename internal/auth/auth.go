// Package auth turns the configured Drive credential source into an OAuth2
// token source. Three sources are supported: a service account key, a user
// refresh token, and an interactive installed-app flow whose token is cached
// on disk.
package auth

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/petasbytes/memchat/internal/config"
)

// DriveScope is full Drive access so documents created by other clients are
// found by name.
const DriveScope = drive.DriveScope

const (
	ServiceAccount = "service_account"
	UserOAuth      = "user_oauth"
	LocalOAuth     = "local_oauth"
)

var ErrNoPrompter = errors.New("local_oauth needs an interactive prompter")

// Prompter shows the consent URL to the user and returns the authorization
// code they paste back.
type Prompter interface {
	AuthCode(ctx context.Context, authURL string) (string, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, authURL string) (string, error)

func (f PrompterFunc) AuthCode(ctx context.Context, authURL string) (string, error) {
	return f(ctx, authURL)
}

// Factory builds token sources. The zero value talks to Google's endpoints
// and cannot run local_oauth.
type Factory struct {
	// Endpoint overrides google.Endpoint for the OAuth user flows.
	Endpoint oauth2.Endpoint
	Prompter Prompter
	Logger   zerolog.Logger
}

// ClientOptions returns the options that authorize a Drive service.
func (f Factory) ClientOptions(ctx context.Context, d config.DriveConfig) ([]option.ClientOption, error) {
	ts, err := f.TokenSource(ctx, d)
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// TokenSource selects the credential source named by d.CredentialSource.
func (f Factory) TokenSource(ctx context.Context, d config.DriveConfig) (oauth2.TokenSource, error) {
	switch d.CredentialSource {
	case ServiceAccount, "":
		return f.serviceAccount(ctx, d)
	case UserOAuth:
		return f.userOAuth(ctx, d)
	case LocalOAuth:
		return f.localOAuth(ctx, d)
	default:
		return nil, fmt.Errorf("unknown credential source %q", d.CredentialSource)
	}
}

func (f Factory) serviceAccount(ctx context.Context, d config.DriveConfig) (oauth2.TokenSource, error) {
	data, err := credentialsJSON(d)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("service_account: no credentials_json or credentials_file")
	}
	conf, err := google.JWTConfigFromJSON(data, DriveScope)
	if err != nil {
		return nil, fmt.Errorf("service_account: %w", err)
	}
	f.Logger.Debug().Str("email", conf.Email).Msg("using service account")
	return conf.TokenSource(ctx), nil
}

func (f Factory) userOAuth(ctx context.Context, d config.DriveConfig) (oauth2.TokenSource, error) {
	if d.ClientID == "" || d.ClientSecret == "" || d.RefreshToken == "" {
		return nil, errors.New("user_oauth: client_id, client_secret and refresh_token are required")
	}
	conf := f.oauthConfig(d.ClientID, d.ClientSecret)
	return conf.TokenSource(ctx, &oauth2.Token{RefreshToken: d.RefreshToken}), nil
}

func (f Factory) oauthConfig(id, secret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     id,
		ClientSecret: secret,
		Endpoint:     f.endpoint(),
		RedirectURL:  "http://localhost",
		Scopes:       []string{DriveScope},
	}
}

func (f Factory) endpoint() oauth2.Endpoint {
	if f.Endpoint.TokenURL != "" {
		return f.Endpoint
	}
	return google.Endpoint
}

// credentialsJSON prefers inline JSON over a file. It returns nil, nil when
// neither is configured.
func credentialsJSON(d config.DriveConfig) ([]byte, error) {
	if d.CredentialsJSON != "" {
		return []byte(d.CredentialsJSON), nil
	}
	if d.CredentialsFile == "" {
		return nil, nil
	}
	data, err := os.ReadFile(d.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	return data, nil
}
