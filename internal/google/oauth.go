package google

import (
	"fmt"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Config holds the OAuth client settings. AuthURL and TokenURL override
// Google's endpoints and are only set in tests.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
}

// Validate reports the first missing required field.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ClientID) == "":
		return fmt.Errorf("google client id is required")
	case strings.TrimSpace(c.ClientSecret) == "":
		return fmt.Errorf("google client secret is required")
	case strings.TrimSpace(c.RedirectURL) == "":
		return fmt.Errorf("google redirect url is required")
	}
	return nil
}

// OAuth wraps the oauth2.Config shared by the linking protocol and the
// token manager.
type OAuth struct {
	config *oauth2.Config
}

// NewOAuth validates cfg and builds the client configuration. Client
// credentials are sent in the form body, as Google's token endpoint expects.
func NewOAuth(cfg Config) (*OAuth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	endpoint.AuthStyle = oauth2.AuthStyleInParams

	return &OAuth{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       append([]string(nil), Scopes...),
		},
	}, nil
}

// Config returns the underlying oauth2 configuration.
func (o *OAuth) Config() *oauth2.Config {
	return o.config
}

// AuthURL returns the consent URL. Offline access and a forced consent
// prompt make Google issue a refresh token on every grant. An empty state is
// omitted from the URL.
func (o *OAuth) AuthURL(state string) string {
	return o.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}
