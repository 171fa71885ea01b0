package google

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func validConfig() Config {
	return Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8080/api/oauth2/callback",
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing client id", func(c *Config) { c.ClientID = "" }, "client id"},
		{"missing secret", func(c *Config) { c.ClientSecret = " " }, "client secret"},
		{"missing redirect", func(c *Config) { c.RedirectURL = "" }, "redirect url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewOAuth(t *testing.T) {
	o, err := NewOAuth(validConfig())
	require.NoError(t, err)

	c := o.Config()
	assert.Equal(t, "client-id", c.ClientID)
	assert.Equal(t, oauth2.AuthStyleInParams, c.Endpoint.AuthStyle)
	assert.Equal(t, "https://oauth2.googleapis.com/token", c.Endpoint.TokenURL)
	assert.Equal(t, Scopes, c.Scopes)

	_, err = NewOAuth(Config{})
	assert.Error(t, err)
}

func TestNewOAuth_EndpointOverride(t *testing.T) {
	cfg := validConfig()
	cfg.TokenURL = "http://127.0.0.1:9999/token"
	cfg.AuthURL = "http://127.0.0.1:9999/auth"

	o, err := NewOAuth(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.TokenURL, o.Config().Endpoint.TokenURL)
	assert.Equal(t, cfg.AuthURL, o.Config().Endpoint.AuthURL)
}

func TestAuthURL(t *testing.T) {
	o, err := NewOAuth(validConfig())
	require.NoError(t, err)

	u, err := url.Parse(o.AuthURL("abc"))
	require.NoError(t, err)
	q := u.Query()

	assert.Equal(t, "accounts.google.com", u.Host)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "offline", q.Get("access_type"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "abc", q.Get("state"))
	assert.Equal(t, "openid email profile https://www.googleapis.com/auth/calendar", q.Get("scope"))
	assert.Equal(t, "http://localhost:8080/api/oauth2/callback", q.Get("redirect_uri"))
}

func TestAuthURL_NoState(t *testing.T) {
	o, err := NewOAuth(validConfig())
	require.NoError(t, err)

	u, err := url.Parse(o.AuthURL(""))
	require.NoError(t, err)
	_, present := u.Query()["state"]
	assert.False(t, present)
}
