package salesforce

import (
	"strings"

	"golang.org/x/oauth2"
)

// Default login endpoints. Sandboxes use test.salesforce.com and are set
// through configuration.
var (
	DefaultAuthorizeEndpoint = "https://login.salesforce.com/services/oauth2/authorize"
	DefaultTokenEndpoint     = "https://login.salesforce.com/services/oauth2/token"
	DefaultUserInfoEndpoint  = "https://login.salesforce.com/services/oauth2/userinfo"
	DefaultRevokeEndpoint    = "https://login.salesforce.com/services/oauth2/revoke"
)

// DefaultAPIVersion is the REST API version used for object calls.
const DefaultAPIVersion = "v62.0"

// Config holds the connected app settings.
type Config struct {
	ClientID          string
	ClientSecret      string
	RedirectURL       string
	AuthorizeEndpoint string
	TokenEndpoint     string
	UserInfoEndpoint  string
	RevokeEndpoint    string
	Scopes            []string
}

func (c Config) withDefaults() Config {
	if c.AuthorizeEndpoint == "" {
		c.AuthorizeEndpoint = DefaultAuthorizeEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = DefaultTokenEndpoint
	}
	if c.UserInfoEndpoint == "" {
		c.UserInfoEndpoint = DefaultUserInfoEndpoint
	}
	if c.RevokeEndpoint == "" {
		c.RevokeEndpoint = DefaultRevokeEndpoint
	}

	return c
}

func (c Config) validate() error {
	if c.ClientID == "" || c.ClientSecret == "" || c.RedirectURL == "" {
		return ErrMisconfigured
	}

	return nil
}

// OAuth2Config returns the oauth2.Config for the connected app.
func (c Config) OAuth2Config() *oauth2.Config {
	c = c.withDefaults()

	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.AuthorizeEndpoint,
			TokenURL:  c.TokenEndpoint,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ParseScopes splits a space or comma separated scope list.
func ParseScopes(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
}
