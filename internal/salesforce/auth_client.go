package salesforce

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/oauth2"
)

// maxResponseSize caps how much of a provider response is read.
const maxResponseSize = 1 << 20

// TokenResponse is the subset of the token endpoint response the service
// reads. The full response is kept as raw JSON where it is passed through.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	InstanceURL  string `json:"instance_url"`
	ID           string `json:"id"`
	TokenType    string `json:"token_type"`
	IssuedAt     string `json:"issued_at"`
	Scope        string `json:"scope,omitempty"`
}

// OrgID returns the organization id from the identity URL
// (https://login.salesforce.com/id/{orgId}/{userId}).
func (t *TokenResponse) OrgID() string {
	u, err := url.Parse(t.ID)
	if err != nil {
		return ""
	}

	segments := strings.Split(u.Path, "/")
	if len(segments) < 3 {
		return ""
	}

	return segments[2]
}

// ParseTokenResponse decodes a raw token endpoint response.
func ParseTokenResponse(raw []byte) (*TokenResponse, error) {
	var tokens TokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("%w: token response has no access_token", ErrMalformedResponse)
	}

	return &tokens, nil
}

// UserInfo is the identity returned by the user-info endpoint.
type UserInfo struct {
	Subject           string `json:"sub"`
	UserID            string `json:"user_id"`
	OrganizationID    string `json:"organization_id"`
	Name              string `json:"name"`
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	URLs              struct {
		CustomDomain string `json:"custom_domain"`
	} `json:"urls"`
}

// AuthClient talks to the Salesforce identity endpoints.
type AuthClient struct {
	config      Config
	oauthConfig *oauth2.Config
	httpClient  *http.Client
}

// NewAuthClient creates an identity client. A nil httpClient uses
// http.DefaultClient.
func NewAuthClient(config Config, httpClient *http.Client) (*AuthClient, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	config = config.withDefaults()

	return &AuthClient{
		config:      config,
		oauthConfig: config.OAuth2Config(),
		httpClient:  httpClient,
	}, nil
}

// AuthCodeURL builds the authorization URL for an S256 PKCE flow. state is
// echoed back to the redirect URL unchanged.
func (c *AuthClient) AuthCodeURL(state, verifier string) string {
	return c.oauthConfig.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)
}

// ExchangeCode trades an authorization code and its PKCE verifier for
// tokens. A non-2xx response is returned as *ResponseError.
func (c *AuthClient) ExchangeCode(ctx context.Context, code, verifier string) (json.RawMessage, error) {
	params := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {c.config.RedirectURL},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
		"code_verifier": {verifier},
	}

	return c.tokenRequest(ctx, params)
}

// Refresh runs the refresh_token grant and returns the raw response.
func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	params := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.config.ClientID},
		"client_secret": {c.config.ClientSecret},
	}

	return c.tokenRequest(ctx, params)
}

func (c *AuthClient) tokenRequest(ctx context.Context, params url.Values) (json.RawMessage, error) {
	grantType := params.Get("grant_type")

	ctx, span := tracing.Tracer.Start(ctx, "salesforce.token")
	defer span.End()
	span.SetAttributes(attribute.String("oauth.grant_type", grantType))

	log.Ctx(ctx).Debug().Str("grant_type", grantType).Msg("sending token request")

	body, err := c.postForm(ctx, c.config.TokenEndpoint, params)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if !json.Valid(body) {
		span.SetStatus(codes.Error, "invalid token response")
		return nil, fmt.Errorf("%w: token response is not JSON", ErrMalformedResponse)
	}

	return body, nil
}

// UserInfo fetches the identity behind an access token.
func (c *AuthClient) UserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	ctx, span := tracing.Tracer.Start(ctx, "salesforce.userinfo")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.UserInfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create userinfo request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var info UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// The subject is the identity URL; its last segment is the user id.
	if info.UserID == "" && info.Subject != "" {
		info.UserID = info.Subject[strings.LastIndex(info.Subject, "/")+1:]
	}
	if info.UserID == "" {
		return nil, fmt.Errorf("%w: userinfo has no user_id", ErrMalformedResponse)
	}

	return &info, nil
}

// Revoke invalidates a refresh or access token.
func (c *AuthClient) Revoke(ctx context.Context, token string) error {
	ctx, span := tracing.Tracer.Start(ctx, "salesforce.revoke")
	defer span.End()

	if _, err := c.postForm(ctx, c.config.RevokeEndpoint, url.Values{"token": {token}}); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	return nil
}

func (c *AuthClient) postForm(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	return c.do(req)
}

func (c *AuthClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, newResponseError(resp, body)
	}

	return body, nil
}
