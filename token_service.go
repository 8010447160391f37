package sfapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/audit"
	"github.com/Sakib25800/framer-salesforce-api/internal/metrics"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
)

// Identity is the provider's answer to "who owns this access token".
type Identity struct {
	UserID      string
	OrgID       string
	Name        string
	Email       string
	InstanceURL string
}

// AuthenticatedUser is the result of authenticating a request: the caller's
// identity plus a freshly minted access token for their org.
type AuthenticatedUser struct {
	UserID      string
	OrgID       string
	InstanceURL string
	AccessToken string
}

// Connection returns the object API connection of the user.
func (u *AuthenticatedUser) Connection() salesforce.Connection {
	return salesforce.Connection{
		InstanceURL: u.InstanceURL,
		AccessToken: u.AccessToken,
	}
}

// TokenService keeps one refresh token per user and turns it into access
// tokens on demand. Access tokens are never stored.
type TokenService struct {
	provider IdentityProvider
	stores   *Stores
}

// NewTokenService creates a new TokenService instance
func NewTokenService(provider IdentityProvider, stores *Stores) *TokenService {
	return &TokenService{
		provider: provider,
		stores:   stores,
	}
}

// MintAccessToken exchanges a refresh token for a new access token. A
// rejected grant is reported as an upstream auth error carrying the
// provider's description. The call is never retried.
func (s *TokenService) MintAccessToken(ctx context.Context, refreshToken string) (string, error) {
	ctx, span := tracing.Tracer.Start(ctx, "TokenService.MintAccessToken")
	defer span.End()

	raw, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh failed")
		if respErr, ok := salesforce.AsResponseError(err); ok {
			metrics.TokensMintedTotal.WithLabelValues("rejected").Inc()
			return "", upstreamAuthFromResponse(respErr, "failed to refresh access token")
		}

		metrics.TokensMintedTotal.WithLabelValues("error").Inc()
		return "", apierrors.NewUpstream("failed to refresh access token").WithCause(err)
	}

	tokens, err := salesforce.ParseTokenResponse(raw)
	if err != nil {
		metrics.TokensMintedTotal.WithLabelValues("error").Inc()
		return "", apierrors.NewUpstream("failed to refresh access token").WithCause(err)
	}

	metrics.TokensMintedTotal.WithLabelValues("success").Inc()

	return tokens.AccessToken, nil
}

// ResolveIdentity asks the provider who owns accessToken. Any non-2xx
// answer is an upstream auth error.
func (s *TokenService) ResolveIdentity(ctx context.Context, accessToken string) (*Identity, error) {
	info, err := s.provider.UserInfo(ctx, accessToken)
	if err != nil {
		if respErr, ok := salesforce.AsResponseError(err); ok {
			return nil, upstreamAuthFromResponse(respErr, "failed to resolve identity")
		}
		if errors.Is(err, salesforce.ErrMalformedResponse) {
			return nil, apierrors.NewUpstreamAuth("failed to resolve identity").WithCause(err)
		}

		return nil, apierrors.NewUpstream("failed to resolve identity").WithCause(err)
	}

	return &Identity{
		UserID:      info.UserID,
		OrgID:       info.OrganizationID,
		Name:        info.Name,
		Email:       info.Email,
		InstanceURL: info.URLs.CustomDomain,
	}, nil
}

// AuthenticateRequest turns an Authorization header into an authenticated
// user. Once the user id is known, any failure logs the user out before
// the error is returned.
func (s *TokenService) AuthenticateRequest(ctx context.Context, authorization string) (*AuthenticatedUser, error) {
	ctx, span := tracing.Tracer.Start(ctx, "TokenService.AuthenticateRequest")
	defer span.End()

	accessToken, ok := bearerToken(authorization)
	if !ok {
		return nil, apierrors.NewAuthError(ErrMissingAuthorization.Error())
	}

	identity, err := s.ResolveIdentity(ctx, accessToken)
	if err != nil {
		span.SetStatus(codes.Error, "identity lookup failed")
		return nil, err
	}

	user, err := s.Session(ctx, identity.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "session failed")

		if logoutErr := s.logout(ctx, identity.UserID, "forced"); logoutErr != nil {
			log.Ctx(ctx).Warn().Err(logoutErr).
				Str("user_id", identity.UserID).
				Msg("cleanup after failed authentication did not complete")
		}

		return nil, err
	}

	return user, nil
}

// Session loads the stored credential of userID and mints an access token
// from it. A missing credential is a 401 not-found error.
func (s *TokenService) Session(ctx context.Context, userID string) (*AuthenticatedUser, error) {
	credential, found, err := s.stores.Credentials.Get(ctx, cache.Params{"userId": userID})
	if err != nil {
		if errors.Is(err, cache.ErrInvalidKey) {
			return nil, apierrors.NewAuthError("invalid user id").WithCause(err)
		}
		return nil, err
	}
	if !found {
		return nil, apierrors.NewNotFound("no stored credentials").WithStatus(http.StatusUnauthorized)
	}

	accessToken, err := s.MintAccessToken(ctx, credential.RefreshToken)
	if err != nil {
		return nil, err
	}

	return &AuthenticatedUser{
		UserID:      userID,
		OrgID:       credential.OrgID,
		InstanceURL: credential.InstanceURL,
		AccessToken: accessToken,
	}, nil
}

// Logout revokes the stored refresh token, deletes it and every web form
// of the user. Local cleanup always completes; a revoke failure other than
// "already invalid" is returned afterwards. Logging out a user with no
// credential succeeds.
func (s *TokenService) Logout(ctx context.Context, userID string) error {
	return s.logout(ctx, userID, "requested")
}

func (s *TokenService) logout(ctx context.Context, userID, reason string) error {
	ctx, span := tracing.Tracer.Start(ctx, "TokenService.Logout")
	defer span.End()

	params := cache.Params{"userId": userID}
	if _, err := s.stores.Credentials.Key(params); err != nil {
		return apierrors.NewBadRequest("invalid user id").WithCause(err)
	}

	var revokeErr error

	credential, found, err := s.stores.Credentials.Get(ctx, params)
	switch {
	case err != nil:
		// A corrupt credential cannot be revoked but must still be removed.
		log.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("failed to read stored credential")
	case found:
		revokeErr = s.revoke(ctx, credential.RefreshToken)
	}

	if err := s.stores.Credentials.Delete(ctx, params); err != nil {
		return err
	}

	if err := s.deleteUserForms(ctx, userID); err != nil {
		return err
	}

	metrics.LogoutsTotal.WithLabelValues(reason).Inc()
	audit.Log(ctx, audit.Event{
		Action:  audit.ActionCredentialRemoved,
		UserID:  userID,
		OrgID:   credential.OrgID,
		Details: reason,
	}, revokeErr)
	log.Ctx(ctx).Info().Str("user_id", userID).Str("reason", reason).Msg("user logged out")

	if revokeErr != nil {
		span.SetStatus(codes.Error, "revoke failed")
		return revokeErr
	}

	return nil
}

// revoke treats a 400 from the revoke endpoint as success: the token is
// already invalid.
func (s *TokenService) revoke(ctx context.Context, refreshToken string) error {
	err := s.provider.Revoke(ctx, refreshToken)
	if err == nil {
		return nil
	}

	if respErr, ok := salesforce.AsResponseError(err); ok && respErr.StatusCode == http.StatusBadRequest {
		return nil
	}

	return apierrors.NewUpstream("failed to revoke refresh token").WithCause(err)
}

func (s *TokenService) deleteUserForms(ctx context.Context, userID string) error {
	keys, err := s.stores.UserForms.ListKeys(ctx, cache.Params{"userId": userID})
	if err != nil {
		return err
	}

	for _, key := range keys {
		params, err := s.stores.UserForms.Template().Parse(key)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("skipping unparseable form index key")
			continue
		}

		if err := s.stores.WebForms.Delete(ctx, cache.Params{"formToken": params["formToken"]}); err != nil {
			return err
		}
		if err := s.stores.UserForms.DeleteKey(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}

	return token, true
}

func upstreamAuthFromResponse(respErr *salesforce.ResponseError, fallback string) *apierrors.APIError {
	message := fallback
	if oauthErr := apierrors.ParseOAuth2Error(respErr.Body); oauthErr != nil {
		message = oauthErr.Message()
	}

	apiErr := apierrors.NewUpstreamAuth(message).WithCause(respErr)
	apiErr.Details = errorDetails(respErr.Body)

	return apiErr
}
