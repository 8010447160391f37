package sfapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/audit"
	"github.com/Sakib25800/framer-salesforce-api/internal/metrics"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
)

// AuthorizeResult is returned to the client that starts a hand-off. URL is
// opened in a second browsing context; ReadKey is what the client polls
// with.
type AuthorizeResult struct {
	URL     string `json:"url"`
	ReadKey string `json:"readKey"`
}

// HandoffService runs the authorization-code + PKCE exchange on behalf of a
// client that cannot receive the redirect itself. The state parameter is a
// write key known only to the provider round trip; the client holds a
// separate read key.
type HandoffService struct {
	provider IdentityProvider
	tokens   *TokenService
	stores   *Stores
}

// NewHandoffService creates a new HandoffService instance
func NewHandoffService(provider IdentityProvider, tokens *TokenService, stores *Stores) *HandoffService {
	return &HandoffService{
		provider: provider,
		tokens:   tokens,
		stores:   stores,
	}
}

// Authorize starts a hand-off: it stores the verifier under a fresh write
// key and returns the authorization URL and read key.
func (s *HandoffService) Authorize(ctx context.Context) (*AuthorizeResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "HandoffService.Authorize")
	defer span.End()

	readKey, err := NewRandomID()
	if err != nil {
		return nil, err
	}

	writeKey, err := NewRandomID()
	if err != nil {
		return nil, err
	}
	for writeKey == readKey {
		if writeKey, err = NewRandomID(); err != nil {
			return nil, err
		}
	}

	pkce := NewPKCEPair()

	pending := PendingHandoff{ReadKey: readKey, CodeVerifier: pkce.Verifier}
	if err := s.stores.PendingHandoffs.Put(ctx, cache.Params{"writeKey": writeKey}, pending, s.stores.HandoffTTL); err != nil {
		metrics.HandoffsTotal.WithLabelValues("authorize", "error").Inc()
		return nil, err
	}

	metrics.HandoffsTotal.WithLabelValues("authorize", "success").Inc()
	log.Ctx(ctx).Debug().Str("write_key_hash", cache.ShortHash(writeKey)).Msg("hand-off started")

	return &AuthorizeResult{
		URL:     s.provider.AuthCodeURL(writeKey, pkce.Verifier),
		ReadKey: readKey,
	}, nil
}

// Redirect completes the provider round trip. The pending hand-off is read,
// never deleted, and retires with its TTL. A non-2xx exchange is returned as
// *salesforce.ResponseError unchanged.
func (s *HandoffService) Redirect(ctx context.Context, code, writeKey string) error {
	ctx, span := tracing.Tracer.Start(ctx, "HandoffService.Redirect")
	defer span.End()

	if code == "" {
		return apierrors.NewBadRequest("missing authorization code")
	}
	if writeKey == "" {
		return apierrors.NewBadRequest("missing state")
	}

	logger := log.Ctx(ctx).With().Str("write_key_hash", cache.ShortHash(writeKey)).Logger()

	pending, found, err := s.stores.PendingHandoffs.Get(ctx, cache.Params{"writeKey": writeKey})
	if err != nil && !errors.Is(err, cache.ErrInvalidKey) {
		return err
	}
	if !found {
		metrics.HandoffsTotal.WithLabelValues("redirect", "unknown_key").Inc()
		logger.Info().Msg("redirect with unknown write key")
		return apierrors.NewNotFound("invalid write key")
	}

	raw, err := s.provider.ExchangeCode(ctx, code, pending.CodeVerifier)
	if err != nil {
		span.SetStatus(codes.Error, "code exchange failed")
		metrics.HandoffsTotal.WithLabelValues("redirect", "rejected").Inc()
		if _, ok := salesforce.AsResponseError(err); ok {
			return err
		}
		return apierrors.NewUpstream("failed to exchange authorization code").WithCause(err)
	}

	tokens, err := salesforce.ParseTokenResponse(raw)
	if err != nil {
		return apierrors.NewUpstream("failed to exchange authorization code").WithCause(err)
	}
	if tokens.RefreshToken == "" {
		return apierrors.NewUpstream("provider did not issue a refresh token")
	}

	identity, err := s.tokens.ResolveIdentity(ctx, tokens.AccessToken)
	if err != nil {
		return err
	}

	credential := StoredCredential{
		RefreshToken: tokens.RefreshToken,
		InstanceURL:  tokens.InstanceURL,
		OrgID:        tokens.OrgID(),
	}
	if credential.OrgID == "" {
		credential.OrgID = identity.OrgID
	}
	if credential.InstanceURL == "" {
		credential.InstanceURL = identity.InstanceURL
	}

	if err := s.stores.Credentials.Put(ctx, cache.Params{"userId": identity.UserID}, credential, cache.NoTTL); err != nil {
		return err
	}

	if err := s.stores.PendingResults.Put(ctx, cache.Params{"readKey": pending.ReadKey}, raw, s.stores.ResultTTL); err != nil {
		return err
	}

	metrics.HandoffsTotal.WithLabelValues("redirect", "success").Inc()
	audit.Log(ctx, audit.Event{Action: audit.ActionCredentialStored, UserID: identity.UserID, OrgID: credential.OrgID}, nil)
	logger.Info().Str("user_id", identity.UserID).Msg("hand-off completed")

	return nil
}

// Poll returns the token response stored for readKey exactly once.
func (s *HandoffService) Poll(ctx context.Context, readKey string) (json.RawMessage, error) {
	if readKey == "" {
		return nil, apierrors.NewBadRequest("missing read key")
	}

	tokens, found, err := s.stores.PendingResults.Take(ctx, cache.Params{"readKey": readKey})
	if err != nil && !errors.Is(err, cache.ErrInvalidKey) {
		return nil, err
	}
	if !found {
		metrics.HandoffsTotal.WithLabelValues("poll", "pending").Inc()
		return nil, apierrors.NewNotFound("no tokens")
	}

	metrics.HandoffsTotal.WithLabelValues("poll", "success").Inc()

	return tokens, nil
}

// Refresh passes a refresh_token grant through to the provider and returns
// its response unchanged.
func (s *HandoffService) Refresh(ctx context.Context, refreshToken string) (json.RawMessage, error) {
	if refreshToken == "" {
		return nil, apierrors.NewBadRequest("missing refresh token")
	}

	raw, err := s.provider.Refresh(ctx, refreshToken)
	if err != nil {
		if _, ok := salesforce.AsResponseError(err); ok {
			return nil, err
		}
		return nil, apierrors.NewUpstream("failed to refresh access token").WithCause(err)
	}

	return raw, nil
}
