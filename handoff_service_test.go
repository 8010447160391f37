package sfapi

import (
	"context"
	"encoding/hex"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authorize(t *testing.T, env *testEnv) (readKey, writeKey, challenge string) {
	t.Helper()

	result, err := env.handoffs.Authorize(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(result.URL)
	require.NoError(t, err)

	return result.ReadKey, u.Query().Get("state"), u.Query().Get("code_challenge")
}

func TestHandoff_Authorize(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.handoffs.Authorize(context.Background())
	require.NoError(t, err)

	u, err := url.Parse(result.URL)
	require.NoError(t, err)
	q := u.Query()

	writeKey := q.Get("state")
	assert.NotEqual(t, result.ReadKey, writeKey)
	for _, key := range []string{result.ReadKey, writeKey} {
		decoded, err := hex.DecodeString(key)
		require.NoError(t, err)
		assert.Len(t, decoded, 16)
	}

	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "https://api.example.com/auth/redirect", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Equal(t, "api refresh_token", q.Get("scope"))
	assert.Equal(t, "consent", q.Get("prompt"))

	pending, found, err := env.stores.PendingHandoffs.Get(context.Background(), cache.Params{"writeKey": writeKey})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, result.ReadKey, pending.ReadKey)
	assert.True(t, ValidatePKCEChallenge(q.Get("code_challenge"), pending.CodeVerifier))
}

func TestHandoff_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	readKey, writeKey, challenge := authorize(t, env)

	_, err := env.handoffs.Poll(ctx, readKey)
	assert.True(t, apierrors.IsNotFound(err), "poll before redirect must miss")

	require.NoError(t, env.handoffs.Redirect(ctx, "the-code", writeKey))
	assert.True(t, ValidatePKCEChallenge(challenge, env.fake.lastVerifier))

	credential, found, err := env.stores.Credentials.Get(ctx, cache.Params{"userId": "005user"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StoredCredential{
		RefreshToken: "rt-1",
		InstanceURL:  env.fake.server.URL,
		OrgID:        "00Dorg",
	}, credential)

	tokens, err := env.handoffs.Poll(ctx, readKey)
	require.NoError(t, err)
	parsed, err := salesforce.ParseTokenResponse(tokens)
	require.NoError(t, err)
	assert.Equal(t, "at-1", parsed.AccessToken)
	assert.Equal(t, "rt-1", parsed.RefreshToken)

	_, err = env.handoffs.Poll(ctx, readKey)
	assert.True(t, apierrors.IsNotFound(err), "poll result is delivered once")
}

func TestHandoff_RedirectRepeatWithinTTL(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, writeKey, _ := authorize(t, env)
	require.NoError(t, env.handoffs.Redirect(ctx, "the-code", writeKey))

	// A second redirect inside the TTL reaches the provider again; the
	// provider decides whether the code is still good.
	require.NoError(t, env.handoffs.Redirect(ctx, "the-code", writeKey))
	assert.Equal(t, 2, env.fake.count("exchange"))

	_, found, err := env.stores.PendingHandoffs.Get(ctx, cache.Params{"writeKey": writeKey})
	require.NoError(t, err)
	assert.True(t, found, "pending hand-off is left until it expires")
}

func TestHandoff_RedirectRetryAfterExchangeFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	readKey, writeKey, _ := authorize(t, env)

	env.fake.set("exchange", http.StatusServiceUnavailable, `{"error":"unavailable"}`)
	err := env.handoffs.Redirect(ctx, "the-code", writeKey)
	respErr, ok := salesforce.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusServiceUnavailable, respErr.StatusCode)

	_, found, err := env.stores.PendingHandoffs.Get(ctx, cache.Params{"writeKey": writeKey})
	require.NoError(t, err)
	require.True(t, found)

	env.fake.set("exchange", http.StatusOK, `{"access_token":"at-1","refresh_token":"rt-1","instance_url":"`+env.fake.server.URL+`","id":"https://login.salesforce.com/id/00Dorg/005user"}`)
	require.NoError(t, env.handoffs.Redirect(ctx, "the-code", writeKey))
	assert.Equal(t, 2, env.fake.count("exchange"))

	tokens, err := env.handoffs.Poll(ctx, readKey)
	require.NoError(t, err)
	assert.Contains(t, string(tokens), `"refresh_token":"rt-1"`)
}

func TestHandoff_RedirectUnknownKey(t *testing.T) {
	env := newTestEnv(t)

	for _, writeKey := range []string{"0123456789abcdef0123456789abcdef", "tokens:abc", "a*", "{writeKey}"} {
		err := env.handoffs.Redirect(context.Background(), "the-code", writeKey)
		require.Error(t, err, writeKey)

		apiErr, ok := apierrors.As(err)
		require.True(t, ok, writeKey)
		assert.Equal(t, apierrors.KindNotFound, apiErr.Kind)
		assert.Equal(t, "invalid write key", apiErr.Message)
	}

	assert.Zero(t, env.fake.count("exchange"))
}

func TestHandoff_RedirectMissingParams(t *testing.T) {
	env := newTestEnv(t)

	err := env.handoffs.Redirect(context.Background(), "", "state")
	assert.True(t, apierrors.IsBadRequest(err))

	err = env.handoffs.Redirect(context.Background(), "code", "")
	assert.True(t, apierrors.IsBadRequest(err))
}

func TestHandoff_RedirectExpired(t *testing.T) {
	env := newTestEnv(t)
	env.stores.WithTTLs(50*time.Millisecond, 0)

	_, writeKey, _ := authorize(t, env)
	time.Sleep(150 * time.Millisecond)

	err := env.handoffs.Redirect(context.Background(), "the-code", writeKey)
	assert.True(t, apierrors.IsNotFound(err))
	assert.Zero(t, env.fake.count("exchange"))
}

func TestHandoff_RedirectExchangeRejected(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set("exchange", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"invalid authorization code"}`)
	ctx := context.Background()

	readKey, writeKey, _ := authorize(t, env)

	err := env.handoffs.Redirect(ctx, "bad-code", writeKey)
	respErr, ok := salesforce.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	assert.Equal(t, "Bad Request", respErr.StatusText())

	_, found, err := env.stores.Credentials.Get(ctx, cache.Params{"userId": "005user"})
	require.NoError(t, err)
	assert.False(t, found)

	_, err = env.handoffs.Poll(ctx, readKey)
	assert.True(t, apierrors.IsNotFound(err))
	assert.Zero(t, env.fake.count("userinfo"))
}

func TestHandoff_RedirectOverwritesCredential(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedCredential(t, "005user")

	_, writeKey, _ := authorize(t, env)
	require.NoError(t, env.handoffs.Redirect(ctx, "the-code", writeKey))

	credential, found, err := env.stores.Credentials.Get(ctx, cache.Params{"userId": "005user"})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rt-1", credential.RefreshToken)
}

func TestHandoff_PollMissingReadKey(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.handoffs.Poll(context.Background(), "")
	assert.True(t, apierrors.IsBadRequest(err))

	_, err = env.handoffs.Poll(context.Background(), "a:b")
	assert.True(t, apierrors.IsNotFound(err))
}

func TestHandoff_Refresh(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	raw, err := env.handoffs.Refresh(ctx, "rt-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"fresh-at","instance_url":"`+env.fake.server.URL+`","token_type":"Bearer"}`, string(raw))
	assert.Equal(t, "rt-1", env.fake.lastRefreshUsed)

	_, err = env.handoffs.Refresh(ctx, "")
	assert.True(t, apierrors.IsBadRequest(err))

	env.fake.set("refresh", http.StatusBadRequest, `{"error":"invalid_grant","error_description":"expired access/refresh token"}`)
	_, err = env.handoffs.Refresh(ctx, "rt-1")
	respErr, ok := salesforce.AsResponseError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, respErr.StatusCode)
	assert.Contains(t, string(respErr.Body), "expired access/refresh token")
}
