package sfapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/stretchr/testify/require"
)

type fakeResponse struct {
	status int
	body   string
}

// fakeSalesforce serves the identity and sObject endpoints the services
// call. Responses can be replaced per test; every request is counted.
type fakeSalesforce struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     map[string]int

	lastVerifier    string
	lastRevoked     string
	lastObjectAuth  string
	lastCreate      map[string]any
	lastUpdateID    string
	lastUpdateBody  map[string]any
	lastRefreshUsed string
}

func newFakeSalesforce(t *testing.T) *fakeSalesforce {
	t.Helper()

	f := &fakeSalesforce{
		responses: map[string]fakeResponse{},
		calls:     map[string]int{},
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serveHTTP))
	t.Cleanup(f.server.Close)

	f.set("exchange", http.StatusOK, `{
		"access_token": "at-1",
		"refresh_token": "rt-1",
		"instance_url": "`+f.server.URL+`",
		"id": "https://login.salesforce.com/id/00Dorg/005user",
		"token_type": "Bearer",
		"issued_at": "1700000000000",
		"signature": "sig",
		"scope": "api refresh_token"
	}`)
	f.set("refresh", http.StatusOK, `{"access_token":"fresh-at","instance_url":"`+f.server.URL+`","token_type":"Bearer"}`)
	f.set("userinfo", http.StatusOK, `{"sub":"https://login.salesforce.com/id/00Dorg/005user","user_id":"005user","organization_id":"00Dorg","name":"Ada Lovelace"}`)
	f.set("revoke", http.StatusOK, ``)
	f.set("create", http.StatusCreated, `{"id":"00Qnew","success":true,"errors":[]}`)
	f.set("update", http.StatusNoContent, ``)
	f.set("describe", http.StatusOK, `{"name":"Lead"}`)

	return f
}

func (f *fakeSalesforce) set(name string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.responses[name] = fakeResponse{status: status, body: body}
}

func (f *fakeSalesforce) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[name]
}

func (f *fakeSalesforce) serveHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := f.route(r)
	f.calls[name]++

	resp, ok := f.responses[name]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	if resp.body != "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (f *fakeSalesforce) route(r *http.Request) string {
	switch r.URL.Path {
	case "/services/oauth2/token":
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") == "authorization_code" {
			f.lastVerifier = r.PostForm.Get("code_verifier")
			return "exchange"
		}
		f.lastRefreshUsed = r.PostForm.Get("refresh_token")
		return "refresh"
	case "/services/oauth2/userinfo":
		return "userinfo"
	case "/services/oauth2/revoke":
		_ = r.ParseForm()
		f.lastRevoked = r.PostForm.Get("token")
		return "revoke"
	}

	rest, ok := strings.CutPrefix(r.URL.Path, "/services/data/"+salesforce.DefaultAPIVersion+"/sobjects/")
	if !ok {
		return "unknown"
	}

	f.lastObjectAuth = r.Header.Get("Authorization")
	parts := strings.Split(rest, "/")

	switch {
	case r.Method == http.MethodGet && len(parts) == 2 && parts[1] == "describe":
		return "describe"
	case r.Method == http.MethodPost:
		f.lastCreate = decodeBody(r)
		return "create"
	case r.Method == http.MethodPatch && len(parts) == 2:
		f.lastUpdateID = parts[1]
		f.lastUpdateBody = decodeBody(r)
		return "update"
	}

	return "unknown"
}

func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	return body
}

type testEnv struct {
	fake     *fakeSalesforce
	stores   *Stores
	tokens   *TokenService
	handoffs *HandoffService
	objects  *ObjectService
	forms    *FormService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fake := newFakeSalesforce(t)

	auth, err := salesforce.NewAuthClient(salesforce.Config{
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		RedirectURL:       "https://api.example.com/auth/redirect",
		AuthorizeEndpoint: fake.server.URL + "/services/oauth2/authorize",
		TokenEndpoint:     fake.server.URL + "/services/oauth2/token",
		UserInfoEndpoint:  fake.server.URL + "/services/oauth2/userinfo",
		RevokeEndpoint:    fake.server.URL + "/services/oauth2/revoke",
		Scopes:            []string{"api", "refresh_token"},
	}, fake.server.Client())
	require.NoError(t, err)

	ephemeral := cache.NewMemoryBackend()
	durable := cache.NewMemoryBackend()
	t.Cleanup(func() {
		_ = ephemeral.Close()
		_ = durable.Close()
	})

	stores := NewStores(ephemeral, durable)
	tokens := NewTokenService(auth, stores)
	objects := NewObjectService(salesforce.NewObjectClient(fake.server.Client(), ""))

	return &testEnv{
		fake:     fake,
		stores:   stores,
		tokens:   tokens,
		handoffs: NewHandoffService(auth, tokens, stores),
		objects:  objects,
		forms: NewFormService(tokens, objects, stores, FormServiceConfig{
			PublicURL: "https://api.example.com/",
		}),
	}
}

// seedCredential stores a refresh token for userID pointing at the fake org.
func (e *testEnv) seedCredential(t *testing.T, userID string) {
	t.Helper()

	err := e.stores.Credentials.Put(t.Context(), cache.Params{"userId": userID}, StoredCredential{
		RefreshToken: "rt-" + userID,
		InstanceURL:  e.fake.server.URL,
		OrgID:        "00Dorg",
	}, cache.NoTTL)
	require.NoError(t, err)
}

func (e *testEnv) user() *AuthenticatedUser {
	return &AuthenticatedUser{
		UserID:      "005user",
		OrgID:       "00Dorg",
		InstanceURL: e.fake.server.URL,
		AccessToken: "fresh-at",
	}
}
