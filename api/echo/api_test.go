package echo

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOrg answers the Salesforce endpoints with canned responses keyed by
// route name.
type fakeOrg struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string][2]string
}

func (f *fakeOrg) set(route, status, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[route] = [2]string{status, body}
}

func (f *fakeOrg) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	route := "unknown"
	switch {
	case r.URL.Path == "/services/oauth2/token":
		_ = r.ParseForm()
		route = r.PostForm.Get("grant_type")
	case r.URL.Path == "/services/oauth2/userinfo":
		route = "userinfo"
	case r.URL.Path == "/services/oauth2/revoke":
		route = "revoke"
	case strings.HasSuffix(r.URL.Path, "/describe"):
		route = "describe"
	case strings.Contains(r.URL.Path, "/sobjects/") && r.Method == http.MethodPost:
		route = "create"
	case strings.Contains(r.URL.Path, "/sobjects/") && r.Method == http.MethodPatch:
		route = "update"
	}

	f.mu.Lock()
	resp, ok := f.responses[route]
	f.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	status := http.StatusOK
	switch resp[0] {
	case "201":
		status = http.StatusCreated
	case "204":
		status = http.StatusNoContent
	case "400":
		status = http.StatusBadRequest
	case "403":
		status = http.StatusForbidden
	}

	w.WriteHeader(status)
	_, _ = io.WriteString(w, resp[1])
}

func newTestServer(t *testing.T) (*echo.Echo, *fakeOrg, *sfapi.Stores) {
	t.Helper()

	fake := &fakeOrg{responses: map[string][2]string{}}
	fake.server = httptest.NewServer(fake)
	t.Cleanup(fake.server.Close)

	fake.set("authorization_code", "200", `{"access_token":"at-1","refresh_token":"rt-1","instance_url":"`+fake.server.URL+`","id":"https://login.salesforce.com/id/00Dorg/005user"}`)
	fake.set("refresh_token", "200", `{"access_token":"fresh-at","instance_url":"`+fake.server.URL+`"}`)
	fake.set("userinfo", "200", `{"sub":"https://login.salesforce.com/id/00Dorg/005user","user_id":"005user","organization_id":"00Dorg"}`)
	fake.set("revoke", "200", ``)
	fake.set("describe", "200", `{"name":"Lead"}`)
	fake.set("create", "201", `{"id":"00Qnew","success":true,"errors":[]}`)
	fake.set("update", "204", ``)

	auth, err := salesforce.NewAuthClient(salesforce.Config{
		ClientID:          "client-id",
		ClientSecret:      "client-secret",
		RedirectURL:       "https://api.example.com/auth/redirect",
		AuthorizeEndpoint: fake.server.URL + "/services/oauth2/authorize",
		TokenEndpoint:     fake.server.URL + "/services/oauth2/token",
		UserInfoEndpoint:  fake.server.URL + "/services/oauth2/userinfo",
		RevokeEndpoint:    fake.server.URL + "/services/oauth2/revoke",
	}, fake.server.Client())
	require.NoError(t, err)

	backend := cache.NewMemoryBackend()
	t.Cleanup(func() { _ = backend.Close() })

	stores := sfapi.NewStores(backend, backend)
	tokens := sfapi.NewTokenService(auth, stores)
	objects := sfapi.NewObjectService(salesforce.NewObjectClient(fake.server.Client(), ""))

	e := echo.New()
	e.HTTPErrorHandler = HTTPErrorHandler
	e.Use(CORS(CORSConfig{PluginID: "salesforce", ParentDomain: "framercanvas.com"}))
	NewAPI(Services{
		Handoffs: sfapi.NewHandoffService(auth, tokens, stores),
		Tokens:   tokens,
		Objects:  objects,
		Forms: sfapi.NewFormService(tokens, objects, stores, sfapi.FormServiceConfig{
			PublicURL: "https://api.example.com",
		}),
	}, "").RegisterRoutes(e)

	return e, fake, stores
}

func serve(e *echo.Echo, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func seedUser(t *testing.T, stores *sfapi.Stores, instanceURL string) {
	t.Helper()

	require.NoError(t, stores.Credentials.Put(t.Context(), cache.Params{"userId": "005user"}, sfapi.StoredCredential{
		RefreshToken: "rt-1",
		InstanceURL:  instanceURL,
		OrgID:        "00Dorg",
	}, cache.NoTTL))
}

var bearer = map[string]string{echo.HeaderAuthorization: "Bearer client-at"}

func TestRootRedirect(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := serve(e, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://framer.com", rec.Header().Get(echo.HeaderLocation))
}

func TestUnknownRoute(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := serve(e, http.MethodGet, "/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Page not found", rec.Body.String())
}

func TestHandoffRoutes(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := serve(e, http.MethodPost, "/auth/authorize", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var authorized struct {
		URL     string `json:"url"`
		ReadKey string `json:"readKey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authorized))
	u, err := url.Parse(authorized.URL)
	require.NoError(t, err)
	writeKey := u.Query().Get("state")

	rec = serve(e, http.MethodPost, "/auth/poll?readKey="+authorized.ReadKey, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"no tokens","code":"not_found"}}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/auth/redirect?code=the-code&state="+writeKey, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), echo.MIMETextHTML)
	assert.Contains(t, rec.Body.String(), "Authentication successful!")

	rec = serve(e, http.MethodPost, "/auth/poll?readKey="+authorized.ReadKey, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"refresh_token":"rt-1"`)

	rec = serve(e, http.MethodPost, "/auth/poll?readKey="+authorized.ReadKey, "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRedirect_Errors(t *testing.T) {
	e, fake, _ := newTestServer(t)

	rec := serve(e, http.MethodGet, "/auth/redirect?state=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"missing authorization code","code":"bad_request"}}`, rec.Body.String())

	rec = serve(e, http.MethodGet, "/auth/redirect?code=c&state=unknown", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"invalid write key","code":"not_found"}}`, rec.Body.String())

	fake.set("authorization_code", "400", `{"error":"invalid_grant"}`)
	rec = serve(e, http.MethodPost, "/auth/authorize", "", nil)
	var authorized struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &authorized))
	u, err := url.Parse(authorized.URL)
	require.NoError(t, err)

	rec = serve(e, http.MethodGet, "/auth/redirect?code=bad&state="+u.Query().Get("state"), "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Bad Request", rec.Body.String())
}

func TestRefreshRoute(t *testing.T) {
	e, _, _ := newTestServer(t)

	for _, param := range []string{"refresh_token", "code"} {
		rec := serve(e, http.MethodPost, "/auth/refresh?"+param+"=rt-1", "", nil)
		require.Equal(t, http.StatusOK, rec.Code, param)
		assert.Contains(t, rec.Body.String(), `"access_token":"fresh-at"`)
	}

	rec := serve(e, http.MethodPost, "/auth/refresh", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpsertObjectRoute(t *testing.T) {
	e, fake, stores := newTestServer(t)

	rec := serve(e, http.MethodPost, "/api/objects/Lead", `{"LastName":"Lovelace"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"missing or invalid Authorization header","code":"unauthorized"}}`, rec.Body.String())

	seedUser(t, stores, fake.server.URL)

	rec = serve(e, http.MethodPost, "/api/objects/Lead", `{"LastName":"Lovelace"}`, bearer)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"00Qnew","success":true,"updated":false,"errors":[]}`, rec.Body.String())

	fake.set("create", "400", `[{"errorCode":"DUPLICATES_DETECTED","message":"dup","duplicateResult":{"matchResults":[{"matchRecords":[{"record":{"Id":"00Qold"}}]}]}}]`)
	rec = serve(e, http.MethodPost, "/api/objects/Lead", `{"LastName":"Lovelace"}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"id":"00Qold","success":true,"updated":true,"errors":[]}`, rec.Body.String())

	fake.set("create", "400", `[{"errorCode":"REQUIRED_FIELD_MISSING","message":"Required fields are missing"}]`)
	rec = serve(e, http.MethodPost, "/api/objects/Lead", `{}`, bearer)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"failed to create Lead","code":"reconcile","errors":[{"errorCode":"REQUIRED_FIELD_MISSING","message":"Required fields are missing"}]}}`, rec.Body.String())
}

func TestAuthenticatedRequest_RefreshRejectedLogsOut(t *testing.T) {
	e, fake, stores := newTestServer(t)
	seedUser(t, stores, fake.server.URL)
	fake.set("refresh_token", "400", `{"error":"invalid_grant","error_description":"expired access/refresh token"}`)

	rec := serve(e, http.MethodPost, "/api/objects/Lead", `{}`, bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "expired access/refresh token")

	_, found, err := stores.Credentials.Get(t.Context(), cache.Params{"userId": "005user"})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestWebFormRoutes(t *testing.T) {
	e, fake, stores := newTestServer(t)
	seedUser(t, stores, fake.server.URL)

	rec := serve(e, http.MethodPost, "/api/web/create", `{"objectName":"Lead"}`, bearer)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var created struct {
		Webhook string `json:"webhook"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	path := strings.TrimPrefix(created.Webhook, "https://api.example.com")
	assert.True(t, strings.HasPrefix(path, "/api/web/submit/"))

	rec = serve(e, http.MethodGet, "/api/web/forms", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.Webhook)

	rec = serve(e, http.MethodPost, path, `{"LastName":"Lovelace","Subscribed":"on"}`, nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"id":"00Qnew"`)

	rec = serve(e, http.MethodPost, "/auth/logout", "", bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())

	rec = serve(e, http.MethodPost, path, `{"LastName":"Lovelace"}`, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(e, http.MethodPost, "/api/web/create", `{}`, bearer)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "credential is gone after logout")
}

func TestForwardRoute_RejectsUnknownHost(t *testing.T) {
	e, _, _ := newTestServer(t)

	rec := serve(e, http.MethodPost, "/api/account-engagement/forward?handler=https://evil.example.com/x", `{"a":"b"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPErrorHandler_UnknownError(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	HTTPErrorHandler(io.ErrUnexpectedEOF, c)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"message":"Internal server error"}}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	cfg := CORSConfig{
		PluginID:       "salesforce",
		ParentDomain:   "framercanvas.com",
		AllowedOrigins: []string{"https://salesforce-plugin.pages.dev"},
	}

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://salesforce.framercanvas.com", true},
		{"https://salesforce-abc123.framercanvas.com", true},
		{"http://localhost:5173", true},
		{"https://salesforce-plugin.pages.dev", true},
		{"https://other.framercanvas.com", false},
		{"https://salesforce.a.framercanvas.com", false},
		{"https://salesforce.framercanvas.com.evil.com", false},
		{"https://evil.com", false},
		{"not a url", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.AllowOrigin(tt.origin), tt.origin)
	}
	assert.Equal(t, "https://salesforce.framercanvas.com", cfg.DefaultOrigin())

	e, _, _ := newTestServer(t)
	rec := serve(e, http.MethodOptions, "/auth/authorize", "", map[string]string{
		echo.HeaderOrigin:                     "https://salesforce-abc.framercanvas.com",
		echo.HeaderAccessControlRequestMethod: http.MethodPost,
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://salesforce-abc.framercanvas.com", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		health     func(ctx context.Context) error
		wantStatus int
		wantBody   string
	}{
		{name: "no check", wantStatus: http.StatusOK, wantBody: `{"status":"ok"}`},
		{
			name:       "stores reachable",
			health:     func(context.Context) error { return nil },
			wantStatus: http.StatusOK,
			wantBody:   `{"status":"ok"}`,
		},
		{
			name:       "store down",
			health:     func(context.Context) error { return errors.New("connection refused") },
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   `{"status":"unavailable"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			NewAPI(Services{Health: tt.health}, "").RegisterRoutes(e)

			rec := serve(e, http.MethodGet, "/healthz", "", nil)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
