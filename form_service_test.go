package sfapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterWebForm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	webhook, err := env.forms.RegisterWebForm(ctx, env.user(), "Lead")
	require.NoError(t, err)

	formToken, ok := strings.CutPrefix(webhook, "https://api.example.com/api/web/submit/")
	require.True(t, ok, webhook)
	_, err = uuid.Parse(formToken)
	require.NoError(t, err)

	form, found, err := env.stores.WebForms.Get(ctx, cache.Params{"formToken": formToken})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, WebFormToken{ObjectName: "Lead", UserID: "005user"}, form)

	forms, err := env.forms.ListWebForms(ctx, "005user")
	require.NoError(t, err)
	assert.Equal(t, []WebForm{{FormToken: formToken, ObjectName: "Lead", Webhook: webhook}}, forms)
}

func TestRegisterWebForm_UnknownObject(t *testing.T) {
	env := newTestEnv(t)
	env.fake.set("describe", http.StatusNotFound, `[{"errorCode":"NOT_FOUND"}]`)

	_, err := env.forms.RegisterWebForm(context.Background(), env.user(), "Nope__c")
	assert.True(t, apierrors.IsNotFound(err))

	forms, err := env.forms.ListWebForms(context.Background(), "005user")
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestSubmitWebForm(t *testing.T) {
	env := newTestEnv(t)
	env.seedCredential(t, "005user")
	registerForm(t, env, "005user", "form-1")

	result, err := env.forms.SubmitWebForm(context.Background(), "form-1", map[string]any{"LastName": "Lovelace", "Subscribe": "on"})
	require.NoError(t, err)

	assert.Equal(t, "00Qnew", result.ID)
	assert.Equal(t, "rt-005user", env.fake.lastRefreshUsed)
	assert.Equal(t, "Bearer fresh-at", env.fake.lastObjectAuth)
	assert.Equal(t, true, env.fake.lastCreate["Subscribe"])
}

func TestSubmitWebForm_UnknownToken(t *testing.T) {
	env := newTestEnv(t)

	for _, token := range []string{"missing", "web:x", ""} {
		_, err := env.forms.SubmitWebForm(context.Background(), token, map[string]any{})
		assert.True(t, apierrors.IsNotFound(err), token)
	}

	assert.Zero(t, env.fake.count("create"))
}

func TestSubmitWebForm_AfterLogout(t *testing.T) {
	env := newTestEnv(t)
	env.seedCredential(t, "005user")

	webhook, err := env.forms.RegisterWebForm(context.Background(), env.user(), "Lead")
	require.NoError(t, err)
	formToken := webhook[strings.LastIndex(webhook, "/")+1:]

	require.NoError(t, env.tokens.Logout(context.Background(), "005user"))

	_, err = env.forms.SubmitWebForm(context.Background(), formToken, map[string]any{"LastName": "x"})
	assert.True(t, apierrors.IsNotFound(err))

	forms, err := env.forms.ListWebForms(context.Background(), "005user")
	require.NoError(t, err)
	assert.Empty(t, forms)
}

func TestForwardToFormHandler(t *testing.T) {
	var got map[string]string
	handler := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		require.NoError(t, r.ParseForm())

		got = map[string]string{}
		for key := range r.PostForm {
			got[key] = r.PostForm.Get(key)
		}
		_, _ = w.Write([]byte(`<html>thanks</html>`))
	}))
	defer handler.Close()

	env := newTestEnv(t)
	forms := NewFormService(env.tokens, env.objects, env.stores, FormServiceConfig{
		PublicURL:    "https://api.example.com",
		HandlerHosts: []string{"127.0.0.1"},
		HTTPClient:   handler.Client(),
	})

	text, err := forms.ForwardToFormHandler(context.Background(), handler.URL+"/l/123/form", map[string]any{
		"optin": "on",
		"flag":  "false",
		"count": "007",
		"name":  "Ada",
	})
	require.NoError(t, err)

	assert.Equal(t, `<html>thanks</html>`, text)
	assert.Equal(t, map[string]string{"optin": "1", "flag": "0", "count": "7", "name": "Ada"}, got)
}

func TestForwardToFormHandler_RejectsHandler(t *testing.T) {
	env := newTestEnv(t)
	forms := NewFormService(env.tokens, env.objects, env.stores, FormServiceConfig{
		HandlerHosts: []string{"go.pardot.com"},
	})

	for _, handler := range []string{
		"",
		"http://go.pardot.com/l/1",
		"https://evil.example.com/l/1",
		"https://go.pardot.com.evil.example.com/l/1",
		"::not a url",
	} {
		_, err := forms.ForwardToFormHandler(context.Background(), handler, map[string]any{})
		assert.True(t, apierrors.IsBadRequest(err), handler)
	}
}
