//nolint:varnamelen
package echo

import (
	"context"
	"net/http"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	"github.com/Sakib25800/framer-salesforce-api/api"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/middleware"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const authSuccessMessage = "Authentication successful! You can close this window and return to Framer."

// Services are the operations the HTTP surface exposes.
type Services struct {
	Handoffs *sfapi.HandoffService
	Tokens   *sfapi.TokenService
	Objects  *sfapi.ObjectService
	Forms    *sfapi.FormService
	// Health reports whether the store backends are usable. Nil means
	// always healthy.
	Health func(ctx context.Context) error
}

// API holds the HTTP handlers.
type API struct {
	handoffs        *sfapi.HandoffService
	tokens          *sfapi.TokenService
	objects         *sfapi.ObjectService
	forms           *sfapi.FormService
	health          func(ctx context.Context) error
	rootRedirectURL string
}

// NewAPI initializes the API.
func NewAPI(services Services, rootRedirectURL string) *API {
	if rootRedirectURL == "" {
		rootRedirectURL = "https://framer.com"
	}

	return &API{
		handoffs:        services.Handoffs,
		tokens:          services.Tokens,
		objects:         services.Objects,
		forms:           services.Forms,
		health:          services.Health,
		rootRedirectURL: rootRedirectURL,
	}
}

// RegisterRoutes registers every route on e.
func (a *API) RegisterRoutes(e *echo.Echo) {
	e.GET("/", a.RootHandler)
	e.GET("/healthz", a.HealthHandler)

	auth := e.Group("/auth")
	auth.POST("/authorize", a.AuthorizeHandler)
	auth.GET("/redirect", a.RedirectHandler)
	auth.POST("/poll", a.PollHandler)
	auth.POST("/refresh", a.RefreshHandler)
	auth.POST("/logout", a.LogoutHandler, middleware.RequireAuth(a.tokens))

	apiGroup := e.Group("/api")
	apiGroup.POST("/web/create", a.CreateWebFormHandler, middleware.RequireAuth(a.tokens))
	apiGroup.GET("/web/forms", a.ListWebFormsHandler, middleware.RequireAuth(a.tokens))
	apiGroup.POST("/web/submit/:formToken", a.SubmitWebFormHandler)
	apiGroup.POST("/objects/:objectName", a.UpsertObjectHandler, middleware.RequireAuth(a.tokens))
	apiGroup.POST("/account-engagement/forward", a.ForwardHandler)
}

// RootHandler sends visitors of the bare API host to the product site.
func (a *API) RootHandler(c echo.Context) error {
	return c.Redirect(http.StatusFound, a.rootRedirectURL)
}

// HealthHandler reports whether the server and its stores are usable.
func (a *API) HealthHandler(c echo.Context) error {
	if a.health != nil {
		if err := a.health(c.Request().Context()); err != nil {
			log.Ctx(c.Request().Context()).Warn().Err(err).Msg("Health check failed")
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

// AuthorizeHandler starts a hand-off and returns the authorization URL and
// the read key to poll with.
func (a *API) AuthorizeHandler(c echo.Context) error {
	result, err := a.handoffs.Authorize(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// RedirectHandler is the OAuth redirect URI. It completes the hand-off and
// shows a page telling the user to return to the plugin.
func (a *API) RedirectHandler(c echo.Context) error {
	err := a.handoffs.Redirect(c.Request().Context(), c.QueryParam("code"), c.QueryParam("state"))
	if err != nil {
		return err
	}

	page, err := renderConfirmation(authSuccessMessage)
	if err != nil {
		return err
	}

	return c.HTML(http.StatusOK, page)
}

// PollHandler returns the token response of a completed hand-off once.
func (a *API) PollHandler(c echo.Context) error {
	tokens, err := a.handoffs.Poll(c.Request().Context(), c.QueryParam("readKey"))
	if err != nil {
		return err
	}

	return c.JSONBlob(http.StatusOK, tokens)
}

// RefreshHandler passes a refresh_token grant through. The token may be
// given as refresh_token or, for older plugin builds, as code.
func (a *API) RefreshHandler(c echo.Context) error {
	refreshToken := c.QueryParam("refresh_token")
	if refreshToken == "" {
		refreshToken = c.QueryParam("code")
	}

	tokens, err := a.handoffs.Refresh(c.Request().Context(), refreshToken)
	if err != nil {
		return err
	}

	return c.JSONBlob(http.StatusOK, tokens)
}

// LogoutHandler revokes and deletes the caller's stored credential.
func (a *API) LogoutHandler(c echo.Context) error {
	user, err := authenticatedUser(c)
	if err != nil {
		return err
	}

	if err := a.tokens.Logout(c.Request().Context(), user.UserID); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, api.SuccessResponse{Success: true})
}

// CreateWebFormHandler registers a webhook for an object of the caller's org.
func (a *API) CreateWebFormHandler(c echo.Context) error {
	user, err := authenticatedUser(c)
	if err != nil {
		return err
	}

	var req api.CreateWebFormRequest
	if err := (&echo.DefaultBinder{}).BindBody(c, &req); err != nil {
		return apierrors.NewBadRequest("invalid request body")
	}
	if req.ObjectName == "" {
		return apierrors.NewBadRequest("objectName is required")
	}

	webhook, err := a.forms.RegisterWebForm(c.Request().Context(), user, req.ObjectName)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, api.CreateWebFormResponse{Webhook: webhook})
}

// ListWebFormsHandler lists the caller's webhooks.
func (a *API) ListWebFormsHandler(c echo.Context) error {
	user, err := authenticatedUser(c)
	if err != nil {
		return err
	}

	forms, err := a.forms.ListWebForms(c.Request().Context(), user.UserID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, api.ListWebFormsResponse{Forms: forms})
}

// SubmitWebFormHandler is the public webhook a form posts to.
func (a *API) SubmitWebFormHandler(c echo.Context) error {
	fields, err := bindFields(c)
	if err != nil {
		return err
	}

	result, err := a.forms.SubmitWebForm(c.Request().Context(), c.Param("formToken"), fields)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, result)
}

// UpsertObjectHandler creates or updates a record of the caller's org.
func (a *API) UpsertObjectHandler(c echo.Context) error {
	user, err := authenticatedUser(c)
	if err != nil {
		return err
	}

	fields, err := bindFields(c)
	if err != nil {
		return err
	}

	result, err := a.objects.Upsert(c.Request().Context(), user, c.Param("objectName"), fields)
	if err != nil {
		return err
	}

	status := http.StatusCreated
	if result.Updated {
		status = http.StatusOK
	}

	return c.JSON(status, result)
}

// ForwardHandler relays a form submission to an Account Engagement form
// handler and returns the handler's response text as a JSON string.
func (a *API) ForwardHandler(c echo.Context) error {
	fields, err := bindFields(c)
	if err != nil {
		return err
	}

	text, err := a.forms.ForwardToFormHandler(c.Request().Context(), c.QueryParam("handler"), fields)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, text)
}

func authenticatedUser(c echo.Context) (*sfapi.AuthenticatedUser, error) {
	user, ok := middleware.GetAuthenticatedUser(c)
	if !ok {
		return nil, apierrors.NewAuthError("unauthorized")
	}

	return user, nil
}

// bindFields decodes a JSON object body. Path and query parameters are not
// merged into the fields.
func bindFields(c echo.Context) (map[string]any, error) {
	fields := map[string]any{}
	if err := (&echo.DefaultBinder{}).BindBody(c, &fields); err != nil {
		return nil, apierrors.NewBadRequest("request body must be a JSON object")
	}

	return fields, nil
}
