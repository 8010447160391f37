package sfapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/audit"
	"github.com/Sakib25800/framer-salesforce-api/internal/metrics"
	"github.com/Sakib25800/framer-salesforce-api/tracing"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

const maxHandlerResponseSize = 1 << 20

// WebForm is a registered webhook of a user.
type WebForm struct {
	FormToken  string `json:"formToken" yaml:"formToken"`
	ObjectName string `json:"objectName" yaml:"objectName"`
	Webhook    string `json:"webhook" yaml:"webhook"`
}

// FormServiceConfig configures a FormService.
type FormServiceConfig struct {
	// PublicURL is the externally reachable base URL of the API.
	PublicURL string
	// HandlerHosts lists the Account Engagement form handler hosts that
	// submissions may be forwarded to.
	HandlerHosts []string
	HTTPClient   *http.Client
}

// FormService manages public web form webhooks that upsert into a user's
// org without a bearer token.
type FormService struct {
	tokens       *TokenService
	objects      *ObjectService
	stores       *Stores
	publicURL    string
	handlerHosts map[string]bool
	httpClient   *http.Client
}

// NewFormService creates a new FormService instance
func NewFormService(tokens *TokenService, objects *ObjectService, stores *Stores, cfg FormServiceConfig) *FormService {
	hosts := make(map[string]bool, len(cfg.HandlerHosts))
	for _, h := range cfg.HandlerHosts {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hosts[h] = true
		}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &FormService{
		tokens:       tokens,
		objects:      objects,
		stores:       stores,
		publicURL:    strings.TrimRight(cfg.PublicURL, "/"),
		handlerHosts: hosts,
		httpClient:   httpClient,
	}
}

// RegisterWebForm creates a webhook that upserts submissions into
// objectName on behalf of user and returns its URL.
func (s *FormService) RegisterWebForm(ctx context.Context, user *AuthenticatedUser, objectName string) (string, error) {
	if err := s.objects.AssertObjectExists(ctx, user, objectName); err != nil {
		return "", err
	}

	formToken := uuid.NewString()

	form := WebFormToken{ObjectName: objectName, UserID: user.UserID}
	if err := s.stores.WebForms.Put(ctx, cache.Params{"formToken": formToken}, form, cache.NoTTL); err != nil {
		return "", err
	}

	entry := UserFormEntry{FormToken: formToken, ObjectName: objectName}
	if err := s.stores.UserForms.Put(ctx, cache.Params{"userId": user.UserID, "formToken": formToken}, entry, cache.NoTTL); err != nil {
		return "", err
	}

	metrics.WebFormsRegisteredTotal.Inc()
	audit.Log(ctx, audit.Event{
		Action: audit.ActionWebFormCreated,
		UserID: user.UserID,
		OrgID:  user.OrgID,
		Target: objectName,
	}, nil)
	log.Ctx(ctx).Info().Str("user_id", user.UserID).Str("object", objectName).Msg("web form registered")

	return s.webhookURL(formToken), nil
}

// SubmitWebForm upserts fields into the object of the form, authenticating
// as the user who registered it.
func (s *FormService) SubmitWebForm(ctx context.Context, formToken string, fields map[string]any) (*UpsertResult, error) {
	ctx, span := tracing.Tracer.Start(ctx, "FormService.SubmitWebForm")
	defer span.End()

	form, err := s.stores.WebForms.GetOrThrow(ctx, cache.Params{"formToken": formToken}, "form not found")
	if errors.Is(err, cache.ErrInvalidKey) {
		return nil, apierrors.NewNotFound("form not found")
	}
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("salesforce.object", form.ObjectName))

	user, err := s.tokens.Session(ctx, form.UserID)
	if err != nil {
		return nil, err
	}

	return s.objects.Upsert(ctx, user, form.ObjectName, fields)
}

// ListWebForms returns the forms registered by userID ordered by token.
func (s *FormService) ListWebForms(ctx context.Context, userID string) ([]WebForm, error) {
	keys, err := s.stores.UserForms.ListKeys(ctx, cache.Params{"userId": userID})
	if errors.Is(err, cache.ErrInvalidKey) {
		return nil, apierrors.NewBadRequest("invalid user id").WithCause(err)
	}
	if err != nil {
		return nil, err
	}

	forms := make([]WebForm, 0, len(keys))
	for _, key := range keys {
		params, err := s.stores.UserForms.Template().Parse(key)
		if err != nil {
			continue
		}

		entry, found, err := s.stores.UserForms.Get(ctx, params)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		forms = append(forms, WebForm{
			FormToken:  entry.FormToken,
			ObjectName: entry.ObjectName,
			Webhook:    s.webhookURL(entry.FormToken),
		})
	}

	return forms, nil
}

// ForwardToFormHandler posts fields form-encoded to an Account Engagement
// form handler and returns its response text.
func (s *FormService) ForwardToFormHandler(ctx context.Context, handler string, fields map[string]any) (string, error) {
	target, err := s.checkHandler(handler)
	if err != nil {
		return "", err
	}

	ctx, span := tracing.Tracer.Start(ctx, "FormService.ForwardToFormHandler")
	defer span.End()
	span.SetAttributes(attribute.String("form_handler.host", target.Host))

	values := url.Values{}
	for key, value := range CoerceFieldStrings(fields) {
		values.Set(key, value)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", apierrors.NewUpstream("failed to reach form handler").WithCause(err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHandlerResponseSize))
	if err != nil {
		return "", apierrors.NewUpstream("failed to read form handler response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", apierrors.NewUpstream(fmt.Sprintf("form handler responded %s", resp.Status))
	}

	return string(body), nil
}

func (s *FormService) checkHandler(handler string) (*url.URL, error) {
	if handler == "" {
		return nil, apierrors.NewBadRequest("missing handler URL param")
	}

	target, err := url.Parse(handler)
	if err != nil || target.Scheme != "https" || target.Host == "" {
		return nil, apierrors.NewBadRequest("invalid handler URL")
	}

	if !s.handlerHosts[strings.ToLower(target.Hostname())] {
		return nil, apierrors.NewBadRequest(ErrHandlerNotAllowed.Error()).WithCause(ErrHandlerNotAllowed)
	}

	return target, nil
}

func (s *FormService) webhookURL(formToken string) string {
	return s.publicURL + "/api/web/submit/" + formToken
}
