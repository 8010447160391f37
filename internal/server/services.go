package server

import (
	"fmt"
	"net/http"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	echoapi "github.com/Sakib25800/framer-salesforce-api/api/echo"
	"github.com/Sakib25800/framer-salesforce-api/config"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewOutboundClient returns the HTTP client used for every upstream call.
// Requests are traced and bounded by HTTP_TIMEOUT.
func NewOutboundClient(cfg *config.ServerConfig) *http.Client {
	return &http.Client{
		Timeout:   cfg.HTTPTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// NewStores binds the store namespaces to the backends with the configured
// hand-off lifetimes.
func NewStores(cfg *config.ServerConfig, backends *Backends) *sfapi.Stores {
	return sfapi.NewStores(backends.Ephemeral, backends.Durable).WithTTLs(cfg.HandoffTTL, cfg.ResultTTL)
}

// NewServices builds the services over stores.
func NewServices(cfg *config.ServerConfig, stores *sfapi.Stores, httpClient *http.Client) (echoapi.Services, error) {
	authClient, err := salesforce.NewAuthClient(salesforce.Config{
		ClientID:          cfg.ClientID,
		ClientSecret:      cfg.ClientSecret,
		RedirectURL:       cfg.RedirectURL(),
		AuthorizeEndpoint: cfg.AuthorizeEndpoint,
		TokenEndpoint:     cfg.TokenEndpoint,
		UserInfoEndpoint:  cfg.UserInfoEndpoint,
		RevokeEndpoint:    cfg.RevokeEndpoint,
		Scopes:            salesforce.ParseScopes(cfg.Scope),
	}, httpClient)
	if err != nil {
		return echoapi.Services{}, fmt.Errorf("salesforce auth client: %w", err)
	}

	objectClient := salesforce.NewObjectClient(httpClient, cfg.APIVersion)

	tokens := sfapi.NewTokenService(authClient, stores)
	objects := sfapi.NewObjectService(objectClient)

	return echoapi.Services{
		Handoffs: sfapi.NewHandoffService(authClient, tokens, stores),
		Tokens:   tokens,
		Objects:  objects,
		Forms: sfapi.NewFormService(tokens, objects, stores, sfapi.FormServiceConfig{
			PublicURL:    cfg.PublicURL,
			HandlerHosts: cfg.AccountEngagementHostList(),
			HTTPClient:   httpClient,
		}),
	}, nil
}
