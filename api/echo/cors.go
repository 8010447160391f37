package echo

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// CORSConfig describes which browser origins may call the API.
type CORSConfig struct {
	// PluginID is the leading label of the plugin's sandbox host.
	PluginID string
	// ParentDomain is the domain plugin sandboxes are served from.
	ParentDomain string
	// AllowedOrigins are additional exact origins.
	AllowedOrigins []string
}

// AllowOrigin reports whether origin may call the API: localhost, an
// explicitly allowed origin, or a host directly under ParentDomain whose
// first label starts with PluginID.
func (cfg CORSConfig) AllowOrigin(origin string) bool {
	for _, allowed := range cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}

	u, err := url.Parse(origin)
	if err != nil || u.Hostname() == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "localhost" {
		return true
	}

	if cfg.PluginID == "" || cfg.ParentDomain == "" {
		return false
	}

	label, parent, ok := strings.Cut(host, ".")
	return ok && parent == strings.ToLower(cfg.ParentDomain) && strings.HasPrefix(label, strings.ToLower(cfg.PluginID))
}

// DefaultOrigin is the plugin's canonical origin.
func (cfg CORSConfig) DefaultOrigin() string {
	return "https://" + cfg.PluginID + "." + cfg.ParentDomain
}

// CORS returns echo's CORS middleware driven by AllowOrigin.
func CORS(cfg CORSConfig) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOriginFunc: func(origin string) (bool, error) {
			return cfg.AllowOrigin(origin), nil
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType},
	})
}
