package server

import (
	"net/http"
	"time"

	echoapi "github.com/Sakib25800/framer-salesforce-api/api/echo"
	"github.com/Sakib25800/framer-salesforce-api/config"
	"github.com/Sakib25800/framer-salesforce-api/log"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewRouter builds the echo instance with middleware, API routes and the
// metrics endpoint.
func NewRouter(cfg *config.ServerConfig, appLogger log.Logger, services echoapi.Services, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = echoapi.HTTPErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(appLogger))
	e.Use(echoapi.CORS(echoapi.CORSConfig{
		PluginID:       cfg.PluginID,
		ParentDomain:   cfg.PluginParentDomain,
		AllowedOrigins: cfg.AllowedOriginList(),
	}))

	echoapi.NewAPI(services, cfg.RootRedirectURL).RegisterRoutes(e)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

// requestLogger logs every request through appLogger and attaches the
// logger, tagged with the request id, to the request context.
func requestLogger(appLogger log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			reqLogger := appLogger.With(map[string]interface{}{
				"request_id": c.Response().Header().Get(echo.HeaderXRequestID),
			})
			c.SetRequest(req.WithContext(log.WithContext(req.Context(), reqLogger)))

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is known.
				c.Error(err)
			}

			fields := map[string]interface{}{
				"method":     req.Method,
				"path":       req.URL.Path,
				"status":     c.Response().Status,
				"latency":    time.Since(start).String(),
				"ip":         c.RealIP(),
				"user_agent": req.UserAgent(),
			}

			ctx := c.Request().Context()
			if err != nil {
				reqLogger.Warn(ctx, "HTTP Request", mergeFields(fields, map[string]interface{}{"error": err.Error()}))
			} else {
				reqLogger.Info(ctx, "HTTP Request", fields)
			}

			return nil
		}
	}
}

func mergeFields(a, b map[string]interface{}) map[string]interface{} {
	for k, v := range b {
		a[k] = v
	}

	return a
}

// NewHTTPServer wraps the router in a traced http.Server.
func NewHTTPServer(cfg *config.ServerConfig, router *echo.Echo) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           otelhttp.NewHandler(router, cfg.OtelServiceName),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// The reconcile path makes two upstream calls.
		WriteTimeout: 2*cfg.HTTPTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}
}
