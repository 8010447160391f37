package echo

import (
	"errors"
	"net/http"

	"github.com/Sakib25800/framer-salesforce-api/api"
	apierrors "github.com/Sakib25800/framer-salesforce-api/errors"
	"github.com/Sakib25800/framer-salesforce-api/internal/salesforce"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

const (
	internalErrorMessage = "Internal server error"
	notFoundMessage      = "Page not found"
)

// HTTPErrorHandler renders service errors. Provider responses that must be
// passed through keep their status and reason phrase; API errors become
// {"error": {...}} with their status; anything else is a logged 500.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	logger := log.Ctx(c.Request().Context())

	if respErr, ok := salesforce.AsResponseError(err); ok {
		logger.Info().Int("status", respErr.StatusCode).Msg("passing through provider error")
		writeError(c, c.String(respErr.StatusCode, respErr.StatusText()))
		return
	}

	if apiErr, ok := apierrors.As(err); ok {
		event := logger.Info()
		if apiErr.Status >= http.StatusInternalServerError {
			event = logger.Error()
		}
		event.Err(err).Str("kind", string(apiErr.Kind)).Int("status", apiErr.Status).Msg("request failed")

		writeError(c, c.JSON(apiErr.Status, api.ErrorResponse{Error: api.ErrorBody{
			Message: apiErr.Message,
			Code:    string(apiErr.Kind),
			Errors:  apiErr.Details,
		}}))
		return
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.Code == http.StatusNotFound {
			writeError(c, c.String(http.StatusNotFound, notFoundMessage))
			return
		}

		message := http.StatusText(httpErr.Code)
		if m, ok := httpErr.Message.(string); ok {
			message = m
		}
		writeError(c, c.JSON(httpErr.Code, api.ErrorResponse{Error: api.ErrorBody{Message: message}}))
		return
	}

	logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("unhandled error")
	writeError(c, c.JSON(http.StatusInternalServerError, api.ErrorResponse{Error: api.ErrorBody{Message: internalErrorMessage}}))
}

func writeError(c echo.Context, err error) {
	if err != nil {
		log.Ctx(c.Request().Context()).Error().Err(err).Msg("failed to write error response")
	}
}
