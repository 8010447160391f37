package middleware

import (
	"context"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// userContextKey is the echo context key of the *sfapi.AuthenticatedUser.
const userContextKey = "sfapi.authenticated_user"

// Authenticator turns an Authorization header into an authenticated user.
// *sfapi.TokenService implements it.
type Authenticator interface {
	AuthenticateRequest(ctx context.Context, authorization string) (*sfapi.AuthenticatedUser, error)
}

var _ Authenticator = (*sfapi.TokenService)(nil)

// RequireAuth rejects requests that do not authenticate. Errors are returned
// to echo's HTTPErrorHandler unchanged.
func RequireAuth(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()

			user, err := authenticator.AuthenticateRequest(req.Context(), req.Header.Get(echo.HeaderAuthorization))
			if err != nil {
				log.Ctx(req.Context()).Debug().Err(err).Str("path", req.URL.Path).Msg("request authentication failed")
				return err
			}

			c.Set(userContextKey, user)

			return next(c)
		}
	}
}

// GetAuthenticatedUser returns the user stored by RequireAuth.
func GetAuthenticatedUser(c echo.Context) (*sfapi.AuthenticatedUser, bool) {
	user, ok := c.Get(userContextKey).(*sfapi.AuthenticatedUser)

	return user, ok && user != nil
}
