package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// CSRFHeader carries the anti-forgery token on mutating requests.
const CSRFHeader = "X-CSRF-Token"

// SessionMiddleware authenticates every request: it parses the bearer token,
// resolves the named session against the store, and installs the actor into
// the request context. Any failure short-circuits with a generic 401 before
// business logic runs; the response never says which check failed.
func SessionMiddleware(store SessionStore, secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			claims, err := ParseSessionToken(secret, strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			sess, err := store.Get(c.Request().Context(), claims.SessionID)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			ctx := ContextWithActor(c.Request().Context(), sess.ActorID, sess.Roles, sess.ID, c.RealIP())
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// CSRFMiddleware enforces the one-time anti-forgery token on mutating
// methods. The presented token must match the session's current token and is
// rotated after each successful use, so a replayed token fails. The new token
// is returned in the response header for the client's next mutation.
func CSRFMiddleware(store SessionStore) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch c.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				return next(c)
			}

			ctx := c.Request().Context()
			sid := SessionIDFromContext(ctx)
			if sid == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			sess, err := store.Get(ctx, sid)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			presented := c.Request().Header.Get(CSRFHeader)
			if subtle.ConstantTimeCompare([]byte(presented), []byte(sess.CSRFToken)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}

			rotated, err := store.RotateCSRF(ctx, sid)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			c.Response().Header().Set(CSRFHeader, rotated)

			return next(c)
		}
	}
}
