package nodeauth

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HeaderName carries the node's credential on every callback request.
const HeaderName = "node-authentication"

// Authenticator decides whether a caller is a recognized node. The
// verification mechanics belong to the deployment; this interface is the
// seam the ingress depends on.
type Authenticator interface {
	Authenticate(credential string) bool
}

// TokenAuthenticator accepts callers presenting the shared fleet token.
// An empty configured token disables verification, for deployments that
// authenticate nodes at an outer gateway.
type TokenAuthenticator struct {
	token string
}

func NewTokenAuthenticator(token string) *TokenAuthenticator {
	return &TokenAuthenticator{token: token}
}

func (a *TokenAuthenticator) Authenticate(credential string) bool {
	if a.token == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(credential), []byte(a.token)) == 1
}

// Middleware rejects unauthenticated callers before any ledger work
// happens, so the node can safely retry with the same event id.
func Middleware(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !authenticator.Authenticate(c.Request().Header.Get(HeaderName)) {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
			}
			return next(c)
		}
	}
}
