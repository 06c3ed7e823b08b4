package callback

import (
	"net/http"

	svc "github.com/drover-sh/drover/api/rest/service/callback"
	"github.com/drover-sh/drover/internal/event"
	"github.com/labstack/echo/v4"
)

// Post ingests one callback envelope from a node. Failures before ledger
// admission return an error status so the node retries with the same event
// id; once admitted the response is always success.
func Post(c echo.Context) error {
	var env event.Envelope
	if err := c.Bind(&env); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed envelope"})
	}
	if err := env.Validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	result, err := svc.New(c.Request().Context()).Process(env)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, result)
}
