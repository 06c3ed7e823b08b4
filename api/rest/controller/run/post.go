package run

import (
	"errors"
	"net/http"

	runsvc "github.com/drover-sh/drover/api/rest/service/run"
	"github.com/labstack/echo/v4"
)

// Post creates a run from a playbook or workflow reference and returns its
// id. Nodes discover queued runs through their polling channel.
func Post(c echo.Context) error {
	var req runsvc.CreateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "malformed request"})
	}

	created, err := runsvc.New(c.Request().Context()).Create(&req)
	if err != nil {
		if errors.Is(err, runsvc.ErrSourceNotFound) {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, map[string]string{"run_id": created.ID.String()})
}
