package run

import (
	"net/http"
	"time"

	runsvc "github.com/drover-sh/drover/api/rest/service/run"
	"github.com/labstack/echo/v4"
)

// List returns runs created inside the requested window with per-run
// progress counts.
func List(c echo.Context) error {
	filter := runsvc.ListFilter{
		Status: c.QueryParam("status"),
	}

	switch c.QueryParam("window") {
	case "1h":
		filter.Window = time.Hour
	case "24h", "":
		filter.Window = 24 * time.Hour
	default:
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "window must be 24h or 1h"})
	}

	items, err := runsvc.New(c.Request().Context()).List(filter)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"items": items})
}
