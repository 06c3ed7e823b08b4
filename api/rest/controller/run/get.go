package run

import (
	"errors"
	"net/http"

	runsvc "github.com/drover-sh/drover/api/rest/service/run"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"
)

// Get returns one run with its device states and steps.
func Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	detail, err := runsvc.New(c.Request().Context()).Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return echo.ErrNotFound
		}
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, detail)
}
