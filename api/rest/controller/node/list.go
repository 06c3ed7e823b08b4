package node

import (
	"net/http"

	nodesvc "github.com/drover-sh/drover/api/rest/service/node"
	"github.com/labstack/echo/v4"
)

// List returns the latest heartbeat per node.
func List(c echo.Context) error {
	nodes, err := nodesvc.New(c.Request().Context()).List()
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{"items": nodes})
}
