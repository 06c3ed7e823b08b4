package playbook

import (
	"io"
	"net/http"

	importer "github.com/drover-sh/drover/internal/playbook"
	"github.com/drover-sh/drover/pkg/db"
	schema "github.com/drover-sh/drover/pkg/playbook"
	"github.com/labstack/echo/v4"
)

// Apply imports a YAML playbook definition.
func Apply(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.ErrBadRequest.SetInternal(err)
	}

	def, err := schema.Parse(body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	record, err := importer.NewImporter(db.Connection()).Apply(c.Request().Context(), def)
	if err != nil {
		return echo.ErrInternalServerError.SetInternal(err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"playbook_id": record.ID.String(),
		"alias":       record.Alias,
	})
}
