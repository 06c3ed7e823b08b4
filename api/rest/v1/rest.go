package rest

import (
	callbackctl "github.com/drover-sh/drover/api/rest/controller/callback"
	nodectl "github.com/drover-sh/drover/api/rest/controller/node"
	playbookctl "github.com/drover-sh/drover/api/rest/controller/playbook"
	runctl "github.com/drover-sh/drover/api/rest/controller/run"
	"github.com/drover-sh/drover/internal/nodeauth"
	"github.com/labstack/echo/v4"
)

// Bind the REST endpoints to the endpoint group. The callback ingress is
// the only node-facing route and the only one behind node authentication.
func Bind(g *echo.Group, authenticator nodeauth.Authenticator) {
	// node callback ingress
	g.POST("/callback", callbackctl.Post, nodeauth.Middleware(authenticator))

	// runs
	{
		g.POST("/runs", runctl.Post)
		g.GET("/runs", runctl.List)
		g.GET("/runs/:id", runctl.Get)
	}

	// nodes
	g.GET("/nodes", nodectl.List)

	// playbooks
	g.POST("/playbooks/apply", playbookctl.Apply)
}
