package api

import (
	"fmt"

	rest "github.com/drover-sh/drover/api/rest/v1"
	"github.com/drover-sh/drover/internal/nodeauth"
	"github.com/drover-sh/drover/pkg/env"
	"github.com/labstack/echo-contrib/prometheus"
	"github.com/labstack/echo/v4"
)

// Start launches drover's API.
func Start() error {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// health
	e.GET("/health", Health)

	// metrics
	prometheus.NewPrometheus("drover", nil).Use(e)

	// REST
	authenticator := nodeauth.NewTokenAuthenticator(env.Variables().NodeAuthToken)
	rest.Bind(e.Group(""), authenticator)

	return e.Start(fmt.Sprintf(":%v", env.Variables().Port))
}
