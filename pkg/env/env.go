package env

import (
	"time"

	"github.com/drover-sh/drover/pkg/log"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

var variables = new(Environment)

// Process the environment variables set for drover.
func Process() error {
	if err := envconfig.Process("drover", variables); err != nil {
		return errors.Wrap(err, "failed to process environment variables")
	}

	// set the log level
	if err := log.SetLevelFromString(variables.LogLevel); err != nil {
		return errors.Wrap(err, "failed to set log level")
	}

	return nil
}

// Variables returns the processed environment variables.
func Variables() Environment {
	return *variables
}

// Environment defines the environment variables used
// by drover.
type Environment struct {
	LogLevel         string        `default:"info"`
	Port             int           `default:"8080"`
	DatabaseType     string        `default:"postgres"`
	DatabaseDSN      string        `default:"host=postgres user=postgres password=postgres dbname=drover port=5432 sslmode=disable"`
	NodeAuthToken    string        `default:""`
	NodeOfflineAfter time.Duration `default:"2m"`
	SweepSchedule    string        `default:"@every 30s"`
	PlaybookDir      string        `default:""`
}
