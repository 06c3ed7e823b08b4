package db

import (
	"sync"

	"github.com/drover-sh/drover/internal/models"
	"github.com/drover-sh/drover/pkg/env"
	"github.com/drover-sh/drover/pkg/log"
	_ "github.com/jackc/pgx/v4"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var (
	conn     *gorm.DB
	connOnce sync.Once
)

// Connection returns the shared gorm connection, opening it on first use.
func Connection() *gorm.DB {
	connOnce.Do(func() {
		var err error

		switch env.Variables().DatabaseType {
		case "sqlite":
			conn, err = gorm.Open(
				sqlite.Open(env.Variables().DatabaseDSN),
				&gorm.Config{TranslateError: true},
			)
		case "postgres":
			fallthrough
		default:
			conn, err = gorm.Open(
				postgres.Open(env.Variables().DatabaseDSN),
				&gorm.Config{TranslateError: true},
			)
		}

		if err != nil {
			log.Fatal("failed to connect to database", "error", err)
		}
	})

	return conn
}

// Migrate applies the schema for all registered models.
func Migrate() error {
	return Connection().AutoMigrate(models.All...)
}
