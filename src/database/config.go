package database

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DatabaseURLMain points at the Postgres instance. When empty the store
	// falls back to a local sqlite file, which is what dev and the test
	// suite use.
	DatabaseURLMain string `envconfig:"DATABASE_URL_MAIN" default:""`
	SQLitePath      string `envconfig:"ORDER_DB_PATH" default:"orders.db"`
	GormLogLevel    int    `envconfig:"GORM_LOG_LEVEL" default:"2"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
