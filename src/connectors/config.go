package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	AlpacaAPIKey    string `envconfig:"ALPACA_API_KEY"`
	AlpacaAPISecret string `envconfig:"ALPACA_SECRET_KEY"`
	AlpacaBaseURL   string `envconfig:"ALPACA_BASE_URL" default:"https://paper-api.alpaca.markets"`
	AlpacaDataURL   string `envconfig:"ALPACA_DATA_URL" default:"https://data.alpaca.markets"`
	AlpacaStreamURL string `envconfig:"ALPACA_STREAM_URL" default:"wss://paper-api.alpaca.markets/stream"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
