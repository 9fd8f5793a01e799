package notify

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	SMTPHost string `envconfig:"SMTP_HOST"`
	SMTPPort int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser string `envconfig:"SMTP_USER"`
	SMTPPass string `envconfig:"SMTP_PASS"`

	EmailTo   string `envconfig:"NOTIFY_EMAIL_TO"`
	EmailFrom string `envconfig:"NOTIFY_EMAIL_FROM"`

	NotifyOnSuccess bool `envconfig:"NOTIFY_ON_SUCCESS" default:"false"`
	NotifyOnFailure bool `envconfig:"NOTIFY_ON_FAILURE" default:"false"`
	NotifyOnExit    bool `envconfig:"NOTIFY_ON_EXIT" default:"false"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
