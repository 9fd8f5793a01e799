// Package auth guards the admin surface with a shared token compared
// against a bcrypt hash from the environment.
package auth

import (
	"fmt"
	"net/http"

	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// TokenHeader carries the admin token on requests.
const TokenHeader = "X-Admin-Token"

type Config struct {
	// AdminTokenHash is the bcrypt hash of the admin token. Empty disables
	// the whole admin surface.
	AdminTokenHash string `envconfig:"ADMIN_TOKEN_HASH" default:""`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// AdminOnly rejects requests whose token does not match the configured
// bcrypt hash. With no hash configured every request is rejected, so an
// unconfigured deployment fails closed.
func AdminOnly(tokenHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tokenHash == "" {
				http.Error(w, "admin surface disabled", http.StatusForbidden)
				return
			}
			token := r.Header.Get(TokenHeader)
			if token == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if err := bcrypt.CompareHashAndPassword([]byte(tokenHash), []byte(token)); err != nil {
				logger.WithField("path", r.URL.Path).Warn("Admin token mismatch")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
