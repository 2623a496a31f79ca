package database

import (
	"fmt"
	"net/url"

	"github.com/madariss5/BLACKSKYMD-sub006/internal/config"
)

// connString renders cfg as a postgres URL. User and password are escaped
// so credentials with reserved characters survive parsing, and the pool
// announces itself to the server via application_name.
func connString(cfg config.DBConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.Name,
	}

	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	q := url.Values{}
	q.Set("sslmode", sslMode)
	q.Set("application_name", "blackskyd")
	u.RawQuery = q.Encode()

	return u.String()
}
