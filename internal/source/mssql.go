package source

import (
	"fmt"
	"net/url"

	_ "github.com/denisenkom/go-mssqldb"
)

func newMSSQL(cfg Config) (Source, error) {
	return &sqlSource{name: "SQL Server", driver: "sqlserver", dsn: mssqlDSN(cfg)}, nil
}

func mssqlDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 1433
	}

	query := url.Values{}
	if cfg.Database != "" {
		query.Set("database", cfg.Database)
	}

	u := &url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     fmt.Sprintf("%s:%d", cfg.Host, port),
		RawQuery: query.Encode(),
	}
	return u.String()
}
