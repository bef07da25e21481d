package source

import (
	"fmt"
	"net/url"
	"strings"

	_ "github.com/databricks/databricks-sql-go"
)

func newDatabricks(cfg Config) (Source, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("databricks source requires a token")
	}
	return &sqlSource{name: "Databricks", driver: "databricks", dsn: databricksDSN(cfg)}, nil
}

// databricksDSN builds token:<token>@<host>:<port><http path>?catalog=&schema=
func databricksDSN(cfg Config) string {
	port := cfg.Port
	if port == 0 {
		port = 443
	}
	path := cfg.HTTPPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	query := url.Values{}
	if cfg.Catalog != "" {
		query.Set("catalog", cfg.Catalog)
	}
	if cfg.Schema != "" {
		query.Set("schema", cfg.Schema)
	}

	dsn := fmt.Sprintf("token:%s@%s:%d%s", url.PathEscape(cfg.Token), cfg.Host, port, path)
	if len(query) > 0 {
		dsn += "?" + query.Encode()
	}
	return dsn
}
