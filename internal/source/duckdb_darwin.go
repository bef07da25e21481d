//go:build darwin

package source

import (
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

func newDuckDB(cfg Config) (Source, error) {
	// For DuckDB the path is a database file; empty means in-memory
	path := cfg.Path
	if path == "" {
		path = cfg.Database
	}
	if path != "" && !filepath.IsAbs(path) {
		path = filepath.Join(".", path)
	}
	return &sqlSource{name: "DuckDB", driver: "duckdb", dsn: path}, nil
}
