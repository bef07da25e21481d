// Package source reads frames out of other databases so they can be loaded
// into the warehouse.
package source

import (
	"context"
	"fmt"
	"sort"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// Config describes a source database
type Config struct {
	Type     string `yaml:"type"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Schema   string `yaml:"schema"`
	SSLMode  string `yaml:"sslmode"`

	// BigQuery specific
	ProjectID       string `yaml:"project_id"`
	Location        string `yaml:"location"`
	CredentialsFile string `yaml:"credentials_file"`

	// Databricks specific
	Token    string `yaml:"token"`
	HTTPPath string `yaml:"http_path"`
	Catalog  string `yaml:"catalog"`

	// DuckDB specific
	Path string `yaml:"path"`
}

// Source is a database frames can be read from
type Source interface {
	// Connect establishes a connection to the database
	Connect(ctx context.Context) error
	// Read runs query and returns its result set
	Read(ctx context.Context, query string) (*dataset.Frame, error)
	// Close closes the database connection
	Close() error
}

var factories = map[string]func(Config) (Source, error){
	"postgres":   newPostgres,
	"mssql":      newMSSQL,
	"databricks": newDatabricks,
	"bigquery":   newBigQuery,
	"duckdb":     newDuckDB,
}

// New creates a source instance based on the configuration
func New(cfg Config) (Source, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported source type: %s", cfg.Type)
	}
	return factory(cfg)
}

// Known reports whether typ names a supported source type
func Known(typ string) bool {
	_, ok := factories[typ]
	return ok
}

// Types lists the supported source types
func Types() []string {
	types := make([]string, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
