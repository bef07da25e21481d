package source

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

// sqlSource reads from any database/sql driver
type sqlSource struct {
	name   string
	driver string
	dsn    string
	db     *sql.DB
}

func (s *sqlSource) Connect(ctx context.Context) error {
	if s.db != nil {
		return nil
	}

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("failed to open connection to %s: %w", s.name, err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to connect to %s: %w", s.name, err)
	}

	s.db = db
	return nil
}

func (s *sqlSource) Read(ctx context.Context, query string) (*dataset.Frame, error) {
	if s.db == nil {
		return nil, fmt.Errorf("%s source is not connected", s.name)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query on %s: %w", s.name, err)
	}

	frame, err := dataset.FromRows(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s result: %w", s.name, err)
	}
	return frame, nil
}

func (s *sqlSource) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
