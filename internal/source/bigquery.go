package source

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/gerhard-ee/snowclient/pkg/dataset"
)

type bigQuerySource struct {
	config Config
	client *bigquery.Client
}

func newBigQuery(cfg Config) (Source, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("bigquery source requires a project_id")
	}
	return &bigQuerySource{config: cfg}, nil
}

func (s *bigQuerySource) Connect(ctx context.Context) error {
	if s.client != nil {
		return nil
	}

	var opts []option.ClientOption
	if s.config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(s.config.CredentialsFile))
	}

	client, err := bigquery.NewClient(ctx, s.config.ProjectID, opts...)
	if err != nil {
		return fmt.Errorf("failed to create BigQuery client: %w", err)
	}
	if s.config.Location != "" {
		client.Location = s.config.Location
	}

	s.client = client
	return nil
}

func (s *bigQuerySource) Read(ctx context.Context, query string) (*dataset.Frame, error) {
	if s.client == nil {
		return nil, fmt.Errorf("BigQuery source is not connected")
	}

	q := s.client.Query(query)
	if s.config.Schema != "" {
		q.DefaultDatasetID = s.config.Schema
		q.DefaultProjectID = s.config.ProjectID
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}

	var rows [][]bigquery.Value
	for {
		var row []bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row: %w", err)
		}
		rows = append(rows, row)
	}

	return frameFromBigQuery(it.Schema, rows)
}

func (s *bigQuerySource) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// civilValue is implemented by civil.Date and civil.DateTime
type civilValue interface {
	In(loc *time.Location) time.Time
}

// frameFromBigQuery maps a BigQuery result onto a frame
func frameFromBigQuery(schema bigquery.Schema, rows [][]bigquery.Value) (*dataset.Frame, error) {
	columns := make([]dataset.Column, len(schema))
	for i, field := range schema {
		columns[i] = dataset.Column{
			Name:   field.Name,
			Kind:   bigQueryKind(field.Type),
			Values: make([]any, 0, len(rows)),
		}
	}

	for r, row := range rows {
		if len(row) != len(schema) {
			return nil, fmt.Errorf("row %d has %d values, expected %d", r, len(row), len(schema))
		}
		for i, v := range row {
			columns[i].Values = append(columns[i].Values, bigQueryValue(v))
		}
	}

	return dataset.New(columns...)
}

func bigQueryKind(t bigquery.FieldType) dataset.Kind {
	switch t {
	case bigquery.IntegerFieldType:
		return dataset.KindInt
	case bigquery.FloatFieldType:
		return dataset.KindFloat
	case bigquery.BooleanFieldType:
		return dataset.KindBool
	case bigquery.TimestampFieldType, bigquery.DateFieldType, bigquery.DateTimeFieldType:
		return dataset.KindTime
	default:
		return dataset.KindString
	}
}

func bigQueryValue(v bigquery.Value) any {
	switch t := v.(type) {
	case nil:
		return nil
	case *big.Rat:
		return t.FloatString(9)
	case civilValue:
		return t.In(time.UTC)
	case []byte:
		return string(t)
	default:
		return v
	}
}
