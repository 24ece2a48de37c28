package service

import (
	"context"
	"fmt"
	"log/slog"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

type BigQueryService struct {
	client    *bigquery.Client
	projectID string
}

func NewBigQueryService(ctx context.Context, projectID string, opts ...option.ClientOption) (*BigQueryService, error) {
	client, err := bigquery.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &BigQueryService{
		client:    client,
		projectID: projectID,
	}, nil
}

func (s *BigQueryService) Close() error {
	return s.client.Close()
}

// RunQuery executes sqlQuery in the given location and materializes every row
// into memory. An empty result is not an error.
func (s *BigQueryService) RunQuery(ctx context.Context, sqlQuery, location string) (*ResultSet, error) {
	q := s.client.Query(sqlQuery)
	q.Location = location

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: executing query: %v", ErrQuery, err)
	}

	rs := &ResultSet{Schema: it.Schema}
	for {
		var values []bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading query results: %v", ErrQuery, err)
		}
		rs.Rows = append(rs.Rows, values)
	}

	// Read may only populate the schema once rows arrive; for empty results
	// the iterator still carries it after Done.
	if rs.Schema == nil {
		rs.Schema = it.Schema
	}
	return rs, nil
}

func loadStatement(table, sourceURI string) string {
	return fmt.Sprintf(
		"LOAD DATA OVERWRITE `%s`\nFROM FILES (format='CSV', skip_leading_rows=1, uris=['%s'])",
		table, sourceURI,
	)
}

// RunLoadJob submits a LOAD DATA OVERWRITE job that replaces the destination
// table's contents with the uploaded CSV object, and blocks until the job
// reaches a terminal state. No timeout is imposed here; cancellation is the
// caller's context.
func (s *BigQueryService) RunLoadJob(ctx context.Context, table, sourceURI, location string) error {
	loadSQL := loadStatement(table, sourceURI)

	q := s.client.Query(loadSQL)
	q.Location = location

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to start load job: %v", ErrLoadJob, err)
	}

	slog.InfoContext(ctx, "Load job submitted", "job_id", job.ID(), "table", table, "source_uri", sourceURI)

	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%w: job failed during execution: %v", ErrLoadJob, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%w: job completed with error: %v", ErrLoadJob, err)
	}

	slog.InfoContext(ctx, "Load job completed successfully", "job_id", job.ID())
	return nil
}
