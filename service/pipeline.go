package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
)

// QueryRunner executes one SQL statement and materializes the result.
type QueryRunner interface {
	RunQuery(ctx context.Context, sqlQuery, location string) (*ResultSet, error)
}

// Uploader writes an object to a storage bucket in a single put.
type Uploader interface {
	UploadObject(ctx context.Context, bucket, objectPath, contentType string, data []byte) error
}

// Pipeline runs one export end to end: query, serialize, upload, and
// optionally reload. Execution is strictly sequential with no retries; the
// first failing stage ends the run.
type Pipeline struct {
	cfg    Config
	query  QueryRunner
	upload Uploader
	reload ReloadDriver // nil disables the reload stage
	clock  clockwork.Clock
	log    *slog.Logger
}

func NewPipeline(cfg Config, query QueryRunner, upload Uploader, reload ReloadDriver, clock clockwork.Clock, log *slog.Logger) *Pipeline {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		query:  query,
		upload: upload,
		reload: reload,
		clock:  clock,
		log:    log,
	}
}

// WithFilter returns a copy of the pipeline whose query filter is replaced.
// The receiver is not modified.
func (p *Pipeline) WithFilter(filter string) *Pipeline {
	clone := *p
	clone.cfg.QueryFilter = filter
	return &clone
}

type RunResult struct {
	ObjectPath string
	GCSPath    string
	Rows       int
	Loaded     bool
}

// Run walks the stages in order. The object path is derived from a single
// clock snapshot taken at the start, so it is stable for the whole run.
func (p *Pipeline) Run(ctx context.Context) (RunResult, error) {
	objectPath := p.cfg.ObjectPath(p.clock.Now())
	gcsPath := p.cfg.SourceURI(objectPath)

	sqlQuery := p.cfg.QueryStatement()
	p.log.InfoContext(ctx, "Executing BigQuery query", "table", p.cfg.SourceTable())
	p.log.DebugContext(ctx, "Query statement", "sql", sqlQuery)

	rs, err := p.query.RunQuery(ctx, sqlQuery, p.cfg.Location)
	if err != nil {
		return RunResult{}, fmt.Errorf("query stage: %w", err)
	}
	if rs.NumRows() == 0 {
		p.log.WarnContext(ctx, "Query returned no rows, exporting header-only CSV")
	} else {
		p.log.InfoContext(ctx, "Query completed", "rows", rs.NumRows())
	}

	data, err := EncodeCSV(rs)
	if err != nil {
		return RunResult{}, fmt.Errorf("serialize stage: %w", err)
	}

	p.log.InfoContext(ctx, "Uploading CSV", "gcs_path", gcsPath, "bytes", len(data))
	if err := p.upload.UploadObject(ctx, p.cfg.BucketName, objectPath, "text/csv", data); err != nil {
		return RunResult{}, fmt.Errorf("upload stage: %w", err)
	}
	p.log.InfoContext(ctx, "Upload completed", "gcs_path", gcsPath)

	res := RunResult{
		ObjectPath: objectPath,
		GCSPath:    gcsPath,
		Rows:       rs.NumRows(),
	}

	if p.reload == nil {
		return res, nil
	}

	p.log.InfoContext(ctx, "Reloading destination table", "table", p.cfg.DestinationTable())
	err = p.reload.Reload(ctx, ReloadParams{
		Table:     p.cfg.DestinationTable(),
		SourceURI: gcsPath,
		Location:  p.cfg.Location,
		Results:   rs,
	})
	if err != nil {
		return RunResult{}, fmt.Errorf("reload stage: %w", err)
	}
	p.log.InfoContext(ctx, "Reload completed", "table", p.cfg.DestinationTable())

	res.Loaded = true
	return res, nil
}
