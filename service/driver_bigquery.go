package service

import (
	"context"
)

// BigQueryLoadDriver reloads via a destination-side LOAD DATA OVERWRITE job
// referencing the uploaded object.
type BigQueryLoadDriver struct {
	bq *BigQueryService
}

func NewBigQueryLoadDriver(bq *BigQueryService) *BigQueryLoadDriver {
	return &BigQueryLoadDriver{bq: bq}
}

func (d *BigQueryLoadDriver) Reload(ctx context.Context, params ReloadParams) error {
	return d.bq.RunLoadJob(ctx, params.Table, params.SourceURI, params.Location)
}
