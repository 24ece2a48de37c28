package service

import (
	"context"
)

// MySQLDriver reloads the in-memory result set into a MySQL table instead of
// issuing a BigQuery load job.
type MySQLDriver struct {
	my    *MySQLService
	table string
}

func NewMySQLDriver(my *MySQLService, table string) *MySQLDriver {
	if table == "" {
		table = "export"
	}
	return &MySQLDriver{my: my, table: table}
}

func (d *MySQLDriver) Reload(ctx context.Context, params ReloadParams) error {
	_, err := d.my.ReplaceTable(ctx, params.Results, d.table)
	return err
}
