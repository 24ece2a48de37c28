package service

import "context"

// ReloadParams describes one reload of the exported data into a destination.
type ReloadParams struct {
	// Table is the fully qualified destination table project.dataset.table.
	Table string
	// SourceURI is the gs:// URI of the uploaded CSV object.
	SourceURI string
	// Location is the execution region, fixed for the whole run.
	Location string
	// Results carries the in-memory rows for drivers that load directly
	// instead of reading the object back.
	Results *ResultSet
}

// ReloadDriver replaces a destination table's contents with the exported
// data. Implementations must not retry: a failed reload is terminal for the
// run.
type ReloadDriver interface {
	Reload(ctx context.Context, params ReloadParams) error
}
