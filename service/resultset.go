package service

import "cloud.google.com/go/bigquery"

// ResultSet is the in-memory materialization of one query's output. It is
// produced once by the query stage and consumed read-only afterwards.
type ResultSet struct {
	Schema bigquery.Schema
	Rows   [][]bigquery.Value
}

func (r *ResultSet) Columns() []string {
	cols := make([]string, len(r.Schema))
	for i, f := range r.Schema {
		cols[i] = f.Name
	}
	return cols
}

func (r *ResultSet) NumRows() int {
	return len(r.Rows)
}
