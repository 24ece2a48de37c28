package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
)

// EncodeCSV serializes rs as UTF-8 comma-delimited text: one header row of
// column names, one data row per record, no index column. An empty result set
// yields exactly the header line.
func EncodeCSV(rs *ResultSet) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(rs.Columns()); err != nil {
		return nil, fmt.Errorf("%w: writing CSV header: %v", ErrUpload, err)
	}
	for _, row := range rs.Rows {
		record := make([]string, len(row))
		for i, v := range row {
			record[i] = formatValue(v)
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("%w: writing CSV row: %v", ErrUpload, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("%w: flushing CSV: %v", ErrUpload, err)
	}
	return buf.Bytes(), nil
}

// formatValue renders a BigQuery cell value. NULL becomes an empty cell.
func formatValue(v bigquery.Value) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(t)
	}
}
