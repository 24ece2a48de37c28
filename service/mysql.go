package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	_ "github.com/go-sql-driver/mysql"
)

type MySQLService struct {
	db *sql.DB
}

func NewMySQLServiceFromEnv() (*MySQLService, error) {
	host := os.Getenv("MYSQL_HOST")
	port := os.Getenv("MYSQL_PORT")
	user := os.Getenv("MYSQL_USER")
	pass := os.Getenv("MYSQL_PASSWORD")
	dbname := os.Getenv("MYSQL_DB")

	var missing []string
	for _, kv := range []struct{ name, value string }{
		{"MYSQL_HOST", host},
		{"MYSQL_PORT", port},
		{"MYSQL_USER", user},
		{"MYSQL_DB", dbname},
	} {
		if kv.value == "" {
			missing = append(missing, kv.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required configuration: %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=true&loc=Local", user, pass, host, port, dbname)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL: %w", err)
	}

	return &MySQLService{db: db}, nil
}

func (s *MySQLService) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// ReplaceTable loads rs into table with overwrite semantics: the table is
// created if missing, existing rows are deleted, and the result set is
// inserted in batches within one transaction. Returns the number of rows
// inserted.
func (s *MySQLService) ReplaceTable(ctx context.Context, rs *ResultSet, table string) (int64, error) {
	if err := s.ensureTable(ctx, rs.Schema, table); err != nil {
		return 0, fmt.Errorf("%w: ensuring MySQL table: %v", ErrLoadJob, err)
	}

	rows, err := s.replaceRows(ctx, rs, table)
	if err != nil {
		return 0, fmt.Errorf("%w: replacing rows in MySQL table %s: %v", ErrLoadJob, table, err)
	}
	return rows, nil
}

func (s *MySQLService) ensureTable(ctx context.Context, schema bigquery.Schema, table string) error {
	if table == "" {
		return fmt.Errorf("destination table name is empty")
	}
	if len(schema) == 0 {
		return fmt.Errorf("empty result schema")
	}

	cols := make([]string, 0, len(schema))
	for _, f := range schema {
		if f.Repeated || f.Type == bigquery.RecordFieldType {
			return fmt.Errorf("unsupported complex type for column %q", f.Name)
		}
		cols = append(cols, fmt.Sprintf("`%s` %s", f.Name, mySQLType(f)))
	}

	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` (%s)", table, strings.Join(cols, ", "))

	slog.InfoContext(ctx, "Ensuring MySQL table", "table", table)
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *MySQLService) replaceRows(ctx context.Context, rs *ResultSet, table string) (int64, error) {
	cols := make([]string, 0, len(rs.Schema))
	for _, f := range rs.Schema {
		cols = append(cols, fmt.Sprintf("`%s`", f.Name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// Overwrite, not append.
	if _, err = tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM `%s`", table)); err != nil {
		return 0, err
	}

	batchSize := 1000
	if v := os.Getenv("MYSQL_BATCH_SIZE"); v != "" {
		if n, e := strconv.Atoi(v); e == nil && n > 0 {
			batchSize = n
		}
	}

	var total int64
	for start := 0; start < len(rs.Rows); start += batchSize {
		end := start + batchSize
		if end > len(rs.Rows) {
			end = len(rs.Rows)
		}
		batch := rs.Rows[start:end]
		stmtStr, args := buildBatchInsert(table, cols, rs.Schema, batch)
		if _, err = tx.ExecContext(ctx, stmtStr, args...); err != nil {
			return 0, err
		}
		total += int64(len(batch))
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return total, nil
}

func buildBatchInsert(table string, cols []string, schema bigquery.Schema, batch [][]bigquery.Value) (string, []any) {
	valGroups := make([]string, len(batch))
	args := make([]any, 0, len(batch)*len(schema))
	for i := range batch {
		placeholders := make([]string, len(schema))
		for j := range placeholders {
			placeholders[j] = "?"
		}
		valGroups[i] = fmt.Sprintf("(%s)", strings.Join(placeholders, ", "))
		args = append(args, convertValues(batch[i], schema)...)
	}
	stmt := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES %s", table, strings.Join(cols, ", "), strings.Join(valGroups, ", "))
	return stmt, args
}

// mySQLType maps BigQuery field types to MySQL column types.
func mySQLType(f *bigquery.FieldSchema) string {
	switch f.Type {
	case bigquery.StringFieldType:
		return "VARCHAR(1024)"
	case bigquery.BytesFieldType:
		return "VARBINARY(1024)"
	case bigquery.IntegerFieldType:
		return "BIGINT"
	case bigquery.FloatFieldType:
		return "DOUBLE"
	case bigquery.BooleanFieldType:
		return "BOOLEAN"
	case bigquery.TimestampFieldType, bigquery.DateTimeFieldType:
		return "DATETIME"
	case bigquery.DateFieldType:
		return "DATE"
	case bigquery.TimeFieldType:
		return "VARCHAR(64)"
	case bigquery.NumericFieldType:
		return "DECIMAL(38,9)"
	case bigquery.JSONFieldType:
		return "JSON"
	default:
		return "VARCHAR(1024)"
	}
}

// convertValues converts BigQuery row values into types acceptable by the
// MySQL driver.
func convertValues(values []bigquery.Value, schema bigquery.Schema) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch schema[i].Type {
		case bigquery.TimestampFieldType:
			if t, ok := v.(time.Time); ok {
				out[i] = t
			} else {
				out[i] = nil
			}
		default:
			out[i] = v
		}
	}
	return out
}
