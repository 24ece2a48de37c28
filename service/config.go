package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2/google"
)

// Reload driver selection values for RELOAD_DRIVER.
const (
	ReloadBigQuery = "BIGQUERY"
	ReloadMySQL    = "MYSQL"
	ReloadNone     = "NONE"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Config holds the resolved parameters for one run. It is built once at
// startup and read-only afterwards.
type Config struct {
	SourceProjectID      string
	DestinationProjectID string
	BucketName           string
	DatasetName          string
	OutputFileType       string
	QueryFilter          string
	CredentialsJSON      string
	Location             string
	ReloadDriver         string
}

var requiredEnv = []string{
	"SOURCE_PROJECT_ID",
	"DESTINATION_PROJECT_ID",
	"BUCKET_NAME",
	"DATASET_NAME",
}

// ResolveConfig builds a Config from the environment. Overrides come from
// command-line flags, keyed by environment variable name, and take precedence.
// All missing required values are reported in a single error so an operator
// can fix the whole invocation at once.
func ResolveConfig(getenv func(string) string, overrides map[string]string) (Config, error) {
	value := func(name string) string {
		if v, ok := overrides[name]; ok {
			return v
		}
		return getenv(name)
	}

	var missing []string
	for _, name := range requiredEnv {
		if value(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("%w: missing required configuration: %s", ErrConfiguration, strings.Join(missing, ", "))
	}

	cfg := Config{
		SourceProjectID:      value("SOURCE_PROJECT_ID"),
		DestinationProjectID: value("DESTINATION_PROJECT_ID"),
		BucketName:           value("BUCKET_NAME"),
		DatasetName:          value("DATASET_NAME"),
		OutputFileType:       value("OUTPUT_FILE_TYPE"),
		QueryFilter:          value("BIGQUERY_SQL_FILTER"),
		CredentialsJSON:      value("SERVICE_ACCOUNT_CREDENTIALS"),
		Location:             value("BIGQUERY_LOCATION"),
		ReloadDriver:         strings.ToUpper(value("RELOAD_DRIVER")),
	}
	if cfg.OutputFileType == "" {
		cfg.OutputFileType = "export"
	}
	if cfg.Location == "" {
		cfg.Location = "US"
	}
	if cfg.ReloadDriver == "" {
		cfg.ReloadDriver = ReloadBigQuery
	}
	switch cfg.ReloadDriver {
	case ReloadBigQuery, ReloadMySQL, ReloadNone:
	default:
		return Config{}, fmt.Errorf("%w: invalid RELOAD_DRIVER %q (want BIGQUERY, MYSQL or NONE)", ErrConfiguration, cfg.ReloadDriver)
	}
	return cfg, nil
}

func (c Config) SourceTable() string {
	return fmt.Sprintf("%s.%s.%s", c.SourceProjectID, c.DatasetName, c.OutputFileType)
}

func (c Config) DestinationTable() string {
	return fmt.Sprintf("%s.%s.%s", c.DestinationProjectID, c.DatasetName, c.OutputFileType)
}

// QueryStatement builds the SELECT sent to BigQuery. The filter string is
// interpolated verbatim: it is an operator-supplied SQL fragment and a known
// injection surface, so callers must treat it as trusted input.
func (c Config) QueryStatement() string {
	q := fmt.Sprintf("SELECT * FROM `%s`", c.SourceTable())
	if c.QueryFilter != "" {
		q += " WHERE " + c.QueryFilter
	}
	return q
}

// ObjectPath derives the bucket key for the exported CSV from a single clock
// snapshot. It is computed exactly once per run, so every run writes a
// distinct object and a re-run never collides with a failed predecessor.
func (c Config) ObjectPath(now time.Time) string {
	ts := now.Format("20060102_150405")
	return fmt.Sprintf("%s/%s/%s_%s.csv", c.DatasetName, c.OutputFileType, c.OutputFileType, ts)
}

func (c Config) SourceURI(objectPath string) string {
	return fmt.Sprintf("gs://%s/%s", c.BucketName, objectPath)
}

// Credentials parses the SERVICE_ACCOUNT_CREDENTIALS payload into a
// cloud-platform-scoped credential shared by the BigQuery and Storage
// clients. Returns nil when no payload is configured, in which case the
// clients fall back to Application Default Credentials.
func (c Config) Credentials(ctx context.Context) (*google.Credentials, error) {
	if c.CredentialsJSON == "" {
		return nil, nil
	}
	creds, err := google.CredentialsFromJSON(ctx, []byte(c.CredentialsJSON), cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing SERVICE_ACCOUNT_CREDENTIALS: %v", ErrConfiguration, err)
	}
	return creds, nil
}
