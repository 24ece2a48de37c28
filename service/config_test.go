package service

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(name string) string { return m[name] }
}

var fullEnv = map[string]string{
	"SOURCE_PROJECT_ID":      "proj",
	"DESTINATION_PROJECT_ID": "dest",
	"BUCKET_NAME":            "my-bucket",
	"DATASET_NAME":           "sales",
}

func TestResolveConfigMissingRequiredEnumeratesAll(t *testing.T) {
	_, err := ResolveConfig(envMap(nil), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
	for _, name := range []string{"SOURCE_PROJECT_ID", "DESTINATION_PROJECT_ID", "BUCKET_NAME", "DATASET_NAME"} {
		assert.Contains(t, err.Error(), name)
	}
}

func TestResolveConfigPartialMissing(t *testing.T) {
	env := map[string]string{
		"SOURCE_PROJECT_ID": "proj",
		"BUCKET_NAME":       "my-bucket",
	}
	_, err := ResolveConfig(envMap(env), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DESTINATION_PROJECT_ID")
	assert.Contains(t, err.Error(), "DATASET_NAME")
	assert.NotContains(t, err.Error(), "SOURCE_PROJECT_ID")
	assert.NotContains(t, err.Error(), "BUCKET_NAME")
}

func TestResolveConfigDefaults(t *testing.T) {
	cfg, err := ResolveConfig(envMap(fullEnv), nil)
	require.NoError(t, err)
	assert.Equal(t, "export", cfg.OutputFileType)
	assert.Equal(t, "", cfg.QueryFilter)
	assert.Equal(t, "US", cfg.Location)
	assert.Equal(t, ReloadBigQuery, cfg.ReloadDriver)
}

func TestResolveConfigFlagOverridesEnv(t *testing.T) {
	env := map[string]string{
		"SOURCE_PROJECT_ID":      "env-proj",
		"DESTINATION_PROJECT_ID": "dest",
		"BUCKET_NAME":            "my-bucket",
		"DATASET_NAME":           "sales",
		"OUTPUT_FILE_TYPE":       "env-type",
	}
	overrides := map[string]string{
		"SOURCE_PROJECT_ID": "flag-proj",
		"OUTPUT_FILE_TYPE":  "flag-type",
	}
	cfg, err := ResolveConfig(envMap(env), overrides)
	require.NoError(t, err)
	assert.Equal(t, "flag-proj", cfg.SourceProjectID)
	assert.Equal(t, "flag-type", cfg.OutputFileType)
	assert.Equal(t, "dest", cfg.DestinationProjectID)
}

func TestResolveConfigInvalidReloadDriver(t *testing.T) {
	env := map[string]string{}
	for k, v := range fullEnv {
		env[k] = v
	}
	env["RELOAD_DRIVER"] = "KAFKA"
	_, err := ResolveConfig(envMap(env), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestResolveConfigReloadDriverCaseInsensitive(t *testing.T) {
	env := map[string]string{}
	for k, v := range fullEnv {
		env[k] = v
	}
	env["RELOAD_DRIVER"] = "none"
	cfg, err := ResolveConfig(envMap(env), nil)
	require.NoError(t, err)
	assert.Equal(t, ReloadNone, cfg.ReloadDriver)
}

func TestQueryStatementWithoutFilter(t *testing.T) {
	cfg := Config{SourceProjectID: "proj", DatasetName: "sales", OutputFileType: "export"}
	assert.Equal(t, "SELECT * FROM `proj.sales.export`", cfg.QueryStatement())
}

func TestQueryStatementAppendsFilterVerbatim(t *testing.T) {
	cfg := Config{SourceProjectID: "proj", DatasetName: "sales", OutputFileType: "export"}
	base := cfg.QueryStatement()

	cfg.QueryFilter = "region='US'"
	assert.Equal(t, base+" WHERE region='US'", cfg.QueryStatement())
}

func TestObjectPathFormat(t *testing.T) {
	cfg := Config{DatasetName: "sales", OutputFileType: "export"}
	at := time.Date(2026, 1, 31, 15, 45, 9, 0, time.UTC)

	path := cfg.ObjectPath(at)
	assert.Equal(t, "sales/export/export_20260131_154509.csv", path)
	assert.Regexp(t, regexp.MustCompile(`^sales/export/export_\d{8}_\d{6}\.csv$`), path)

	// Same snapshot, same path.
	assert.Equal(t, path, cfg.ObjectPath(at))
}

func TestSourceURI(t *testing.T) {
	cfg := Config{BucketName: "my-bucket"}
	assert.Equal(t, "gs://my-bucket/sales/export/export_1.csv", cfg.SourceURI("sales/export/export_1.csv"))
}

func TestCredentialsAbsent(t *testing.T) {
	cfg := Config{}
	creds, err := cfg.Credentials(t.Context())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestCredentialsMalformed(t *testing.T) {
	cfg := Config{CredentialsJSON: "{not json"}
	_, err := cfg.Credentials(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfiguration)
}
