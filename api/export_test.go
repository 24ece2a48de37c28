package api

import (
	"bq-csv-export/service"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubQuery struct {
	rs      *service.ResultSet
	err     error
	lastSQL string
}

func (s *stubQuery) RunQuery(ctx context.Context, sqlQuery, location string) (*service.ResultSet, error) {
	s.lastSQL = sqlQuery
	if s.err != nil {
		return nil, s.err
	}
	return s.rs, nil
}

type stubUpload struct{}

func (s *stubUpload) UploadObject(ctx context.Context, bucket, objectPath, contentType string, data []byte) error {
	return nil
}

func testPipeline(q *stubQuery) *service.Pipeline {
	cfg := service.Config{
		SourceProjectID:      "proj",
		DestinationProjectID: "dest",
		BucketName:           "my-bucket",
		DatasetName:          "sales",
		OutputFileType:       "export",
		Location:             "US",
	}
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 31, 15, 45, 9, 0, time.UTC))
	return service.NewPipeline(cfg, q, &stubUpload{}, nil, clock, nil)
}

func newRouter(p *service.Pipeline) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/export", ExportHandler(p))
	return r
}

func oneRowResult() *service.ResultSet {
	return &service.ResultSet{
		Schema: bigquery.Schema{
			{Name: "id", Type: bigquery.IntegerFieldType},
			{Name: "region", Type: bigquery.StringFieldType},
		},
		Rows: [][]bigquery.Value{{int64(1), "US"}},
	}
}

func TestExportHandlerSuccess(t *testing.T) {
	q := &stubQuery{rs: oneRowResult()}
	r := newRouter(testPipeline(q))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/export", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var res ExportResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "OK", res.Message)
	assert.Equal(t, "gs://my-bucket/sales/export/export_20260131_154509.csv", res.GCSPath)
	assert.Equal(t, 1, res.Rows)
	assert.False(t, res.Loaded)
}

func TestExportHandlerFilterOverride(t *testing.T) {
	q := &stubQuery{rs: oneRowResult()}
	r := newRouter(testPipeline(q))

	body := strings.NewReader(`{"query_filter": "region='US'"}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/export", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "SELECT * FROM `proj.sales.export` WHERE region='US'", q.lastSQL)
}

func TestExportHandlerQueryFailure(t *testing.T) {
	q := &stubQuery{err: fmt.Errorf("%w: table not found", service.ErrQuery)}
	r := newRouter(testPipeline(q))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/export", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "Failed to process export")
}

func TestExportHandlerBadBody(t *testing.T) {
	q := &stubQuery{rs: oneRowResult()}
	r := newRouter(testPipeline(q))

	body := strings.NewReader(`{"query_filter": 42}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/export", body)
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
