package api

import (
	"bq-csv-export/service"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type ExportRequest struct {
	// QueryFilter overrides the configured WHERE clause for this run only.
	QueryFilter string `json:"query_filter"`
}

type ExportResponse struct {
	Message string `json:"message"`
	GCSPath string `json:"gcs_path"`
	Rows    int    `json:"rows"`
	Loaded  bool   `json:"loaded,omitempty"`
}

func ExportHandler(pipeline *service.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ExportRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				slog.WarnContext(c.Request.Context(), "Invalid request body", "error", err)
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		p := pipeline
		if req.QueryFilter != "" {
			p = pipeline.WithFilter(req.QueryFilter)
		}

		slog.InfoContext(c.Request.Context(), "Received export request", "query_filter", req.QueryFilter)

		res, err := p.Run(c.Request.Context())
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "Export failed", "error", err)
			status := http.StatusInternalServerError
			if errors.Is(err, service.ErrConfiguration) {
				status = http.StatusBadRequest
			}
			c.JSON(status, gin.H{"error": "Failed to process export: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, ExportResponse{
			Message: "OK",
			GCSPath: res.GCSPath,
			Rows:    res.Rows,
			Loaded:  res.Loaded,
		})
	}
}
