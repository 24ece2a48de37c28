package main

import (
	"bq-csv-export/api"
	"bq-csv-export/service"
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/pflag"
	"google.golang.org/api/option"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Flag names mapped to the environment variables they override.
var flagEnv = map[string]string{
	"source-project-id":      "SOURCE_PROJECT_ID",
	"destination-project-id": "DESTINATION_PROJECT_ID",
	"bucket-name":            "BUCKET_NAME",
	"dataset-name":           "DATASET_NAME",
	"output-file-type":       "OUTPUT_FILE_TYPE",
	"query-filter":           "BIGQUERY_SQL_FILTER",
}

func setupLogger() *slog.Logger {
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "bq-export.log"
	}

	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	// Structured lines go to stdout and to a rolling local file.
	sink := io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   logFile,
		MaxSize:    50, // megabytes
		MaxBackups: 3,
	})
	logger := slog.New(slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func main() {
	logger := setupLogger()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using system environment variables")
	}

	// Command-line flags override the environment.
	pflag.String("source-project-id", "", "Source project ID where BigQuery data resides")
	pflag.String("destination-project-id", "", "Destination project ID for the GCS bucket and load job")
	pflag.String("bucket-name", "", "Name of the GCS bucket to upload to")
	pflag.String("dataset-name", "", "BigQuery dataset name")
	pflag.String("output-file-type", "", "Output file type, used for table name and file naming (default: export)")
	pflag.String("query-filter", "", "Optional WHERE clause filter for the BigQuery query")
	pflag.Parse()

	overrides := map[string]string{}
	pflag.Visit(func(f *pflag.Flag) {
		if env, ok := flagEnv[f.Name]; ok {
			overrides[env] = f.Value.String()
		}
	})

	cfg, err := service.ResolveConfig(os.Getenv, overrides)
	if err != nil {
		slog.Error("Configuration failed", "error", err)
		pflag.Usage()
		os.Exit(1)
	}

	ctx := context.Background()

	// One credential context shared by the query and storage clients.
	var opts []option.ClientOption
	creds, err := cfg.Credentials(ctx)
	if err != nil {
		slog.Error("Configuration failed", "error", err)
		os.Exit(1)
	}
	if creds != nil {
		opts = append(opts, option.WithCredentials(creds))
	} else {
		slog.Info("SERVICE_ACCOUNT_CREDENTIALS not set, using application default credentials")
	}

	bqSource, err := service.NewBigQueryService(ctx, cfg.SourceProjectID, opts...)
	if err != nil {
		slog.Error("Failed to initialize BigQuery service", "error", err)
		os.Exit(1)
	}
	defer bqSource.Close()

	gcs, err := service.NewStorageService(ctx, opts...)
	if err != nil {
		slog.Error("Failed to initialize Storage service", "error", err)
		os.Exit(1)
	}
	defer gcs.Close()

	var reload service.ReloadDriver
	switch cfg.ReloadDriver {
	case service.ReloadNone:
		// Export only.
	case service.ReloadMySQL:
		myService, err := service.NewMySQLServiceFromEnv()
		if err != nil {
			slog.Error("Failed to initialize MySQL service", "error", err)
			os.Exit(1)
		}
		defer myService.Close()
		reload = service.NewMySQLDriver(myService, cfg.OutputFileType)
	default:
		bqDest, err := service.NewBigQueryService(ctx, cfg.DestinationProjectID, opts...)
		if err != nil {
			slog.Error("Failed to initialize destination BigQuery service", "error", err)
			os.Exit(1)
		}
		defer bqDest.Close()
		reload = service.NewBigQueryLoadDriver(bqDest)
	}

	pipeline := service.NewPipeline(cfg, bqSource, gcs, reload, clockwork.NewRealClock(), logger)

	// Server mode: expose the pipeline over HTTP (for Cloud Run / Cloud
	// Scheduler). Default is one-shot job execution.
	if os.Getenv("RUN_MODE") == "server" {
		runServer(pipeline)
		return
	}

	res, err := pipeline.Run(ctx)
	if err != nil {
		slog.Error("Export run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Export run completed", "gcs_path", res.GCSPath, "rows", res.Rows, "loaded", res.Loaded)
}

func runServer(pipeline *service.Pipeline) {
	// Release mode is better for production performance
	if os.Getenv("GIN_MODE") == "" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New() // Use New() to skip default logger/recovery middleware for custom ones
	r.Use(gin.Recovery())

	apiKey := os.Getenv("API_KEY")
	if apiKey != "" {
		r.Use(func(c *gin.Context) {
			if c.Request.URL.Path == "/health" {
				c.Next()
				return
			}
			if c.GetHeader("X-API-Key") != apiKey {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
				return
			}
			c.Next()
		})
	}

	// Custom logger middleware for Gin that uses slog
	r.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		msg := "Request processed"
		attrs := []any{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", status),
			slog.Duration("latency", latency),
			slog.String("client_ip", c.ClientIP()),
		}
		if raw != "" {
			attrs = append(attrs, slog.String("query", raw))
		}

		// Cloud Scheduler specific headers
		if jobName := c.GetHeader("X-CloudScheduler-JobName"); jobName != "" {
			attrs = append(attrs, slog.String("scheduler_job", jobName))
		}
		if scheduleTime := c.GetHeader("X-CloudScheduler-ScheduleTime"); scheduleTime != "" {
			attrs = append(attrs, slog.String("scheduler_time", scheduleTime))
		}

		if status >= 500 {
			slog.Error(msg, attrs...)
		} else {
			slog.Info(msg, attrs...)
		}
	})

	// CORS configuration
	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	r.Use(cors.New(config))

	// Health Check Endpoint (Vital for Cloud Run)
	r.GET("/health", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	// Routes
	r.POST("/api/export", api.ExportHandler(pipeline))

	// Server setup with Graceful Shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Server starting", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	// The context is used to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server exiting")
}
