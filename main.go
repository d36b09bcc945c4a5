package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"metering-dist/internal/bootstrap"
	"metering-dist/internal/config"
	disthttp "metering-dist/internal/distribution/interfaces/http"
	"metering-dist/internal/observability/metrics"
	readings "metering-dist/internal/readings/domain"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	db, err := bootstrap.OpenDB(cfg)
	if err != nil {
		logger.Fatalf("%v", err)
	}
	if db != nil {
		defer db.Close()
	}

	metrics.Init(db, cfg.RegistryTable, logger)

	service, err := bootstrap.NewService(cfg, db, logger)
	if err != nil {
		logger.Fatalf("distribution service error: %v", err)
	}
	defaultFormat, err := readings.ParseFormat(cfg.DefaultFormat)
	if err != nil {
		logger.Fatalf("default format error: %v", err)
	}
	distributionHandler, err := disthttp.NewHandler(service, logger,
		disthttp.WithDefaultFormat(defaultFormat),
		disthttp.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	)
	if err != nil {
		logger.Fatalf("distribution handler error: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/distributions", distributionHandler)
	mux.Handle("/api/v1/distributions/", distributionHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				http.Error(w, "db unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(mux, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Printf("http listening on %s (registry source: %s)", cfg.HTTPAddr, cfg.RegistrySource)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
