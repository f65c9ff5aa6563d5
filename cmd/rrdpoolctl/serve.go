package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	pool "github.com/comdata/jrobin"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8420", "address to listen on")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a pool and expose /dump and /metrics over HTTP",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := pool.DefaultConfig()
	if configPath != "" {
		loaded, err := pool.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	p := pool.New(cfg.Options()...)
	defer p.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(pool.NewCollector(p))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	})
	r.Get("/dump", func(w http.ResponseWriter, req *http.Request) {
		includeFiles := req.URL.Query().Get("files") == "true"
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(p.Dump(includeFiles)))
	})
	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	slog.Info("rrdpoolctl serving", "addr", serveAddr)
	return http.ListenAndServe(serveAddr, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
