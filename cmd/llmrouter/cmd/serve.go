package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/entrepeneur4lyf/llmrouter/internal/registry"
	"github.com/entrepeneur4lyf/llmrouter/internal/router"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve Status/Metrics/Reload operational endpoints over HTTP",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8081", "listen address")
}

func runServe(c *cobra.Command, args []string) error {
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	r, reg, err := buildRouter(ctx)
	if err != nil {
		return err
	}
	go warmUpLoop(ctx, reg)

	m := mux.NewRouter()
	m.HandleFunc("/status", statusHandler(r)).Methods(http.MethodGet)
	m.HandleFunc("/metrics", metricsHandler(r)).Methods(http.MethodGet)
	m.HandleFunc("/reload", reloadHandler(r)).Methods(http.MethodPost)

	log.Info("llmrouter operational surface listening", "addr", serveAddr)
	return http.ListenAndServe(serveAddr, m)
}

func statusHandler(r *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"providers": r.Status()})
	}
}

func metricsHandler(r *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, map[string]any{"providers": r.Metrics()})
	}
}

func reloadHandler(r *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		result, err := r.Reload(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, result)
	}
}

// warmUpLoop calls reg.WarmUp once a minute so a cold local model server
// gets loaded before real traffic arrives. WarmUp's own once-per-interval
// guard still applies, so ticks inside that interval probe nothing.
func warmUpLoop(ctx context.Context, reg *registry.Registry) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := reg.WarmUp(ctx); err != nil {
				log.Warn("warm-up sweep failed", "err", err)
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", "err", err)
	}
}
