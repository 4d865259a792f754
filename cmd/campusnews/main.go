package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"

	"campusnews/internal/app"
	"campusnews/internal/metrics"
)

func main() {
	// Optional monitoring endpoint for the host running the job
	if os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go serveMonitoring()
	}

	if err := app.Run(); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func serveMonitoring() {
	port := os.Getenv("MONITORING_PORT")
	if port == "" {
		port = "8080"
	}

	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := metrics.Global.GetStats()

		status := "ok"
		w.Header().Set("Content-Type", "application/json")
		if healthy, _ := stats["is_healthy"].(bool); !healthy {
			status = "error"
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status,
			"runs":       stats["run_count"],
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		})
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(metrics.Global.GetStats())
	})

	log.Printf("Starting monitoring server on port %s", port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		log.Printf("Monitoring server error: %v", err)
	}
}
