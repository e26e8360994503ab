package handlers

import (
	"context"
	"net/http"
	"time"
)

const (
	appName    = "Nova Angola Backend"
	appVersion = "1.0.0"

	healthTimeout = 2 * time.Second
)

var endpoints = []string{
	"POST /login",
	"POST /cadastro",
	"POST /upload",
	"POST /postar_aria",
	"POST /analisar_aria",
	"GET  /buscar_aria_de_risco",
	"GET  /buscar_analise_total?ariaDeRisco={id}",
}

// Pinger is a dependency the health check pings.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// IndexResponse describes the service and its endpoints.
type IndexResponse struct {
	Status    string   `json:"status"`
	App       string   `json:"app"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Index lists the public endpoints.
func Index(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, IndexResponse{
		Status:    "ok",
		App:       appName,
		Version:   appVersion,
		Endpoints: endpoints,
	})
}

// HealthResponse reports the state of each dependency.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthz reports 200 when every named dependency answers a ping.
func Healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		code := http.StatusOK
		resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
		for name, check := range checks {
			if err := check.PingContext(ctx); err != nil {
				code = http.StatusServiceUnavailable
				resp.Status = "unavailable"
				resp.Checks[name] = err.Error()
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, code, resp)
	}
}
