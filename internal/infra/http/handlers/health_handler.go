package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const healthCheckTimeout = 2 * time.Second

// Pinger probes one dependency. Wrap db.PingContext with PingFunc.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	DB        Pinger
	Redis     Pinger
	RabbitMQ  *amqp091.Connection
	Version   string
	StartTime time.Time
}

type HealthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Uptime       string            `json:"uptime"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

func NewHealthHandler(db, redis Pinger, rabbitMQ *amqp091.Connection) *HealthHandler {
	return &HealthHandler{
		DB:        db,
		Redis:     redis,
		RabbitMQ:  rabbitMQ,
		Version:   "1.0.0",
		StartTime: time.Now(),
	}
}

// Handle answers GET /health without touching dependencies.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Version: h.Version,
		Uptime:  time.Since(h.StartTime).Round(time.Second).String(),
	})
}

// Detailed answers GET /health/detailed with a probe of every dependency.
func (h *HealthHandler) Detailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	deps := map[string]string{
		"database": probe(ctx, h.DB),
		"redis":    probe(ctx, h.Redis),
	}

	if h.RabbitMQ != nil {
		if h.RabbitMQ.IsClosed() {
			deps["rabbitmq"] = "unhealthy: connection closed"
		} else {
			deps["rabbitmq"] = "healthy"
		}
	} else {
		deps["rabbitmq"] = "not configured"
	}

	status := "healthy"
	for _, v := range deps {
		if v != "healthy" && v != "not configured" {
			status = "degraded"
			break
		}
	}

	resp := HealthResponse{
		Status:       status,
		Version:      h.Version,
		Uptime:       time.Since(h.StartTime).Round(time.Second).String(),
		Dependencies: deps,
	}

	code := http.StatusOK
	if status == "degraded" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, Response{Success: status == "healthy", Data: resp})
}

func probe(ctx context.Context, p Pinger) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
