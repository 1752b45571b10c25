package handler

import (
	"context"
	"net/http"

	"storeapi/internal/infra/db"

	"github.com/labstack/echo/v4"
)

type Pinger interface {
	Ping(ctx context.Context) map[db.Target]error
}

type HealthResponse struct {
	Status      string            `json:"status"`
	Connections map[string]string `json:"connections"`
}

type HealthHandler struct {
	pinger Pinger
}

// DI
func NewHealthHandler(pinger Pinger) *HealthHandler {
	return &HealthHandler{pinger: pinger}
}

func (h *HealthHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.healthz)
}

// primaryが落ちていたら503。replicaだけなら読み取りが劣化しているだけなので200。
func (h *HealthHandler) healthz(c echo.Context) error {
	res := HealthResponse{Status: "ok", Connections: map[string]string{}}
	status := http.StatusOK

	for target, err := range h.pinger.Ping(c.Request().Context()) {
		if err == nil {
			res.Connections[string(target)] = "ok"
			continue
		}
		res.Connections[string(target)] = err.Error()
		if target == db.TargetPrimary {
			status = http.StatusServiceUnavailable
			res.Status = "unavailable"
		} else if res.Status == "ok" {
			res.Status = "degraded"
		}
	}

	return c.JSON(status, res)
}
