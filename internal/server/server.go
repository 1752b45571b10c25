package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storeapi/internal/handler"
	"storeapi/internal/middleware"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Handlers struct {
	Product *handler.ProductHandler
	Import  *handler.ImportHandler
	Health  *handler.HealthHandler
}

// New はミドルウェアとルートを登録したechoを返す。
func New(h Handlers, logger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(logger))

	RegisterRoutes(e, h)
	return e
}

// Start はctxがキャンセルされるまでサーバーを動かし、その後graceful shutdownする。
func Start(ctx context.Context, e *echo.Echo, addr string, logger *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server started", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
