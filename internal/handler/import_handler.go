package handler

import (
	"net/http"

	"storeapi/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type ImportResponse struct {
	Message         string `json:"message"`
	ProductsCreated int64  `json:"products_created"`
	ProductsSkipped int64  `json:"products_skipped"`
}

type ImportHandler struct {
	uc     *usecase.ImportUsecase
	logger *zap.Logger
}

// DI
func NewImportHandler(uc *usecase.ImportUsecase, logger *zap.Logger) *ImportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportHandler{uc: uc, logger: logger}
}

func (h *ImportHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/import-products", h.importProducts)
}

// 外部フィードからの一括取り込み
func (h *ImportHandler) importProducts(c echo.Context) error {
	res, err := h.uc.Import(c.Request().Context())
	if err != nil {
		he, ok := usecase.AsHTTPError(err)
		if !ok {
			h.logger.Error("import failed", zap.Error(err))
			return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
		}
		if he.Status >= http.StatusInternalServerError {
			h.logger.Error("import failed", zap.String("code", string(he.Code)), zap.Error(err))
		}
		return c.JSON(he.Status, ErrorResponse{Error: he.Message})
	}

	return c.JSON(http.StatusCreated, ImportResponse{
		Message:         "Bulk import completed.",
		ProductsCreated: res.Created,
		ProductsSkipped: res.Skipped,
	})
}
