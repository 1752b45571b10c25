package handler

import (
	"net/http"
	"time"

	"storeapi/internal/domain/model"
	"storeapi/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// 一覧以外の共通レスポンス
type Envelope struct {
	Status  bool        `json:"status"`
	Message string      `json:"message"`
	Error   string      `json:"error"`
	Data    interface{} `json:"data,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func writeError(c echo.Context, logger *zap.Logger, err error) error {
	if err == nil {
		return nil
	}
	he, ok := usecase.AsHTTPError(err)
	if !ok {
		he = &usecase.HTTPError{Status: http.StatusInternalServerError, Code: usecase.CodeInternal, Message: "internal error"}
	}
	if he.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Path()),
			zap.String("code", string(he.Code)),
			zap.Error(err),
		)
	}
	return c.JSON(he.Status, Envelope{Error: he.Message})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, Envelope{Error: msg})
}

// 表示用。priceはドル表記、foreign_currencyはINR換算。
type ProductResponse struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Price           string    `json:"price"`
	ForeignCurrency string    `json:"foreign_currency"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	Image           string    `json:"image"`
	RatingRate      float64   `json:"rating_rate"`
	RatingCount     int       `json:"rating_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

var (
	inrPerUSD = decimal.NewFromInt(80)
	enPrinter = message.NewPrinter(language.English)
)

func toProductResponse(p model.Product) ProductResponse {
	price := decimal.NewFromFloat(p.Price)
	inr := price.Mul(inrPerUSD).Round(2)

	return ProductResponse{
		ID:              p.ID,
		Title:           p.Title,
		Price:           "$" + price.StringFixed(2),
		ForeignCurrency: "₹" + enPrinter.Sprintf("%.2f", inr.InexactFloat64()),
		Description:     p.Description,
		Category:        p.Category,
		Image:           p.Image,
		RatingRate:      p.RatingRate,
		RatingCount:     p.RatingCount,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func toProductResponses(ps []model.Product) []ProductResponse {
	out := make([]ProductResponse, 0, len(ps))
	for _, p := range ps {
		out = append(out, toProductResponse(p))
	}
	return out
}
