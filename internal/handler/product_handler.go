package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"storeapi/internal/usecase"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const msgMissingProductID = "Missing 'product_id' in query parameters."

type ProductCreateRequest struct {
	Title       string  `json:"title"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	RatingRate  float64 `json:"rating_rate"`
	RatingCount int     `json:"rating_count"`
}

// 部分更新。送られてこなかったフィールドはnil。
type ProductUpdateRequest struct {
	Title       *string  `json:"title"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	RatingRate  *float64 `json:"rating_rate"`
	RatingCount *int     `json:"rating_count"`
}

type BulkDeleteRequest struct {
	ProductIDs json.RawMessage `json:"product_ids"`
}

type BulkDeleteData struct {
	DeletedCount int64 `json:"deleted_count"`
}

// ページング（count/next/previous/results）
type ProductListResponse struct {
	Count    int64             `json:"count"`
	Next     *string           `json:"next"`
	Previous *string           `json:"previous"`
	Results  []ProductResponse `json:"results"`
}

type ProductHandler struct {
	uc     *usecase.ProductUsecase
	logger *zap.Logger
}

// DI
func NewProductHandler(uc *usecase.ProductUsecase, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{uc: uc, logger: logger}
}

// 商品のルートを登録
func (h *ProductHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/product-list", h.list)
	e.POST("/create-product", h.create)
	e.GET("/product-details", h.detail)
	e.PUT("/update-product", h.update)
	e.DELETE("/delete-product", h.delete)
	e.DELETE("/bulk-delete-products", h.bulkDelete)
}

func (h *ProductHandler) list(c echo.Context) error {
	out, err := h.uc.ListProducts(c.Request().Context(), usecase.ListProductsInput{
		Search:   c.QueryParam("search"),
		Category: c.QueryParam("category"),
		MinPrice: c.QueryParam("min_price"),
		MaxPrice: c.QueryParam("max_price"),
		Page:     c.QueryParam("page"),
		Limit:    c.QueryParam("limit"),
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	res := ProductListResponse{
		Count:   out.Total,
		Results: toProductResponses(out.Items),
	}
	if int64(out.Page)*int64(out.Limit) < out.Total {
		next := pageURL(c, out.Page+1)
		res.Next = &next
	}
	if out.Page > 1 {
		prev := pageURL(c, out.Page-1)
		res.Previous = &prev
	}

	return c.JSON(http.StatusOK, res)
}

func (h *ProductHandler) create(c echo.Context) error {
	var req ProductCreateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	p, err := h.uc.CreateProduct(c.Request().Context(), usecase.CreateProductInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		RatingRate:  req.RatingRate,
		RatingCount: req.RatingCount,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(http.StatusCreated, Envelope{
		Status:  true,
		Message: "Product created successfully.",
		Data:    toProductResponse(p),
	})
}

func (h *ProductHandler) detail(c echo.Context) error {
	id, errMsg := productIDParam(c)
	if errMsg != "" {
		return badRequest(c, errMsg)
	}

	p, err := h.uc.GetProductDetail(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, Envelope{
		Status:  true,
		Message: "Product details fetched successfully.",
		Data:    toProductResponse(p),
	})
}

func (h *ProductHandler) update(c echo.Context) error {
	id, errMsg := productIDParam(c)
	if errMsg != "" {
		return badRequest(c, errMsg)
	}

	var req ProductUpdateRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	p, err := h.uc.UpdateProduct(c.Request().Context(), id, usecase.UpdateProductInput{
		Title:       req.Title,
		Price:       req.Price,
		Description: req.Description,
		Category:    req.Category,
		Image:       req.Image,
		RatingRate:  req.RatingRate,
		RatingCount: req.RatingCount,
	})
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, Envelope{
		Status:  true,
		Message: "Product updated successfully.",
		Data:    toProductResponse(p),
	})
}

func (h *ProductHandler) delete(c echo.Context) error {
	id, errMsg := productIDParam(c)
	if errMsg != "" {
		return badRequest(c, errMsg)
	}

	if err := h.uc.DeleteProduct(c.Request().Context(), id); err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, Envelope{
		Status:  true,
		Message: "Product deleted successfully.",
	})
}

func (h *ProductHandler) bulkDelete(c echo.Context) error {
	var req BulkDeleteRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}

	ids, ok := parseProductIDs(req.ProductIDs)
	if !ok {
		return badRequest(c, "'product_ids' must be a list of IDs.")
	}

	deleted, err := h.uc.BulkDeleteProducts(c.Request().Context(), ids)
	if err != nil {
		return writeError(c, h.logger, err)
	}

	return c.JSON(http.StatusOK, Envelope{
		Status:  true,
		Message: fmt.Sprintf("%d product(s) deleted successfully.", deleted),
		Data:    BulkDeleteData{DeletedCount: deleted},
	})
}

// ?product_id= を読む。エラー時はメッセージを返す。
func productIDParam(c echo.Context) (int64, string) {
	raw := strings.TrimSpace(c.QueryParam("product_id"))
	if raw == "" {
		return 0, msgMissingProductID
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, "Invalid 'product_id'."
	}
	return id, ""
}

// 空でない配列で、要素は整数か数字の文字列
func parseProductIDs(raw json.RawMessage) ([]int64, bool) {
	var items []json.RawMessage
	if len(raw) == 0 || json.Unmarshal(raw, &items) != nil || len(items) == 0 {
		return nil, false
	}

	ids := make([]int64, 0, len(items))
	for _, item := range items {
		var n int64
		if err := json.Unmarshal(item, &n); err == nil {
			ids = append(ids, n)
			continue
		}
		var s string
		if err := json.Unmarshal(item, &s); err != nil {
			return nil, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, false
		}
		ids = append(ids, n)
	}
	return ids, true
}

func pageURL(c echo.Context, page int) string {
	req := c.Request()
	q := req.URL.Query()
	if page <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(page))
	}

	u := url.URL{
		Scheme:   c.Scheme(),
		Host:     req.Host,
		Path:     req.URL.Path,
		RawQuery: q.Encode(),
	}
	return u.String()
}
