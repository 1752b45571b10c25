package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"storeapi/internal/handler"
	"storeapi/internal/infra/cache"
	"storeapi/internal/infra/db"
	"storeapi/internal/infra/db/dbtest"
	"storeapi/internal/infra/feed"
	infraRepo "storeapi/internal/infra/repository"
	"storeapi/internal/server"
	"storeapi/internal/usecase"
	"storeapi/internal/validator"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =====================
// レスポンス確認用
// =====================

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type productDTO struct {
	ID              int64     `json:"id"`
	Title           string    `json:"title"`
	Price           string    `json:"price"`
	ForeignCurrency string    `json:"foreign_currency"`
	RatingRate      float64   `json:"rating_rate"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type listDTO struct {
	Count    int64        `json:"count"`
	Next     *string      `json:"next"`
	Previous *string      `json:"previous"`
	Results  []productDTO `json:"results"`
}

type importDTO struct {
	Message         string `json:"message"`
	ProductsCreated int64  `json:"products_created"`
	ProductsSkipped int64  `json:"products_skipped"`
	Error           string `json:"error"`
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// =====================
// helper
// =====================

// primaryとreplicaが同じsqliteのサーバー
func newTestServer(t *testing.T, feedURL string) *echo.Echo {
	t.Helper()

	_, router := dbtest.Single(t)
	return newServerWithRouter(t, router, feedURL)
}

func newServerWithRouter(t *testing.T, router *db.Router, feedURL string) *echo.Echo {
	t.Helper()

	logger := zap.NewNop()
	r := infraRepo.NewProductGormRepository(router)
	productUC := usecase.NewProductUsecase(r, cache.NopProductCache{}, validator.NewProductValidator(), realClock{}, logger)
	importUC := usecase.NewImportUsecase(r, feed.NewClient(feed.Config{URL: feedURL, Timeout: time.Second}, logger), realClock{}, usecase.ImportConfig{}, logger)

	return server.New(server.Handlers{
		Product: handler.NewProductHandler(productUC, logger),
		Import:  handler.NewImportHandler(importUC, logger),
		Health:  handler.NewHealthHandler(router),
	}, logger)
}

func do(t *testing.T, e *echo.Echo, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createProduct(t *testing.T, e *echo.Echo, title string, price float64) productDTO {
	t.Helper()

	rec := do(t, e, http.MethodPost, "/create-product", map[string]interface{}{"title": title, "price": price})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	env := decode[envelope](t, rec)
	var p productDTO
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

// =====================
// シナリオ
// =====================

func TestWidgetScenario(t *testing.T) {
	e := newTestServer(t, "")

	// 作成
	rec := do(t, e, http.MethodPost, "/create-product", map[string]interface{}{"title": "Widget", "price": 9.99})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[envelope](t, rec)
	assert.True(t, created.Status)
	assert.Equal(t, "Product created successfully.", created.Message)
	var widget productDTO
	require.NoError(t, json.Unmarshal(created.Data, &widget))
	assert.Equal(t, "$9.99", widget.Price)
	assert.Equal(t, "₹799.20", widget.ForeignCurrency)

	// 大文字小文字違いは重複
	rec = do(t, e, http.MethodPost, "/create-product", map[string]interface{}{"title": "WIDGET", "price": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Product with this title already exists.", decode[envelope](t, rec).Error)

	// 検索
	rec = do(t, e, http.MethodGet, "/product-list?search=widg", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listDTO](t, rec)
	assert.Equal(t, int64(1), list.Count)
	require.Len(t, list.Results, 1)
	assert.Equal(t, widget.ID, list.Results[0].ID)
	assert.Nil(t, list.Next)
	assert.Nil(t, list.Previous)

	// 削除後は404
	rec = do(t, e, http.MethodDelete, fmt.Sprintf("/delete-product?product_id=%d", widget.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Product deleted successfully.", decode[envelope](t, rec).Message)

	rec = do(t, e, http.MethodGet, fmt.Sprintf("/product-details?product_id=%d", widget.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Product not found.", decode[envelope](t, rec).Error)
}

// =====================
// 一覧
// =====================

func TestProductList_PagingLinks(t *testing.T) {
	e := newTestServer(t, "")
	for i := 0; i < 3; i++ {
		createProduct(t, e, fmt.Sprintf("item %d", i), 1)
	}

	rec := do(t, e, http.MethodGet, "/product-list?limit=1&page=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[listDTO](t, rec)
	assert.Equal(t, int64(3), list.Count)
	assert.Len(t, list.Results, 1)
	require.NotNil(t, list.Next)
	require.NotNil(t, list.Previous)
	assert.Contains(t, *list.Next, "page=3")
	assert.Contains(t, *list.Next, "limit=1")
	assert.NotContains(t, *list.Previous, "page=")
}

func TestProductList_InvalidPage(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/product-list?page=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid page.", decode[envelope](t, rec).Error)
}

func TestProductList_EmptyResultsIsArray(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/product-list", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"results":[]`)
}

// =====================
// 詳細・更新・削除
// =====================

func TestProductDetail_MissingOrInvalidID(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/product-details", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing 'product_id' in query parameters.", decode[envelope](t, rec).Error)

	rec = do(t, e, http.MethodGet, "/product-details?product_id=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductDetail_Success(t *testing.T) {
	e := newTestServer(t, "")
	p := createProduct(t, e, "Widget", 1234.5)

	rec := do(t, e, http.MethodGet, fmt.Sprintf("/product-details?product_id=%d", p.ID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[envelope](t, rec)
	var got productDTO
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "$1234.50", got.Price)
	assert.Equal(t, "₹98,760.00", got.ForeignCurrency)
}

func TestUpdateProduct(t *testing.T) {
	e := newTestServer(t, "")
	widget := createProduct(t, e, "Widget", 1)
	gadget := createProduct(t, e, "Gadget", 2)

	rec := do(t, e, http.MethodPut, fmt.Sprintf("/update-product?product_id=%d", gadget.ID), map[string]interface{}{"title": "widget"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Another product with this title already exists.", decode[envelope](t, rec).Error)

	rec = do(t, e, http.MethodPut, fmt.Sprintf("/update-product?product_id=%d", widget.ID), map[string]interface{}{"price": 3.5})
	require.Equal(t, http.StatusOK, rec.Code)
	env := decode[envelope](t, rec)
	assert.Equal(t, "Product updated successfully.", env.Message)
	var got productDTO
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "$3.50", got.Price)
	assert.Equal(t, "Widget", got.Title)
	assert.True(t, widget.CreatedAt.Equal(got.CreatedAt))
	assert.True(t, got.UpdatedAt.After(widget.UpdatedAt))

	rec = do(t, e, http.MethodPut, "/update-product?product_id=999", map[string]interface{}{"price": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, e, http.MethodPut, "/update-product", map[string]interface{}{"price": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteProduct_NotFound(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodDelete, "/delete-product?product_id=999", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBulkDelete(t *testing.T) {
	e := newTestServer(t, "")
	a := createProduct(t, e, "A", 1)
	b := createProduct(t, e, "B", 1)

	rec := do(t, e, http.MethodDelete, "/bulk-delete-products", fmt.Sprintf(`{"product_ids":[%d,"%d",999]}`, a.ID, b.ID))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decode[envelope](t, rec)
	assert.Equal(t, "2 product(s) deleted successfully.", env.Message)
	assert.JSONEq(t, `{"deleted_count":2}`, string(env.Data))
}

func TestBulkDelete_InvalidBody(t *testing.T) {
	e := newTestServer(t, "")

	for _, body := range []string{
		`{}`,
		`{"product_ids":[]}`,
		`{"product_ids":5}`,
		`{"product_ids":"1,2"}`,
		`{"product_ids":[1,"x"]}`,
		`{"product_ids":[1.5]}`,
	} {
		rec := do(t, e, http.MethodDelete, "/bulk-delete-products", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "'product_ids' must be a list of IDs.", decode[envelope](t, rec).Error, body)
	}
}

// =====================
// 取り込み
// =====================

func TestImportProducts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"title":"Backpack","price":109.95,"description":"bag","category":"bags","image":"i","rating":{"rate":3.9,"count":120}},
			{"title":"T-Shirt","price":22.3,"description":"shirt","category":"clothing","image":"i","rating":{"rate":4.1,"count":259}}
		]`))
	}))
	defer srv.Close()
	e := newTestServer(t, srv.URL)

	rec := do(t, e, http.MethodGet, "/import-products", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	res := decode[importDTO](t, rec)
	assert.Equal(t, "Bulk import completed.", res.Message)
	assert.Equal(t, int64(2), res.ProductsCreated)
	assert.Equal(t, int64(0), res.ProductsSkipped)

	rec = do(t, e, http.MethodGet, "/import-products", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	res = decode[importDTO](t, rec)
	assert.Equal(t, int64(0), res.ProductsCreated)
	assert.Equal(t, int64(2), res.ProductsSkipped)
}

func TestImportProducts_FeedDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	e := newTestServer(t, srv.URL)

	rec := do(t, e, http.MethodGet, "/import-products", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotEmpty(t, decode[importDTO](t, rec).Error)
}

// =====================
// healthz / metrics
// =====================

func TestHealthz(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","connections":{"primary":"ok","replica":"ok"}}`, rec.Body.String())
}

func TestHealthz_ReplicaDown(t *testing.T) {
	primary := dbtest.Open(t, "primary")
	router := db.NewRouter(primary, nil, db.RouterConfig{}, zap.NewNop())
	e := newServerWithRouter(t, router, "")

	rec := do(t, e, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)

	// 一般読み取りは503
	rec = do(t, e, http.MethodGet, "/product-list", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "storage unavailable", decode[envelope](t, rec).Error)
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestServer(t, "")
	_ = do(t, e, http.MethodGet, "/product-list", nil)

	rec := do(t, e, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "storeapi_storage_operations_total")
}

func TestRequestIDHeader(t *testing.T) {
	e := newTestServer(t, "")

	rec := do(t, e, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}
