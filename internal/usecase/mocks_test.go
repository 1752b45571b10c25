package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"storeapi/internal/domain/model"
	"storeapi/internal/infra/cache"
	"storeapi/internal/infra/db"
	"storeapi/internal/infra/db/dbtest"
	infraRepo "storeapi/internal/infra/repository"
	repo "storeapi/internal/repository"
	"storeapi/internal/usecase"
	"storeapi/internal/validator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// =====================
// Mocks
// =====================

type ProductRepoMock struct{ mock.Mock }

func (m *ProductRepoMock) List(ctx context.Context, kind repo.OpKind, q repo.ProductListQuery) ([]model.Product, int64, error) {
	args := m.Called(ctx, kind, q)
	items, _ := args.Get(0).([]model.Product)
	return items, args.Get(1).(int64), args.Error(2)
}

func (m *ProductRepoMock) FindByID(ctx context.Context, kind repo.OpKind, id int64) (model.Product, error) {
	args := m.Called(ctx, kind, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) ExistsByTitleCI(ctx context.Context, kind repo.OpKind, title string, excludeID int64) (bool, error) {
	args := m.Called(ctx, kind, title, excludeID)
	return args.Bool(0), args.Error(1)
}

func (m *ProductRepoMock) ListTitles(ctx context.Context, kind repo.OpKind) ([]string, error) {
	args := m.Called(ctx, kind)
	titles, _ := args.Get(0).([]string)
	return titles, args.Error(1)
}

func (m *ProductRepoMock) Create(ctx context.Context, p model.Product) (model.Product, error) {
	args := m.Called(ctx, p)
	created, _ := args.Get(0).(model.Product)
	return created, args.Error(1)
}

func (m *ProductRepoMock) BulkInsert(ctx context.Context, products []model.Product, batchSize int) (int64, error) {
	args := m.Called(ctx, products, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

func (m *ProductRepoMock) Update(ctx context.Context, id int64, patch repo.ProductPatch) (model.Product, error) {
	args := m.Called(ctx, id, patch)
	p, _ := args.Get(0).(model.Product)
	return p, args.Error(1)
}

func (m *ProductRepoMock) Delete(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *ProductRepoMock) BulkDelete(ctx context.Context, ids []int64, batchSize int) (int64, error) {
	args := m.Called(ctx, ids, batchSize)
	return args.Get(0).(int64), args.Error(1)
}

var _ repo.ProductRepository = (*ProductRepoMock)(nil)

type ProductCacheMock struct{ mock.Mock }

func (m *ProductCacheMock) Get(ctx context.Context, id int64) (model.Product, bool, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(model.Product)
	return p, args.Bool(1), args.Error(2)
}

func (m *ProductCacheMock) Set(ctx context.Context, p model.Product) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *ProductCacheMock) Delete(ctx context.Context, ids ...int64) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

var _ repo.ProductCache = (*ProductCacheMock)(nil)

type FeedMock struct{ mock.Mock }

func (m *FeedMock) Fetch(ctx context.Context) ([]model.FeedProduct, error) {
	args := m.Called(ctx)
	items, _ := args.Get(0).([]model.FeedProduct)
	return items, args.Error(1)
}

// 進めない限り同じ時刻を返す
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// =====================
// helper
// =====================

type storeEnv struct {
	primary *gorm.DB
	replica *gorm.DB
	repo    *infraRepo.ProductGormRepository
	clock   *fakeClock
	uc      *usecase.ProductUsecase
}

// primary/replicaを別DBにした実ストア。replicaは明示的にsyncするまで古いまま。
func newStoreEnv(t *testing.T) *storeEnv {
	t.Helper()

	primary, replica, router := dbtest.Pair(t, db.RouterConfig{})
	r := infraRepo.NewProductGormRepository(router)
	clock := newFakeClock()
	return &storeEnv{
		primary: primary,
		replica: replica,
		repo:    r,
		clock:   clock,
		uc:      usecase.NewProductUsecase(r, cache.NopProductCache{}, validator.NewProductValidator(), clock, zap.NewNop()),
	}
}

// primaryの内容をreplicaへ丸ごと反映する
func (e *storeEnv) sync(t *testing.T) {
	t.Helper()

	var rows []model.Product
	if err := e.primary.Find(&rows).Error; err != nil {
		t.Fatalf("read primary: %v", err)
	}
	if err := e.replica.Exec("DELETE FROM products").Error; err != nil {
		t.Fatalf("clear replica: %v", err)
	}
	if len(rows) > 0 {
		if err := e.replica.Create(&rows).Error; err != nil {
			t.Fatalf("write replica: %v", err)
		}
	}
}

func assertErrCode(t *testing.T, err error, status int, code usecase.ErrorCode) {
	t.Helper()

	he, ok := usecase.AsHTTPError(err)
	if !assert.True(t, ok, "expected HTTPError, got %v", err) {
		return
	}
	assert.Equal(t, status, he.Status)
	assert.Equal(t, code, he.Code)
}

func ptr[T any](v T) *T { return &v }
