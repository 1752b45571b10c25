package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"storeapi/internal/domain/model"
	repo "storeapi/internal/repository"

	"go.uber.org/zap"
)

const bulkDeleteBatchSize = 100

type Clock interface {
	Now() time.Time
}

// 入力値の検証（validatorパッケージが実装）
type ProductInputValidator interface {
	ValidateCreate(in CreateProductInput) error
	ValidateUpdate(in UpdateProductInput) error
}

type ProductUsecase struct {
	products  repo.ProductRepository
	cache     repo.ProductCache
	validator ProductInputValidator
	clock     Clock
	logger    *zap.Logger
}

// DI
func NewProductUsecase(
	products repo.ProductRepository,
	cache repo.ProductCache,
	validator ProductInputValidator,
	clock Clock,
	logger *zap.Logger,
) *ProductUsecase {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductUsecase{
		products:  products,
		cache:     cache,
		validator: validator,
		clock:     clock,
		logger:    logger,
	}
}

type ProductListOutput struct {
	Items []model.Product
	Total int64
	Page  int
	Limit int
}

// 一覧はreplicaから読む（多少の遅れは許容）。
func (u *ProductUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	q, err := NormalizeListInput(in)
	if err != nil {
		return ProductListOutput{}, err
	}

	items, total, err := u.products.List(ctx, repo.ReadGeneral, q)
	if err != nil {
		return ProductListOutput{}, storageError(err)
	}

	return ProductListOutput{
		Items: items,
		Total: total,
		Page:  q.Page,
		Limit: q.Limit,
	}, nil
}

func (u *ProductUsecase) GetProductDetail(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, ValidationError("Invalid 'product_id'.")
	}

	if p, ok, err := u.cache.Get(ctx, productID); err != nil {
		u.logger.Warn("product cache get failed", zap.Int64("product_id", productID), zap.Error(err))
	} else if ok {
		return p, nil
	}

	p, err := u.products.FindByID(ctx, repo.ReadGeneral, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NotFoundError("Product not found.")
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}

	if err := u.cache.Set(ctx, p); err != nil {
		u.logger.Warn("product cache set failed", zap.Int64("product_id", productID), zap.Error(err))
	}
	return p, nil
}

type CreateProductInput struct {
	Title       string  `validate:"required,max=255"`
	Price       float64 `validate:"gte=0"`
	Description string
	Category    string  `validate:"max=100"`
	Image       string  `validate:"max=512"`
	RatingRate  float64 `validate:"gte=0"`
	RatingCount int     `validate:"gte=0"`
}

func (u *ProductUsecase) CreateProduct(ctx context.Context, in CreateProductInput) (model.Product, error) {
	in.Title = strings.TrimSpace(in.Title)

	// 事前チェックはprimaryで（replicaの遅れで重複を通さない）
	if in.Title != "" {
		exists, err := u.products.ExistsByTitleCI(ctx, repo.ReadConsistent, in.Title, 0)
		if err != nil {
			return model.Product{}, storageError(err)
		}
		if exists {
			return model.Product{}, ConflictError("Product with this title already exists.")
		}
	}

	if err := u.validator.ValidateCreate(in); err != nil {
		return model.Product{}, ValidationError(err.Error())
	}

	now := u.now()
	p, err := u.products.Create(ctx, model.Product{
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Category:    in.Category,
		Image:       in.Image,
		RatingRate:  in.RatingRate,
		RatingCount: in.RatingCount,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	// 同時作成の競合はユニーク制約が最終判断
	if errors.Is(err, repo.ErrDuplicateKey) {
		return model.Product{}, ConflictError("Product with this title already exists.")
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}
	return p, nil
}

// nilのフィールドは変更しない
type UpdateProductInput struct {
	Title       *string  `validate:"omitnil,min=1,max=255"`
	Price       *float64 `validate:"omitnil,gte=0"`
	Description *string
	Category    *string  `validate:"omitnil,max=100"`
	Image       *string  `validate:"omitnil,max=512"`
	RatingRate  *float64 `validate:"omitnil,gte=0"`
	RatingCount *int     `validate:"omitnil,gte=0"`
}

func (u *ProductUsecase) UpdateProduct(ctx context.Context, productID int64, in UpdateProductInput) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, ValidationError("Invalid 'product_id'.")
	}

	current, err := u.products.FindByID(ctx, repo.ReadConsistent, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NotFoundError("Product not found.")
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		in.Title = &title

		if title != "" {
			exists, err := u.products.ExistsByTitleCI(ctx, repo.ReadConsistent, title, productID)
			if err != nil {
				return model.Product{}, storageError(err)
			}
			if exists {
				return model.Product{}, ConflictError("Another product with this title already exists.")
			}
		}
	}

	if err := u.validator.ValidateUpdate(in); err != nil {
		return model.Product{}, ValidationError(err.Error())
	}

	updated, err := u.products.Update(ctx, productID, repo.ProductPatch{
		Title:       in.Title,
		Price:       in.Price,
		Description: in.Description,
		Category:    in.Category,
		Image:       in.Image,
		RatingRate:  in.RatingRate,
		RatingCount: in.RatingCount,
		UpdatedAt:   u.nextUpdatedAt(current.UpdatedAt),
	})
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NotFoundError("Product not found.")
	}
	if errors.Is(err, repo.ErrDuplicateKey) {
		return model.Product{}, ConflictError("Another product with this title already exists.")
	}
	if err != nil {
		return model.Product{}, storageError(err)
	}

	u.invalidate(ctx, productID)
	return updated, nil
}

func (u *ProductUsecase) DeleteProduct(ctx context.Context, productID int64) error {
	if productID <= 0 {
		return ValidationError("Invalid 'product_id'.")
	}

	err := u.products.Delete(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return NotFoundError("Product not found.")
	}
	if err != nil {
		return storageError(err)
	}

	u.invalidate(ctx, productID)
	return nil
}

// 存在しないIDは黙って無視し、実際に消えた件数を返す。
func (u *ProductUsecase) BulkDeleteProducts(ctx context.Context, productIDs []int64) (int64, error) {
	if len(productIDs) == 0 {
		return 0, ValidationError("'product_ids' must be a list of IDs.")
	}

	seen := make(map[int64]struct{}, len(productIDs))
	ids := make([]int64, 0, len(productIDs))
	for _, id := range productIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	deleted, err := u.products.BulkDelete(ctx, ids, bulkDeleteBatchSize)
	if err != nil {
		u.logger.Error("bulk delete failed",
			zap.Int("requested", len(ids)),
			zap.Int64("deleted", deleted),
			zap.Error(err),
		)
		u.invalidate(ctx, ids...)
		return 0, storageError(err)
	}

	u.invalidate(ctx, ids...)
	return deleted, nil
}

func (u *ProductUsecase) invalidate(ctx context.Context, ids ...int64) {
	if err := u.cache.Delete(ctx, ids...); err != nil {
		u.logger.Warn("product cache delete failed", zap.Int64s("product_ids", ids), zap.Error(err))
	}
}

// DBの精度（マイクロ秒）に揃える
func (u *ProductUsecase) now() time.Time {
	return u.clock.Now().UTC().Truncate(time.Microsecond)
}

// updated_atは必ず前回より進める
func (u *ProductUsecase) nextUpdatedAt(prev time.Time) time.Time {
	now := u.now()
	if !now.After(prev) {
		return prev.Add(time.Microsecond)
	}
	return now
}
