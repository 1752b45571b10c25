package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storeapi/internal/domain/model"
	"storeapi/internal/infra/db"
	repo "storeapi/internal/repository"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DefaultBatchSize = 100
	defaultPageSize  = 10
	uniqueViolation  = "23505"
)

// 接続の選択はRouterに任せる。ここは行操作だけ。
type ProductGormRepository struct {
	router *db.Router
}

// DI
func NewProductGormRepository(router *db.Router) *ProductGormRepository {
	return &ProductGormRepository{router: router}
}

// 検索/カテゴリ/価格帯/評価順/ページング付きで返す。
func (r *ProductGormRepository) List(ctx context.Context, kind repo.OpKind, q repo.ProductListQuery) ([]model.Product, int64, error) {
	products := []model.Product{}
	var total int64

	page := q.Page
	if page < 1 {
		page = 1
	}
	limit := q.Limit
	if limit < 1 {
		limit = defaultPageSize
	}

	err := r.router.Do(ctx, kind, func(tx *gorm.DB) error {
		query := tx.Model(&model.Product{})

		// titleの部分一致（大文字小文字を区別しない）
		if s := strings.TrimSpace(q.Search); s != "" {
			query = query.Where(`LOWER(title) LIKE ? ESCAPE '\'`, "%"+escapeLike(strings.ToLower(s))+"%")
		}
		if c := strings.TrimSpace(q.Category); c != "" {
			query = query.Where("LOWER(category) = ?", strings.ToLower(c))
		}

		//価格帯（両端を含む）
		if q.MinPrice != nil {
			query = query.Where("price >= ?", *q.MinPrice)
		}
		if q.MaxPrice != nil {
			query = query.Where("price <= ?", *q.MaxPrice)
		}
		query = query.Session(&gorm.Session{})

		//total（件数）
		if err := query.Count(&total).Error; err != nil {
			return err
		}
		if total == 0 {
			return nil
		}

		// 同点はid昇順で固定
		return query.
			Order("rating_rate desc").
			Order("id asc").
			Offset((page - 1) * limit).
			Limit(limit).
			Find(&products).Error
	})
	if err != nil {
		return []model.Product{}, 0, err
	}
	return products, total, nil
}

// IDで商品を取得
func (r *ProductGormRepository) FindByID(ctx context.Context, kind repo.OpKind, id int64) (model.Product, error) {
	var p model.Product
	err := r.router.Do(ctx, kind, func(tx *gorm.DB) error {
		return tx.First(&p, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}

// 大文字小文字を無視したtitleの存在確認。excludeID>0ならその商品を除く。
func (r *ProductGormRepository) ExistsByTitleCI(ctx context.Context, kind repo.OpKind, title string, excludeID int64) (bool, error) {
	var n int64
	err := r.router.Do(ctx, kind, func(tx *gorm.DB) error {
		query := tx.Model(&model.Product{}).
			Where("LOWER(title) = ?", strings.ToLower(strings.TrimSpace(title)))
		if excludeID > 0 {
			query = query.Where("id <> ?", excludeID)
		}
		return query.Count(&n).Error
	})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// 既存titleを1回の読み取りで全件返す（保存されたまま）。
func (r *ProductGormRepository) ListTitles(ctx context.Context, kind repo.OpKind) ([]string, error) {
	titles := []string{}
	err := r.router.Do(ctx, kind, func(tx *gorm.DB) error {
		return tx.Model(&model.Product{}).Pluck("title", &titles).Error
	})
	if err != nil {
		return nil, err
	}
	return titles, nil
}

// 商品の作成
func (r *ProductGormRepository) Create(ctx context.Context, p model.Product) (model.Product, error) {
	err := r.router.Do(ctx, repo.Write, func(tx *gorm.DB) error {
		return tx.Create(&p).Error
	})
	if err != nil {
		return model.Product{}, translateWriteErr(err)
	}
	return p, nil
}

// チャンクごとに1文でINSERTする。titleが衝突した行はその行だけ捨てる。
// チャンク単位でのみ原子的。戻り値は実際に入った件数。
func (r *ProductGormRepository) BulkInsert(ctx context.Context, products []model.Product, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var inserted int64
	for start := 0; start < len(products); start += batchSize {
		chunk := products[start:min(start+batchSize, len(products))]

		err := r.router.Do(ctx, repo.Write, func(tx *gorm.DB) error {
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&chunk)
			if res.Error != nil {
				return res.Error
			}
			inserted += res.RowsAffected
			return nil
		})
		if err != nil {
			return inserted, fmt.Errorf("bulk insert rows %d-%d: %w", start, start+len(chunk), translateWriteErr(err))
		}
	}
	return inserted, nil
}

// 商品の部分更新。更新後の行をprimaryから返す。
func (r *ProductGormRepository) Update(ctx context.Context, id int64, patch repo.ProductPatch) (model.Product, error) {
	var updated model.Product
	err := r.router.Do(ctx, repo.Write, func(tx *gorm.DB) error {
		res := tx.Model(&model.Product{}).Where("id = ?", id).Updates(patchColumns(patch))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return tx.First(&updated, id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, translateWriteErr(err)
	}
	return updated, nil
}

// 商品削除（物理削除）
func (r *ProductGormRepository) Delete(ctx context.Context, id int64) error {
	return r.router.Do(ctx, repo.Write, func(tx *gorm.DB) error {
		res := tx.Delete(&model.Product{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repo.ErrNotFound
		}
		return nil
	})
}

// 存在しないIDは無視して、消えた件数を返す。
func (r *ProductGormRepository) BulkDelete(ctx context.Context, ids []int64, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var deleted int64
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]

		err := r.router.Do(ctx, repo.Write, func(tx *gorm.DB) error {
			res := tx.Where("id IN ?", chunk).Delete(&model.Product{})
			if res.Error != nil {
				return res.Error
			}
			deleted += res.RowsAffected
			return nil
		})
		if err != nil {
			return deleted, err
		}
	}
	return deleted, nil
}

func patchColumns(p repo.ProductPatch) map[string]interface{} {
	cols := map[string]interface{}{
		"updated_at": p.UpdatedAt,
	}
	if p.Title != nil {
		cols["title"] = *p.Title
	}
	if p.Price != nil {
		cols["price"] = *p.Price
	}
	if p.Description != nil {
		cols["description"] = *p.Description
	}
	if p.Category != nil {
		cols["category"] = *p.Category
	}
	if p.Image != nil {
		cols["image"] = *p.Image
	}
	if p.RatingRate != nil {
		cols["rating_rate"] = *p.RatingRate
	}
	if p.RatingCount != nil {
		cols["rating_count"] = *p.RatingCount
	}
	return cols
}

// ユニーク制約違反を ErrDuplicateKey に寄せる。
func translateWriteErr(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %w", repo.ErrDuplicateKey, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %w", repo.ErrDuplicateKey, err)
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
