package repository

import (
	"context"
	"errors"
	"time"

	"storeapi/internal/domain/model"
)

var (
	ErrNotFound = errors.New("not found")

	// ユニーク制約違反（title）
	ErrDuplicateKey = errors.New("duplicate key")

	// DB到達不可・タイムアウト
	ErrUnavailable = errors.New("storage unavailable")
)

// どの接続を使うかを呼び出し側が明示するためのタグ。
type OpKind int

const (
	// 一覧・詳細など。replicaへ。
	ReadGeneral OpKind = iota
	// 書き込み前の事前チェック。primaryへ。
	ReadConsistent
	// insert/update/delete。primaryへ。
	Write
)

func (k OpKind) String() string {
	switch k {
	case ReadGeneral:
		return "read_general"
	case ReadConsistent:
		return "read_consistent"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

// 一覧検索（正規化済み）
type ProductListQuery struct {
	Search   string
	Category string
	MinPrice *float64
	MaxPrice *float64
	Page     int
	Limit    int
}

// 部分更新。nilのフィールドは変更しない。
type ProductPatch struct {
	Title       *string
	Price       *float64
	Description *string
	Category    *string
	Image       *string
	RatingRate  *float64
	RatingCount *int
	UpdatedAt   time.Time
}

// 商品の永続化だけを約束。接続の選択はkindで呼び出し側が決める。
type ProductRepository interface {
	List(ctx context.Context, kind OpKind, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, kind OpKind, id int64) (model.Product, error)
	ExistsByTitleCI(ctx context.Context, kind OpKind, title string, excludeID int64) (bool, error)
	ListTitles(ctx context.Context, kind OpKind) ([]string, error)

	Create(ctx context.Context, p model.Product) (model.Product, error)
	BulkInsert(ctx context.Context, products []model.Product, batchSize int) (int64, error)
	Update(ctx context.Context, id int64, patch ProductPatch) (model.Product, error)
	Delete(ctx context.Context, id int64) error
	BulkDelete(ctx context.Context, ids []int64, batchSize int) (int64, error)
}

// 商品詳細のキャッシュ。失敗しても本処理は止めない前提。
type ProductCache interface {
	Get(ctx context.Context, id int64) (model.Product, bool, error)
	Set(ctx context.Context, p model.Product) error
	Delete(ctx context.Context, ids ...int64) error
}
