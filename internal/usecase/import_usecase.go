package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"storeapi/internal/domain/model"
	"storeapi/internal/infra/metrics"
	repo "storeapi/internal/repository"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultImportBatchSize = 100
	DefaultImportTimeout   = 2 * time.Minute
)

// 外部フィードの取得元
type ProductFeed interface {
	Fetch(ctx context.Context) ([]model.FeedProduct, error)
}

type ImportConfig struct {
	BatchSize int
	// trueならtitleの既存判定を大文字小文字無視で行う（既定は完全一致）
	CaseInsensitiveDedup bool
	// 1回の取り込み全体の上限。呼び出し元のキャンセルとは切り離す。
	Timeout time.Duration
}

type ImportResult struct {
	Created int64
	Skipped int64
}

type ImportUsecase struct {
	products repo.ProductRepository
	feed     ProductFeed
	clock    Clock
	cfg      ImportConfig
	logger   *zap.Logger

	// 同時に来た取り込みは1回にまとめる
	group singleflight.Group
}

// DI
func NewImportUsecase(products repo.ProductRepository, feed ProductFeed, clock Clock, cfg ImportConfig, logger *zap.Logger) *ImportUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultImportBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultImportTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportUsecase{
		products: products,
		feed:     feed,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Import はフィードを取得し、既存titleを除いた残りをチャンクに分けて一括INSERTする。
// チャンク間は原子的ではない。途中で落ちても再実行すれば入った分はスキップされる。
func (u *ImportUsecase) Import(ctx context.Context) (ImportResult, error) {
	// 実行本体は最初の呼び出し元が切断しても続ける（合流した呼び出し元やcronのため）
	ch := u.group.DoChan("import", func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), u.cfg.Timeout)
		defer cancel()
		return u.run(runCtx)
	})

	select {
	case <-ctx.Done():
		return ImportResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			u.logger.Debug("import request joined an in-flight import")
		}
		if res.Err != nil {
			return ImportResult{}, res.Err
		}
		return res.Val.(ImportResult), nil
	}
}

func (u *ImportUsecase) run(ctx context.Context) (ImportResult, error) {
	//フィード取得（失敗したら全体を中止）
	items, err := u.feed.Fetch(ctx)
	if err != nil {
		u.logger.Warn("feed fetch failed", zap.Error(err))
		return ImportResult{}, UnavailableError(err.Error())
	}

	//既存titleを1回で読む（書き込み前のチェックなのでprimary）
	titles, err := u.products.ListTitles(ctx, repo.ReadConsistent)
	if err != nil {
		return ImportResult{}, storageError(err)
	}
	seen := make(map[string]struct{}, len(titles)+len(items))
	for _, t := range titles {
		seen[u.dedupKey(t)] = struct{}{}
	}

	// 1回の取り込みは同じ時刻
	now := u.clock.Now().UTC().Truncate(time.Microsecond)

	staged := make([]model.Product, 0, len(items))
	for _, it := range items {
		if !importable(it) {
			continue
		}
		key := u.dedupKey(it.Title)
		if _, ok := seen[key]; ok {
			continue
		}
		// 同じバッチ内の重複は先勝ち
		seen[key] = struct{}{}

		staged = append(staged, model.Product{
			Title:       it.Title,
			Price:       it.Price,
			Description: it.Description,
			Category:    it.Category,
			Image:       it.Image,
			RatingRate:  it.Rating.Rate,
			RatingCount: it.Rating.Count,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	created, err := u.products.BulkInsert(ctx, staged, u.cfg.BatchSize)
	metrics.ImportedProducts.WithLabelValues("created").Add(float64(created))
	if err != nil {
		u.logger.Error("bulk insert failed",
			zap.Int("fetched", len(items)),
			zap.Int("staged", len(staged)),
			zap.Int64("created", created),
			zap.Error(err),
		)
		return ImportResult{}, storageError(err)
	}

	res := ImportResult{
		Created: created,
		Skipped: int64(len(items)) - created,
	}
	metrics.ImportedProducts.WithLabelValues("skipped").Add(float64(res.Skipped))

	u.logger.Info("bulk import completed",
		zap.Int("fetched", len(items)),
		zap.Int64("created", res.Created),
		zap.Int64("skipped", res.Skipped),
	)
	return res, nil
}

func (u *ImportUsecase) dedupKey(title string) string {
	if u.cfg.CaseInsensitiveDedup {
		return strings.ToLower(title)
	}
	return title
}

// テーブル制約に収まらない行はスキップ扱い
func importable(it model.FeedProduct) bool {
	if strings.TrimSpace(it.Title) == "" || utf8.RuneCountInString(it.Title) > 255 {
		return false
	}
	if it.Price < 0 || it.Rating.Rate < 0 || it.Rating.Count < 0 {
		return false
	}
	return utf8.RuneCountInString(it.Category) <= 100 && utf8.RuneCountInString(it.Image) <= 512
}
