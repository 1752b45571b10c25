package usecase

import (
	"math"
	"strconv"
	"strings"

	repo "storeapi/internal/repository"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// GET /product-list のクエリ文字列そのまま。
type ListProductsInput struct {
	Search   string
	Category string
	MinPrice string
	MaxPrice string
	Page     string
	Limit    string
}

// NormalizeListInput はクエリ文字列を検索条件にする。
// 数値として読めない価格条件は無視、limitは既定値/上限に丸める。pageだけは不正ならエラー。
func NormalizeListInput(in ListProductsInput) (repo.ProductListQuery, error) {
	q := repo.ProductListQuery{
		Search:   strings.TrimSpace(in.Search),
		Category: strings.TrimSpace(in.Category),
		MinPrice: parseBound(in.MinPrice),
		MaxPrice: parseBound(in.MaxPrice),
		Page:     1,
		Limit:    DefaultPageSize,
	}

	if v := strings.TrimSpace(in.Page); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return repo.ProductListQuery{}, ValidationError("Invalid page.")
		}
		q.Page = page
	}

	if v := strings.TrimSpace(in.Limit); v != "" {
		if limit, err := strconv.Atoi(v); err == nil && limit > 0 {
			q.Limit = min(limit, MaxPageSize)
		}
	}

	return q, nil
}

func parseBound(raw string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
