package model

import "time"

// productsテーブルはサービスの外で管理される（schema/products.sql）。
type Product struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"type:varchar(255);not null;uniqueIndex:idx_products_title_unique" json:"title"`
	Price       float64   `gorm:"not null;default:0;index:idx_price" json:"price"`
	Description string    `gorm:"type:text;not null" json:"description"`
	Category    string    `gorm:"type:varchar(100);not null;index:idx_category" json:"category"`
	Image       string    `gorm:"type:varchar(512);not null" json:"image"`
	RatingRate  float64   `gorm:"not null;default:0;index:idx_rating_rate" json:"rating_rate"`
	RatingCount int       `gorm:"not null;default:0" json:"rating_count"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime:false;index:idx_created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime:false;index:idx_updated_at" json:"updated_at"`
}

func (Product) TableName() string {
	return "products"
}

// 外部フィードの1件（fakestoreapi形式）。
type FeedProduct struct {
	Title       string     `json:"title"`
	Price       float64    `json:"price"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Image       string     `json:"image"`
	Rating      FeedRating `json:"rating"`
}

type FeedRating struct {
	Rate  float64 `json:"rate"`
	Count int     `json:"count"`
}
