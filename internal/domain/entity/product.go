// Package entity 定义领域实体
package entity

import (
	"time"
)

// Product 商品实体（只读，由目录导入与离线任务维护）
type Product struct {
	ID              string    `json:"id" gorm:"primaryKey"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category"`
	PopularityScore float64   `json:"popularity_score"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"-" gorm:"-"`
	// Factor CF 商品隐向量
	Factor []float32 `json:"-" gorm:"-"`
}

// TableName 指定表名
func (Product) TableName() string {
	return "products"
}
