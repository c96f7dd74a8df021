package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/wire"
)

// seedFile 初始数据文件格式
type seedFile struct {
	Products     []seedProduct     `json:"products"`
	Users        []seedUser        `json:"users"`
	Interactions []seedInteraction `json:"interactions"`
}

type seedProduct struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	Category        string    `json:"category"`
	PopularityScore float64   `json:"popularity_score"`
	CreatedAt       time.Time `json:"created_at"`
	Embedding       []float32 `json:"embedding,omitempty"`
	Factor          []float32 `json:"factor,omitempty"`
}

type seedUser struct {
	ID               string             `json:"id"`
	CategoryAffinity map[string]float64 `json:"category_affinity"`
	Factor           []float32          `json:"factor,omitempty"`
}

type seedInteraction struct {
	UserID     string    `json:"user_id"`
	ProductID  string    `json:"product_id"`
	Kind       string    `json:"kind"`
	Source     string    `json:"source"`
	OccurredAt time.Time `json:"occurred_at"`
}

func readSeed(path string) (*seedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for i, p := range seed.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("product #%d has no id", i)
		}
	}
	return &seed, nil
}

func (p seedProduct) toEntity(now time.Time) *entity.Product {
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &entity.Product{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Category:        p.Category,
		PopularityScore: p.PopularityScore,
		CreatedAt:       createdAt,
		Embedding:       p.Embedding,
		Factor:          p.Factor,
	}
}

func (it seedInteraction) toEvent(now time.Time) *entity.Event {
	at := it.OccurredAt
	if at.IsZero() {
		at = now
	}
	source := it.Source
	if source == "" {
		source = "seed"
	}
	return &entity.Event{
		UserID:    it.UserID,
		ProductID: it.ProductID,
		Type:      entity.EventType(it.Kind),
		Timestamp: at,
		Source:    source,
	}
}

// applySeed 在一个事务内写入商品、用户画像与交互记录
func applySeed(ctx context.Context, data *wire.DataLayer, seed *seedFile) error {
	now := time.Now().UTC()
	products := make([]*entity.Product, len(seed.Products))
	for i, p := range seed.Products {
		products[i] = p.toEntity(now)
	}

	return data.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := data.ProductRepo.Upsert(txCtx, products); err != nil {
			return err
		}
		for _, u := range seed.Users {
			if err := data.UserRepo.UpsertProfile(txCtx, &entity.User{
				ID:               u.ID,
				CategoryAffinity: u.CategoryAffinity,
				Factor:           u.Factor,
			}); err != nil {
				return err
			}
		}
		for _, it := range seed.Interactions {
			if err := data.UserRepo.RecordInteraction(txCtx, it.toEvent(now)); err != nil {
				return err
			}
		}
		return nil
	})
}
