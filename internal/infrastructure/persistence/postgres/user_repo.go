package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"gorm.io/gorm/clause"

	"hybrid-ranking-api/internal/domain/entity"
)

// userProfileRow user_profiles 表行
type userProfileRow struct {
	UserID           string          `gorm:"primaryKey"`
	CategoryAffinity []byte          `gorm:"type:jsonb"`
	CFFactor         pq.Float32Array `gorm:"column:cf_factor;type:real[]"`
	UpdatedAt        time.Time
}

func (userProfileRow) TableName() string {
	return "user_profiles"
}

// interactionRow user_interactions 表行
type interactionRow struct {
	ID         int64 `gorm:"primaryKey;autoIncrement"`
	UserID     string
	ProductID  string
	Kind       string
	Source     string
	OccurredAt time.Time
}

func (interactionRow) TableName() string {
	return "user_interactions"
}

func toInteractionRow(ev *entity.Event) interactionRow {
	return interactionRow{
		UserID:     ev.UserID,
		ProductID:  ev.ProductID,
		Kind:       string(ev.Type),
		Source:     ev.Source,
		OccurredAt: ev.Timestamp,
	}
}

// UserRepository 用户画像仓储
type UserRepository struct {
	client *Client
}

// NewUserRepository 创建用户画像仓储
func NewUserRepository(client *Client) *UserRepository {
	return &UserRepository{client: client}
}

// UpsertProfile 写入用户画像，交互计数由事件聚合得出，不在此写入
func (r *UserRepository) UpsertProfile(ctx context.Context, u *entity.User) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.UpsertProfile")
	defer span.End()

	affinity := u.CategoryAffinity
	if affinity == nil {
		affinity = map[string]float64{}
	}
	raw, err := json.Marshal(affinity)
	if err != nil {
		return fmt.Errorf("failed to encode category affinity: %w", err)
	}

	row := userProfileRow{
		UserID:           u.ID,
		CategoryAffinity: raw,
		CFFactor:         pq.Float32Array(u.Factor),
		UpdatedAt:        time.Now().UTC(),
	}
	db := getDB(ctx, r.client.db)
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		UpdateAll: true,
	}).Create(&row).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert user profile: %w", err)
	}
	return nil
}

// RecordInteraction 追加一条用户行为事件
func (r *UserRepository) RecordInteraction(ctx context.Context, ev *entity.Event) error {
	ctx, span := tracer.Start(ctx, "postgres.UserRepository.RecordInteraction")
	defer span.End()

	if err := ev.Normalize(time.Now().UTC()); err != nil {
		return fmt.Errorf("invalid interaction: %w", err)
	}
	row := toInteractionRow(ev)
	db := getDB(ctx, r.client.db)
	if err := db.Create(&row).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to record interaction: %w", err)
	}
	return nil
}
