package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm/clause"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// productRow products 表行
type productRow struct {
	ID              string `gorm:"primaryKey"`
	Name            string
	Description     string
	Category        string
	PopularityScore float64
	Embedding       pq.Float32Array `gorm:"type:real[]"`
	CFFactor        pq.Float32Array `gorm:"column:cf_factor;type:real[]"`
	CreatedAt       time.Time
}

func (productRow) TableName() string {
	return "products"
}

func toProductRow(p *entity.Product) productRow {
	return productRow{
		ID:              p.ID,
		Name:            p.Name,
		Description:     p.Description,
		Category:        p.Category,
		PopularityScore: p.PopularityScore,
		Embedding:       pq.Float32Array(p.Embedding),
		CFFactor:        pq.Float32Array(p.Factor),
		CreatedAt:       p.CreatedAt,
	}
}

func (r productRow) toEntity() *entity.Product {
	return &entity.Product{
		ID:              r.ID,
		Name:            r.Name,
		Description:     r.Description,
		Category:        r.Category,
		PopularityScore: r.PopularityScore,
		CreatedAt:       r.CreatedAt,
		Embedding:       []float32(r.Embedding),
		Factor:          []float32(r.CFFactor),
	}
}

// scoredRow (id, score) 查询结果
type scoredRow struct {
	ID    string
	Score float64
}

func toScored(rows []scoredRow) []entity.ScoredID {
	out := make([]entity.ScoredID, len(rows))
	for i, r := range rows {
		out[i] = entity.ScoredID{ID: r.ID, Score: r.Score}
	}
	return out
}

// ProductRepository 商品仓储，提供全文检索与热门榜单
type ProductRepository struct {
	client *Client
}

var (
	_ repository.LexicalIndex  = (*ProductRepository)(nil)
	_ repository.PopularSource = (*ProductRepository)(nil)
)

// NewProductRepository 创建商品仓储
func NewProductRepository(client *Client) *ProductRepository {
	return &ProductRepository{client: client}
}

// lexicalQuery ts_rank_cd 归一化选项 32 将分数映射为 rank/(rank+1)
const lexicalQuery = `SELECT p.id, ts_rank_cd(p.search_vector, q, 32) AS score
FROM products p, plainto_tsquery(?::regconfig, ?) q
WHERE p.search_vector @@ q
ORDER BY score DESC, p.id ASC
LIMIT ?`

// expandedLexicalQuery 同义词展开后的检索：按展开式过滤，
// 原词分数与打折后的展开式分数取大，仅经同义词命中的商品不会高于原词命中
const expandedLexicalQuery = `SELECT p.id, GREATEST(
	ts_rank_cd(p.search_vector, o.q, 32),
	?::double precision * ts_rank_cd(p.search_vector, e.q, 32)
) AS score
FROM products p, plainto_tsquery(?::regconfig, ?) AS o(q), (SELECT %s) AS e(q)
WHERE p.search_vector @@ e.q
ORDER BY score DESC, p.id ASC
LIMIT ?`

// buildLexicalQuery 生成检索 SQL 与参数，每个词项的原词和同义词以 || 组合，词项之间以 && 组合
func buildLexicalQuery(regconfig string, query entity.TextQuery, limit int) (string, []interface{}) {
	if !query.Expanded() {
		return lexicalQuery, []interface{}{regconfig, query.String(), limit}
	}

	groups := make([]string, 0, len(query.Terms))
	expArgs := make([]interface{}, 0, 2*len(query.Terms))
	for _, term := range query.Terms {
		alts := term.Alternatives()
		parts := make([]string, len(alts))
		for i, alt := range alts {
			parts[i] = "plainto_tsquery(?::regconfig, ?)"
			expArgs = append(expArgs, regconfig, alt)
		}
		groups = append(groups, "("+strings.Join(parts, " || ")+")")
	}

	args := make([]interface{}, 0, len(expArgs)+4)
	args = append(args, query.Boost(), regconfig, query.String())
	args = append(args, expArgs...)
	args = append(args, limit)
	return fmt.Sprintf(expandedLexicalQuery, strings.Join(groups, " && ")), args
}

// SearchText 全文检索
func (r *ProductRepository) SearchText(ctx context.Context, query entity.TextQuery, limit int) ([]entity.ScoredID, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductRepository.SearchText")
	span.SetAttributes(
		attribute.Int("search.limit", limit),
		attribute.Bool("search.expanded", query.Expanded()),
	)
	defer span.End()

	if strings.TrimSpace(query.String()) == "" || limit <= 0 {
		return nil, nil
	}

	sql, args := buildLexicalQuery(r.client.TextSearchConfig(), query, limit)
	var rows []scoredRow
	db := getDB(ctx, r.client.db)
	if err := db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search products: %w", err)
	}
	span.SetAttributes(attribute.Int("search.hits", len(rows)))
	return toScored(rows), nil
}

// TopPopular 按热度降序返回商品，category 为空表示全局
func (r *ProductRepository) TopPopular(ctx context.Context, category string, limit int) ([]entity.ScoredID, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductRepository.TopPopular")
	span.SetAttributes(attribute.String("popular.category", category), attribute.Int("popular.limit", limit))
	defer span.End()

	if limit <= 0 {
		return nil, nil
	}

	db := getDB(ctx, r.client.db).
		Model(&productRow{}).
		Select("id, popularity_score AS score")
	if category != "" {
		db = db.Where("category = ?", category)
	}

	var rows []scoredRow
	if err := db.Order("popularity_score DESC").Order("id ASC").Limit(limit).Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list popular products: %w", err)
	}
	return toScored(rows), nil
}

// Vocabulary 按热度取商品名称与类目文本，作为拼写纠错词典
func (r *ProductRepository) Vocabulary(ctx context.Context, limit int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductRepository.Vocabulary")
	span.SetAttributes(attribute.Int("vocabulary.limit", limit))
	defer span.End()

	if limit <= 0 {
		return nil, nil
	}

	var rows []struct {
		Name     string
		Category string
	}
	db := getDB(ctx, r.client.db).
		Model(&productRow{}).
		Select("name, category").
		Order("popularity_score DESC").
		Order("id ASC").
		Limit(limit)
	if err := db.Scan(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load catalog vocabulary: %w", err)
	}

	out := make([]string, 0, 2*len(rows))
	for _, row := range rows {
		out = append(out, row.Name)
		if row.Category != "" {
			out = append(out, row.Category)
		}
	}
	return out, nil
}

// Upsert 批量写入商品，已存在时覆盖
func (r *ProductRepository) Upsert(ctx context.Context, products []*entity.Product) error {
	ctx, span := tracer.Start(ctx, "postgres.ProductRepository.Upsert")
	defer span.End()

	if len(products) == 0 {
		return nil
	}
	rows := make([]productRow, len(products))
	for i, p := range products {
		rows[i] = toProductRow(p)
	}

	db := getDB(ctx, r.client.db)
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).CreateInBatches(rows, 500).Error
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert products: %w", err)
	}
	return nil
}

// ListAfter 按 id 升序分页遍历商品
func (r *ProductRepository) ListAfter(ctx context.Context, afterID string, limit int) ([]*entity.Product, error) {
	ctx, span := tracer.Start(ctx, "postgres.ProductRepository.ListAfter")
	defer span.End()

	var rows []productRow
	db := getDB(ctx, r.client.db)
	if err := db.Where("id > ?", afterID).Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	out := make([]*entity.Product, len(rows))
	for i, row := range rows {
		out[i] = row.toEntity()
	}
	return out, nil
}
