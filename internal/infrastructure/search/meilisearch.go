// Package search 提供基于 Meilisearch 的商品全文检索
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/meilisearch/meilisearch-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

var tracer = otel.Tracer("meilisearch")

const (
	rankingScoreField = "_rankingScore"
	// taskWait 等待索引任务完成的上限，taskPollInterval 为轮询间隔
	taskWait         = 15 * time.Second
	taskPollInterval = 50 * time.Millisecond
)

// searcher Meilisearch 索引的检索能力
type searcher interface {
	SearchWithContext(ctx context.Context, query string, request *meilisearch.SearchRequest) (*meilisearch.SearchResponse, error)
}

// ProductDocument 索引中的商品文档
type ProductDocument struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// Client Meilisearch 商品索引
type Client struct {
	service meilisearch.ServiceManager
	index   meilisearch.IndexManager
	search  searcher
}

var _ repository.LexicalIndex = (*Client)(nil)

// NewClient 创建 Meilisearch 客户端
func NewClient(cfg *config.MeilisearchConfig) (*Client, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("meilisearch host not configured")
	}
	name := cfg.Index
	if name == "" {
		name = "products"
	}
	service := meilisearch.New(cfg.Host, meilisearch.WithAPIKey(cfg.APIKey))
	index := service.Index(name)
	return &Client{service: service, index: index, search: index}, nil
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "meilisearch.HealthCheck")
	defer span.End()

	health, err := c.service.HealthWithContext(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("meilisearch health check failed: %w", err)
	}
	if health.Status != "available" {
		return fmt.Errorf("meilisearch is not healthy: %s", health.Status)
	}
	return nil
}

// SearchText 全文检索，分数取 Meilisearch 的 ranking score
//
// 同义词由索引设置展开（见 EnsureIndex），这里只提交原词。
func (c *Client) SearchText(ctx context.Context, text entity.TextQuery, limit int) ([]entity.ScoredID, error) {
	ctx, span := tracer.Start(ctx, "meilisearch.SearchText")
	span.SetAttributes(attribute.Int("search.limit", limit))
	defer span.End()

	query := strings.TrimSpace(text.String())
	if query == "" || limit <= 0 {
		return nil, nil
	}

	result, err := c.search.SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Query:                query,
		Limit:                int64(limit),
		AttributesToRetrieve: []string{"id"},
		ShowRankingScore:     true,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search products: %w", err)
	}

	scored := scoreHits(result.Hits)
	span.SetAttributes(attribute.Int("search.hits", len(scored)))
	return scored, nil
}

// scoreHits 提取命中的 id 与分数，缺失或无法解析 ranking score 时按名次衰减
func scoreHits(hits meilisearch.Hits) []entity.ScoredID {
	out := make([]entity.ScoredID, 0, len(hits))
	for i, hit := range hits {
		var id string
		if raw, ok := hit["id"]; !ok || json.Unmarshal(raw, &id) != nil || id == "" {
			continue
		}
		score := 1 / float64(i+1)
		if raw, ok := hit[rankingScoreField]; ok {
			var v float64
			if err := json.Unmarshal(raw, &v); err == nil {
				score = v
			}
		}
		out = append(out, entity.ScoredID{ID: id, Score: score})
	}
	return out
}

// waitTask 等待异步任务完成，失败状态返回错误
func (c *Client) waitTask(ctx context.Context, taskUID int64) error {
	ctx, cancel := context.WithTimeout(ctx, taskWait)
	defer cancel()

	task, err := c.index.WaitForTaskWithContext(ctx, taskUID, taskPollInterval)
	if err != nil {
		return err
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("task %d failed: %s", taskUID, task.Error.Message)
	}
	return nil
}

// EnsureIndex 配置可检索字段与同义词词典，synonyms 为空时清空索引上的同义词
func (c *Client) EnsureIndex(ctx context.Context, synonyms map[string][]string) error {
	ctx, span := tracer.Start(ctx, "meilisearch.EnsureIndex")
	span.SetAttributes(attribute.Int("search.synonym_terms", len(synonyms)))
	defer span.End()

	task, err := c.index.UpdateSearchableAttributesWithContext(ctx, &[]string{"name", "description", "category"})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update searchable attributes: %w", err)
	}
	if err := c.waitTask(ctx, task.TaskUID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to wait for settings update: %w", err)
	}

	if synonyms == nil {
		synonyms = map[string][]string{}
	}
	task, err = c.index.UpdateSynonymsWithContext(ctx, &synonyms)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update synonyms: %w", err)
	}
	if err := c.waitTask(ctx, task.TaskUID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to wait for synonyms update: %w", err)
	}
	return nil
}

// IndexProducts 写入商品文档
func (c *Client) IndexProducts(ctx context.Context, products []*entity.Product) error {
	ctx, span := tracer.Start(ctx, "meilisearch.IndexProducts")
	span.SetAttributes(attribute.Int("count", len(products)))
	defer span.End()

	if len(products) == 0 {
		return nil
	}
	docs := make([]ProductDocument, len(products))
	for i, p := range products {
		docs[i] = ProductDocument{ID: p.ID, Name: p.Name, Description: p.Description, Category: p.Category}
	}

	task, err := c.index.AddDocumentsWithContext(ctx, docs, nil)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to index products: %w", err)
	}
	if err := c.waitTask(ctx, task.TaskUID); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to wait for indexing task: %w", err)
	}
	return nil
}
