// Package embedding 提供查询与商品文本向量化
package embedding

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/repository"
)

var tracer = otel.Tracer("embedding")

// DefaultBatchSize 每次请求的最大文本数
const DefaultBatchSize = 32

// NewEinoEmbedder 创建基于 Eino 的 Embedder
func NewEinoEmbedder(ctx context.Context, cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}

	// 使用 Eino 的 OpenAI 适配器
	embedder, err := openai.NewEmbedder(ctx, &openai.EmbeddingConfig{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create eino embedder: %w", err)
	}

	return embedder, nil
}

// Client 文本向量化客户端
type Client struct {
	embedder  embedding.Embedder
	batchSize int
}

var _ repository.Embedder = (*Client)(nil)

// NewClient 包装 Eino Embedder
func NewClient(embedder embedding.Embedder) *Client {
	return &Client{embedder: embedder, batchSize: DefaultBatchSize}
}

// EmbedQuery 向量化单条查询
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.EmbedQuery")
	defer span.End()

	vectors, err := c.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vectors))
	}
	return toFloat32(vectors[0]), nil
}

// EmbedTexts 分批向量化，结果与输入一一对应
func (c *Client) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, span := tracer.Start(ctx, "embedding.EmbedTexts")
	span.SetAttributes(attribute.Int("embedding.count", len(texts)))
	defer span.End()

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		vectors, err := c.embedder.EmbedStrings(ctx, batch)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to embed batch at %d: %w", start, err)
		}
		if len(vectors) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for _, v := range vectors {
			out = append(out, toFloat32(v))
		}
	}
	return out, nil
}

func toFloat32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}
