package milvus

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
	"hybrid-ranking-api/pkg/metrics"
)

// Repository 向量集合管理与检索
type Repository struct {
	client *Client
}

// NewRepository 创建向量仓储
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

func (r *Repository) configured() error {
	if r == nil || r.client == nil || r.client.milvus == nil {
		return fmt.Errorf("milvus client not configured")
	}
	return nil
}

func (r *Repository) specs() []collectionSpec {
	embDim, factorDim := DefaultEmbeddingDim, DefaultFactorDim
	if r.client.config != nil {
		if r.client.config.EmbeddingDim > 0 {
			embDim = r.client.config.EmbeddingDim
		}
		if r.client.config.FactorDim > 0 {
			factorDim = r.client.config.FactorDim
		}
	}
	return []collectionSpec{
		{name: CollectionProductEmbeddings, metric: entity.COSINE, dim: embDim, schema: ProductEmbeddingsSchema},
		{name: CollectionItemFactors, metric: entity.IP, dim: factorDim, schema: ItemFactorsSchema},
	}
}

func (r *Repository) spec(collection string) (collectionSpec, error) {
	for _, s := range r.specs() {
		if s.name == collection {
			return s, nil
		}
	}
	return collectionSpec{}, fmt.Errorf("unknown collection %q", collection)
}

// CreateCollection 创建集合
func (r *Repository) CreateCollection(ctx context.Context, schema *entity.Schema) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateCollection",
		trace.WithAttributes(attribute.String("collection", schema.CollectionName)))
	defer span.End()

	schema.CollectionName = r.client.CollectionName(schema.CollectionName)

	if err := r.client.milvus.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create collection: %w", err)
	}
	return nil
}

// CreateIndex 创建 HNSW 索引
func (r *Repository) CreateIndex(ctx context.Context, collection string, metric entity.MetricType) error {
	if err := r.configured(); err != nil {
		return err
	}
	ctx, span := tracer.Start(ctx, "milvus.CreateIndex",
		trace.WithAttributes(attribute.String("collection", collection)))
	defer span.End()

	m, efc := r.client.config.HNSWM, r.client.config.HNSWEfConstruction
	if m <= 0 {
		m = 16
	}
	if efc <= 0 {
		efc = 200
	}
	idx, err := entity.NewIndexHNSW(metric, m, efc)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := r.client.milvus.CreateIndex(ctx, r.client.CollectionName(collection), vectorField, idx, false); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to create index: %w", err)
	}
	return nil
}

// EnsureCollections 确保两个集合与索引存在并已加载，不做破坏性操作
func (r *Repository) EnsureCollections(ctx context.Context) error {
	if err := r.configured(); err != nil {
		return err
	}
	for _, s := range r.specs() {
		exists, err := r.client.HasCollection(ctx, s.name)
		if err != nil {
			return err
		}
		if !exists {
			if err := r.CreateCollection(ctx, s.schema(s.dim)); err != nil {
				return err
			}
			if err := r.CreateIndex(ctx, s.name, s.metric); err != nil {
				return err
			}
		}
		if err := r.client.LoadCollection(ctx, s.name); err != nil {
			return fmt.Errorf("failed to load collection %s: %w", s.name, err)
		}
	}
	return nil
}

// Upsert 写入向量，主键相同则覆盖
func (r *Repository) Upsert(ctx context.Context, collection string, records []VectorRecord) error {
	if err := r.configured(); err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}
	s, err := r.spec(collection)
	if err != nil {
		return err
	}

	ctx, span := tracer.Start(ctx, "milvus.Upsert",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("count", len(records)),
		))
	defer span.End()

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	categories := make([]string, len(records))
	for i, rec := range records {
		if len(rec.Vector) != s.dim {
			return fmt.Errorf("record %s has dimension %d, collection %s expects %d", rec.ID, len(rec.Vector), collection, s.dim)
		}
		ids[i] = rec.ID
		vectors[i] = rec.Vector
		categories[i] = rec.Category
	}

	_, err = r.client.milvus.Upsert(ctx, r.client.CollectionName(collection), "",
		entity.NewColumnVarChar(idField, ids),
		entity.NewColumnFloatVector(vectorField, s.dim, vectors),
		entity.NewColumnVarChar(categoryField, categories),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to upsert vectors: %w", err)
	}
	return nil
}

// Search 在集合上做近邻检索，返回原始分数
func (r *Repository) Search(ctx context.Context, collection string, vector []float32, topK int) ([]domain.ScoredID, error) {
	if err := r.configured(); err != nil {
		return nil, err
	}
	s, err := r.spec(collection)
	if err != nil {
		return nil, err
	}
	if len(vector) != s.dim {
		return nil, fmt.Errorf("query vector has dimension %d, collection %s expects %d", len(vector), collection, s.dim)
	}
	if topK <= 0 {
		return nil, nil
	}

	ctx, span := tracer.Start(ctx, "milvus.Search",
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("top_k", topK),
		))
	defer span.End()

	ef := r.client.config.SearchEf
	if ef < topK {
		ef = topK
	}
	sp, err := entity.NewIndexHNSWSearchParam(ef)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to create search param: %w", err)
	}

	start := time.Now()
	results, err := r.client.milvus.Search(ctx,
		r.client.CollectionName(collection),
		nil,
		"",
		[]string{idField},
		[]entity.Vector{entity.FloatVector(vector)},
		vectorField,
		s.metric,
		topK,
		sp,
	)
	metrics.MilvusSearchDuration.WithLabelValues(collection).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.MilvusSearchTotal.WithLabelValues(collection, "error").Inc()
		span.RecordError(err)
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	metrics.MilvusSearchTotal.WithLabelValues(collection, "ok").Inc()

	scored := collectScored(results)
	span.SetAttributes(attribute.Int("result_count", len(scored)))
	return scored, nil
}

// collectScored 从检索结果中提取 (id, score)
func collectScored(results []client.SearchResult) []domain.ScoredID {
	var out []domain.ScoredID
	for _, result := range results {
		idCol, ok := result.Fields.GetColumn(idField).(*entity.ColumnVarChar)
		if !ok {
			continue
		}
		ids := idCol.Data()
		for i := 0; i < result.ResultCount && i < len(ids) && i < len(result.Scores); i++ {
			out = append(out, domain.ScoredID{ID: ids[i], Score: float64(result.Scores[i])})
		}
	}
	return out
}

// ProductVectorIndex 商品内容向量检索
type ProductVectorIndex struct {
	repo *Repository
}

var _ repository.VectorIndex = (*ProductVectorIndex)(nil)

// NewProductVectorIndex 创建商品向量检索
func NewProductVectorIndex(repo *Repository) *ProductVectorIndex {
	return &ProductVectorIndex{repo: repo}
}

// SearchSimilar 余弦相似度检索
func (x *ProductVectorIndex) SearchSimilar(ctx context.Context, vector []float32, limit int) ([]domain.ScoredID, error) {
	return x.repo.Search(ctx, CollectionProductEmbeddings, vector, limit)
}

// ItemFactorIndex CF 商品隐向量检索
type ItemFactorIndex struct {
	repo *Repository
}

var _ repository.FactorIndex = (*ItemFactorIndex)(nil)

// NewItemFactorIndex 创建隐向量检索
func NewItemFactorIndex(repo *Repository) *ItemFactorIndex {
	return &ItemFactorIndex{repo: repo}
}

// SearchItems 内积检索
func (x *ItemFactorIndex) SearchItems(ctx context.Context, userFactor []float32, limit int) ([]domain.ScoredID, error) {
	return x.repo.Search(ctx, CollectionItemFactors, userFactor, limit)
}
