package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"

	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/domain/repository"
)

// valueKind 特征列的类型
type valueKind int

const (
	kindNumber valueKind = iota
	kindText
	kindTime
	kindVector
	kindMap
	kindIDs
)

// featureQuery 单个特征的批量查询，结果列为 (entity_id, value)
type featureQuery struct {
	sql  string
	kind valueKind
}

// DefaultHistoryLimit 每个用户加载的最近交互数
const DefaultHistoryLimit = 50

var featureQueries = map[string]featureQuery{
	"popularity":     {sql: `SELECT id, popularity_score FROM products WHERE id IN ?`, kind: kindNumber},
	"created_at":     {sql: `SELECT id, created_at FROM products WHERE id IN ?`, kind: kindTime},
	"category":       {sql: `SELECT id, category FROM products WHERE id IN ? AND category <> ''`, kind: kindText},
	"embedding":      {sql: `SELECT id, embedding FROM products WHERE id IN ? AND embedding IS NOT NULL`, kind: kindVector},
	"cf_item_factor": {sql: `SELECT id, cf_factor FROM products WHERE id IN ? AND cf_factor IS NOT NULL`, kind: kindVector},
	"cf_user_factor": {sql: `SELECT user_id, cf_factor FROM user_profiles WHERE user_id IN ? AND cf_factor IS NOT NULL`, kind: kindVector},
	"affinity":       {sql: `SELECT user_id, category_affinity FROM user_profiles WHERE user_id IN ?`, kind: kindMap},
	// 计数类特征是事件流的聚合，没有交互的实体不返回行，由兜底值补 0
	"interaction_count": {
		sql: `SELECT user_id, COUNT(*)::double precision
			FROM user_interactions
			WHERE user_id IN ?
			GROUP BY user_id`,
		kind: kindNumber,
	},
	"view_count": {
		sql: `SELECT product_id, COUNT(*) FILTER (WHERE kind = 'view')::double precision
			FROM user_interactions
			WHERE product_id IN ?
			GROUP BY product_id`,
		kind: kindNumber,
	},
	"history": {
		sql: `SELECT user_id, product_id FROM (
			SELECT user_id, product_id,
				row_number() OVER (PARTITION BY user_id ORDER BY occurred_at DESC, id DESC) AS rn
			FROM user_interactions
			WHERE user_id IN ?
		) recent
		WHERE rn <= ?
		ORDER BY user_id, rn`,
		kind: kindIDs,
	},
}

// FeatureStore 特征后备存储
type FeatureStore struct {
	client       *Client
	historyLimit int
}

var _ repository.FeatureStore = (*FeatureStore)(nil)

// NewFeatureStore 创建特征后备存储
func NewFeatureStore(client *Client, historyLimit int) *FeatureStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &FeatureStore{client: client, historyLimit: historyLimit}
}

// Supports 是否存在该特征的查询
func (s *FeatureStore) Supports(feature string) bool {
	_, ok := featureQueries[feature]
	return ok
}

// LoadFeature 一次查询加载一批实体的同一特征
func (s *FeatureStore) LoadFeature(ctx context.Context, feature string, entityIDs []string) (map[string]entity.FeatureValue, error) {
	ctx, span := tracer.Start(ctx, "postgres.FeatureStore.LoadFeature")
	span.SetAttributes(attribute.String("feature.name", feature), attribute.Int("feature.entity_count", len(entityIDs)))
	defer span.End()

	q, ok := featureQueries[feature]
	if !ok {
		return nil, fmt.Errorf("feature %q has no backing query", feature)
	}
	out := make(map[string]entity.FeatureValue, len(entityIDs))
	if len(entityIDs) == 0 {
		return out, nil
	}

	args := []interface{}{entityIDs}
	if q.kind == kindIDs {
		args = append(args, s.historyLimit)
	}

	rows, err := getDB(ctx, s.client.db).Raw(q.sql, args...).Rows()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load feature %s: %w", feature, err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scanFeatureRow(rows, q.kind, out); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan feature %s: %w", feature, err)
		}
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to read feature %s: %w", feature, err)
	}
	return out, nil
}

func scanFeatureRow(rows *sql.Rows, kind valueKind, out map[string]entity.FeatureValue) error {
	var id string
	switch kind {
	case kindNumber:
		var v sql.NullFloat64
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if v.Valid {
			out[id] = entity.NumberValue(v.Float64)
		}
	case kindText:
		var v sql.NullString
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if v.Valid {
			out[id] = entity.TextValue(v.String)
		}
	case kindTime:
		var v sql.NullTime
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if v.Valid {
			out[id] = entity.TimeValue(v.Time)
		}
	case kindVector:
		var v pq.Float32Array
		if err := rows.Scan(&id, &v); err != nil {
			return err
		}
		if len(v) > 0 {
			out[id] = entity.VectorValue([]float32(v))
		}
	case kindMap:
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return err
		}
		m, err := decodeAffinity(raw)
		if err != nil {
			return err
		}
		out[id] = entity.MapValue(m)
	case kindIDs:
		var productID string
		if err := rows.Scan(&id, &productID); err != nil {
			return err
		}
		appendID(out, id, productID)
	}
	return nil
}

// decodeAffinity 解析类目亲和度 JSON，空值返回空映射
func decodeAffinity(raw []byte) (map[string]float64, error) {
	m := map[string]float64{}
	if len(raw) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode category affinity: %w", err)
	}
	return m, nil
}

func appendID(out map[string]entity.FeatureValue, entityID, id string) {
	v := out[entityID]
	v.IDs = append(v.IDs, id)
	out[entityID] = v
}
