package postgres

import (
	"context"
	"fmt"
	"regexp"
)

var regconfigPattern = regexp.MustCompile(`^[a-z_]+$`)

// schemaStatements 建表语句，%[1]s 为全文检索 regconfig
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		category         TEXT NOT NULL DEFAULT '',
		popularity_score DOUBLE PRECISION NOT NULL DEFAULT 0,
		embedding        REAL[],
		cf_factor        REAL[],
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		search_vector    TSVECTOR GENERATED ALWAYS AS (
			to_tsvector('%[1]s'::regconfig, name || ' ' || description || ' ' || category)
		) STORED
	)`,
	`CREATE INDEX IF NOT EXISTS idx_products_search ON products USING GIN (search_vector)`,
	`CREATE INDEX IF NOT EXISTS idx_products_popularity ON products (popularity_score DESC, id)`,
	`CREATE INDEX IF NOT EXISTS idx_products_category_popularity ON products (category, popularity_score DESC, id)`,
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id           TEXT PRIMARY KEY,
		category_affinity JSONB NOT NULL DEFAULT '{}',
		cf_factor         REAL[],
		updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS user_interactions (
		id          BIGSERIAL PRIMARY KEY,
		user_id     TEXT NOT NULL,
		product_id  TEXT NOT NULL,
		kind        TEXT NOT NULL DEFAULT 'view',
		source      TEXT NOT NULL DEFAULT '',
		occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`ALTER TABLE user_interactions ADD COLUMN IF NOT EXISTS source TEXT NOT NULL DEFAULT ''`,
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_user ON user_interactions (user_id, occurred_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_user_interactions_product ON user_interactions (product_id, kind)`,
}

// SchemaStatements 返回指定 regconfig 下的建表语句
func SchemaStatements(regconfig string) ([]string, error) {
	if !regconfigPattern.MatchString(regconfig) {
		return nil, fmt.Errorf("invalid text search config %q", regconfig)
	}
	out := make([]string, len(schemaStatements))
	for i, stmt := range schemaStatements {
		if i == 0 {
			stmt = fmt.Sprintf(stmt, regconfig)
		}
		out[i] = stmt
	}
	return out, nil
}

// EnsureSchema 在单个事务中创建表和索引
func EnsureSchema(ctx context.Context, client *Client) error {
	ctx, span := tracer.Start(ctx, "postgres.EnsureSchema")
	defer span.End()

	stmts, err := SchemaStatements(client.TextSearchConfig())
	if err != nil {
		return err
	}

	return NewTxManager(client).WithTransaction(ctx, func(ctx context.Context) error {
		db := getDB(ctx, client.db)
		for _, stmt := range stmts {
			if err := db.Exec(stmt).Error; err != nil {
				span.RecordError(err)
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
