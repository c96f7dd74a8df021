// Package main 初始化数据库结构、向量集合与全文索引
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"hybrid-ranking-api/internal/config"
	"hybrid-ranking-api/internal/domain/entity"
	"hybrid-ranking-api/internal/infrastructure/persistence/milvus"
	"hybrid-ranking-api/internal/infrastructure/persistence/postgres"
	"hybrid-ranking-api/internal/wire"
	"hybrid-ranking-api/pkg/logger"
)

// syncPageSize 同步向量与索引时的分页大小
const syncPageSize = 500

func main() {
	_ = godotenv.Load()

	seedPath := flag.String("seed", "", "optional JSON seed file with products, users and interactions")
	skipSync := flag.Bool("skip-sync", false, "skip vector and search index sync")
	flag.Parse()

	fmt.Println("Starting system bootstrap...")

	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx := context.Background()

	// 2. 初始化数据层
	data, cleanup, err := wire.InitializeDataLayer(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize data layer", err)
	}
	defer cleanup()

	// 3. 表结构
	if err := postgres.EnsureSchema(ctx, data.PgClient); err != nil {
		logger.Fatal(ctx, "failed to ensure schema", err)
	}
	fmt.Println("Database schema is up to date.")

	// 4. 初始数据
	if *seedPath != "" {
		seed, err := readSeed(*seedPath)
		if err != nil {
			logger.Fatal(ctx, "failed to load seed", err)
		}
		if err := applySeed(ctx, data, seed); err != nil {
			logger.Fatal(ctx, "failed to apply seed", err)
		}
		fmt.Printf("Seeded %d products, %d users, %d interactions.\n",
			len(seed.Products), len(seed.Users), len(seed.Interactions))
	}

	// 5. 向量集合与全文索引
	if data.MilvusRepo != nil {
		if err := data.MilvusRepo.EnsureCollections(ctx); err != nil {
			logger.Fatal(ctx, "failed to ensure milvus collections", err)
		}
		fmt.Println("Milvus collections are ready.")
	}
	if data.Search != nil {
		if err := data.Search.EnsureIndex(ctx, wire.SynonymDictionary(ctx, cfg)); err != nil {
			logger.Fatal(ctx, "failed to ensure search index", err)
		}
		fmt.Println("Meilisearch index is ready.")
	}

	if !*skipSync {
		synced, err := syncProducts(ctx, data)
		if err != nil {
			logger.Fatal(ctx, "failed to sync products", err)
		}
		fmt.Printf("Synced %d products.\n", synced)
	}

	fmt.Println("Bootstrap completed successfully.")
}

// syncProducts 分页同步商品到向量集合与全文索引，缺少向量的商品在有 Embedder 时补齐
func syncProducts(ctx context.Context, data *wire.DataLayer) (int, error) {
	if data.MilvusRepo == nil && data.Search == nil {
		return 0, nil
	}

	total := 0
	after := ""
	for {
		page, err := data.ProductRepo.ListAfter(ctx, after, syncPageSize)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			return total, nil
		}

		if err := fillEmbeddings(ctx, data, page); err != nil {
			return total, err
		}
		if data.MilvusRepo != nil {
			embeddings, factors := vectorRecords(page)
			if err := data.MilvusRepo.Upsert(ctx, milvus.CollectionProductEmbeddings, embeddings); err != nil {
				return total, err
			}
			if err := data.MilvusRepo.Upsert(ctx, milvus.CollectionItemFactors, factors); err != nil {
				return total, err
			}
		}
		if data.Search != nil {
			if err := data.Search.IndexProducts(ctx, page); err != nil {
				return total, err
			}
		}

		total += len(page)
		after = page[len(page)-1].ID
	}
}

func fillEmbeddings(ctx context.Context, data *wire.DataLayer, products []*entity.Product) error {
	if data.Embedder == nil {
		return nil
	}

	var missing []*entity.Product
	var texts []string
	for _, p := range products {
		if len(p.Embedding) == 0 {
			missing = append(missing, p)
			texts = append(texts, p.Name+" "+p.Description)
		}
	}
	if len(missing) == 0 {
		return nil
	}

	vectors, err := data.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return err
	}
	for i, p := range missing {
		p.Embedding = vectors[i]
	}
	return data.ProductRepo.Upsert(ctx, missing)
}

func vectorRecords(products []*entity.Product) (embeddings, factors []milvus.VectorRecord) {
	for _, p := range products {
		if len(p.Embedding) > 0 {
			embeddings = append(embeddings, milvus.VectorRecord{ID: p.ID, Vector: p.Embedding, Category: p.Category})
		}
		if len(p.Factor) > 0 {
			factors = append(factors, milvus.VectorRecord{ID: p.ID, Vector: p.Factor, Category: p.Category})
		}
	}
	return embeddings, factors
}
