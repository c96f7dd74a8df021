package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const (
	// CollectionProductEmbeddings 商品内容向量集合，余弦相似度
	CollectionProductEmbeddings = "product_embeddings"
	// CollectionItemFactors CF 商品隐向量集合，内积
	CollectionItemFactors = "item_factors"

	// DefaultEmbeddingDim 默认内容向量维度
	DefaultEmbeddingDim = 384
	// DefaultFactorDim 默认隐向量维度
	DefaultFactorDim = 64

	vectorField   = "vector"
	idField       = "id"
	categoryField = "category"
)

// vectorSchema 两个集合共享的字段布局
func vectorSchema(name, description string, dim int) *entity.Schema {
	return &entity.Schema{
		CollectionName: name,
		Description:    description,
		Fields: []*entity.Field{
			{
				Name:       idField,
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     vectorField,
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dim),
				},
			},
			{
				Name:     categoryField,
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
		},
	}
}

// ProductEmbeddingsSchema 商品内容向量 Collection Schema
func ProductEmbeddingsSchema(dim int) *entity.Schema {
	return vectorSchema(CollectionProductEmbeddings, "Product content embeddings for semantic retrieval", dim)
}

// ItemFactorsSchema CF 商品隐向量 Collection Schema
func ItemFactorsSchema(dim int) *entity.Schema {
	return vectorSchema(CollectionItemFactors, "Collaborative filtering item factors", dim)
}

// VectorRecord 写入集合的一行
type VectorRecord struct {
	ID       string
	Vector   []float32
	Category string
}

// collectionSpec 集合的 schema 与度量方式
type collectionSpec struct {
	name   string
	metric entity.MetricType
	dim    int
	schema func(dim int) *entity.Schema
}
