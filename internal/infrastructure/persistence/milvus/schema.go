package milvus

import (
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

// 文档集合字段
const (
	fieldID          = "id"
	fieldVector      = "vector"
	fieldSourceType  = "source_type"
	fieldSourceKey   = "source_key"
	fieldChunkIndex  = "chunk_index"
	fieldFingerprint = "fingerprint"
	fieldTitle       = "title"
	fieldText        = "text"
	fieldAttrs       = "metadata"
	fieldMetadata    = "metadata_doc"
	fieldIngestedAt  = "ingested_at"
)

// DefaultCollection 默认文档集合名
const DefaultCollection = "documents"

// outputFields 检索时回读的标量字段
var outputFields = []string{
	fieldID, fieldSourceType, fieldSourceKey, fieldChunkIndex,
	fieldFingerprint, fieldTitle, fieldText, fieldMetadata, fieldIngestedAt,
}

// DocumentsSchema 文档块 Collection Schema
//
// metadata 为扁平化的标量元数据，供过滤表达式使用；metadata_doc 保存完整的带变体结构。
func DocumentsSchema(name string, dimension int) *entity.Schema {
	varchar := func(n int) map[string]string {
		return map[string]string{"max_length": strconv.Itoa(n)}
	}
	return &entity.Schema{
		CollectionName: name,
		Description:    "Normalized film content chunks for semantic search",
		Fields: []*entity.Field{
			{Name: fieldID, DataType: entity.FieldTypeVarChar, PrimaryKey: true, AutoID: false, TypeParams: varchar(64)},
			{Name: fieldVector, DataType: entity.FieldTypeFloatVector, TypeParams: map[string]string{"dim": strconv.Itoa(dimension)}},
			{Name: fieldSourceType, DataType: entity.FieldTypeVarChar, TypeParams: varchar(32)},
			{Name: fieldSourceKey, DataType: entity.FieldTypeVarChar, TypeParams: varchar(512)},
			{Name: fieldChunkIndex, DataType: entity.FieldTypeInt64},
			{Name: fieldFingerprint, DataType: entity.FieldTypeVarChar, TypeParams: varchar(64)},
			{Name: fieldTitle, DataType: entity.FieldTypeVarChar, TypeParams: varchar(512)},
			{Name: fieldText, DataType: entity.FieldTypeVarChar, TypeParams: varchar(65535)},
			{Name: fieldAttrs, DataType: entity.FieldTypeJSON},
			{Name: fieldMetadata, DataType: entity.FieldTypeJSON},
			{Name: fieldIngestedAt, DataType: entity.FieldTypeInt64},
		},
	}
}
