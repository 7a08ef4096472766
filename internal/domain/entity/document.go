package entity

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// documentNamespace 文档 ID 的 UUIDv5 命名空间
var documentNamespace = uuid.MustParse("6f1c3f0e-93b4-5a53-9d0c-2b7c6a1e4d10")

// keySeparator 拼接 ID / 指纹输入的分隔符
const keySeparator = "\x1f"

// Document 索引中的规范化文本块
type Document struct {
	ID          string     `json:"id"`
	SourceType  SourceType `json:"source_type"`
	SourceKey   string     `json:"source_key"`
	ChunkIndex  int        `json:"chunk_index"`
	Fingerprint string     `json:"content_fingerprint"`
	Text        string     `json:"text"`
	Metadata    Metadata   `json:"metadata"`
	Embedding   []float32  `json:"embedding,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// DocumentID 由 (source_type, source_key, chunk_index) 派生稳定 ID
func DocumentID(sourceType SourceType, sourceKey string, chunkIndex int) string {
	name := string(sourceType) + keySeparator + sourceKey + keySeparator + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(documentNamespace, []byte(name)).String()
}

// HasEmbedding 是否已完成向量化
func (d *Document) HasEmbedding() bool {
	return d != nil && len(d.Embedding) > 0
}

// ScoredDocument 检索命中的文档及相似度（越大越相似）
type ScoredDocument struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Less 检索结果排序：分数降序，分数相同按 ingested_at 新者优先，再按 id 升序
func Less(a, b ScoredDocument) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if !a.Document.IngestedAt.Equal(b.Document.IngestedAt) {
		return a.Document.IngestedAt.After(b.Document.IngestedAt)
	}
	return a.Document.ID < b.Document.ID
}
