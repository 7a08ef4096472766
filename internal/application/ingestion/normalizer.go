package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cinemind/internal/domain/entity"
	apperrors "cinemind/pkg/errors"
)

// Normalizer 将数据源条目转换为带指纹的规范化文档
type Normalizer struct {
	splitter *Splitter
	validate *validator.Validate
	now      func() time.Time
}

// NewNormalizer 创建规范化器
func NewNormalizer(splitter *Splitter) *Normalizer {
	if splitter == nil {
		splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap, DefaultMinChunkSize)
	}
	return &Normalizer{
		splitter: splitter,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Normalize 校验元数据并切块；失败返回 CodeNormalizationFailed
func (n *Normalizer) Normalize(item entity.RawItem, sourceType entity.SourceType) ([]entity.Document, error) {
	key := strings.TrimSpace(item.SourceKey)
	if key == "" {
		return nil, normalizationError(item.SourceKey, "source_key is required")
	}
	meta := item.Metadata
	if meta.SourceType == "" {
		meta.SourceType = sourceType
	}
	if meta.SourceType != sourceType {
		return nil, normalizationError(key, fmt.Sprintf("metadata source_type %q does not match %q", meta.SourceType, sourceType))
	}
	meta.Title = strings.TrimSpace(meta.Title)
	if err := n.checkMetadata(meta); err != nil {
		return nil, normalizationError(key, err.Error())
	}
	if err := checkPayload(item.Payload, sourceType); err != nil {
		return nil, normalizationError(key, err.Error())
	}

	text := NormalizeText(item.Payload.Render(meta))
	if text == "" {
		return nil, normalizationError(key, "payload renders to empty text")
	}

	chunks := n.splitter.Split(text)
	now := n.now()
	docs := make([]entity.Document, 0, len(chunks))
	for idx, chunk := range chunks {
		docs = append(docs, entity.Document{
			ID:          entity.DocumentID(sourceType, key, idx),
			SourceType:  sourceType,
			SourceKey:   key,
			ChunkIndex:  idx,
			Fingerprint: Fingerprint(sourceType, key, idx, chunk),
			Text:        chunk,
			Metadata:    meta,
			IngestedAt:  now,
		})
	}
	return docs, nil
}

func (n *Normalizer) checkMetadata(meta entity.Metadata) error {
	if err := n.validate.Struct(meta); err != nil {
		return describeValidation(err)
	}
	if err := meta.CheckVariant(); err != nil {
		return err
	}
	var variant any
	switch {
	case meta.Screenplay != nil:
		variant = meta.Screenplay
	case meta.Review != nil:
		variant = meta.Review
	case meta.Catalog != nil:
		variant = meta.Catalog
	}
	if variant != nil {
		if err := n.validate.Struct(variant); err != nil {
			return describeValidation(err)
		}
	}
	return nil
}

func checkPayload(p entity.Payload, sourceType entity.SourceType) error {
	if p == nil {
		return fmt.Errorf("payload is required")
	}
	ok := false
	switch sourceType {
	case entity.SourceScreenplay:
		_, ok = p.(entity.ScreenplayText)
	case entity.SourceReview:
		_, ok = p.(entity.ReviewRecord)
	case entity.SourceCatalog:
		_, ok = p.(entity.CatalogRecord)
	}
	if !ok {
		return fmt.Errorf("payload %T does not belong to source %s", p, sourceType)
	}
	return nil
}

// describeValidation 将 validator 错误压缩为 "field: tag" 列表
func describeValidation(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s: %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return fmt.Errorf("invalid metadata (%s)", strings.Join(parts, ", "))
}

func normalizationError(sourceKey, msg string) error {
	return apperrors.New(apperrors.CodeNormalizationFailed, msg).WithDetail(sourceKey)
}
