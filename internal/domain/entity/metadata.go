// Package entity 定义领域实体
package entity

import (
	"fmt"
	"strings"
)

// SourceType 数据源类型
type SourceType string

const (
	SourceScreenplay SourceType = "screenplay"
	SourceReview     SourceType = "review"
	SourceCatalog    SourceType = "catalog"
)

// SourceTypes 全部已知数据源类型
var SourceTypes = []SourceType{SourceScreenplay, SourceReview, SourceCatalog}

// ParseSourceType 解析数据源类型（大小写不敏感）
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("unknown source type %q", s)
	}
	return st, nil
}

// Valid 是否为已知类型
func (s SourceType) Valid() bool {
	switch s {
	case SourceScreenplay, SourceReview, SourceCatalog:
		return true
	}
	return false
}

// MetaField 有序元数据中的一项，值为标量（string / int / float64 / bool）
type MetaField struct {
	Key   string
	Value any
}

// Metadata 文档元数据：公共必填字段 + 按数据源类型区分的变体
//
// 每个 Metadata 最多携带一个与 SourceType 匹配的变体。
type Metadata struct {
	SourceType SourceType `json:"source_type" validate:"required,oneof=screenplay review catalog"`
	Title      string     `json:"title" validate:"required"`

	Screenplay *ScreenplayMeta `json:"screenplay,omitempty" validate:"-"`
	Review     *ReviewMeta     `json:"review,omitempty" validate:"-"`
	Catalog    *CatalogMeta    `json:"catalog,omitempty" validate:"-"`
}

// ScreenplayMeta 剧本片段元数据
type ScreenplayMeta struct {
	MovieID      string `json:"movie_id,omitempty"`
	ReleaseYear  int    `json:"release_year,omitempty" validate:"omitempty,gte=1800,lte=2100"`
	SceneNumber  int    `json:"scene_number,omitempty" validate:"omitempty,gte=1"`
	SceneHeading string `json:"scene_heading,omitempty"`
	PageNumber   int    `json:"page_number,omitempty" validate:"omitempty,gte=1"`
}

// ReviewMeta 用户影评元数据
type ReviewMeta struct {
	MovieID      string  `json:"movie_id,omitempty"`
	ReleaseYear  int     `json:"release_year,omitempty" validate:"omitempty,gte=1800,lte=2100"`
	ReviewID     string  `json:"review_id,omitempty"`
	Author       string  `json:"author" validate:"required"`
	ReviewRating float64 `json:"review_rating,omitempty" validate:"gte=0,lte=10"`
	Site         string  `json:"site,omitempty" validate:"omitempty,oneof=imdb tmdb letterboxd rottentomatoes metacritic"`
	HelpfulCount int     `json:"helpful_count,omitempty" validate:"gte=0"`
	ReviewedAt   string  `json:"reviewed_at,omitempty"`
}

// reviewSites 可识别的影评站点
var reviewSites = map[string]struct{}{
	"imdb":           {},
	"tmdb":           {},
	"letterboxd":     {},
	"rottentomatoes": {},
	"metacritic":     {},
}

// ReviewSite 规范化站点名（小写、去空白与连字符）；无法识别时返回空串
func ReviewSite(site string) string {
	s := strings.ToLower(strings.TrimSpace(site))
	s = strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
	s = strings.TrimSuffix(s, ".com")
	if _, ok := reviewSites[s]; !ok {
		return ""
	}
	return s
}

// CatalogMeta 影片目录元数据
type CatalogMeta struct {
	MovieID        string  `json:"movie_id" validate:"required"`
	ReleaseYear    int     `json:"release_year,omitempty" validate:"omitempty,gte=1800,lte=2100"`
	Director       string  `json:"director,omitempty"`
	Genres         string  `json:"genres,omitempty"`
	CatalogRating  float64 `json:"catalog_rating,omitempty" validate:"gte=0,lte=10"`
	RuntimeMinutes int     `json:"runtime_minutes,omitempty" validate:"gte=0"`
	PosterURL      string  `json:"poster_url,omitempty" validate:"omitempty,url"`
}

// Fields 返回有序的标量元数据：source_type、title，随后是变体中的非零字段
func (m Metadata) Fields() []MetaField {
	fields := []MetaField{
		{Key: "source_type", Value: string(m.SourceType)},
		{Key: "title", Value: m.Title},
	}
	add := func(key string, v any) {
		switch x := v.(type) {
		case string:
			if x == "" {
				return
			}
		case int:
			if x == 0 {
				return
			}
		case float64:
			if x == 0 {
				return
			}
		}
		fields = append(fields, MetaField{Key: key, Value: v})
	}

	switch {
	case m.Screenplay != nil:
		s := m.Screenplay
		add("movie_id", s.MovieID)
		add("release_year", s.ReleaseYear)
		add("scene_number", s.SceneNumber)
		add("scene_heading", s.SceneHeading)
		add("page_number", s.PageNumber)
	case m.Review != nil:
		r := m.Review
		add("movie_id", r.MovieID)
		add("release_year", r.ReleaseYear)
		add("review_id", r.ReviewID)
		add("author", r.Author)
		add("review_rating", r.ReviewRating)
		add("site", r.Site)
		add("helpful_count", r.HelpfulCount)
		add("reviewed_at", r.ReviewedAt)
	case m.Catalog != nil:
		c := m.Catalog
		add("movie_id", c.MovieID)
		add("release_year", c.ReleaseYear)
		add("director", c.Director)
		add("genres", c.Genres)
		add("catalog_rating", c.CatalogRating)
		add("runtime_minutes", c.RuntimeMinutes)
		add("poster_url", c.PosterURL)
	}
	return fields
}

// Map 以 map 形式返回标量元数据
func (m Metadata) Map() map[string]any {
	fields := m.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Key] = f.Value
	}
	return out
}

// Value 按 key 读取标量元数据
func (m Metadata) Value(key string) (any, bool) {
	for _, f := range m.Fields() {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// ReleaseYear 返回变体中的上映年份，未知时为 0
func (m Metadata) ReleaseYear() int {
	switch {
	case m.Screenplay != nil:
		return m.Screenplay.ReleaseYear
	case m.Review != nil:
		return m.Review.ReleaseYear
	case m.Catalog != nil:
		return m.Catalog.ReleaseYear
	}
	return 0
}

// variantCount 统计已设置的变体数量
func (m Metadata) variantCount() int {
	n := 0
	if m.Screenplay != nil {
		n++
	}
	if m.Review != nil {
		n++
	}
	if m.Catalog != nil {
		n++
	}
	return n
}

// CheckVariant 校验变体与 SourceType 的一致性
func (m Metadata) CheckVariant() error {
	if m.variantCount() > 1 {
		return fmt.Errorf("metadata carries more than one source variant")
	}
	switch m.SourceType {
	case SourceScreenplay:
		if m.Review != nil || m.Catalog != nil {
			return fmt.Errorf("screenplay metadata carries a %s variant", m.otherVariant())
		}
	case SourceReview:
		if m.Review == nil {
			return fmt.Errorf("review metadata requires review fields")
		}
	case SourceCatalog:
		if m.Catalog == nil {
			return fmt.Errorf("catalog metadata requires catalog fields")
		}
	}
	return nil
}

func (m Metadata) otherVariant() string {
	switch {
	case m.Review != nil:
		return "review"
	case m.Catalog != nil:
		return "catalog"
	}
	return "screenplay"
}

// Filter 元数据过滤条件：各 key 的等值约束取合取
type Filter map[string]any

// Matches 判断元数据是否满足全部等值约束
func (f Filter) Matches(m Metadata) bool {
	for key, want := range f {
		got, ok := m.Value(key)
		if !ok || !ScalarEqual(got, want) {
			return false
		}
	}
	return true
}

// ScalarEqual 比较两个标量，数值类型统一按 float64 比较
func ScalarEqual(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case float32:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}
