package source

import (
	"context"
	"fmt"
	"iter"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"cinemind/internal/domain/entity"
)

// catalogFile YAML 影片目录
type catalogFile struct {
	Movies []catalogMovie `yaml:"movies"`
}

type catalogMovie struct {
	MovieID        string   `yaml:"movie_id"`
	Title          string   `yaml:"title"`
	ReleaseYear    int      `yaml:"release_year"`
	Director       string   `yaml:"director"`
	Genres         []string `yaml:"genres"`
	Rating         float64  `yaml:"rating"`
	RuntimeMinutes int      `yaml:"runtime_minutes"`
	PosterURL      string   `yaml:"poster_url"`
	Synopsis       string   `yaml:"synopsis"`
}

// CatalogFile 读取 YAML 影片目录
type CatalogFile struct {
	path string
}

// NewCatalogFile 创建影片目录适配器
func NewCatalogFile(path string) *CatalogFile {
	return &CatalogFile{path: path}
}

// SourceType 数据源类型
func (c *CatalogFile) SourceType() entity.SourceType { return entity.SourceCatalog }

// Items 每部影片一个条目，source_key 为 movie_id
func (c *CatalogFile) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		data, err := os.ReadFile(c.path)
		if err != nil {
			yield(entity.RawItem{SourceKey: c.path}, fmt.Errorf("read catalog file: %w", err))
			return
		}
		var cf catalogFile
		if err := yaml.Unmarshal(data, &cf); err != nil {
			yield(entity.RawItem{SourceKey: c.path}, fmt.Errorf("parse catalog file: %w", err))
			return
		}
		for i, m := range cf.Movies {
			if ctx.Err() != nil {
				return
			}
			if !yield(m.item(i), nil) {
				return
			}
		}
	}
}

func (m catalogMovie) item(i int) entity.RawItem {
	key := m.MovieID
	if key == "" {
		key = fmt.Sprintf("entry:%d", i)
	}
	return entity.RawItem{
		SourceKey: key,
		Payload:   entity.CatalogRecord{Synopsis: m.Synopsis, Genres: m.Genres},
		Metadata: entity.Metadata{
			SourceType: entity.SourceCatalog,
			Title:      m.Title,
			Catalog: &entity.CatalogMeta{
				MovieID:        m.MovieID,
				ReleaseYear:    m.ReleaseYear,
				Director:       m.Director,
				Genres:         strings.Join(m.Genres, ", "),
				CatalogRating:  m.Rating,
				RuntimeMinutes: m.RuntimeMinutes,
				PosterURL:      m.PosterURL,
			},
		},
	}
}
