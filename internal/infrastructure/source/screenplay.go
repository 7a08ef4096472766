// Package source 本地文件数据源适配器（剧本目录、影评 JSONL、影片目录 YAML）
package source

import (
	"context"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"cinemind/internal/domain/entity"
)

var (
	screenplayExts = map[string]bool{".txt": true, ".fountain": true}
	yearSuffix     = regexp.MustCompile(`^(.*?)[-_ ]((?:18|19|20)\d{2})$`)
	sceneHeading   = regexp.MustCompile(`(?m)^\s*((?:INT|EXT|INT\./EXT|I/E)\.[^\n]*)$`)
)

// ScreenplayDir 读取目录下的 .txt / .fountain 剧本文本（PDF 需预先提取为文本）
type ScreenplayDir struct {
	dir string
}

// NewScreenplayDir 创建剧本目录适配器
func NewScreenplayDir(dir string) *ScreenplayDir {
	return &ScreenplayDir{dir: dir}
}

// SourceType 数据源类型
func (s *ScreenplayDir) SourceType() entity.SourceType { return entity.SourceScreenplay }

// Items 按文件名顺序逐个读取，source_key 为文件名（不含扩展名）
func (s *ScreenplayDir) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		entries, err := os.ReadDir(s.dir)
		if err != nil {
			yield(entity.RawItem{SourceKey: s.dir}, fmt.Errorf("read screenplay dir: %w", err))
			return
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.IsDir() || !screenplayExts[strings.ToLower(filepath.Ext(e.Name()))] {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)

		for _, name := range names {
			if ctx.Err() != nil {
				return
			}
			stem := strings.TrimSuffix(name, filepath.Ext(name))
			data, err := os.ReadFile(filepath.Join(s.dir, name))
			if err != nil {
				if !yield(entity.RawItem{SourceKey: stem}, fmt.Errorf("read screenplay %s: %w", name, err)) {
					return
				}
				continue
			}
			if !yield(screenplayItem(stem, string(data)), nil) {
				return
			}
		}
	}
}

func screenplayItem(stem, text string) entity.RawItem {
	title, year := ParseScreenplayName(stem)
	meta := &entity.ScreenplayMeta{
		MovieID:     "script_" + stem,
		ReleaseYear: year,
	}
	if m := sceneHeading.FindStringSubmatch(text); m != nil {
		meta.SceneHeading = strings.TrimSpace(m[1])
		meta.SceneNumber = 1
	}
	return entity.RawItem{
		SourceKey: stem,
		Payload:   entity.ScreenplayText(text),
		Metadata: entity.Metadata{
			SourceType: entity.SourceScreenplay,
			Title:      title,
			Screenplay: meta,
		},
	}
}

// ParseScreenplayName the-dark-knight-2008 -> ("The Dark Knight", 2008)
func ParseScreenplayName(stem string) (string, int) {
	year := 0
	base := stem
	if m := yearSuffix.FindStringSubmatch(stem); m != nil {
		base = m[1]
		year, _ = strconv.Atoi(m[2])
	}
	words := strings.FieldsFunc(base, func(r rune) bool { return r == '-' || r == '_' || unicode.IsSpace(r) })
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	title := strings.Join(words, " ")
	if title == "" {
		title = stem
	}
	return title, year
}
