package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"strings"

	"cinemind/internal/domain/entity"
)

// reviewLine JSONL 中的一条影评
type reviewLine struct {
	ReviewID     string  `json:"review_id"`
	MovieID      string  `json:"movie_id"`
	Title        string  `json:"title"`
	ReleaseYear  int     `json:"release_year"`
	Author       string  `json:"author"`
	Rating       float64 `json:"rating"`
	Site         string  `json:"site"`
	HelpfulCount int     `json:"helpful_count"`
	ReviewedAt   string  `json:"reviewed_at"`
	Body         string  `json:"body"`
}

// ReviewFile 读取 JSONL 影评文件；格式错误的行产出错误并继续
type ReviewFile struct {
	path string
}

// NewReviewFile 创建影评文件适配器
func NewReviewFile(path string) *ReviewFile {
	return &ReviewFile{path: path}
}

// SourceType 数据源类型
func (r *ReviewFile) SourceType() entity.SourceType { return entity.SourceReview }

// Items 逐行读取；source_key 为 review_id，缺失时为 movie_id:行号
func (r *ReviewFile) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		f, err := os.Open(r.path)
		if err != nil {
			yield(entity.RawItem{SourceKey: r.path}, fmt.Errorf("open review file: %w", err))
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		lineNo := 0
		for sc.Scan() {
			if ctx.Err() != nil {
				return
			}
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			var rl reviewLine
			if err := json.Unmarshal([]byte(line), &rl); err != nil {
				if !yield(entity.RawItem{SourceKey: fmt.Sprintf("line:%d", lineNo)}, fmt.Errorf("line %d: %w", lineNo, err)) {
					return
				}
				continue
			}
			if !yield(rl.item(lineNo), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield(entity.RawItem{SourceKey: fmt.Sprintf("line:%d", lineNo+1)}, fmt.Errorf("scan review file: %w", err))
		}
	}
}

func (rl reviewLine) item(lineNo int) entity.RawItem {
	key := rl.ReviewID
	if key == "" {
		key = fmt.Sprintf("%s:%d", rl.MovieID, lineNo)
	}
	return entity.RawItem{
		SourceKey: key,
		Payload:   entity.ReviewRecord{Body: rl.Body},
		Metadata: entity.Metadata{
			SourceType: entity.SourceReview,
			Title:      rl.Title,
			Review: &entity.ReviewMeta{
				MovieID:      rl.MovieID,
				ReleaseYear:  rl.ReleaseYear,
				ReviewID:     rl.ReviewID,
				Author:       rl.Author,
				ReviewRating: rl.Rating,
				Site:         entity.ReviewSite(rl.Site),
				HelpfulCount: rl.HelpfulCount,
				ReviewedAt:   rl.ReviewedAt,
			},
		},
	}
}
