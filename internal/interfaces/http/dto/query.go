package dto

import (
	"cinemind/internal/domain/entity"
)

// QueryRequest 问答请求
type QueryRequest struct {
	Question string         `json:"question" binding:"required,min=3,max=500"`
	TopK     int            `json:"top_k,omitempty" binding:"omitempty,min=1,max=20"`
	Filter   map[string]any `json:"filter,omitempty"`
	Title    string         `json:"title,omitempty" binding:"omitempty,max=200"`
}

// QueryResponse 问答响应
type QueryResponse struct {
	Answer    string       `json:"answer"`
	Citations []string     `json:"citations"`
	Sources   []*SourceRef `json:"sources"`
	Grounded  bool         `json:"grounded"`
}

// SourceRef 被引用的文档
type SourceRef struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	SourceType string            `json:"source_type"`
	Score      float64           `json:"score"`
	Sentiment  *entity.Sentiment `json:"sentiment,omitempty"`
}

// ToQueryResponse 组装响应；sources 只包含被引用的文档，顺序与引用一致
func ToQueryResponse(answer *entity.Answer, result *entity.RetrievalResult) *QueryResponse {
	resp := &QueryResponse{
		Answer:    answer.Text,
		Citations: answer.Citations,
		Sources:   make([]*SourceRef, 0, len(answer.Citations)),
		Grounded:  answer.Grounded,
	}
	if resp.Citations == nil {
		resp.Citations = []string{}
	}
	if result == nil {
		return resp
	}
	byID := make(map[string]entity.ScoredDocument, len(result.Retrieved))
	for _, d := range result.Retrieved {
		byID[d.Document.ID] = d
	}
	for _, id := range answer.Citations {
		d, ok := byID[id]
		if !ok {
			continue
		}
		ref := &SourceRef{
			ID:         id,
			Title:      d.Document.Metadata.Title,
			SourceType: string(d.Document.SourceType),
			Score:      d.Score,
		}
		if s, ok := result.SentimentByDocument[id]; ok {
			ref.Sentiment = &s
		}
		resp.Sources = append(resp.Sources, ref)
	}
	return resp
}
