package entity

import "strings"

// SentimentLabel 情感标签
type SentimentLabel string

const (
	SentimentPositive SentimentLabel = "POSITIVE"
	SentimentNegative SentimentLabel = "NEGATIVE"
	SentimentNeutral  SentimentLabel = "NEUTRAL"
)

// ParseSentimentLabel 解析远程服务返回的标签（大小写不敏感）
func ParseSentimentLabel(s string) (SentimentLabel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POSITIVE", "POS":
		return SentimentPositive, true
	case "NEGATIVE", "NEG":
		return SentimentNegative, true
	case "NEUTRAL", "NEU":
		return SentimentNeutral, true
	}
	return "", false
}

// Sentiment 情感打分结果
type Sentiment struct {
	Label SentimentLabel `json:"label"`
	Score float64        `json:"score"`
}

// RetrievalResult 单次查询的检索结果，不持久化
type RetrievalResult struct {
	QueryText           string               `json:"query_text"`
	Retrieved           []ScoredDocument     `json:"retrieved"`
	SentimentByDocument map[string]Sentiment `json:"sentiment_by_document"`
}

// NewRetrievalResult 创建检索结果
func NewRetrievalResult(query string, retrieved []ScoredDocument) *RetrievalResult {
	if retrieved == nil {
		retrieved = []ScoredDocument{}
	}
	return &RetrievalResult{
		QueryText:           query,
		Retrieved:           retrieved,
		SentimentByDocument: map[string]Sentiment{},
	}
}

// Empty 是否没有命中
func (r *RetrievalResult) Empty() bool {
	return r == nil || len(r.Retrieved) == 0
}

// Answer 最终回答，引用为实际进入 prompt 的文档 ID
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations"`
	Grounded  bool     `json:"grounded"`
}
