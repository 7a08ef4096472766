package answer

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding 默认分词编码
const DefaultEncoding = "cl100k_base"

// TokenCounter 估算 prompt 占用的 token 数
type TokenCounter interface {
	Count(text string) int
	// Truncate 截断到不超过 limit 个 token
	Truncate(text string, limit int) string
}

// tiktokenCounter 基于 tiktoken 的精确计数
type tiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c tiktokenCounter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) <= limit {
		return text
	}
	return c.enc.Decode(tokens[:limit])
}

// EstimateCounter 按 4 个字符一个 token 估算
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

func (EstimateCounter) Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	r := []rune(text)
	if len(r) <= limit*4 {
		return text
	}
	return string(r[:limit*4])
}

var (
	countersMu sync.Mutex
	counters   = map[string]TokenCounter{}
)

// NewTokenCounter 返回指定编码的计数器；编码不可用（如离线无法加载 BPE 文件）时回退为估算
func NewTokenCounter(encoding string) TokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	if encoding == "estimate" {
		return EstimateCounter{}
	}
	countersMu.Lock()
	defer countersMu.Unlock()
	if c, ok := counters[encoding]; ok {
		return c
	}
	var c TokenCounter = EstimateCounter{}
	if enc, err := tiktoken.GetEncoding(encoding); err == nil {
		c = tiktokenCounter{enc: enc}
	}
	counters[encoding] = c
	return c
}
