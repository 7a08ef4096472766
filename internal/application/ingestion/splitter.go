package ingestion

import (
	"strings"
	"unicode"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
	DefaultMinChunkSize = 200
)

// Splitter 按 rune 切分文本，窗口后半段内优先在段落、换行、句末处断开
type Splitter struct {
	size    int
	overlap int
	min     int
}

// NewSplitter 创建切分器，非法参数回退为默认值
func NewSplitter(size, overlap, min int) *Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = size / 5
	}
	if min <= 0 || min > size {
		min = size / 5
	}
	return &Splitter{size: size, overlap: overlap, min: min}
}

// Split 返回按顺序排列的块；过短的尾块并入前一块，因此末块最长为 size+min-1
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= s.size {
		return []string{string(runes)}
	}

	out := make([]string, 0, n/(s.size-s.overlap)+1)
	start := 0
	for start < n {
		end := start + s.size
		if end >= n {
			out = appendChunk(out, runes[start:n])
			break
		}
		cut := s.breakPoint(runes, start, end)
		if n-cut < s.min {
			out = appendChunk(out, runes[start:n])
			break
		}
		out = appendChunk(out, runes[start:cut])

		next := cut - s.overlap
		if next <= start {
			next = cut
		}
		start = alignWord(runes, next, cut)
	}
	return out
}

// breakPoint 在 (start+size/2, end] 内寻找断点，找不到时硬切
func (s *Splitter) breakPoint(runes []rune, start, end int) int {
	lo := start + s.size/2
	if i := lastIndex(runes, lo, end, func(i int) bool {
		return runes[i] == '\n' && i > 0 && runes[i-1] == '\n'
	}); i > 0 {
		return i + 1
	}
	if i := lastIndex(runes, lo, end, func(i int) bool { return runes[i] == '\n' }); i > 0 {
		return i + 1
	}
	if i := lastIndex(runes, lo, end, func(i int) bool {
		switch runes[i] {
		case '。', '！', '？':
			return true
		case '.', '!', '?':
			return i+1 < len(runes) && unicode.IsSpace(runes[i+1])
		}
		return false
	}); i > 0 {
		return i + 1
	}
	if i := lastIndex(runes, lo, end, func(i int) bool { return unicode.IsSpace(runes[i]) }); i > 0 {
		return i + 1
	}
	return end
}

func lastIndex(runes []rune, lo, hi int, match func(int) bool) int {
	for i := hi - 1; i >= lo; i-- {
		if match(i) {
			return i
		}
	}
	return -1
}

// alignWord 将重叠起点后移到 [pos, limit) 内的第一个词首；无空白时保持原位
func alignWord(runes []rune, pos, limit int) int {
	if pos == 0 || unicode.IsSpace(runes[pos-1]) || unicode.IsSpace(runes[pos]) {
		return pos
	}
	for i := pos + 1; i < limit; i++ {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}
	return pos
}

func appendChunk(out []string, r []rune) []string {
	if c := strings.TrimSpace(string(r)); c != "" {
		return append(out, c)
	}
	return out
}
