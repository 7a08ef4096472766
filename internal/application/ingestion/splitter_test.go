package ingestion

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitter_ShortTextSingleChunk(t *testing.T) {
	s := NewSplitter(100, 20, 20)
	assert.Equal(t, []string{"INT. OFFICE - DAY"}, s.Split("  INT. OFFICE - DAY \n"))
	assert.Nil(t, s.Split("   "))
}

func TestSplitter_OverlapAndCoverage(t *testing.T) {
	var words []string
	for i := 0; i < 120; i++ {
		words = append(words, fmt.Sprintf("w%03d", i))
	}
	text := strings.Join(words, " ")

	s := NewSplitter(100, 20, 20)
	chunks := s.Split(text)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 120, "chunk %d too long", i)
		if i+1 < len(chunks) {
			first := strings.Fields(chunks[i+1])[0]
			assert.Contains(t, chunks[i], first, "chunk %d should overlap with next", i)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, w := range words {
		assert.Contains(t, joined, w)
	}
}

func TestSplitter_PrefersParagraphBreak(t *testing.T) {
	a := strings.Repeat("a", 70)
	b := strings.Repeat("b", 70)
	s := NewSplitter(100, 10, 10)
	assert.Equal(t, []string{a, b}, s.Split(a+"\n\n"+b))
}

func TestSplitter_MergesShortTail(t *testing.T) {
	s := NewSplitter(100, 0, 30)
	chunks := s.Split(strings.Repeat("x", 110))
	require.Len(t, chunks, 1)
	assert.Equal(t, 110, utf8.RuneCountInString(chunks[0]))
}

func TestSplitter_MergedTailBound(t *testing.T) {
	s := NewSplitter(100, 20, 30)
	const bound = 100 + 30 - 1

	for n := 1; n <= 400; n++ {
		for i, c := range s.Split(strings.Repeat("x", n)) {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), bound, "len %d chunk %d", n, i)
		}
	}
	chunks := s.Split(strings.Repeat("x", bound))
	require.Len(t, chunks, 1)
	assert.Equal(t, bound, utf8.RuneCountInString(chunks[0]))
}

func TestSplitter_CountsRunes(t *testing.T) {
	s := NewSplitter(10, 2, 2)
	text := strings.Repeat("电", 25)
	for _, c := range s.Split(text) {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, utf8.RuneCountInString(c), 12)
	}
}

func TestNewSplitter_FallsBackOnInvalidParams(t *testing.T) {
	s := NewSplitter(0, -1, 0)
	assert.Equal(t, DefaultChunkSize, s.size)
	assert.Equal(t, DefaultChunkSize/5, s.overlap)
	assert.Equal(t, DefaultChunkSize/5, s.min)

	s = NewSplitter(100, 100, 500)
	assert.Equal(t, 20, s.overlap)
	assert.Equal(t, 20, s.min)
}
