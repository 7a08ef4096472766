package rag

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/application/answer"
	"cinemind/internal/application/ingestion"
	"cinemind/internal/application/retrieval"
	"cinemind/internal/domain/entity"
	"cinemind/internal/infrastructure/persistence/memory"
)

// unitEmbedder 所有文本映射到同一向量
type unitEmbedder struct{}

func (unitEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 1, 1}
	}
	return out, nil
}

func (unitEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 1, 1}, nil
}

type oneScreenplay struct{}

func (oneScreenplay) SourceType() entity.SourceType { return entity.SourceScreenplay }

func (oneScreenplay) Items(context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		yield(entity.RawItem{
			SourceKey: "demo",
			Payload:   entity.ScreenplayText("INT. OFFICE - DAY"),
			Metadata:  entity.Metadata{SourceType: entity.SourceScreenplay, Title: "Demo"},
		}, nil)
	}
}

func TestIngestThenAsk(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	coordinator := ingestion.NewCoordinator(nil, unitEmbedder{}, idx, ingestion.Options{})

	runs, err := coordinator.Run(ctx, oneScreenplay{})
	require.NoError(t, err)
	require.Equal(t, 1, runs[0].DocumentsWritten)

	gen := &scriptedGenerator{out: "The film opens in an office during the day [1]."}
	p := NewPipeline(
		retrieval.NewPlanner(unitEmbedder{}, idx, retrieval.Options{}),
		nil,
		answer.NewComposer(gen, answer.Options{}),
		0,
	)

	ans, res, err := p.Ask(ctx, Query{Text: "What scene opens the film?", TopK: 1})
	require.NoError(t, err)

	wantID := entity.DocumentID(entity.SourceScreenplay, "demo", 0)
	require.Len(t, res.Retrieved, 1)
	assert.Equal(t, wantID, res.Retrieved[0].Document.ID)
	assert.Contains(t, ans.Citations, wantID)
	assert.True(t, ans.Grounded)

	// 再次入库不产生重复
	runs, err = coordinator.Run(ctx, oneScreenplay{})
	require.NoError(t, err)
	assert.Equal(t, 0, runs[0].DocumentsWritten)
	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(1), size)
}
