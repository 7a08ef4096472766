package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/application/answer"
	"cinemind/internal/application/retrieval"
	"cinemind/internal/application/sentiment"
	"cinemind/internal/domain/entity"
	"cinemind/internal/infrastructure/persistence/memory"
	apperrors "cinemind/pkg/errors"
)

type vecEmbedder struct{ err error }

func (e vecEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, e.err
}

type fixedAnalyzer struct{ fail bool }

func (a fixedAnalyzer) Analyze(context.Context, string) (entity.Sentiment, error) {
	if a.fail {
		return entity.Sentiment{}, errors.New("sentiment down")
	}
	return entity.Sentiment{Label: entity.SentimentPositive, Score: 0.9}, nil
}

type scriptedGenerator struct {
	out   string
	err   error
	delay time.Duration
	calls int
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ []*schema.Message) (string, error) {
	g.calls++
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return g.out, g.err
}

func seededIndex(t *testing.T) *memory.Index {
	t.Helper()
	idx := memory.NewIndex()
	_, err := idx.Upsert(context.Background(), []entity.Document{
		{
			ID: "s1", SourceType: entity.SourceScreenplay, SourceKey: "heat-1995", Fingerprint: "f1",
			Text:      "INT. DINER - NIGHT. Hanna and McCauley talk over coffee.",
			Metadata:  entity.Metadata{SourceType: entity.SourceScreenplay, Title: "Heat"},
			Embedding: []float32{1, 0},
		},
		{
			ID: "r1", SourceType: entity.SourceReview, SourceKey: "rv1", Fingerprint: "f2",
			Text:      "The diner scene is the best two-hander in crime cinema.",
			Metadata:  entity.Metadata{SourceType: entity.SourceReview, Title: "Heat", Review: &entity.ReviewMeta{Author: "kim"}},
			Embedding: []float32{0.8, 0.2},
		},
		{
			ID: "c1", SourceType: entity.SourceCatalog, SourceKey: "ronin", Fingerprint: "f3",
			Text:      "Ronin (1998). Mercenaries chase a briefcase.",
			Metadata:  entity.Metadata{SourceType: entity.SourceCatalog, Title: "Ronin", Catalog: &entity.CatalogMeta{MovieID: "ronin"}},
			Embedding: []float32{0.1, 0.9},
		},
	})
	require.NoError(t, err)
	return idx
}

func newPipeline(t *testing.T, gen *scriptedGenerator, analyzer sentiment.Analyzer, timeout time.Duration) *Pipeline {
	planner := retrieval.NewPlanner(vecEmbedder{}, seededIndex(t), retrieval.Options{})
	var enricher Enricher
	if analyzer != nil {
		enricher = sentiment.NewEnricher(analyzer, 2)
	}
	return NewPipeline(planner, enricher, answer.NewComposer(gen, answer.Options{}), timeout)
}

func TestPipeline_AskGrounded(t *testing.T) {
	gen := &scriptedGenerator{out: "They meet in a diner [1][2]."}
	p := newPipeline(t, gen, fixedAnalyzer{}, 0)

	ans, res, err := p.Ask(context.Background(), Query{Text: "What happens in the diner?", TopK: 2})
	require.NoError(t, err)
	assert.True(t, ans.Grounded)
	assert.Equal(t, []string{"s1", "r1"}, ans.Citations)
	assert.Len(t, res.SentimentByDocument, 2)
	assert.Equal(t, 1, gen.calls)
}

func TestPipeline_SentimentOutageDoesNotFail(t *testing.T) {
	gen := &scriptedGenerator{out: "answer"}
	p := newPipeline(t, gen, fixedAnalyzer{fail: true}, 0)

	ans, res, err := p.Ask(context.Background(), Query{Text: "diner scene"})
	require.NoError(t, err)
	assert.Equal(t, "answer", ans.Text)
	assert.Empty(t, res.SentimentByDocument)
}

func TestPipeline_TitleFilter(t *testing.T) {
	gen := &scriptedGenerator{out: "A briefcase [1]."}
	p := newPipeline(t, gen, nil, 0)

	ans, res, err := p.Ask(context.Background(), Query{Text: "what is chased?", Title: "Ronin"})
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, ans.Citations)
	assert.Len(t, res.Retrieved, 1)
}

func TestPipeline_NoMatches(t *testing.T) {
	gen := &scriptedGenerator{out: "unused"}
	p := newPipeline(t, gen, nil, 0)

	ans, _, err := p.Ask(context.Background(), Query{Text: "anything", Title: "Unknown Film"})
	require.NoError(t, err)
	assert.False(t, ans.Grounded)
	assert.Empty(t, ans.Citations)
	assert.Zero(t, gen.calls)
}

func TestPipeline_Errors(t *testing.T) {
	t.Run("empty question", func(t *testing.T) {
		_, _, err := newPipeline(t, &scriptedGenerator{}, nil, 0).Ask(context.Background(), Query{Text: " "})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
	})
	t.Run("retrieval", func(t *testing.T) {
		planner := retrieval.NewPlanner(vecEmbedder{err: errors.New("embedder down")}, seededIndex(t), retrieval.Options{})
		p := NewPipeline(planner, nil, answer.NewComposer(&scriptedGenerator{}, answer.Options{}), 0)
		_, _, err := p.Ask(context.Background(), Query{Text: "diner"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeRetrievalUnavailable))
	})
	t.Run("generation", func(t *testing.T) {
		gen := &scriptedGenerator{err: errors.New("llm 500")}
		_, res, err := newPipeline(t, gen, nil, 0).Ask(context.Background(), Query{Text: "diner"})
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGenerationUnavailable))
		assert.NotNil(t, res)
	})
	t.Run("timeout", func(t *testing.T) {
		gen := &scriptedGenerator{out: "late", delay: time.Second}
		_, _, err := newPipeline(t, gen, nil, 30*time.Millisecond).Ask(context.Background(), Query{Text: "diner"})
		require.Error(t, err)
		appErr := apperrors.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, apperrors.CodeTimeout, appErr.Code)
		assert.Equal(t, "generate", appErr.Detail)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeGenerationUnavailable))
	})
}
