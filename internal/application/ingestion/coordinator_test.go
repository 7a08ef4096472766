package ingestion

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/internal/infrastructure/persistence/memory"
)

type sliceAdapter struct {
	sourceType entity.SourceType
	items      []entity.RawItem
	errs       map[int]error
}

func (a *sliceAdapter) SourceType() entity.SourceType { return a.sourceType }

func (a *sliceAdapter) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		for i, item := range a.items {
			if !yield(item, a.errs[i]) {
				return
			}
		}
	}
}

type fakeEmbedder struct {
	calls atomic.Int32
	fail  func(texts []string) error
}

func (e *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		if err := e.fail(texts); err != nil {
			return nil, err
		}
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)%7 + 1), 1, float32(strings.Count(t, "e"))}
	}
	return out, nil
}

type captureRecorder struct {
	mu   sync.Mutex
	runs []*entity.IngestionRun
	err  error
}

func (r *captureRecorder) Record(_ context.Context, run *entity.IngestionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, run)
	return r.err
}

type brokenIndex struct {
	repository.VectorIndex
}

func (brokenIndex) SourceFingerprints(context.Context, entity.SourceType, string) (map[string]string, error) {
	return nil, errors.New("connection refused")
}

func reviewItem(key, body string) entity.RawItem {
	return entity.RawItem{
		SourceKey: key,
		Payload:   entity.ReviewRecord{Body: body},
		Metadata: entity.Metadata{
			Title:  "Demo",
			Review: &entity.ReviewMeta{Author: "kim", ReviewRating: 7},
		},
	}
}

func screenplayItem(key, text string) entity.RawItem {
	return entity.RawItem{
		SourceKey: key,
		Payload:   entity.ScreenplayText(text),
		Metadata:  entity.Metadata{Title: "Demo"},
	}
}

func reviews(n int) *sliceAdapter {
	a := &sliceAdapter{sourceType: entity.SourceReview}
	for i := 0; i < n; i++ {
		a.items = append(a.items, reviewItem(fmt.Sprintf("r%d", i), fmt.Sprintf("review body number %d", i)))
	}
	return a
}

func TestCoordinator_IdempotentRerun(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	emb := &fakeEmbedder{}
	c := NewCoordinator(nil, emb, idx, Options{BatchSize: 2, Workers: 2})

	runs, err := c.Run(ctx, reviews(5))
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 5, runs[0].DocumentsSeen)
	assert.Equal(t, 5, runs[0].DocumentsWritten)
	assert.Empty(t, runs[0].Failures)
	assert.False(t, runs[0].FinishedAt.IsZero())

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(5), size)
	callsAfterFirst := emb.calls.Load()

	runs, err = c.Run(ctx, reviews(5))
	require.NoError(t, err)
	assert.Equal(t, 0, runs[0].DocumentsWritten)
	assert.Equal(t, 5, runs[0].DocumentsSkippedUnchanged)
	assert.Equal(t, callsAfterFirst, emb.calls.Load(), "unchanged chunks must not be re-embedded")

	after, _ := idx.Count(ctx)
	assert.Equal(t, size, after)
}

func TestCoordinator_IdenticalFingerprintAcrossRuns(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	c := NewCoordinator(nil, &fakeEmbedder{}, idx, Options{})

	item := screenplayItem("demo", "INT. OFFICE - DAY")
	_, err := c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{item}})
	require.NoError(t, err)
	_, err = c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{item}})
	require.NoError(t, err)

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(1), size)
}

func TestCoordinator_PartialFailureIsolation(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	c := NewCoordinator(nil, &fakeEmbedder{}, idx, Options{BatchSize: 2})

	broken := &sliceAdapter{sourceType: entity.SourceCatalog, errs: map[int]error{}}
	for i := 0; i < 3; i++ {
		broken.items = append(broken.items, entity.RawItem{SourceKey: fmt.Sprintf("c%d", i)})
		broken.errs[i] = errors.New("api returned 500")
	}

	runs, err := c.Run(ctx, reviews(4), broken)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, 4, runs[0].DocumentsWritten)
	assert.Empty(t, runs[0].Failures)

	require.Len(t, runs[1].Failures, 3)
	for i, f := range runs[1].Failures {
		assert.Equal(t, fmt.Sprintf("c%d", i), f.SourceKey)
		assert.Equal(t, entity.FailureSource, f.Kind)
	}
	assert.True(t, runs[1].ShouldRetry())

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(4), size)
}

func TestCoordinator_NormalizationFailureDoesNotAbort(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	c := NewCoordinator(nil, &fakeEmbedder{}, idx, Options{})

	a := reviews(2)
	bad := reviewItem("bad", "body")
	bad.Metadata.Review.Author = ""
	a.items = append([]entity.RawItem{bad}, a.items...)

	runs, err := c.Run(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 2, runs[0].DocumentsWritten)
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, entity.Failure{SourceKey: "bad", Kind: entity.FailureNormalization, Message: runs[0].Failures[0].Message}, runs[0].Failures[0])
	assert.False(t, runs[0].ShouldRetry())
}

func TestCoordinator_EmbeddingFailureIsPerBatch(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	emb := &fakeEmbedder{fail: func(texts []string) error {
		for _, t := range texts {
			if strings.Contains(t, "boom") {
				return errors.New("embedding service timed out")
			}
		}
		return nil
	}}
	c := NewCoordinator(nil, emb, idx, Options{BatchSize: 1, Workers: 3})

	a := reviews(3)
	a.items = append(a.items, reviewItem("poison", "boom"))

	runs, err := c.Run(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 3, runs[0].DocumentsWritten)
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, "poison", runs[0].Failures[0].SourceKey)
	assert.Equal(t, entity.FailureEmbedding, runs[0].Failures[0].Kind)

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(3), size)
}

func TestCoordinator_IndexLookupFailure(t *testing.T) {
	ctx := context.Background()
	c := NewCoordinator(nil, &fakeEmbedder{}, brokenIndex{VectorIndex: memory.NewIndex()}, Options{})

	runs, err := c.Run(ctx, reviews(2))
	require.NoError(t, err)
	require.Len(t, runs[0].Failures, 2)
	for _, f := range runs[0].Failures {
		assert.Equal(t, entity.FailureIndex, f.Kind)
	}
}

func TestCoordinator_ReingestShrunkScreenplay(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	normalizer := NewNormalizer(NewSplitter(60, 10, 10))
	c := NewCoordinator(normalizer, &fakeEmbedder{}, idx, Options{})

	long := strings.Repeat("INT. OFFICE - DAY. Someone talks at length. ", 6)
	runs, err := c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{screenplayItem("demo", long)}})
	require.NoError(t, err)
	first := runs[0].DocumentsWritten
	require.Greater(t, first, 1)

	runs, err = c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{screenplayItem("demo", "INT. OFFICE - DAY")}})
	require.NoError(t, err)
	assert.Equal(t, first-1, runs[0].DocumentsDeleted)
	assert.Equal(t, 1, runs[0].DocumentsWritten)

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(1), size)
	fps, _ := idx.SourceFingerprints(ctx, entity.SourceScreenplay, "demo")
	assert.Contains(t, fps, entity.DocumentID(entity.SourceScreenplay, "demo", 0))
}

func TestCoordinator_ShrunkScreenplayKeptWhenRewriteFails(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	normalizer := NewNormalizer(NewSplitter(60, 10, 10))

	long := strings.Repeat("INT. OFFICE - DAY. Someone talks at length. ", 6)
	c := NewCoordinator(normalizer, &fakeEmbedder{}, idx, Options{})
	runs, err := c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{screenplayItem("demo", long)}})
	require.NoError(t, err)
	before, _ := idx.Count(ctx)
	require.Greater(t, before, int64(1))
	original, _ := idx.SourceFingerprints(ctx, entity.SourceScreenplay, "demo")

	limited := &fakeEmbedder{fail: func([]string) error { return errors.New("rate limited") }}
	c = NewCoordinator(normalizer, limited, idx, Options{})
	runs, err = c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{screenplayItem("demo", "INT. OFFICE - DAY")}})
	require.NoError(t, err)
	assert.Equal(t, 0, runs[0].DocumentsDeleted)
	assert.Equal(t, 0, runs[0].DocumentsWritten)
	require.Len(t, runs[0].Failures, 1)
	assert.Equal(t, entity.FailureEmbedding, runs[0].Failures[0].Kind)

	after, _ := idx.Count(ctx)
	assert.Equal(t, before, after)
	kept, _ := idx.SourceFingerprints(ctx, entity.SourceScreenplay, "demo")
	assert.Equal(t, original, kept)

	// 下一次成功的运行完成替换
	c = NewCoordinator(normalizer, &fakeEmbedder{}, idx, Options{})
	runs, err = c.Run(ctx, &sliceAdapter{sourceType: entity.SourceScreenplay, items: []entity.RawItem{screenplayItem("demo", "INT. OFFICE - DAY")}})
	require.NoError(t, err)
	assert.Equal(t, int(before)-1, runs[0].DocumentsDeleted)
	final, _ := idx.Count(ctx)
	assert.Equal(t, int64(1), final)
}

func TestCoordinator_ChangedChunkIsReplaced(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	c := NewCoordinator(nil, &fakeEmbedder{}, idx, Options{})

	_, err := c.Run(ctx, &sliceAdapter{sourceType: entity.SourceReview, items: []entity.RawItem{reviewItem("r", "first take")}})
	require.NoError(t, err)
	runs, err := c.Run(ctx, &sliceAdapter{sourceType: entity.SourceReview, items: []entity.RawItem{reviewItem("r", "second take")}})
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].DocumentsWritten)
	assert.Equal(t, 0, runs[0].DocumentsDeleted)

	got, ok := idx.Get(entity.DocumentID(entity.SourceReview, "r", 0))
	require.True(t, ok)
	assert.Contains(t, got.Text, "second take")
}

// raggedEmbedder 对包含 "short" 的文本返回较短的向量
type raggedEmbedder struct{}

func (raggedEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if strings.Contains(t, "short") {
			out[i] = []float32{1, 0}
			continue
		}
		out[i] = []float32{1, 0, 1}
	}
	return out, nil
}

func TestCoordinator_PartialUpsertCountsWritten(t *testing.T) {
	ctx := context.Background()
	idx := memory.NewIndex()
	c := NewCoordinator(nil, raggedEmbedder{}, idx, Options{BatchSize: 2, Workers: 1})

	a := &sliceAdapter{sourceType: entity.SourceReview, items: []entity.RawItem{
		reviewItem("ok", "a full review"),
		reviewItem("bad", "short"),
	}}
	runs, err := c.Run(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].DocumentsWritten)
	assert.NotEmpty(t, runs[0].Failures)
	for _, f := range runs[0].Failures {
		assert.Equal(t, entity.FailureIndex, f.Kind)
	}

	size, _ := idx.Count(ctx)
	assert.Equal(t, int64(1), size)
}

func TestCoordinator_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &captureRecorder{}
	c := NewCoordinator(nil, &fakeEmbedder{}, memory.NewIndex(), Options{}, rec)
	runs, err := c.Run(ctx, reviews(3))
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Cancelled)
	assert.True(t, runs[0].ShouldRetry())
	assert.Len(t, rec.runs, 1, "cancelled runs are still recorded")
}

func TestCoordinator_RecorderErrorsAreIgnored(t *testing.T) {
	ok := &captureRecorder{}
	failing := &captureRecorder{err: errors.New("ledger down")}
	c := NewCoordinator(nil, &fakeEmbedder{}, memory.NewIndex(), Options{}, failing, ok)

	runs, err := c.Run(context.Background(), reviews(1))
	require.NoError(t, err)
	assert.Equal(t, 1, runs[0].DocumentsWritten)
	require.Len(t, ok.runs, 1)
	assert.Same(t, runs[0], ok.runs[0])
}
