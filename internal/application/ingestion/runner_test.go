package ingestion

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/domain/entity"
	"cinemind/internal/infrastructure/persistence/memory"
	apperrors "cinemind/pkg/errors"
)

// blockingAdapter 在 release 关闭前阻塞
type blockingAdapter struct {
	release chan struct{}
}

func (a *blockingAdapter) SourceType() entity.SourceType { return entity.SourceCatalog }

func (a *blockingAdapter) Items(ctx context.Context) iter.Seq2[entity.RawItem, error] {
	return func(yield func(entity.RawItem, error) bool) {
		<-a.release
	}
}

func TestRunner_Resolve(t *testing.T) {
	r := NewRunner(nil, 0, reviews(1), &sliceAdapter{sourceType: entity.SourceScreenplay})

	all, err := r.Resolve("all")
	require.NoError(t, err)
	assert.Equal(t, []entity.SourceType{entity.SourceScreenplay, entity.SourceReview}, all)

	one, err := r.Resolve("Review")
	require.NoError(t, err)
	assert.Equal(t, []entity.SourceType{entity.SourceReview}, one)

	_, err = r.Resolve("catalog")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
	_, err = r.Resolve("podcast")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}

func TestRunner_Run(t *testing.T) {
	c := NewCoordinator(nil, &fakeEmbedder{}, memory.NewIndex(), Options{})
	r := NewRunner(c, 0, reviews(3))

	runs, err := r.Run(context.Background(), Request{Sources: []entity.SourceType{entity.SourceReview}})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].DocumentsWritten)
	assert.False(t, r.Running())
}

func TestRunner_RunWithLimit(t *testing.T) {
	idx := memory.NewIndex()
	c := NewCoordinator(nil, &fakeEmbedder{}, idx, Options{})
	r := NewRunner(c, 0, reviews(5))

	runs, err := r.Run(context.Background(), Request{Sources: []entity.SourceType{entity.SourceReview}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].DocumentsSeen)
	assert.Equal(t, 2, runs[0].DocumentsWritten)

	size, _ := idx.Count(context.Background())
	assert.Equal(t, int64(2), size)
}

func TestLimit_CountsFailedItems(t *testing.T) {
	a := reviews(4)
	a.errs = map[int]error{0: errors.New("bad line")}

	var keys []string
	for item := range Limit(a, 2).Items(context.Background()) {
		keys = append(keys, item.SourceKey)
	}
	assert.Equal(t, []string{"r0", "r1"}, keys)
	assert.Equal(t, entity.SourceReview, Limit(a, 2).SourceType())
}

func TestRunner_RejectsConcurrentRuns(t *testing.T) {
	rec := &captureRecorder{}
	c := NewCoordinator(nil, &fakeEmbedder{}, memory.NewIndex(), Options{}, rec)
	blocker := &blockingAdapter{release: make(chan struct{})}
	r := NewRunner(c, time.Minute, blocker)

	require.NoError(t, r.Start(context.Background(), Request{Sources: []entity.SourceType{entity.SourceCatalog}}))
	assert.True(t, r.Running())

	err := r.Start(context.Background(), Request{Sources: []entity.SourceType{entity.SourceCatalog}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))
	_, err = r.Run(context.Background(), Request{Sources: []entity.SourceType{entity.SourceCatalog}})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	close(blocker.release)
	assert.Eventually(t, func() bool { return !r.Running() }, 2*time.Second, 5*time.Millisecond)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Len(t, rec.runs, 1)
}
