package movie

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
	"cinemind/internal/infrastructure/persistence/memory"
	apperrors "cinemind/pkg/errors"
)

var at = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func document(id string, meta entity.Metadata) entity.Document {
	return entity.Document{
		ID:          id,
		SourceType:  meta.SourceType,
		SourceKey:   id,
		Fingerprint: "fp-" + id,
		Text:        "text " + id,
		Metadata:    meta,
		Embedding:   []float32{1, 0},
		IngestedAt:  at,
	}
}

func seeded(t *testing.T) *memory.Index {
	t.Helper()
	idx := memory.NewIndex()
	_, err := idx.Upsert(context.Background(), []entity.Document{
		document("s0", entity.Metadata{SourceType: entity.SourceScreenplay, Title: "Heat",
			Screenplay: &entity.ScreenplayMeta{MovieID: "heat-1995", ReleaseYear: 1995}}),
		document("s1", entity.Metadata{SourceType: entity.SourceScreenplay, Title: "Heat",
			Screenplay: &entity.ScreenplayMeta{MovieID: "heat-1995", ReleaseYear: 1995}}),
		document("r0", entity.Metadata{SourceType: entity.SourceReview, Title: "Heat",
			Review: &entity.ReviewMeta{MovieID: "heat-1995", Author: "kim"}}),
		document("c0", entity.Metadata{SourceType: entity.SourceCatalog, Title: "Heat",
			Catalog: &entity.CatalogMeta{MovieID: "heat-1995", ReleaseYear: 1995, Director: "Michael Mann", Genres: "Crime, Drama", CatalogRating: 8.3}}),
		document("x0", entity.Metadata{SourceType: entity.SourceScreenplay, Title: "Ronin",
			Screenplay: &entity.ScreenplayMeta{MovieID: "ronin-1998"}}),
	})
	require.NoError(t, err)
	return idx
}

func TestService_Get(t *testing.T) {
	s := NewService(seeded(t))

	got, err := s.Get(context.Background(), " heat-1995 ")
	require.NoError(t, err)
	assert.Equal(t, "heat-1995", got.MovieID)
	assert.Equal(t, "Heat", got.Title)
	assert.Equal(t, 1995, got.ReleaseYear)
	assert.Equal(t, "Michael Mann", got.Director)
	assert.Equal(t, []string{"Crime", "Drama"}, got.Genres)
	assert.Equal(t, 8.3, got.CatalogRating)
	assert.Equal(t, int64(4), got.SourceCount)
	assert.Equal(t, map[entity.SourceType]int64{
		entity.SourceScreenplay: 2,
		entity.SourceReview:     1,
		entity.SourceCatalog:    1,
	}, got.SourceCounts)
}

func TestService_Get_WithoutCatalog(t *testing.T) {
	s := NewService(seeded(t))

	got, err := s.Get(context.Background(), "ronin-1998")
	require.NoError(t, err)
	assert.Equal(t, "Ronin", got.Title)
	assert.Empty(t, got.Director)
	assert.Equal(t, []string{}, got.Genres)
	assert.Equal(t, int64(1), got.SourceCount)
}

func TestService_Get_Errors(t *testing.T) {
	s := NewService(seeded(t))

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))

	_, err = s.Get(context.Background(), "  ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))

	_, err = NewService(brokenIndex{}).Get(context.Background(), "heat-1995")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeIndexUnavailable))
}

type brokenIndex struct {
	repository.VectorIndex
}

func (brokenIndex) CountWhere(context.Context, entity.Filter) (int64, error) {
	return 0, errors.New("connection refused")
}
