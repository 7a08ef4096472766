package entity

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadata_FieldsOrdered(t *testing.T) {
	m := Metadata{
		SourceType: SourceScreenplay,
		Title:      "Demo",
		Screenplay: &ScreenplayMeta{SceneNumber: 3, ReleaseYear: 2008, SceneHeading: "INT. OFFICE - DAY"},
	}

	var keys []string
	for _, f := range m.Fields() {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"source_type", "title", "release_year", "scene_number", "scene_heading"}, keys)

	v, ok := m.Value("scene_number")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = m.Value("page_number")
	assert.False(t, ok)
}

func TestMetadata_CheckVariant(t *testing.T) {
	tests := []struct {
		name    string
		meta    Metadata
		wantErr bool
	}{
		{"screenplay without variant", Metadata{SourceType: SourceScreenplay, Title: "Demo"}, false},
		{"review with review variant", Metadata{SourceType: SourceReview, Title: "Demo", Review: &ReviewMeta{Author: "a"}}, false},
		{"review missing variant", Metadata{SourceType: SourceReview, Title: "Demo"}, true},
		{"catalog missing variant", Metadata{SourceType: SourceCatalog, Title: "Demo"}, true},
		{"screenplay with catalog variant", Metadata{SourceType: SourceScreenplay, Title: "Demo", Catalog: &CatalogMeta{MovieID: "m"}}, true},
		{"two variants", Metadata{SourceType: SourceReview, Title: "Demo", Review: &ReviewMeta{}, Catalog: &CatalogMeta{}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.meta.CheckVariant()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	m := Metadata{
		SourceType: SourceReview,
		Title:      "Heat",
		Review:     &ReviewMeta{Author: "kim", ReviewRating: 8, Site: "imdb", ReleaseYear: 1995},
	}

	assert.True(t, Filter{}.Matches(m))
	assert.True(t, Filter{"source_type": "review", "title": "Heat"}.Matches(m))
	assert.True(t, Filter{"review_rating": 8}.Matches(m))
	assert.True(t, Filter{"release_year": int64(1995)}.Matches(m))
	assert.False(t, Filter{"title": "Ronin"}.Matches(m))
	assert.False(t, Filter{"scene_number": 1}.Matches(m))
}

func TestDocumentID_StableAndDistinct(t *testing.T) {
	a := DocumentID(SourceScreenplay, "demo", 0)
	assert.Equal(t, a, DocumentID(SourceScreenplay, "demo", 0))
	assert.NotEqual(t, a, DocumentID(SourceScreenplay, "demo", 1))
	assert.NotEqual(t, a, DocumentID(SourceReview, "demo", 0))
	assert.Len(t, a, 36)
}

func TestLess_TieBreaks(t *testing.T) {
	older := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	docs := []ScoredDocument{
		{Document: Document{ID: "c", IngestedAt: older}, Score: 0.5},
		{Document: Document{ID: "b", IngestedAt: older}, Score: 0.5},
		{Document: Document{ID: "z", IngestedAt: newer}, Score: 0.5},
		{Document: Document{ID: "a", IngestedAt: older}, Score: 0.9},
	}
	sort.Slice(docs, func(i, j int) bool { return Less(docs[i], docs[j]) })

	var ids []string
	for _, d := range docs {
		ids = append(ids, d.Document.ID)
	}
	assert.Equal(t, []string{"a", "z", "b", "c"}, ids)
}

func TestReviewRecord_Render(t *testing.T) {
	meta := Metadata{
		SourceType: SourceReview,
		Title:      "The Dark Knight",
		Review:     &ReviewMeta{Author: "alice", ReviewRating: 9, ReleaseYear: 2008},
	}
	got := ReviewRecord{Body: "  Ledger is unforgettable. "}.Render(meta)
	assert.Equal(t, "Title: The Dark Knight (2008)\nUser Review by alice (Rating: 9/10)\nReview: Ledger is unforgettable.", got)
	assert.Empty(t, ReviewRecord{Body: " "}.Render(meta))
}

func TestCatalogRecord_Render(t *testing.T) {
	meta := Metadata{
		SourceType: SourceCatalog,
		Title:      "Heat",
		Catalog:    &CatalogMeta{MovieID: "949", ReleaseYear: 1995, Director: "Michael Mann", RuntimeMinutes: 170},
	}
	got := CatalogRecord{Synopsis: "A crew of robbers.", Genres: []string{"Crime", "Drama"}}.Render(meta)
	assert.Equal(t, "Title: Heat (1995)\nDirector: Michael Mann\nRuntime: 170 min\nGenres: Crime, Drama\nSynopsis: A crew of robbers.", got)
}

func TestIngestionRun_ShouldRetry(t *testing.T) {
	run := NewIngestionRun(SourceReview)
	assert.False(t, run.Failed())
	assert.False(t, run.ShouldRetry())

	run.Failures = append(run.Failures, Failure{SourceKey: "r1", Kind: FailureNormalization})
	assert.True(t, run.Failed())
	assert.False(t, run.ShouldRetry())

	run.Failures = append(run.Failures, Failure{SourceKey: "r2", Kind: FailureEmbedding})
	assert.True(t, run.ShouldRetry())
	assert.Equal(t, map[FailureKind]int{FailureNormalization: 1, FailureEmbedding: 1}, run.FailureCounts())
}

func TestParseSourceType(t *testing.T) {
	st, err := ParseSourceType(" Screenplay ")
	require.NoError(t, err)
	assert.Equal(t, SourceScreenplay, st)

	_, err = ParseSourceType("podcast")
	assert.Error(t, err)
}

func TestParseSentimentLabel(t *testing.T) {
	l, ok := ParseSentimentLabel("positive")
	assert.True(t, ok)
	assert.Equal(t, SentimentPositive, l)

	_, ok = ParseSentimentLabel("ecstatic")
	assert.False(t, ok)
}

func TestReviewSite(t *testing.T) {
	tests := map[string]string{
		"IMDb":            "imdb",
		" letterboxd ":    "letterboxd",
		"Rotten Tomatoes": "rottentomatoes",
		"rottentomatoes":  "rottentomatoes",
		"metacritic.com":  "metacritic",
		"some-forum":      "",
		"":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ReviewSite(in), in)
	}
}
