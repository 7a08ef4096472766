package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinemind/internal/application/ingestion"
	"cinemind/internal/application/rag"
	"cinemind/internal/domain/entity"
	"cinemind/internal/domain/repository"
)

type fakeIngester struct {
	req  ingestion.Request
	runs []*entity.IngestionRun
	err  error
}

func (f *fakeIngester) Resolve(source string) ([]entity.SourceType, error) {
	if source == "all" {
		return entity.SourceTypes, nil
	}
	st, err := entity.ParseSourceType(source)
	if err != nil {
		return nil, err
	}
	return []entity.SourceType{st}, nil
}

func (f *fakeIngester) Run(_ context.Context, req ingestion.Request) ([]*entity.IngestionRun, error) {
	f.req = req
	return f.runs, f.err
}

type fakeAsker struct {
	got rag.Query
}

func (f *fakeAsker) Ask(_ context.Context, q rag.Query) (*entity.Answer, *entity.RetrievalResult, error) {
	f.got = q
	doc := entity.ScoredDocument{
		Document: entity.Document{ID: "doc-1", SourceType: entity.SourceReview, Metadata: entity.Metadata{Title: "Heat"}},
		Score:    0.91,
	}
	return &entity.Answer{Text: "A heist film.", Citations: []string{"doc-1"}, Grounded: true},
		entity.NewRetrievalResult(q.Text, []entity.ScoredDocument{doc}), nil
}

type fakeRuns struct {
	filter repository.IngestionRunFilter
	runs   []*entity.IngestionRun
}

func (f *fakeRuns) Save(context.Context, *entity.IngestionRun) error { return nil }

func (f *fakeRuns) GetByID(context.Context, string) (*entity.IngestionRun, error) { return nil, nil }

func (f *fakeRuns) List(_ context.Context, filter repository.IngestionRunFilter) ([]*entity.IngestionRun, error) {
	f.filter = filter
	return f.runs, nil
}

func execute(t *testing.T, deps *Deps, args ...string) (string, error) {
	t.Helper()
	cleaned := false
	load := func(context.Context) (*Deps, func(), error) {
		return deps, func() { cleaned = true }, nil
	}
	root := NewRootCmd(load)
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	assert.True(t, cleaned, "cleanup must run")
	return buf.String(), err
}

func finishedRun(st entity.SourceType) *entity.IngestionRun {
	run := entity.NewIngestionRun(st)
	run.DocumentsSeen = 3
	run.DocumentsWritten = 3
	run.Finish()
	return run
}

func TestIngest_AllSources(t *testing.T) {
	ing := &fakeIngester{runs: []*entity.IngestionRun{finishedRun(entity.SourceScreenplay)}}
	out, err := execute(t, &Deps{Ingester: ing}, "ingest")
	require.NoError(t, err)
	assert.Equal(t, ingestion.Request{Sources: entity.SourceTypes}, ing.req)
	assert.Contains(t, out, "written=3")
	assert.Contains(t, out, "ok")
}

func TestIngest_RetryableFailureIsError(t *testing.T) {
	run := finishedRun(entity.SourceReview)
	run.Failures = []entity.Failure{{SourceKey: "r1", Kind: entity.FailureEmbedding, Message: "timeout"}}
	ing := &fakeIngester{runs: []*entity.IngestionRun{run}}

	out, err := execute(t, &Deps{Ingester: ing}, "ingest", "--source", "review")
	assert.ErrorIs(t, err, ErrRunFailed)
	assert.Equal(t, []entity.SourceType{entity.SourceReview}, ing.req.Sources)
	assert.Contains(t, out, "r1 [embedding_unavailable] timeout")
}

func TestIngest_JSON(t *testing.T) {
	ing := &fakeIngester{runs: []*entity.IngestionRun{finishedRun(entity.SourceCatalog)}}
	out, err := execute(t, &Deps{Ingester: ing}, "ingest", "-s", "catalog", "--json")
	require.NoError(t, err)

	var got []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "catalog", got[0]["source_type"])
}

func TestIngest_Limit(t *testing.T) {
	ing := &fakeIngester{runs: []*entity.IngestionRun{finishedRun(entity.SourceReview)}}
	_, err := execute(t, &Deps{Ingester: ing}, "ingest", "-s", "review", "--limit", "25")
	require.NoError(t, err)
	assert.Equal(t, ingestion.Request{Sources: []entity.SourceType{entity.SourceReview}, Limit: 25}, ing.req)
}

func TestIngest_UnknownSource(t *testing.T) {
	_, err := execute(t, &Deps{Ingester: &fakeIngester{}}, "ingest", "--source", "podcast")
	assert.Error(t, err)
}

func TestIngest_RunErrorPropagates(t *testing.T) {
	ing := &fakeIngester{err: context.Canceled}
	_, err := execute(t, &Deps{Ingester: ing}, "ingest")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery(t *testing.T) {
	asker := &fakeAsker{}
	out, err := execute(t, &Deps{Asker: asker}, "query", "What is Heat about?", "--top-k", "3", "--title", "Heat")
	require.NoError(t, err)
	assert.Equal(t, rag.Query{Text: "What is Heat about?", TopK: 3, Title: "Heat"}, asker.got)
	assert.Contains(t, out, "A heist film.")
	assert.Contains(t, out, "[1] Heat (review, 0.91)")
	assert.Contains(t, out, "id=doc-1")
}

func TestQuery_JSON(t *testing.T) {
	out, err := execute(t, &Deps{Asker: &fakeAsker{}}, "query", "What is Heat about?", "--json")
	require.NoError(t, err)

	var got struct {
		Answer   string `json:"answer"`
		Grounded bool   `json:"grounded"`
		Sources  []struct {
			ID    string  `json:"id"`
			Score float64 `json:"score"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "A heist film.", got.Answer)
	assert.True(t, got.Grounded)
	require.Len(t, got.Sources, 1)
	assert.Equal(t, "doc-1", got.Sources[0].ID)
	assert.InDelta(t, 0.91, got.Sources[0].Score, 1e-9)
}

func TestQuery_RequiresQuestion(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Deps, func(), error) {
		t.Fatal("loader must not run on argument errors")
		return nil, nil, nil
	})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"query"})
	assert.Error(t, root.Execute())
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: []*entity.IngestionRun{finishedRun(entity.SourceReview)}}
	out, err := execute(t, &Deps{Runs: runs}, "runs", "--source-type", "review", "-n", "5")
	require.NoError(t, err)
	assert.Equal(t, repository.IngestionRunFilter{SourceType: entity.SourceReview, Limit: 5}, runs.filter)
	assert.Contains(t, out, "review")
}

func TestRuns_LedgerDisabled(t *testing.T) {
	_, err := execute(t, &Deps{}, "runs")
	assert.ErrorIs(t, err, ErrLedgerDisabled)
}

func TestLoaderError(t *testing.T) {
	root := NewRootCmd(func(context.Context) (*Deps, func(), error) {
		return nil, nil, errors.New("milvus unreachable")
	})
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"runs"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "milvus unreachable")
}

type fakeMovies struct{ got string }

func (f *fakeMovies) Get(_ context.Context, movieID string) (*entity.MovieDetail, error) {
	f.got = movieID
	if movieID != "heat-1995" {
		return nil, errors.New("movie not found")
	}
	return &entity.MovieDetail{
		MovieID:      movieID,
		Title:        "Heat",
		ReleaseYear:  1995,
		Director:     "Michael Mann",
		Genres:       []string{"Crime", "Thriller"},
		SourceCount:  3,
		SourceCounts: map[entity.SourceType]int64{entity.SourceScreenplay: 2, entity.SourceCatalog: 1},
	}, nil
}

func TestMovie(t *testing.T) {
	movies := &fakeMovies{}
	out, err := execute(t, &Deps{Movies: movies}, "movie", "heat-1995")
	require.NoError(t, err)
	assert.Equal(t, "heat-1995", movies.got)
	assert.Contains(t, out, "Heat (1995)")
	assert.Contains(t, out, "Crime, Thriller")
	assert.Contains(t, out, "screenplay=2")
	assert.Contains(t, out, "catalog=1")
	assert.NotContains(t, out, "review=")
}

func TestMovie_JSON(t *testing.T) {
	out, err := execute(t, &Deps{Movies: &fakeMovies{}}, "movie", "heat-1995", "--json")
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, float64(3), got["source_count"])
}

func TestMovie_NotFound(t *testing.T) {
	_, err := execute(t, &Deps{Movies: &fakeMovies{}}, "movie", "unknown")
	assert.Error(t, err)
}
