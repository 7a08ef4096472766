package dto

import "cinemind/internal/domain/entity"

// MovieResponse 影片详情响应
type MovieResponse struct {
	MovieID        string           `json:"movie_id"`
	Title          string           `json:"title"`
	Year           int              `json:"year,omitempty"`
	Director       string           `json:"director,omitempty"`
	Genres         []string         `json:"genres"`
	Rating         float64          `json:"rating,omitempty"`
	RuntimeMinutes int              `json:"runtime_minutes,omitempty"`
	PosterURL      string           `json:"poster_url,omitempty"`
	SourceCount    int64            `json:"source_count"`
	SourceCounts   map[string]int64 `json:"source_counts"`
}

// ToMovieResponse 转换影片详情
func ToMovieResponse(m *entity.MovieDetail) *MovieResponse {
	if m == nil {
		return nil
	}
	counts := make(map[string]int64, len(m.SourceCounts))
	for st, n := range m.SourceCounts {
		counts[string(st)] = n
	}
	genres := m.Genres
	if genres == nil {
		genres = []string{}
	}
	return &MovieResponse{
		MovieID:        m.MovieID,
		Title:          m.Title,
		Year:           m.ReleaseYear,
		Director:       m.Director,
		Genres:         genres,
		Rating:         m.CatalogRating,
		RuntimeMinutes: m.RuntimeMinutes,
		PosterURL:      m.PosterURL,
		SourceCount:    m.SourceCount,
		SourceCounts:   counts,
	}
}
