package entity

// MovieDetail 按 movie_id 聚合的影片信息
type MovieDetail struct {
	MovieID        string               `json:"movie_id"`
	Title          string               `json:"title"`
	ReleaseYear    int                  `json:"release_year,omitempty"`
	Director       string               `json:"director,omitempty"`
	Genres         []string             `json:"genres"`
	CatalogRating  float64              `json:"catalog_rating,omitempty"`
	RuntimeMinutes int                  `json:"runtime_minutes,omitempty"`
	PosterURL      string               `json:"poster_url,omitempty"`
	SourceCount    int64                `json:"source_count"`
	SourceCounts   map[SourceType]int64 `json:"source_counts"`
}
