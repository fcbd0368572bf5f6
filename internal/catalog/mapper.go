package catalog

import (
	"strconv"
	"unicode/utf8"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

const (
	// DefaultImageBaseURL prefixes poster paths returned by the catalog.
	DefaultImageBaseURL = "https://image.tmdb.org/t/p/w500"

	// The catalog does not report genre or runtime on list endpoints.
	placeholderGenre    = "Movie"
	placeholderDuration = "N/A"
	unknownYear         = "Unknown"
)

// PopularPage is one page of the popular-movies listing.
type PopularPage struct {
	Page         int           `json:"page"`
	Results      []RemoteMovie `json:"results"`
	TotalPages   int           `json:"total_pages,omitempty"`
	TotalResults int           `json:"total_results,omitempty"`
}

// RemoteMovie is a movie as the catalog serves it. Nil pointers are fields
// the catalog sent as null or left out.
type RemoteMovie struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	PosterPath  *string `json:"poster_path"`
	ReleaseDate *string `json:"release_date"`
	VoteAverage float64 `json:"vote_average"`
	Overview    string  `json:"overview"`
}

// ToMovie maps a catalog record into the display model. An empty
// imageBaseURL selects DefaultImageBaseURL.
func ToMovie(r RemoteMovie, imageBaseURL string) domain.Movie {
	if imageBaseURL == "" {
		imageBaseURL = DefaultImageBaseURL
	}

	year := unknownYear
	if r.ReleaseDate != nil && utf8.RuneCountInString(*r.ReleaseDate) >= 4 {
		year = string([]rune(*r.ReleaseDate)[:4])
	}

	poster := ""
	if r.PosterPath != nil && *r.PosterPath != "" {
		poster = imageBaseURL + *r.PosterPath
	}

	return domain.Movie{
		ID:        strconv.FormatInt(r.ID, 10),
		Title:     r.Title,
		Genre:     placeholderGenre,
		Year:      year,
		Duration:  placeholderDuration,
		Rating:    r.VoteAverage,
		PosterURL: poster,
		Synopsis:  r.Overview,
	}
}

// ToMovies maps a whole page, preserving order.
func ToMovies(results []RemoteMovie, imageBaseURL string) []domain.Movie {
	out := make([]domain.Movie, 0, len(results))
	for _, r := range results {
		out = append(out, ToMovie(r, imageBaseURL))
	}
	return out
}
