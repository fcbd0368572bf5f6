package domain

import "errors"

// ErrInvalidRecord is returned when a favorite is submitted without an id.
var ErrInvalidRecord = errors.New("domain: favorite record requires an id")

// Movie is the display model produced from the remote catalog.
type Movie struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Genre     string  `json:"genre"`
	Year      string  `json:"year"`
	Duration  string  `json:"duration"`
	Rating    float64 `json:"rating"`
	PosterURL string  `json:"posterUrl"`
	Synopsis  string  `json:"synopsis"`
}

// FavoriteRecord is the persisted form of a favorited movie. Year and
// Duration are display strings and are stored as given.
type FavoriteRecord struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Genre     string  `json:"genre"`
	Year      string  `json:"year"`
	Duration  string  `json:"duration"`
	Rating    float64 `json:"rating"`
	PosterURL string  `json:"posterUrl"`
	Synopsis  string  `json:"synopsis"`
}

// Validate reports whether the record can be persisted.
func (r FavoriteRecord) Validate() error {
	if r.ID == "" {
		return ErrInvalidRecord
	}
	return nil
}

// Movie converts the record back into the display model.
func (r FavoriteRecord) Movie() Movie {
	return Movie(r)
}

// FavoriteFromMovie builds the record stored when a movie is favorited.
func FavoriteFromMovie(m Movie) FavoriteRecord {
	return FavoriteRecord(m)
}
