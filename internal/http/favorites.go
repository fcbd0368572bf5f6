package httpserver

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

type favoritesResponse struct {
	Items []domain.FavoriteRecord `json:"items"`
}

type membershipResponse struct {
	ID         string `json:"id"`
	IsFavorite bool   `json:"isFavorite"`
}

func (s *Server) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	items, err := s.favorites.Snapshot(r.Context())
	if err != nil {
		s.respondFavoritesError(w, "list", err)
		return
	}
	s.respondJSON(w, http.StatusOK, favoritesResponse{Items: items})
}

func (s *Server) handleGetFavorite(w http.ResponseWriter, r *http.Request) {
	id := favoriteID(r)
	ok, err := s.favorites.Contains(r.Context(), id)
	if err != nil {
		s.respondFavoritesError(w, "contains", err)
		return
	}
	s.respondJSON(w, http.StatusOK, membershipResponse{ID: id, IsFavorite: ok})
}

func (s *Server) handleAddFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	rec, ok := s.decodeFavorite(w, r)
	if !ok {
		return
	}
	if err := s.favorites.Add(r.Context(), rec); err != nil {
		s.respondFavoritesError(w, "add", err)
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRemoveFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	if err := s.favorites.Remove(r.Context(), favoriteID(r)); err != nil {
		s.respondFavoritesError(w, "remove", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	rec, ok := s.decodeFavorite(w, r)
	if !ok {
		return
	}
	on, err := s.favorites.Toggle(r.Context(), rec)
	if err != nil {
		s.respondFavoritesError(w, "toggle", err)
		return
	}
	s.respondJSON(w, http.StatusOK, membershipResponse{ID: rec.ID, IsFavorite: on})
}

// decodeFavorite reads a movie body for the {id} in the path. The body may
// omit the id but must not contradict it.
func (s *Server) decodeFavorite(w http.ResponseWriter, r *http.Request) (domain.FavoriteRecord, bool) {
	id := favoriteID(r)

	var movie domain.Movie
	if err := decodeJSONBody(w, r, &movie); err != nil {
		s.respondDecodeError(w, err)
		return domain.FavoriteRecord{}, false
	}
	movie.ID = strings.TrimSpace(movie.ID)
	if movie.ID == "" {
		movie.ID = id
	}
	if movie.ID != id {
		s.respondError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "body id does not match path")
		return domain.FavoriteRecord{}, false
	}
	return domain.FavoriteFromMovie(movie), true
}

func favoriteID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}
