package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
)

const maxPage = 500

type movieListResponse struct {
	Page  int            `json:"page"`
	Items []domain.Movie `json:"items"`
}

func (s *Server) handleListMovies(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query())
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error())
		return
	}

	ctx := r.Context()
	if s.cfg.CatalogTimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.CatalogTimeoutSecs)*time.Second)
		defer cancel()
	}

	movies, err := s.catalog.FetchPopular(ctx, page)
	if err != nil {
		s.respondCatalogError(w, page, err)
		return
	}
	s.respondJSON(w, http.StatusOK, movieListResponse{Page: page, Items: movies})
}

func (s *Server) respondCatalogError(w http.ResponseWriter, page int, err error) {
	var fault *domain.UpstreamFault
	switch {
	case errors.As(err, &fault):
		s.logger.Warn("catalog fetch failed", "page", page, "status", fault.StatusCode, "err", fault.Err)
		s.respondError(w, http.StatusBadGateway, "UPSTREAM_ERROR", fault.Message())
	case errors.Is(err, context.DeadlineExceeded):
		s.respondError(w, http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "The movie catalog did not answer in time.")
	default:
		s.logger.Error("catalog fetch error", "page", page, "err", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load movies")
	}
}

func parsePage(query url.Values) (int, error) {
	val := strings.TrimSpace(query.Get("page"))
	if val == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(val)
	if err != nil || page < 1 || page > maxPage {
		return 0, fmt.Errorf("page must be an integer between 1 and %d", maxPage)
	}
	return page, nil
}
