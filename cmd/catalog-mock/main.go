package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Clark-Hu/movie-favorites/internal/catalog"
	"github.com/Clark-Hu/movie-favorites/internal/logging"
)

// maxPage is the highest page TMDB accepts.
const maxPage = 500

func main() {
	var (
		port     = flag.String("port", "9099", "port to listen on")
		data     = flag.String("data", "", "path to a JSON array of catalog movies (built-in sample when empty)")
		perPage  = flag.Int("per-page", 20, "results per page")
		apiKey   = flag.String("api-key", "", "require this api_key query parameter when set")
		logReqs  = flag.Bool("log", false, "enable request logging")
		logLevel = flag.String("log-level", "info", "log level")
	)
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		slog.Error("invalid log level", "err", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Options{Level: level})

	movies := seedMovies
	if *data != "" {
		movies, err = loadMovies(*data)
		if err != nil {
			logger.Error("load mock data", "path", *data, "err", err)
			os.Exit(1)
		}
	}

	r := chi.NewRouter()
	if *logReqs {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Get("/movie/popular", popularHandler(movies, *perPage, *apiKey))
	r.Get("/3/movie/popular", popularHandler(movies, *perPage, *apiKey))

	addr := ":" + *port
	logger.Info("mock catalog listening", "addr", addr, "movies", len(movies))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
}

func loadMovies(path string) ([]catalog.RemoteMovie, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var movies []catalog.RemoteMovie
	if err := json.Unmarshal(file, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// popularHandler serves movies in pages of perPage, shaped like the TMDB
// popular endpoint including its error body.
func popularHandler(movies []catalog.RemoteMovie, perPage int, apiKey string) http.HandlerFunc {
	if perPage < 1 {
		perPage = 20
	}
	totalPages := max(1, (len(movies)+perPage-1)/perPage)

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if apiKey != "" && r.URL.Query().Get("api_key") != apiKey {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status_code":    7,
				"status_message": "Invalid API key: You must be granted a valid key.",
			})
			return
		}

		page := 1
		if raw := r.URL.Query().Get("page"); raw != "" {
			p, err := strconv.Atoi(raw)
			if err != nil || p < 1 || p > maxPage {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"status_code":    22,
					"status_message": "Invalid page: Pages start at 1 and max at 500.",
				})
				return
			}
			page = p
		}

		start := len(movies)
		if page <= totalPages {
			start = (page - 1) * perPage
		}
		end := start + min(perPage, len(movies)-start)
		resp := catalog.PopularPage{
			Page:         page,
			Results:      movies[start:end],
			TotalPages:   totalPages,
			TotalResults: len(movies),
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}

func ptr(s string) *string { return &s }

// seedMovies is the sample catalog served when no data file is given.
var seedMovies = []catalog.RemoteMovie{
	{
		ID:          155,
		Title:       "The Dark Knight",
		PosterPath:  ptr("/qJ2tW6WMUDux911r6m7haRef0WH.jpg"),
		ReleaseDate: ptr("2008-07-16"),
		VoteAverage: 9.0,
		Overview:    "When the menace known as the Joker emerges from his mysterious past, he wreaks havoc and chaos on the people of Gotham.",
	},
	{
		ID:          27205,
		Title:       "Inception",
		PosterPath:  ptr("/oYuLEt3zVCKq57qu2F8dT7NIa6f.jpg"),
		ReleaseDate: ptr("2010-07-15"),
		VoteAverage: 8.8,
		Overview:    "A thief who steals corporate secrets through the use of dream-sharing technology is given the inverse task of planting an idea.",
	},
	{
		ID:          278,
		Title:       "The Shawshank Redemption",
		PosterPath:  ptr("/9cqNxx0GxF0bflZmeSMuL5tnGzr.jpg"),
		ReleaseDate: ptr("1994-09-23"),
		VoteAverage: 9.3,
		Overview:    "Two imprisoned men bond over a number of years, finding solace and eventual redemption through acts of common decency.",
	},
	{
		ID:          680,
		Title:       "Pulp Fiction",
		PosterPath:  ptr("/vQWk5YBFWF4bZaofAbv0tShwBvQ.jpg"),
		ReleaseDate: ptr("1994-09-10"),
		VoteAverage: 8.9,
		Overview:    "The lives of two mob hitmen, a boxer, a gangster and his wife, and a pair of diner bandits intertwine in four tales of violence.",
	},
	{
		ID:          603,
		Title:       "The Matrix",
		PosterPath:  ptr("/p96dm7sCMn4VYAStA6siNz30G1r.jpg"),
		ReleaseDate: ptr("1999-03-31"),
		VoteAverage: 8.7,
		Overview:    "A computer hacker learns from mysterious rebels about the true nature of his reality and his role in the war against its controllers.",
	},
	{
		ID:          13,
		Title:       "Forrest Gump",
		PosterPath:  nil,
		ReleaseDate: ptr("1994-06-23"),
		VoteAverage: 8.8,
		Overview:    "The presidencies of Kennedy and Johnson, the Vietnam War, the Watergate scandal and other historical events unfold from the perspective of an Alabama man.",
	},
}
