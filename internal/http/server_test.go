package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/Clark-Hu/movie-favorites/internal/config"
	"github.com/Clark-Hu/movie-favorites/internal/domain"
	"github.com/Clark-Hu/movie-favorites/internal/favorites"
	"github.com/Clark-Hu/movie-favorites/internal/store"
)

// fakeCatalog serves a fixed page or a fixed error.
type fakeCatalog struct {
	mu     sync.Mutex
	movies []domain.Movie
	err    error
	pages  []int
}

func (f *fakeCatalog) FetchPopular(ctx context.Context, page int) ([]domain.Movie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, page)
	if f.err != nil {
		return nil, f.err
	}
	return f.movies, nil
}

type testEnv struct {
	srv       *Server
	backend   store.PersistentStore
	favorites *favorites.Store
	catalog   *fakeCatalog
}

func newTestEnv(tb testing.TB, authToken string) *testEnv {
	tb.Helper()
	cfg := config.Config{
		Port:               "0",
		AuthToken:          authToken,
		CatalogTimeoutSecs: 1,
		ReadTimeoutSecs:    15,
		WriteTimeoutSecs:   15,
		IdleTimeoutSecs:    60,
		CORSAllowedOrigins: []string{"http://localhost:5173"},
	}

	backend, err := store.NewInMemory()
	if err != nil {
		tb.Fatalf("open store: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	favs := favorites.New(backend, logger)
	tb.Cleanup(func() {
		_ = favs.Close()
		_ = backend.Close()
	})

	cat := &fakeCatalog{movies: []domain.Movie{
		{ID: "155", Title: "The Dark Knight", Genre: "Movie", Year: "2008", Duration: "N/A", Rating: 8.5},
	}}
	srv := New(cfg, backend, favs, cat, logger)
	// Replace chi router to avoid default middleware noise.
	srv.router = chi.NewRouter()
	srv.registerRoutes()
	return &testEnv{srv: srv, backend: backend, favorites: favs, catalog: cat}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.srv.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

const movieBody = `{"id":"155","title":"The Dark Knight","genre":"Movie","year":"2008","duration":"N/A","rating":8.5,"posterUrl":"","synopsis":"Gotham."}`

func TestHealthz(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	_ = env.backend.Close()
	rec = env.do(t, http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status after close = %d, want 503", rec.Code)
	}
}

func TestFavoritesLifecycle(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/favorites/155", "", "")
	if got := decodeBody[membershipResponse](t, rec); got.IsFavorite {
		t.Fatalf("unexpected membership before add: %+v", got)
	}

	rec = env.do(t, http.MethodPut, "/favorites/155", movieBody, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d body=%s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/favorites", "", "")
	list := decodeBody[favoritesResponse](t, rec)
	if len(list.Items) != 1 || list.Items[0].Title != "The Dark Knight" || list.Items[0].Synopsis != "Gotham." {
		t.Fatalf("unexpected favorites: %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/favorites/155", "", "")
	if got := decodeBody[membershipResponse](t, rec); !got.IsFavorite || got.ID != "155" {
		t.Fatalf("unexpected membership after add: %+v", got)
	}

	for i := 0; i < 2; i++ {
		rec = env.do(t, http.MethodDelete, "/favorites/155", "", "")
		if rec.Code != http.StatusNoContent {
			t.Fatalf("DELETE #%d status = %d", i, rec.Code)
		}
	}

	rec = env.do(t, http.MethodGet, "/favorites", "", "")
	if list := decodeBody[favoritesResponse](t, rec); len(list.Items) != 0 {
		t.Fatalf("favorites not empty after delete: %+v", list)
	}
}

func TestAddFavoriteValidation(t *testing.T) {
	env := newTestEnv(t, "")

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"mismatched id", "/favorites/1", movieBody, http.StatusUnprocessableEntity},
		{"malformed json", "/favorites/155", `{"id":`, http.StatusUnprocessableEntity},
		{"truncated object", "/favorites/155", `{"title":"x"`, http.StatusUnprocessableEntity},
		{"open brace", "/favorites/155", `{`, http.StatusUnprocessableEntity},
		{"invalid token", "/favorites/155", `{"title":x}`, http.StatusUnprocessableEntity},
		{"wrong type", "/favorites/155", `{"rating":"high"}`, http.StatusUnprocessableEntity},
		{"unknown field", "/favorites/155", `{"director":"Nolan"}`, http.StatusBadRequest},
		{"empty body", "/favorites/155", "", http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPut, tt.path, tt.body, "")
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d (body=%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	// The id can come from the path alone.
	rec := env.do(t, http.MethodPut, "/favorites/9", `{"title":"Path Only"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.FavoriteRecord](t, rec); got.ID != "9" {
		t.Fatalf("id = %q, want 9", got.ID)
	}
}

func TestMutationsRequireToken(t *testing.T) {
	env := newTestEnv(t, "secret")

	cases := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPut, "/favorites/155", movieBody},
		{http.MethodDelete, "/favorites/155", ""},
		{http.MethodPost, "/favorites/155/toggle", movieBody},
	}
	for _, c := range cases {
		if rec := env.do(t, c.method, c.path, c.body, ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s without token = %d, want 401", c.method, c.path, rec.Code)
		}
		if rec := env.do(t, c.method, c.path, c.body, "wrong"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s with wrong token = %d, want 401", c.method, c.path, rec.Code)
		}
	}

	if rec := env.do(t, http.MethodPut, "/favorites/155", movieBody, "secret"); rec.Code != http.StatusOK {
		t.Fatalf("PUT with token = %d", rec.Code)
	}
	if rec := env.do(t, http.MethodGet, "/favorites", "", ""); rec.Code != http.StatusOK {
		t.Fatalf("reads must not need a token, got %d", rec.Code)
	}
}

func TestToggleFavorite(t *testing.T) {
	env := newTestEnv(t, "")

	for _, want := range []bool{true, false, true} {
		rec := env.do(t, http.MethodPost, "/favorites/155/toggle", movieBody, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle status = %d body=%s", rec.Code, rec.Body.String())
		}
		if got := decodeBody[membershipResponse](t, rec); got.IsFavorite != want {
			t.Fatalf("isFavorite = %v, want %v", got.IsFavorite, want)
		}
	}
}

func TestStorageFaultResponse(t *testing.T) {
	env := newTestEnv(t, "")
	_ = env.backend.Close()

	rec := env.do(t, http.MethodPut, "/favorites/155", movieBody, "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if got := decodeBody[errorResponse](t, rec); got.Code != "STORAGE_ERROR" {
		t.Fatalf("code = %q, want STORAGE_ERROR", got.Code)
	}
}

func TestListMovies(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/movies?page=3", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[movieListResponse](t, rec)
	if got.Page != 3 || len(got.Items) != 1 || got.Items[0].ID != "155" {
		t.Fatalf("unexpected response: %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/movies", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status without page = %d", rec.Code)
	}
	if pages := env.catalog.pages; len(pages) != 2 || pages[0] != 3 || pages[1] != 1 {
		t.Fatalf("requested pages = %v, want [3 1]", pages)
	}

	for _, bad := range []string{"0", "-2", "abc", "501"} {
		rec = env.do(t, http.MethodGet, "/movies?page="+bad, "", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("page=%s status = %d, want 400", bad, rec.Code)
		}
	}
}

func TestListMoviesUpstreamFault(t *testing.T) {
	env := newTestEnv(t, "")
	env.catalog.err = &domain.UpstreamFault{Op: "fetch popular", StatusCode: http.StatusUnauthorized}

	rec := env.do(t, http.MethodGet, "/movies", "", "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	got := decodeBody[errorResponse](t, rec)
	if got.Code != "UPSTREAM_ERROR" || got.Message != "The movie catalog rejected our credentials." {
		t.Fatalf("unexpected error body: %+v", got)
	}
}

func TestCheckOrigin(t *testing.T) {
	env := newTestEnv(t, "")

	req := httptest.NewRequest(http.MethodGet, "/favorites/ws", nil)
	if !env.srv.checkOrigin(req) {
		t.Fatalf("requests without Origin must be allowed")
	}
	req.Header.Set("Origin", "http://localhost:5173")
	if !env.srv.checkOrigin(req) {
		t.Fatalf("configured origin rejected")
	}
	req.Header.Set("Origin", "http://evil.example")
	if env.srv.checkOrigin(req) {
		t.Fatalf("unknown origin accepted")
	}
}

func dialWS(t *testing.T, ts *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	if resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON[T any](t *testing.T, conn *websocket.Conn) T {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var out T
	if err := conn.ReadJSON(&out); err != nil {
		t.Fatalf("read websocket message: %v", err)
	}
	return out
}

func TestFavoritesWebSocket(t *testing.T) {
	env := newTestEnv(t, "")
	ts := httptest.NewServer(env.srv.router)
	defer ts.Close()

	all := dialWS(t, ts, "/favorites/ws")
	member := dialWS(t, ts, "/favorites/155/ws")

	if got := readJSON[favoritesResponse](t, all); len(got.Items) != 0 {
		t.Fatalf("initial list = %+v, want empty", got)
	}
	if got := readJSON[membershipResponse](t, member); got.IsFavorite || got.ID != "155" {
		t.Fatalf("initial membership = %+v", got)
	}

	if rec := env.do(t, http.MethodPut, "/favorites/155", movieBody, ""); rec.Code != http.StatusOK {
		t.Fatalf("PUT status = %d", rec.Code)
	}

	if got := readJSON[favoritesResponse](t, all); len(got.Items) != 1 || got.Items[0].ID != "155" {
		t.Fatalf("list after add = %+v", got)
	}
	if got := readJSON[membershipResponse](t, member); !got.IsFavorite {
		t.Fatalf("membership after add = %+v", got)
	}

	if rec := env.do(t, http.MethodDelete, "/favorites/155", "", ""); rec.Code != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", rec.Code)
	}
	if got := readJSON[membershipResponse](t, member); got.IsFavorite {
		t.Fatalf("membership after delete = %+v", got)
	}
}

func TestWebSocketClosesOnShutdown(t *testing.T) {
	env := newTestEnv(t, "")
	ts := httptest.NewServer(env.srv.router)
	defer ts.Close()

	conn := dialWS(t, ts, "/favorites/ws")
	readJSON[favoritesResponse](t, conn)

	if err := env.favorites.Close(); err != nil {
		t.Fatalf("close favorites: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("read error = %v, want going-away close", err)
	}
}
