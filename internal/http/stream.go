package httpserver

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Clark-Hu/movie-favorites/internal/domain"
	"github.com/Clark-Hu/movie-favorites/internal/favorites"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// handleFavoritesStream sends the full favorites list on connect and after
// every change.
func (s *Server) handleFavoritesStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := s.favorites.All(ctx)
	if err != nil {
		s.closeWithError(conn, err)
		return
	}
	streamFeed(ctx, cancel, s, conn, feed, func(items []domain.FavoriteRecord) any {
		return favoritesResponse{Items: items}
	})
}

// handleMembershipStream sends {"id","isFavorite"} on connect and whenever
// the membership of that id changes.
func (s *Server) handleMembershipStream(w http.ResponseWriter, r *http.Request) {
	id := favoriteID(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	feed, err := s.favorites.Membership().Watch(ctx, id)
	if err != nil {
		s.closeWithError(conn, err)
		return
	}
	streamFeed(ctx, cancel, s, conn, feed, func(on bool) any {
		return membershipResponse{ID: id, IsFavorite: on}
	})
}

// streamFeed pumps feed values to conn until either side goes away. The read
// loop only handles control frames; any read error ends the stream.
func streamFeed[T any](ctx context.Context, cancel context.CancelFunc, s *Server, conn *websocket.Conn, feed *favorites.Feed[T], render func(T) any) {
	defer conn.Close()
	defer feed.Close()

	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read ended", "err", err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case v, ok := <-feed.C():
			if !ok {
				s.closeWithError(conn, feed.Err())
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(render(v)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeWithError sends a close frame describing why the stream ended.
func (s *Server) closeWithError(conn *websocket.Conn, err error) {
	code, reason := websocket.CloseNormalClosure, ""
	var fault *domain.StorageFault
	switch {
	case err == nil:
	case errors.Is(err, favorites.ErrClosed):
		code, reason = websocket.CloseGoingAway, "server shutting down"
	case errors.As(err, &fault):
		s.logger.Error("favorites stream failed", "err", err)
		code, reason = websocket.CloseInternalServerErr, "storage error"
	default:
		code, reason = websocket.CloseInternalServerErr, "internal error"
	}
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	_ = conn.Close()
}
