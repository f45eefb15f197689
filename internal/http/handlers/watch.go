package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"kairopi/internal/domain"
)

const watchWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// the API has no credentials to protect; CORS decides who may call it
	CheckOrigin: func(r *http.Request) bool { return true },
}

type watchError struct {
	Error string `json:"error"`
}

// WatchVideoStatus streams the job record over a WebSocket each time it
// changes and closes after a terminal state. The store is still polled; the
// socket only saves the client from doing it.
func (a *App) WatchVideoStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.Logger.Warn().Err(err).Str("job_id", jobID).Msg("watch upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go func() {
		// drain control frames; a read error means the client went away
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	interval := a.WatchInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	grace := a.WatchGrace
	if grace <= 0 {
		grace = 30 * time.Second
	}
	notFoundUntil := time.Now().Add(grace)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last *domain.JobRecord
	for {
		rec, err := a.Jobs.Status(ctx, jobID)
		switch {
		case err == nil:
			if last == nil || changed(last, rec) {
				if err := a.writeWatch(conn, rec); err != nil {
					return
				}
				last = rec
			}
			if rec.Status.IsTerminal() {
				a.closeWatch(conn, websocket.CloseNormalClosure, string(rec.Status))
				return
			}
		case errors.Is(err, domain.ErrNotFound):
			if time.Now().After(notFoundUntil) {
				_ = a.writeWatch(conn, watchError{Error: "Job not found."})
				a.closeWatch(conn, websocket.ClosePolicyViolation, "job not found")
				return
			}
		default:
			if ctx.Err() != nil {
				return
			}
			a.Logger.Error().Err(err).Str("job_id", jobID).Msg("watch status read failed")
			_ = a.writeWatch(conn, watchError{Error: "Failed to get video status."})
			a.closeWatch(conn, websocket.CloseInternalServerErr, "status unavailable")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (a *App) writeWatch(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(watchWriteTimeout))
	return conn.WriteJSON(v)
}

func (a *App) closeWatch(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(watchWriteTimeout))
}

func changed(prev, next *domain.JobRecord) bool {
	return prev.Status != next.Status || prev.VideoURL != next.VideoURL || prev.ErrorMessage != next.ErrorMessage
}
