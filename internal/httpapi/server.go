package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/ent0n29/meetscribe/internal/archive"
	"github.com/ent0n29/meetscribe/internal/config"
	"github.com/ent0n29/meetscribe/internal/events"
	"github.com/ent0n29/meetscribe/internal/meeting"
	"github.com/ent0n29/meetscribe/internal/observability"
)

// Server is the read-only ops surface: health, metrics, active meetings and
// a websocket stream of lifecycle events. All mutations go through the bot's
// slash commands, never HTTP.
type Server struct {
	cfg      config.Config
	store    *meeting.Store
	archive  archive.Store
	bus      *events.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func New(cfg config.Config, store *meeting.Store, arch archive.Store, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   store,
		archive: arch,
		bus:     bus,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Non-browser clients often omit Origin. Allow them; for
				// browsers require same-origin so a third-party page cannot
				// tap the event stream.
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/meetings", s.handleListMeetings)
	r.Get("/v1/meetings/recent", s.handleRecentMeetings)
	r.Get("/v1/meetings/events", s.handleEventsWS)
	r.Get("/v1/meetings/{guildID}", s.handleGetMeeting)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ready",
		"active_meetings": s.store.ActiveCount(),
	})
}

func (s *Server) handleListMeetings(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"meetings": s.store.Snapshot(),
	})
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	guildID := chi.URLParam(r, "guildID")
	sess, ok := s.store.Get(guildID)
	if !ok {
		respondError(w, http.StatusNotFound, "no_active_meeting", "no active meeting for this guild")
		return
	}
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleRecentMeetings(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.archive.RecentMeetings(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to list recent meetings", slog.String("error", err.Error()))
		respondError(w, http.StatusInternalServerError, "archive_error", "failed to list recent meetings")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"meetings": records,
	})
}

// handleEventsWS streams lifecycle events until the client goes away.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch, cancel := s.bus.Subscribe()
	defer cancel()

	// Reader goroutine: only to observe the close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
