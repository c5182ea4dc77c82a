// Package server exposes the ping-triggered health surface using chi.
package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/bot"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

const (
	serviceName     = "mal-twitter-bot"
	shutdownTimeout = 5 * time.Second
)

// Server serves the trigger and status endpoints. journal may be nil, in
// which case /history reports an empty list.
type Server struct {
	log        zerolog.Logger
	controller *bot.Controller
	journal    domain.JournalRepository
	httpServer *http.Server
}

// New creates the HTTP server with all routes mounted.
func New(log zerolog.Logger, addr string, controller *bot.Controller, journal domain.JournalRepository) *Server {
	s := &Server{
		log:        log.With().Str("module", "server").Logger(),
		controller: controller,
		journal:    journal,
	}

	r := chi.NewRouter()
	r.Use(requestLogger(s.log))

	r.Get("/", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/history", s.handleHistory)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "http server")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	BotStatus      string `json:"bot_status"`
	LastCheck      string `json:"last_check,omitempty"`
	CompletedAnime int    `json:"completed_anime"`
	CompletedManga int    `json:"completed_manga"`
	Message        string `json:"message"`
}

// handleHealth reports liveness and, when the controller is idle, kicks off
// an asynchronous check cycle.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	triggered := s.controller.TryTrigger()

	msg := "bot check triggered by ping"
	if !triggered {
		msg = "bot busy or starting, no check triggered"
	}

	st := s.controller.Snapshot()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:         "healthy",
		Service:        serviceName,
		BotStatus:      st.Phase,
		LastCheck:      st.LastCheck,
		CompletedAnime: st.CompletedAnime,
		CompletedManga: st.CompletedManga,
		Message:        msg,
	})
}

// handleStatus returns the full status snapshot without side effects.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("invalid limit"))
			return
		}
		if n > 100 {
			n = 100
		}
		limit = n
	}

	entries := []domain.JournalEntry{}
	if s.journal != nil {
		found, err := s.journal.Recent(r.Context(), limit)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to read journal")
			writeJSON(w, http.StatusInternalServerError, errorBody("failed to read history"))
			return
		}
		if found != nil {
			entries = found
		}
	}

	writeJSON(w, http.StatusOK, entries)
}
