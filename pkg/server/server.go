// Package server exposes the HTTP and WebSocket surface of the bridge.
package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"wabridge/pkg/broadcast"
	"wabridge/pkg/config"
	"wabridge/pkg/dispatch"
	"wabridge/pkg/resolver"
	"wabridge/pkg/session"
)

//go:embed index.html
var dashboardHTML []byte

type Server struct {
	cfg        config.ServerConfig
	log        *slog.Logger
	tracker    *session.Tracker
	dispatcher *dispatch.Dispatcher
	hub        *broadcast.Hub
	upgrader   websocket.Upgrader
}

func New(cfg config.ServerConfig, tracker *session.Tracker, dispatcher *dispatch.Dispatcher, hub *broadcast.Hub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:        cfg,
		log:        log.With("component", "server"),
		tracker:    tracker,
		dispatcher: dispatcher,
		hub:        hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The dashboard is same-host; token auth is out of scope for a
			// single-operator bridge.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Host + ":" + strconv.Itoa(s.cfg.Port)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("HTTP server started", "address", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}

	return nil
}

// Routes wires the full HTTP surface.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("POST /send-message", s.handleSendMessage)
	mux.HandleFunc("POST /send-message-group", s.handleSendGroupMessage)
	mux.HandleFunc("POST /send-media", s.handleSendMedia)
	return mux
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(dashboardHTML)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	state := s.tracker.Current()
	if state.CanSend() {
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "message": ""})
		return
	}

	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": false, "message": string(state)})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	s.hub.Register(conn)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req dispatch.TextRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.dispatcher.SendText(r.Context(), req)
	s.writeDispatchResult(w, result, err)
}

func (s *Server) handleSendGroupMessage(w http.ResponseWriter, r *http.Request) {
	var req dispatch.GroupTextRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.dispatcher.SendGroupText(r.Context(), req)
	s.writeDispatchResult(w, result, err)
}

func (s *Server) handleSendMedia(w http.ResponseWriter, r *http.Request) {
	var req dispatch.MediaRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.dispatcher.SendMedia(r.Context(), req)
	s.writeDispatchResult(w, result, err)
}

// writeDispatchResult maps pipeline outcomes onto the uniform JSON response
// contract. Nothing escapes as an unhandled fault.
func (s *Server) writeDispatchResult(w http.ResponseWriter, result dispatch.Result, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": true, "response": result.Receipt})
		return
	}

	var validationErr *dispatch.ValidationError
	if errors.As(err, &validationErr) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"status": false, "message": validationErr.Fields})
		return
	}

	if errors.Is(err, resolver.ErrNotRegistered) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"status": false, "message": "The number is not registered"})
		return
	}

	if errors.Is(err, resolver.ErrGroupNotFound) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"status": false, "message": "The group is not registered"})
		return
	}

	var notReadyErr *dispatch.SessionNotReadyError
	if errors.As(err, &notReadyErr) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": false, "message": notReadyErr.Error()})
		return
	}

	// MediaFetchError and TransportError both surface as a plain failure
	// with passthrough detail.
	writeJSON(w, http.StatusInternalServerError, map[string]any{"status": false, "response": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": false, "message": "invalid request body"})
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
