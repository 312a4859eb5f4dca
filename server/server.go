// Package server exposes the assistant over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-assistant/chat"
	"github.com/becomeliminal/nim-assistant/ingest"
	"github.com/becomeliminal/nim-assistant/observability"
)

const defaultMaxUploadBytes = 20 << 20

// Config configures the HTTP surface.
type Config struct {
	CORSOrigins    []string
	MaxUploadBytes int64
}

// Server routes HTTP requests to the chat and ingestion services.
type Server struct {
	cfg      Config
	chat     *chat.Service
	ingest   *ingest.Service
	metrics  *observability.Metrics // Optional
	upgrader websocket.Upgrader
}

// New creates a server.
func New(cfg Config, chatSvc *chat.Service, ingestSvc *ingest.Service, metrics *observability.Metrics) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	origins := make(map[string]bool, len(cfg.CORSOrigins))
	for _, o := range cfg.CORSOrigins {
		origins[strings.TrimRight(strings.TrimSpace(o), "/")] = true
	}
	return &Server{
		cfg:     cfg,
		chat:    chatSvc,
		ingest:  ingestSvc,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				// Non-browser clients often omit Origin.
				if origin == "" || origins["*"] || origins[origin] {
					return true
				}
				return strings.EqualFold(strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://"), r.Host)
			},
		},
	}
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(withLogging)
	r.Use(withCORS(s.cfg.CORSOrigins))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/chat", func(r chi.Router) {
		r.Post("/message", s.handleSendMessage)
		r.Get("/users/{user_id}/conversations", s.handleListConversations)
		r.Get("/conversations/{conversation_id}/messages", s.handleListMessages)
		r.Get("/ws", s.handleChatWS)
	})

	r.Route("/api/documents", func(r chi.Router) {
		r.Post("/upload", s.handleUpload)
		r.Get("/{user_id}", s.handleListDocuments)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("[HTTP] Listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Printf("[HTTP] Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Conversational AI Assistant API",
		"version": "1.0.0",
		"status":  "running",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "healthy"})
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := s.chat.Send(r.Context(), &req)
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := s.chat.ListConversations(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, convs)
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.chat.Messages(r.Context(), chi.URLParam(r, "conversation_id"))
	if err != nil {
		respondChatError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.metrics != nil {
		s.metrics.ActiveWebsockets.Inc()
		defer s.metrics.ActiveWebsockets.Dec()
	}

	conn.SetReadLimit(1 << 20)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.countWS("inbound", "message")

		var req chat.Request
		if err := json.Unmarshal(data, &req); err != nil {
			s.writeWS(conn, "error", errorFrame{Error: "Invalid JSON: " + err.Error()})
			continue
		}
		if req.UserID == "" || req.Message == "" {
			s.writeWS(conn, "error", errorFrame{Error: "Missing user_id or message"})
			continue
		}

		resp, err := s.chat.Send(r.Context(), &req)
		if err != nil {
			s.writeWS(conn, "error", errorFrame{Error: err.Error()})
			continue
		}
		if !s.writeWS(conn, "response", resp) {
			return
		}
	}
}

type errorFrame struct {
	Error string `json:"error"`
}

func (s *Server) writeWS(conn *websocket.Conn, kind string, v interface{}) bool {
	_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(v); err != nil {
		log.Printf("[HTTP] websocket write failed: %v", err)
		return false
	}
	s.countWS("outbound", kind)
	return true
}

func (s *Server) countWS(direction, kind string) {
	if s.metrics != nil {
		s.metrics.WSMessages.WithLabelValues(direction, kind).Inc()
	}
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_upload", err.Error())
		return
	}

	res, err := s.ingest.Ingest(r.Context(), userID, header.Filename, content)
	if err != nil {
		if errors.Is(err, ingest.ErrUnsupportedFileType) {
			respondError(w, http.StatusBadRequest, "unsupported_file_type",
				fmt.Sprintf("Unsupported file type: %s", ingest.FileType(header.Filename)))
			return
		}
		if errors.Is(err, ingest.ErrUnreadableFile) {
			respondError(w, http.StatusUnprocessableEntity, "unreadable_file",
				fmt.Sprintf("Could not extract text from %s", header.Filename))
			return
		}
		respondError(w, http.StatusInternalServerError, "ingest_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.ingest.List(r.Context(), chi.URLParam(r, "user_id"))
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	if docs == nil {
		respondJSON(w, http.StatusOK, []interface{}{})
		return
	}
	respondJSON(w, http.StatusOK, docs)
}

func respondChatError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, chat.ErrConversationNotFound):
		respondError(w, http.StatusNotFound, "conversation_not_found", "Conversation not found")
	default:
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
