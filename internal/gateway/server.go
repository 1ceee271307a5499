package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/convlog"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/pipeline"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/request"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/stream"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/voice"
)

// Content types of chat responses
const (
	ContentTypeJSON   = "application/json"
	ContentTypeNDJSON = "application/x-ndjson"
)

// DefaultMaxBodyBytes bounds a chat payload, attachments included
const DefaultMaxBodyBytes = 25 << 20

// ConversationReader reads the conversation log
type ConversationReader interface {
	ListSession(ctx context.Context, sessionID string, limit int) ([]convlog.Entry, error)
	Sessions(ctx context.Context, limit int) ([]convlog.SessionSummary, error)
}

// Server exposes the reply pipeline over HTTP and websockets
type Server struct {
	pipeline      *pipeline.Pipeline
	resolver      *voice.Resolver
	conversations ConversationReader
	maxBodyBytes  int64
	logger        zerolog.Logger
}

// NewServer creates a server. conversations may be nil when the log is
// disabled.
func NewServer(p *pipeline.Pipeline, resolver *voice.Resolver, conversations ConversationReader, logger zerolog.Logger) *Server {
	return &Server{
		pipeline:      p,
		resolver:      resolver,
		conversations: conversations,
		maxBodyBytes:  DefaultMaxBodyBytes,
		logger:        logger.With().Str("component", "gateway").Logger(),
	}
}

// Routes registers the chat, voice and conversation endpoints on mux
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /chat", s.handleChat)
	mux.HandleFunc("POST /webhook", s.handleChat)
	mux.HandleFunc("GET /streams/chat", s.handleChatStream)
	mux.HandleFunc("GET /voices", s.handleVoices)
	mux.HandleFunc("GET /conversations", s.handleSessions)
	mux.HandleFunc("GET /conversations/{sessionID}", s.handleConversation)
}

// WithCORS allows any origin and answers preflight requests
func WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Stream, X-Correlation-ID")
		h.Set("Access-Control-Expose-Headers", "X-Correlation-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	correlationID := r.Header.Get("X-Correlation-ID")
	if correlationID == "" {
		correlationID = observability.NewCorrelationID()
	}
	logger := observability.WithCorrelationID(correlationID).With().Str("transport", "http").Logger()
	ctx := observability.ContextWithLogger(r.Context(), logger)
	ctx = observability.ContextWithCorrelationID(ctx, correlationID)
	w.Header().Set("X-Correlation-ID", correlationID)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large", correlationID)
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body", correlationID)
		return
	}

	res, err := s.pipeline.Run(ctx, body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, request.ErrMalformedInput) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error(), correlationID)
		return
	}

	mode := s.pipeline.Mode(res, WantsStream(r, res.Request.WantsStream))
	if mode == stream.Streaming {
		w.Header().Set("Content-Type", ContentTypeNDJSON)
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Accel-Buffering", "no")
	} else {
		w.Header().Set("Content-Type", ContentTypeJSON)
	}

	sink := stream.NewLineSink(w)
	if err := s.pipeline.Deliver(res, sink, mode); err != nil {
		if !sink.Written() {
			writeError(w, http.StatusInternalServerError, "failed to encode reply", correlationID)
		}
		return
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.pipeline.Record(context.WithoutCancel(ctx), res)
}

func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	defaults := s.resolver.Defaults()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"voices": s.resolver.Catalog().Voices(),
		"default": map[string]string{
			"voiceId":   defaults.VoiceID,
			"voiceName": defaults.VoiceName,
		},
		"ttsDefaultEnabled": defaults.Enabled,
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeError(w, http.StatusNotFound, "conversation log is disabled", "")
		return
	}

	sessions, err := s.conversations.Sessions(r.Context(), queryInt(r, "limit"))
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to list sessions")
		writeError(w, http.StatusInternalServerError, "failed to read conversation log", "")
		return
	}
	if sessions == nil {
		sessions = []convlog.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	if s.conversations == nil {
		writeError(w, http.StatusNotFound, "conversation log is disabled", "")
		return
	}

	sessionID := r.PathValue("sessionID")
	turns, err := s.conversations.ListSession(r.Context(), sessionID, queryInt(r, "limit"))
	if err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("Failed to read conversation")
		writeError(w, http.StatusInternalServerError, "failed to read conversation log", "")
		return
	}
	if turns == nil {
		turns = []convlog.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"turns":     turns,
	})
}

// WantsStream reports whether the client asked for an NDJSON event stream
// through headers, the query string, or the payload's own stream flag
func WantsStream(r *http.Request, payloadWants bool) bool {
	accept := strings.ToLower(r.Header.Get("Accept"))
	if strings.Contains(accept, ContentTypeNDJSON) || strings.Contains(accept, "text/event-stream") {
		return true
	}
	if isTruthy(r.Header.Get("X-Stream")) || isTruthy(r.URL.Query().Get("stream")) {
		return true
	}
	return payloadWants
}

func isTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type errorResponse struct {
	Success       bool   `json:"success"`
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId,omitempty"`
}

func writeError(w http.ResponseWriter, status int, message, correlationID string) {
	writeJSON(w, status, errorResponse{Error: message, CorrelationID: correlationID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", ContentTypeJSON)
	w.WriteHeader(status)
	sonic.ConfigDefault.NewEncoder(w).Encode(v)
}
