package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/observability"
	"github.com/TomHughesSAXTech/SAXTech-MegaMind-SAX-Site-sub002/internal/pipeline"
)

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Browser chat widgets are served from other origins
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// SessionFrame is a control frame sent on the chat websocket
type SessionFrame struct {
	Type          string `json:"type"` // "ready" | "error"
	CorrelationID string `json:"correlationId"`
	Error         string `json:"error,omitempty"`
	Success       *bool  `json:"success,omitempty"`
}

// ChatSession holds the state of one websocket connection. Each text frame
// received is a chat payload; every reply event goes back as one text frame.
type ChatSession struct {
	conn     *websocket.Conn
	writeMu  sync.Mutex
	pipeline *pipeline.Pipeline

	// streamAll forces NDJSON-style event frames for every turn
	streamAll bool
	maxBytes  int64

	correlationID string
	logger        zerolog.Logger
	turns         int
}

// NewChatSession creates a session for an upgraded connection
func NewChatSession(conn *websocket.Conn, p *pipeline.Pipeline, streamAll bool, maxBytes int64) *ChatSession {
	correlationID := observability.NewCorrelationID()
	return &ChatSession{
		conn:          conn,
		pipeline:      p,
		streamAll:     streamAll,
		maxBytes:      maxBytes,
		correlationID: correlationID,
		logger:        observability.WithCorrelationID(correlationID).With().Str("transport", "websocket").Logger(),
	}
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		s.logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}

	session := NewChatSession(conn, s.pipeline, isTruthy(r.URL.Query().Get("stream")), s.maxBodyBytes)
	session.Run(r.Context())
}

// Run reads frames until the client disconnects or ctx is done
func (cs *ChatSession) Run(ctx context.Context) {
	defer cs.conn.Close()
	cs.conn.SetReadLimit(cs.maxBytes)

	cs.logger.Info().Msg("Chat websocket connected")
	if err := cs.sendFrame(SessionFrame{Type: "ready", CorrelationID: cs.correlationID}); err != nil {
		cs.logger.Warn().Err(err).Msg("Failed to send ready frame")
		return
	}

	for {
		if ctx.Err() != nil {
			return
		}

		msgType, message, err := cs.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cs.logger.Warn().Err(err).Msg("WebSocket read error")
			}
			cs.logger.Info().Int("turns", cs.turns).Msg("Chat websocket closed")
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		cs.handleMessage(ctx, message)
	}
}

func (cs *ChatSession) handleMessage(ctx context.Context, message []byte) {
	cs.turns++
	turnID := fmt.Sprintf("%s-%d", cs.correlationID, cs.turns)
	logger := cs.logger.With().Int("turn", cs.turns).Logger()

	turnCtx := observability.ContextWithLogger(ctx, logger)
	turnCtx = observability.ContextWithCorrelationID(turnCtx, turnID)

	res, err := cs.pipeline.Run(turnCtx, message)
	if err != nil {
		failed := false
		if sendErr := cs.sendFrame(SessionFrame{Type: "error", CorrelationID: turnID, Error: err.Error(), Success: &failed}); sendErr != nil {
			logger.Warn().Err(sendErr).Msg("Failed to send error frame")
		}
		return
	}

	mode := cs.pipeline.Mode(res, cs.streamAll || res.Request.WantsStream)
	if err := cs.pipeline.Deliver(res, cs, mode); err != nil {
		return
	}

	cs.pipeline.Record(context.WithoutCancel(turnCtx), res)
}

// Send implements stream.EventSink
func (cs *ChatSession) Send(frame []byte) error {
	cs.writeMu.Lock()
	defer cs.writeMu.Unlock()

	cs.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return cs.conn.WriteMessage(websocket.TextMessage, frame)
}

func (cs *ChatSession) sendFrame(f SessionFrame) error {
	data, err := sonic.Marshal(f)
	if err != nil {
		return err
	}
	return cs.Send(data)
}
