package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"chatnet/internal/core/domain"
	"chatnet/internal/core/services"
	"chatnet/internal/infrastructure/monitoring"
	"chatnet/pkg/config"
	"chatnet/pkg/tracing"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server authenticates upgrades, runs the per-stream read loop and
// routes inbound frames.
type Server struct {
	hub  *Hub
	auth services.AuthService
	chat services.ChatService

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeWait    time.Duration
	maxFrameSize int64
	sendBuffer   int

	metrics *monitoring.PrometheusCollector
	logger  *zap.SugaredLogger
}

func NewServer(
	h *Hub,
	auth services.AuthService,
	chat services.ChatService,
	cfg *config.Config,
	metrics *monitoring.PrometheusCollector,
	logger *zap.SugaredLogger,
) *Server {
	return &Server{
		hub:          h,
		auth:         auth,
		chat:         chat,
		pingInterval: cfg.WebSocket.PingInterval,
		pongTimeout:  cfg.WebSocket.PongTimeout,
		writeWait:    cfg.WebSocket.WriteWait,
		maxFrameSize: cfg.WebSocket.MaxFrameSizeBytes,
		sendBuffer:   cfg.WebSocket.SendBufferSize,
		metrics:      metrics,
		logger:       logger,
	}
}

// HandleWebSocket is the upgrade gate: the bearer token in the query
// is verified before the handshake completes, and the verified
// identity is what every later frame is attributed to.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := s.auth.ValidateToken(token)
	if err != nil {
		s.logger.Warnw("websocket upgrade rejected", "error", err)
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(claims.UserID(), claims.Username, conn, s.sendBuffer)

	// Single-writer-per-user: a newer authenticated stream displaces
	// the older one, whose transport is closed.
	if displaced := s.hub.register(c); displaced != nil {
		displaced.close()
		s.logger.Infow("displaced older stream", "user_id", c.userID)
	}

	s.metrics.RecordConnect()
	s.logger.Infow("user connected", "user_id", c.userID, "username", c.username)

	go c.writePump(s.pingInterval, s.writeWait)
	s.broadcastPresence(r.Context())

	s.readLoop(r.Context(), c)

	// A displaced stream finds a newer entry here and leaves it alone.
	removed := s.hub.unregister(c)
	c.close()
	s.metrics.RecordDisconnect()
	s.logger.Infow("user disconnected", "user_id", c.userID)

	if removed {
		s.broadcastPresence(context.Background())
	}
}

func (s *Server) readLoop(ctx context.Context, c *client) {
	// The transport limit is a hard bound well above the frame cap, so
	// a frame over the cap is read, dropped and the stream kept alive;
	// gorilla fails the connection when its own limit is exceeded.
	c.conn.SetReadLimit(s.maxFrameSize * 4)
	c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Infow("read error", "user_id", c.userID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(s.pongTimeout))

		if int64(len(payload)) > s.maxFrameSize {
			s.metrics.RecordFrameDropped("oversized")
			s.logger.Infow("frame dropped", "user_id", c.userID, "reason", "frame exceeds size cap", "size", len(payload))
			continue
		}

		// Malformed or unknown frames are logged and ignored; the
		// stream stays open.
		if err := s.handleFrame(ctx, c, payload); err != nil {
			s.logger.Infow("frame dropped", "user_id", c.userID, "error", err)
		}
	}
}

func (s *Server) handleFrame(ctx context.Context, c *client, payload []byte) error {
	var frame inboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.metrics.RecordFrameDropped("malformed")
		return err
	}

	ctx, span := tracing.TraceFrame(ctx, frame.Type, string(c.userID))
	defer span.End()

	var err error
	switch frame.Type {
	case FrameDM:
		err = s.handleDM(ctx, c, payload)
	case FrameSignal:
		err = s.handleSignal(c, payload)
	case FramePresence:
		// Presence is derived from connection state; client-sent status
		// frames carry no information.
	default:
		s.metrics.RecordFrameDropped("unknown_type")
		err = errors.New("unknown frame type: " + frame.Type)
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return err
}

func (s *Server) handleDM(ctx context.Context, c *client, payload []byte) error {
	var frame dmFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.metrics.RecordFrameDropped("malformed")
		return err
	}

	start := time.Now()
	msg, err := s.chat.SaveDM(ctx, c.userID, frame.To, frame.Text)
	if err != nil {
		s.metrics.RecordFrameDropped("rejected")
		return err
	}
	s.metrics.RecordMessage(time.Since(start).Seconds())

	out, err := json.Marshal(dmEnvelope{
		Type: FrameDM,
		ID:   msg.ID,
		From: msg.From,
		To:   msg.To,
		Text: msg.Text,
		Ts:   msg.Ts,
	})
	if err != nil {
		return err
	}

	// Deliver to the recipient if online; always echo to the sender so
	// it adopts the server-assigned id and ts. Either delivery racing
	// with a close is silently skipped: the persisted record is the
	// system of record.
	s.hub.deliver(msg.To, out)
	c.enqueue(out)
	return nil
}

// handleSignal forwards a call-control envelope verbatim. The relay is
// agnostic to signaling semantics: every field except the stamped
// "from" passes through unchanged, so clients can extend the envelope
// without server changes.
func (s *Server) handleSignal(c *client, payload []byte) error {
	var envelope map[string]interface{}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		s.metrics.RecordFrameDropped("malformed")
		return err
	}

	to, _ := envelope["to"].(string)
	if to == "" {
		s.metrics.RecordFrameDropped("rejected")
		return errors.New("signal frame missing recipient")
	}
	envelope["from"] = string(c.userID)

	out, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	// No persistence: an offline recipient means the envelope is
	// dropped.
	if s.hub.deliver(domain.UserID(to), out) {
		s.metrics.RecordSignalRelayed()
	}
	return nil
}

// broadcastPresence composes a fresh snapshot from the identity store
// joined with one atomic view of the registry and sends it to every
// live stream.
func (s *Server) broadcastPresence(ctx context.Context) {
	entries, err := s.chat.Presence(ctx, s.hub.OnlineSet())
	if err != nil {
		s.logger.Errorw("failed to compose presence snapshot", "error", err)
		return
	}

	out, err := json.Marshal(presenceFrame{Type: FramePresence, Users: entries})
	if err != nil {
		s.logger.Errorw("failed to marshal presence snapshot", "error", err)
		return
	}

	s.hub.broadcast(out)
	s.metrics.RecordPresenceBroadcast()
}

// NotifyUserRegistered re-broadcasts presence after a new registration
// so connected clients see the new contact immediately.
func (s *Server) NotifyUserRegistered(ctx context.Context) {
	s.broadcastPresence(ctx)
}
