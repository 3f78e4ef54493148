package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/tirtalab/aquasense-core/internal/broker"
	"github.com/tirtalab/aquasense-core/internal/infrastructure/config"
)

// Inbound WebSocket message types.
const (
	wsTypeTelemetry = "telemetry"
	wsTypeEcho      = "echo"
	wsTypePing      = "ping"
	wsTypePong      = "pong"
)

// wsDefaultSendBuffer is the per-session outbound buffer when the config
// does not set one.
const wsDefaultSendBuffer = 256

// connectTimeout bounds the admission flow for a new WebSocket session.
const connectTimeout = 10 * time.Second

// inboundMessage is the envelope clients send.
type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// wsSession is one live WebSocket connection, adapted to the broker's Conn
// interface. Send never blocks; slow sessions drop messages.
type wsSession struct {
	id       string
	deviceID string
	conn     *websocket.Conn
	send     chan []byte
	server   *Server
	once     sync.Once
}

// SessionID returns the opaque session identifier.
func (c *wsSession) SessionID() string { return c.id }

// Send queues an event for delivery. Best effort.
func (c *wsSession) Send(ev broker.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	c.trySend(data)
}

// CloseForced tears the connection down immediately. The read pump's exit
// raises the normal disconnect path, which is idempotent.
func (c *wsSession) CloseForced() {
	c.once.Do(func() {
		//nolint:errcheck // Best-effort close frame before dropping the socket
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "evicted"),
			time.Now().Add(time.Second))
		close(c.send)
		c.conn.Close()
	})
}

// close shuts the session down from the transport side.
func (c *wsSession) close() {
	c.once.Do(func() {
		close(c.send)
		c.conn.Close()
	})
}

// trySend attempts to queue data, silently handling closed channels and
// full buffers.
func (c *wsSession) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel during teardown
	}()

	select {
	case c.send <- data:
	default:
		// Session buffer full, skip
	}
}

// handleWebSocket upgrades the connection and runs broker admission.
//
// Producers authenticate with X-Device-Key and X-Device-Salt headers;
// observers with a bearer token (Authorization header or token query
// parameter). The device room and role come from query parameters:
//
//	GET /ws?device_id=tank-01&role=observer&token=...
//
// The connection is upgraded before admission so rejections reach the
// client as an error event with a close frame rather than a bare HTTP
// status.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	req := broker.ConnectRequest{
		DeviceID: r.URL.Query().Get("device_id"),
		Role:     broker.Role(r.URL.Query().Get("role")),
		Credential: broker.Credential{
			Key:   r.Header.Get("X-Device-Key"),
			Salt:  r.Header.Get("X-Device-Salt"),
			Token: bearerToken(r),
		},
	}
	if req.Credential.Token == "" {
		req.Credential.Token = r.URL.Query().Get("token")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	bufSize := s.wsCfg.SendBufferSize
	if bufSize <= 0 {
		bufSize = wsDefaultSendBuffer
	}

	sess := &wsSession{
		id:       uuid.NewString(),
		deviceID: req.DeviceID,
		conn:     conn,
		send:     make(chan []byte, bufSize),
		server:   s,
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectTimeout)
	err = s.lifecycle.Connect(ctx, sess, req)
	cancel()
	if err != nil {
		s.rejectSession(sess, err)
		return
	}

	go sess.writePump(s.wsCfg)
	go sess.readPump(s.wsCfg)
}

// rejectSession delivers the admission error and closes the socket.
func (s *Server) rejectSession(sess *wsSession, admitErr error) {
	ev := broker.Event{
		Type:      broker.EventError,
		DeviceID:  sess.deviceID,
		Message:   admissionMessage(admitErr),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if data, err := json.Marshal(ev); err == nil {
		//nolint:errcheck // Best-effort delivery before close
		sess.conn.SetWriteDeadline(time.Now().Add(time.Second))
		//nolint:errcheck // Best-effort delivery before close
		sess.conn.WriteMessage(websocket.TextMessage, data)
	}
	sess.close()
}

// admissionMessage maps admission errors to client-facing strings without
// leaking internals.
func admissionMessage(err error) string {
	switch {
	case errors.Is(err, broker.ErrAuthRejected):
		return "authentication rejected"
	case errors.Is(err, broker.ErrInvalidRole):
		return "invalid role"
	case errors.Is(err, broker.ErrDuplicateProducer):
		return "producer already connected"
	case errors.Is(err, broker.ErrNoProducer):
		return "no live producer for device"
	case errors.Is(err, broker.ErrStoreUnavailable):
		return "session store unavailable"
	default:
		return "connection rejected"
	}
}

// readPump reads messages from the WebSocket connection and routes them
// through the broker. It owns the disconnect path: when the read loop
// exits for any reason the session is torn down exactly once.
func (c *wsSession) readPump(cfg config.WebSocketConfig) {
	s := c.server
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		if err := s.lifecycle.Disconnect(ctx, c.id); err != nil {
			s.logger.Warn("websocket disconnect failed",
				"session_id", c.id,
				"device_id", c.deviceID,
				"error", err,
			)
		}
		cancel()
		c.close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.ClosePolicyViolation) {
				s.logger.Warn("websocket read error", "session_id", c.id, "error", err)
			} else {
				s.logger.Debug("websocket closed", "session_id", c.id, "error", err)
			}
			return
		}
		// Any client message resets the read deadline.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

// writePump writes queued events to the WebSocket connection.
func (c *wsSession) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage routes one inbound client message.
func (c *wsSession) handleMessage(data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("invalid JSON message")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	switch msg.Type {
	case wsTypeTelemetry:
		c.server.router.RelayTelemetry(ctx, c.id, c.deviceID, msg.Payload)
	case wsTypeEcho:
		c.server.router.RelayEcho(ctx, c.id, msg.Payload)
	case wsTypePing:
		c.Send(broker.Event{
			Type:      wsTypePong,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

// sendError sends an error event to the client.
func (c *wsSession) sendError(message string) {
	c.Send(broker.Event{
		Type:      broker.EventError,
		Message:   message,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
