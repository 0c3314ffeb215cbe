package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 45 * time.Second
	wsMaxMessage = 64 * 1024
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsInbound is a client command frame.
type wsInbound struct {
	Action string `json:"action"`
	RoomID string `json:"roomId,omitempty"`
	Text   string `json:"text,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// wsError is sent back to the issuing client for rejected commands.
type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// wsClient is one live connection. The mutex serializes writes from
// the hub drain and direct command replies.
type wsClient struct {
	sessionID string
	conn      *websocket.Conn
	mu        sync.Mutex
}

func (c *wsClient) write(messageType int, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteMessage(messageType, payload)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	displayName := r.URL.Query().Get("name")
	if displayName == "" {
		displayName = "anonymous"
	}
	client := &wsClient{sessionID: uuid.NewString(), conn: conn}

	s.relay.Connect(context.Background(), client.sessionID, displayName)
	out, remove := s.hub.Add(client.sessionID)

	go s.writePump(client, out)
	s.readPump(client, remove)
}

// readPump owns the connection's inbound side. It returns on the
// first read error, draining the session out of its room before the
// connection is considered gone.
func (s *Server) readPump(client *wsClient, remove func()) {
	defer func() {
		s.relay.Disconnect(context.Background(), client.sessionID)
		remove()
		_ = client.conn.Close()
	}()

	client.conn.SetReadLimit(wsMaxMessage)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug().Err(err).Str("session", client.sessionID).Msg("websocket read error")
			}
			return
		}
		s.handleCommand(client, data)
	}
}

func (s *Server) handleCommand(client *wsClient, data []byte) {
	var cmd wsInbound
	if err := json.Unmarshal(data, &cmd); err != nil {
		s.sendError(client, "malformed command")
		return
	}

	ctx := context.Background()
	switch cmd.Action {
	case "join":
		if cmd.RoomID == "" {
			s.sendError(client, "join requires roomId")
			return
		}
		name := "anonymous"
		if sess, ok := s.relay.Sessions().Get(client.sessionID); ok {
			name = sess.DisplayName
		}
		s.relay.Join(ctx, cmd.RoomID, client.sessionID, name)
	case "leave":
		if cmd.RoomID == "" {
			s.sendError(client, "leave requires roomId")
			return
		}
		s.relay.Leave(ctx, cmd.RoomID, client.sessionID)
	case "chat":
		if cmd.RoomID == "" || cmd.Text == "" {
			s.sendError(client, "chat requires roomId and text")
			return
		}
		if !s.relay.SendChat(ctx, cmd.RoomID, client.sessionID, cmd.Text) {
			s.sendError(client, "not joined to room "+cmd.RoomID)
		}
	case "history":
		if cmd.RoomID == "" {
			s.sendError(client, "history requires roomId")
			return
		}
		s.sendHistory(client, cmd.RoomID, cmd.Limit)
	default:
		s.sendError(client, "unknown action "+cmd.Action)
	}
}

func (s *Server) sendHistory(client *wsClient, roomID string, limit int) {
	events, err := s.relay.RecentHistory(context.Background(), roomID, limit)
	if err != nil {
		s.logger.Warn().Err(err).Str("room", roomID).Msg("history read failed")
		s.sendError(client, "history unavailable")
		return
	}
	payload, err := json.Marshal(map[string]any{
		"type":   "HISTORY",
		"roomId": roomID,
		"events": events,
	})
	if err != nil {
		return
	}
	_ = client.write(websocket.TextMessage, payload)
}

func (s *Server) sendError(client *wsClient, msg string) {
	payload, err := json.Marshal(wsError{Type: "ERROR", Message: msg})
	if err != nil {
		return
	}
	_ = client.write(websocket.TextMessage, payload)
}

// writePump drains the session's hub queue onto the socket and keeps
// the connection alive with pings. It exits when the queue closes.
func (s *Server) writePump(client *wsClient, out <-chan []byte) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-out:
			if !ok {
				_ = client.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.write(websocket.TextMessage, payload); err != nil {
				s.logger.Debug().Err(err).Str("session", client.sessionID).Msg("websocket write error")
				return
			}
		case <-ticker.C:
			if err := client.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
