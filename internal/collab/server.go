package collab

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collab-docs/backend/internal/auth"
	"github.com/collab-docs/backend/internal/logger"
)

const (
	// pongWait is how long a connection may go without a pong before it's
	// considered dead.
	pongWait = 60 * time.Second

	// pingPeriod must stay below pongWait so the ping always lands first.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20 // 1 MiB per inbound WebSocket frame
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true }, // admission decided in HandleWebSocket
}

// Server is the hub's HTTP entry point: it upgrades a request to a
// WebSocket, resolves the connecting peer's identity, attaches them to
// the requested document's room, and runs their read/write pumps.
type Server struct {
	manager     *RoomManager
	jwtSecret   string
	originAllow []string
	rate        int
}

// NewServer builds a Server bound to manager.
func NewServer(manager *RoomManager, jwtSecret string, originAllow []string, perConnectionRate int) *Server {
	return &Server{
		manager:     manager,
		jwtSecret:   jwtSecret,
		originAllow: originAllow,
		rate:        perConnectionRate,
	}
}

// HandleWebSocket upgrades the request and attaches the connection to the
// document named in the URL path (/ws/{docId}).
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docId")
	if docID == "" {
		docID = strings.Trim(strings.TrimPrefix(r.URL.Path, "/ws/"), "/")
	}
	if docID == "" {
		http.Error(w, "missing document id", http.StatusBadRequest)
		return
	}

	origin := r.Header.Get("Origin")
	if !auth.OriginAllowed(origin, s.originAllow) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	bearer := bearerToken(r)
	peer := auth.ResolvePeer(s.jwtSecret, bearer)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("[collab] upgrade failed for %s: %v", docID, err)
		return
	}

	room, err := s.manager.GetOrCreate(docID)
	if err != nil {
		logger.Warn("[collab] rejecting %s: %v", docID, err)
		s.rejectOverloaded(conn)
		return
	}

	client := NewClient(conn, peer, s.rate)
	client.Room = room

	if err := room.Attach(client); err != nil {
		logger.Warn("[collab] attach failed for %s: %v", docID, err)
		conn.Close()
		return
	}

	go s.writePump(client)
	go s.readPump(client)
}

// rejectOverloaded turns away a freshly-upgraded connection that arrived
// while this instance is at its live-document ceiling: it sends an
// AUTH(overloaded) frame carrying a retry hint, then closes with 4001.
// The connection never reaches a room or a read/write pump.
func (s *Server) rejectOverloaded(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.BinaryMessage, EncodeFrame(TagAuth,
		EncodeAuthPayload(AuthOverloaded, "instance at capacity, retry shortly")))
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseOverloaded, "overloaded"),
		time.Now().Add(writeWait))
	conn.Close()
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// readPump reads frames off the connection and delivers them to the
// client's room. It owns the connection's read deadline/pong handling;
// it never writes to the connection itself (that's writePump's job).
func (s *Server) readPump(client *Client) {
	defer func() {
		client.Room.Detach(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("[collab] client %s read error: %v", client.ID, err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		tag, payload, err := DecodeFrame(data)
		if err != nil {
			logger.Warn("[collab] client %s sent malformed frame: %v", client.ID, err)
			go client.closeProtocolError()
			return
		}
		if !isKnownTag(tag) {
			continue
		}
		client.Room.ClientFrame(client, tag, payload)
	}
}

// writePump drains the client's Send channel onto the connection and
// issues periodic pings. It is the sole writer of the connection.
func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.Send:
			if !ok {
				client.writeMu.Lock()
				_ = client.Conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				client.writeMu.Unlock()
				return
			}
			if err := client.WriteMessage(frame); err != nil {
				return
			}

		case <-ticker.C:
			client.writeMu.Lock()
			err := client.Conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			client.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// RoomStats reports basic operational counters for a health/stats endpoint.
func (s *Server) RoomStats() map[string]interface{} {
	return map[string]interface{}{
		"liveDocuments": s.manager.Count(),
	}
}
