package collab

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collab-docs/backend/internal/models"
)

// sendQueueSize bounds each peer's outbound buffer; when full, the hub
// drops that peer rather than stalling the room loop.
const sendQueueSize = 256

// writeWait bounds how long a close-frame write may block.
const writeWait = 5 * time.Second

// Client is one connected WebSocket session attached to a live document.
type Client struct {
	ID   string
	Peer models.Peer
	Room *Room
	Conn *websocket.Conn
	Send chan []byte

	limiter        *tokenBucket
	rateViolations int // consecutive throttled frames; only touched from the room's actor goroutine

	writeMu sync.Mutex
}

// NewClient wraps conn for peer, with an inbound rate limiter configured
// at ratePerSecond.
func NewClient(conn *websocket.Conn, peer models.Peer, ratePerSecond int) *Client {
	return &Client{
		ID:      peer.ID,
		Peer:    peer,
		Conn:    conn,
		Send:    make(chan []byte, sendQueueSize),
		limiter: newTokenBucket(ratePerSecond),
	}
}

// WriteFrame sends a tagged frame to the client over its buffered Send
// channel. Returns false if the queue was full, in which case the frame is
// dropped; the room's callers of WriteFrame do not check the result (a
// full queue drops the peer only in Room.broadcastExcept, which writes to
// Send directly).
func (c *Client) WriteFrame(tag FrameTag, payload []byte) bool {
	select {
	case c.Send <- EncodeFrame(tag, payload):
		return true
	default:
		return false
	}
}

// WriteMessage writes raw bytes directly to the underlying connection.
// Only the writePump goroutine calls this; writeMu guards against the
// occasional out-of-band write (e.g. a close frame) racing with it.
func (c *Client) WriteMessage(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.Conn.WriteMessage(websocket.BinaryMessage, data)
}

// Close closes the send channel and the underlying connection.
func (c *Client) Close() {
	close(c.Send)
	c.Conn.Close()
}

// closeOverloaded sends an overloaded (4001) close frame for a peer whose
// outbound queue filled up, then tears down the connection.
func (c *Client) closeOverloaded() {
	c.writeMu.Lock()
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseOverloaded, "send queue full"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.Conn.Close()
}

// closeProtocolError sends a close frame for a peer that sent a malformed
// or out-of-sequence frame, then tears down the connection.
func (c *Client) closeProtocolError() {
	c.writeMu.Lock()
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(CloseProtocolError, "protocol error"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.Conn.Close()
}

// closeRateLimited sends a policy-violation close frame for a peer that
// kept sending UPDATE frames after being throttled, then tears down the
// connection.
func (c *Client) closeRateLimited() {
	c.writeMu.Lock()
	_ = c.Conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "update rate exceeded"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	c.Conn.Close()
}
