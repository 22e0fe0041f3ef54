// ABOUTME: WebSocket transport for client sessions and container links
// ABOUTME: Each socket gets a buffered write pump so slow peers never stall others

package gateway

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// sendBufferSize is the per-connection outbound frame buffer.
	sendBufferSize = 64

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
)

// ErrTransportClosed is returned by Send after the socket is gone.
var ErrTransportClosed = errors.New("transport closed")

// ErrSendBufferFull is returned when a peer reads too slowly to keep up.
var ErrSendBufferFull = errors.New("send buffer full")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-site WebSocket hijacking guard: allow same-origin and localhost
	// (development and the platform's reverse proxy).
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if strings.Contains(origin, "://localhost:") || strings.Contains(origin, "://127.0.0.1:") {
			return true
		}
		host := r.Host
		return origin == "http://"+host || origin == "https://"+host
	},
}

// wsConn adapts a gorilla websocket to the Conn / agent.Transport contract.
// All writes funnel through a single pump goroutine; Send enqueues without
// blocking and fails fast when the buffer is full or the socket is closed.
type wsConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSConn(ws *websocket.Conn) *wsConn {
	c := &wsConn{
		ws:   ws,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send enqueues one text frame for delivery. Never blocks.
func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrTransportClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrTransportClosed
	default:
		return ErrSendBufferFull
	}
}

// writePump is the socket's only writer. It drains the send queue and keeps
// the connection alive with periodic pings.
func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// close marks the transport dead and wakes the pump. Safe to call multiple times.
func (c *wsConn) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// handleClientWS upgrades a browser client and runs its session until the
// socket closes. The read loop is the session's only message source, so
// per-connection handling stays sequential while connections run
// independently of each other.
func (g *Gateway) handleClientWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("client upgrade failed", "error", err)
		return
	}

	conn := newWSConn(ws)
	sess := NewSession(g.sessionDeps(), conn)
	defer func() {
		sess.Close()
		conn.close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		sess.HandleMessage(r.Context(), data)
	}
}
