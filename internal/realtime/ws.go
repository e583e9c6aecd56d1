package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// ServeWS upgrades the request to a websocket and attaches it to the hub as
// a display client. The first message the client receives is the snapshot.
func (h *Hub) ServeWS(c *gin.Context) {
	up := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := h.NewClient()
	h.Register(client)
	h.log.Info().Str("client_id", client.ID).Str("remote", c.ClientIP()).Msg("display connected")

	go h.writePump(client, conn)
	h.readPump(client, conn)
	h.log.Info().Str("client_id", client.ID).Msg("display disconnected")
}

// checkOrigin allows every origin unless AllowedOrigins is set without "*".
func (h *Hub) checkOrigin(r *http.Request) bool {
	if len(h.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.opts.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// readPump feeds client messages into the hub until the connection fails or
// the pong deadline passes.
func (h *Hub) readPump(c *Client, conn *websocket.Conn) {
	defer func() {
		h.Unregister(c)
		_ = conn.Close()
	}()

	conn.SetReadLimit(h.opts.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug().Err(err).Str("client_id", c.ID).Msg("display read error")
			}
			return
		}
		h.HandleClientMessage(data)
	}
}

// writePump drains c.Send to the connection and pings on a ticker. It exits
// when the hub closes c.Send or a write fails.
func (h *Hub) writePump(c *Client, conn *websocket.Conn) {
	ticker := time.NewTicker(h.opts.PongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(h.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
