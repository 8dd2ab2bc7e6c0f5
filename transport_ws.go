package tinyrpc

import (
	"net/http"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/gorilla/websocket"
)

// WebSocket returns a handler that serves unary calls over a WebSocket
// connection. Each inbound message is one call envelope and is answered by
// exactly one result envelope, in receive order. The server never sends
// unsolicited messages.
func (s *Server) WebSocket() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already replied with an HTTP error.
			return
		}
		t := newWSTransport(ws, s.frameType())
		if s.options.MaxBodyBytes > 0 {
			ws.SetReadLimit(s.options.MaxBodyBytes)
		}
		s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket connected")
		go t.writePump()
		t.readPump(s, r)
		s.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket closed")
	})
}

func (s *Server) frameType() int {
	if s.codec.ContentType() == ContentTypeJSON {
		return websocket.TextMessage
	}
	return websocket.BinaryMessage
}

// wsTransport wraps a WebSocket connection as a transport.
type wsTransport struct {
	ws        *websocket.Conn
	frameType int
	send      chan []byte
}

func newWSTransport(ws *websocket.Conn, frameType int) *wsTransport {
	return &wsTransport{
		ws:        ws,
		frameType: frameType,
		send:      make(chan []byte, 16),
	}
}

// readPump reads call envelopes and answers them one at a time.
func (t *wsTransport) readPump(s *Server, r *http.Request) {
	defer func() {
		close(t.send)
	}()

	h := Handles{Request: r}
	for {
		_, data, err := t.ws.ReadMessage()
		if err != nil {
			return
		}

		_, env, _ := s.dispatch(r.Context(), data, h)
		if s.codec.ContentType() == ContentTypeJSON {
			// Without a Content-Type per message, plain-text results would be
			// indistinguishable from structured ones.
			if str, ok := env.Result.(string); ok {
				quoted, err := json.Marshal(str)
				if err == nil {
					env.Result = jsontext.Value(quoted)
				}
			}
		}
		_, body, _, _ := s.encode(http.StatusOK, env)
		t.send <- body
	}
}

// writePump writes encoded results from the send channel to the WebSocket.
func (t *wsTransport) writePump() {
	defer t.ws.Close()

	for data := range t.send {
		t.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := t.ws.WriteMessage(t.frameType, data); err != nil {
			// Closing unblocks readPump; drain until it closes send.
			t.ws.Close()
			for range t.send {
			}
			return
		}
	}
	_ = t.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
}
