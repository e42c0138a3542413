package air

import (
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket is a WebSocket peer upgraded from an HTTP request via
// `Response.WebSocket`.
type WebSocket struct {
	TextHandler            func(text string) error
	BinaryHandler          func(b []byte) error
	ConnectionCloseHandler func(statusCode int, reason string) error
	PingHandler            func(appData string) error
	PongHandler            func(appData string) error
	ErrorHandler           func(err error)

	// Closed reports whether the ws has sent or received a close
	// message, or been closed locally via `Close`.
	Closed bool

	conn *websocket.Conn
}

// Close closes the ws without sending or waiting for a close message.
func (ws *WebSocket) Close() error {
	ws.Closed = true
	return ws.conn.Close()
}

// NetConn returns the underlying `net.Conn` of the ws. Reading from or
// writing to it directly bypasses the WebSocket framing entirely; it exists
// for callers that have upgraded the connection only to reuse it as a raw
// byte stream (e.g. a custom sub-protocol layered directly on TCP).
func (ws *WebSocket) NetConn() net.Conn {
	return ws.conn.UnderlyingConn()
}

// SetMaxMessageBytes sets the maximum size, in bytes, of a message the ws
// will read from its remote peer. A message larger than limit causes the
// in-progress read to fail with `websocket.ErrReadLimit` and the connection
// to send a close message to the peer.
func (ws *WebSocket) SetMaxMessageBytes(limit int64) {
	ws.conn.SetReadLimit(limit)
}

// SetReadDeadline sets the deadline for future reads from the remote peer of
// the ws. A zero value disables the deadline.
func (ws *WebSocket) SetReadDeadline(t time.Time) error {
	return ws.conn.SetReadDeadline(t)
}

// SetWriteDeadline sets the deadline for future writes to the remote peer of
// the ws. A zero value disables the deadline.
func (ws *WebSocket) SetWriteDeadline(t time.Time) error {
	return ws.conn.SetWriteDeadline(t)
}

// Listen reads incoming frames from the remote peer of the ws in a loop,
// dispatching data frames to `TextHandler`/`BinaryHandler`, until the ws is
// closed, a handler returns an error, or a read fails. Control frames (ping/
// pong/close) never reach this loop as a dispatchable message: the
// `gorilla/websocket` connection processes them internally (via the
// handlers `Response.WebSocket` registers) while servicing the very
// `ReadMessage` call below, so `PingHandler`/`PongHandler`/
// `ConnectionCloseHandler` fire as a side effect of that call rather than
// through a case in the switch here.
//
// Any non-nil error, whether from the read itself or from a handler, is
// reported through `ErrorHandler` (if set) before `Listen` returns it.
// Calling `Listen` again after the ws has been closed is a no-op.
func (ws *WebSocket) Listen() error {
	for !ws.Closed {
		mt, b, err := ws.conn.ReadMessage()
		if err == nil {
			switch mt {
			case websocket.TextMessage:
				if ws.TextHandler != nil {
					err = ws.TextHandler(string(b))
				}
			case websocket.BinaryMessage:
				if ws.BinaryHandler != nil {
					err = ws.BinaryHandler(b)
				}
			}
		}

		if err != nil {
			if ws.ErrorHandler != nil {
				ws.ErrorHandler(err)
			}

			return err
		}
	}

	return nil
}

// WriteText writes the text to the remote peer of the ws.
func (ws *WebSocket) WriteText(text string) error {
	return ws.conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// WriteBinary writes the b to the remote peer of the ws.
func (ws *WebSocket) WriteBinary(b []byte) error {
	return ws.conn.WriteMessage(websocket.BinaryMessage, b)
}

// WriteConnectionClose writes a connection close to the remote peer of the ws
// with the statusCode and the reason.
func (ws *WebSocket) WriteConnectionClose(statusCode int, reason string) error {
	return ws.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(statusCode, reason),
	)
}

// WritePing writes a ping to the remote peer of the ws with the appData.
func (ws *WebSocket) WritePing(appData string) error {
	return ws.conn.WriteMessage(websocket.PingMessage, []byte(appData))
}

// WritePong writes a pong to the remote peer of the ws with the appData.
func (ws *WebSocket) WritePong(appData string) error {
	return ws.conn.WriteMessage(websocket.PongMessage, []byte(appData))
}
