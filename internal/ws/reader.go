package ws

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Reader reads frames from one WebSocket connection and hands each one to
// the frame callback, in arrival order, on its own goroutine.
type Reader struct {
	conn        *websocket.Conn
	onFrame     func([]byte)
	readTimeout time.Duration // 0 disables the read deadline
	logger      *logrus.Entry
}

// NewReader creates a new Reader instance.
// Parameters:
//   - conn: The WebSocket connection to read from
//   - onFrame: Called synchronously for every text or binary frame
//   - readTimeout: Maximum silence before the connection is considered dead
func NewReader(conn *websocket.Conn, onFrame func([]byte), readTimeout time.Duration) *Reader {
	return &Reader{
		conn:        conn,
		onFrame:     onFrame,
		readTimeout: readTimeout,
		logger:      logrus.WithField("component", "ws_reader"),
	}
}

// Run reads until the connection fails and returns the read error. The
// server sends a heartbeat roughly every second when idle, so a read
// deadline catches half-open connections.
func (r *Reader) Run() error {
	for {
		if r.readTimeout > 0 {
			if err := r.conn.SetReadDeadline(time.Now().Add(r.readTimeout)); err != nil {
				return err
			}
		}
		_, message, err := r.conn.ReadMessage()
		if err != nil {
			r.logger.WithError(err).Debug("Read loop stopped")
			return err
		}
		r.onFrame(message)
	}
}
