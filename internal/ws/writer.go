package ws

import (
	"context"
	"time"

	"github.com/alejoacosta74/kraken-ws/internal/kerrors"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Writer owns all data writes to one WebSocket connection. Messages are
// queued by Write and written one at a time by Run.
type Writer struct {
	conn         *websocket.Conn
	writeChan    chan []byte   // Queued messages
	done         chan struct{} // Closed when the session ends
	writeTimeout time.Duration
	logger       *logrus.Entry
}

// NewWriter creates a Writer with a queue of queueSize messages. done is
// closed by the owner when the connection is torn down.
func NewWriter(conn *websocket.Conn, queueSize int, writeTimeout time.Duration, done chan struct{}) *Writer {
	return &Writer{
		conn:         conn,
		writeChan:    make(chan []byte, queueSize),
		done:         done,
		writeTimeout: writeTimeout,
		logger:       logrus.WithField("component", "ws_writer"),
	}
}

// Run writes queued messages until done is closed or a write fails. It
// returns the write error, or nil on shutdown. Messages still queued at
// shutdown are discarded.
func (w *Writer) Run() error {
	w.logger.Debug("Starting writer")
	defer w.logger.Debug("Writer shutdown complete")

	for {
		select {
		case <-w.done:
			w.drain()
			return nil
		case msg := <-w.writeChan:
			if w.writeTimeout > 0 {
				if err := w.conn.SetWriteDeadline(time.Now().Add(w.writeTimeout)); err != nil {
					return err
				}
			}
			w.logger.Tracef("Writing message to WebSocket: %s", msg)
			if err := w.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				w.logger.WithError(err).Error("Error writing message to WebSocket")
				return err
			}
		}
	}
}

// Write queues msg. It blocks while the queue is full, until ctx is done or
// the session ends.
func (w *Writer) Write(ctx context.Context, msg []byte) error {
	select {
	case <-w.done:
		return &kerrors.ConnectionError{Err: kerrors.ErrClosed}
	default:
	}

	select {
	case w.writeChan <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return &kerrors.ConnectionError{Err: kerrors.ErrClosed}
	}
}

func (w *Writer) drain() {
	for {
		select {
		case <-w.writeChan:
		default:
			return
		}
	}
}
