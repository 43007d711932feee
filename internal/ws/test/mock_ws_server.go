// Package test provides an in-process WebSocket server speaking enough of
// the Kraken v1 protocol for tests.
package test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// MessageHandler processes a received message and returns the responses to
// send back, in order. Each response is JSON encoded unless it is a []byte.
type MessageHandler func([]byte) []interface{}

// MockWebSocketServer represents a mock WebSocket server for testing
type MockWebSocketServer struct {
	Server *httptest.Server
	// URL is the ws:// address of the server
	URL string
	// Connections holds all active websocket connections
	Connections []*websocket.Conn
	// Messages received from clients
	ReceivedMessages [][]byte
	// Messages sent to every client right after it connects
	MessagesToSend [][]byte
	// Map of event name to handler
	messageHandlers map[string]MessageHandler
	// connects counts accepted connections
	connects int
	// writeMu serialises writes per connection
	writeMu  map[*websocket.Conn]*sync.Mutex
	mu       sync.Mutex
	upgrader websocket.Upgrader
}

// NewMockWebSocketServer creates and starts a new mock WebSocket server
func NewMockWebSocketServer() *MockWebSocketServer {
	mock := &MockWebSocketServer{
		Connections:      make([]*websocket.Conn, 0),
		ReceivedMessages: make([][]byte, 0),
		MessagesToSend:   make([][]byte, 0),
		messageHandlers:  make(map[string]MessageHandler),
		writeMu:          make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			// Allow all origins for testing
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	mock.Server = httptest.NewServer(http.HandlerFunc(mock.handleWebSocket))
	mock.URL = "ws" + mock.Server.URL[4:]
	return mock
}

// handleWebSocket handles incoming WebSocket connections in the mock server
func (m *MockWebSocketServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	m.mu.Lock()
	m.Connections = append(m.Connections, conn)
	m.writeMu[conn] = &sync.Mutex{}
	m.connects++
	greeting := make([][]byte, len(m.MessagesToSend))
	copy(greeting, m.MessagesToSend)
	m.mu.Unlock()

	for _, msg := range greeting {
		if err := m.write(conn, msg); err != nil {
			return
		}
	}
	go m.readMessages(conn)
}

// readMessages reads messages from the client and answers them with the
// handler registered for their event
func (m *MockWebSocketServer) readMessages(conn *websocket.Conn) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.ReceivedMessages = append(m.ReceivedMessages, message)
		handler, ok := m.messageHandlers[eventOf(message)]
		m.mu.Unlock()

		if !ok {
			continue
		}
		for _, response := range handler(message) {
			data, isRaw := response.([]byte)
			if !isRaw {
				if data, err = json.Marshal(response); err != nil {
					return
				}
			}
			if err := m.write(conn, data); err != nil {
				return
			}
		}
	}
}

func (m *MockWebSocketServer) write(conn *websocket.Conn, msg []byte) error {
	m.mu.Lock()
	mu := m.writeMu[conn]
	m.mu.Unlock()
	if mu == nil {
		return websocket.ErrCloseSent
	}
	mu.Lock()
	defer mu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, msg)
}

// QueueMessage adds a message sent to every client when it connects
func (m *MockWebSocketServer) QueueMessage(message []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.MessagesToSend = append(m.MessagesToSend, message)
}

// Broadcast sends message to every connected client
func (m *MockWebSocketServer) Broadcast(message []byte) {
	m.mu.Lock()
	conns := make([]*websocket.Conn, len(m.Connections))
	copy(conns, m.Connections)
	m.mu.Unlock()

	for _, conn := range conns {
		_ = m.write(conn, message)
	}
}

// DropConnections closes every client connection without a close frame,
// simulating a network failure. The server keeps accepting new connections.
func (m *MockWebSocketServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, conn := range m.Connections {
		conn.Close()
		delete(m.writeMu, conn)
	}
	m.Connections = m.Connections[:0]
}

// ConnectCount returns how many connections were accepted so far
func (m *MockWebSocketServer) ConnectCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}

// GetReceivedMessages returns all messages received from clients
func (m *MockWebSocketServer) GetReceivedMessages() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.ReceivedMessages))
	copy(out, m.ReceivedMessages)
	return out
}

// WaitForMessages waits until at least n messages were received
func (m *MockWebSocketServer) WaitForMessages(n int, timeout time.Duration) [][]byte {
	deadline := time.Now().Add(timeout)
	for {
		msgs := m.GetReceivedMessages()
		if len(msgs) >= n || time.Now().After(deadline) {
			return msgs
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close shuts down the mock server and closes all connections
func (m *MockWebSocketServer) Close() {
	m.DropConnections()
	m.Server.Close()
}

// RegisterHandler registers a handler for a specific event, e.g. "subscribe"
func (m *MockWebSocketServer) RegisterHandler(event string, handler MessageHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messageHandlers[event] = handler
}

// eventOf returns the event field of an object message
func eventOf(message []byte) string {
	var msg struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(message, &msg); err != nil {
		return "error"
	}
	if msg.Event == "" {
		return "unknown"
	}
	return msg.Event
}
