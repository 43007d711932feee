package common

// MessageType names a topic on the internal event bus
type MessageType string

// Topics published on the event bus
const (
	TypeHeartbeat          MessageType = "heartbeat"           // Keep-alive frame
	TypeSystemStatus       MessageType = "system_status"       // System status frame
	TypeQueryResponse      MessageType = "query_response"      // Object frame answering a query
	TypeSubscriptionStatus MessageType = "subscription_status" // Subscribe/unsubscribe acknowledgement
	TypeStreamUpdate       MessageType = "stream_update"       // Array frame routed to a subscription
	TypeUnroutable         MessageType = "unroutable"          // Frame no component claimed
	TypeQueryCompleted     MessageType = "query_completed"     // A correlated query finished (QueryEvent)
	TypeConnectionState    MessageType = "connection_state"    // Connection state change (ConnectionEvent)
	TypeUpdateDropped      MessageType = "update_dropped"      // Stream update dropped on a full handler queue
)

// QueryEvent is published on TypeQueryCompleted
type QueryEvent struct {
	RequestID int
	Event     string
	Seconds   float64
	Err       error
}

// ConnectionEvent is published on TypeConnectionState
type ConnectionEvent struct {
	URL   string
	State string
	Err   error
}

// StreamEvent is published on TypeStreamUpdate
type StreamEvent struct {
	Topic   string // Subscription topic, e.g. "book"
	Channel string // Channel name as sent by the server, e.g. "book-10"
	Pair    string // Client facing pair, empty for private feeds
	Payload []byte
}

// FrameEvent is published for control frames (heartbeat, system status,
// query responses, subscription statuses) and for unroutable frames
type FrameEvent struct {
	Kind      string
	Event     string
	RequestID int
	Reason    string // Why the frame was dropped, TypeUnroutable only
}

// DropEvent is published on TypeUpdateDropped
type DropEvent struct {
	Topic   string
	Channel string
	Pair    string
}
