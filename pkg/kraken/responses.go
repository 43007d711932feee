package kraken

import "encoding/json"

// Event names found in inbound control messages
const (
	EventHeartbeat                  = "heartbeat"
	EventSystemStatus               = "systemStatus"
	EventSubscriptionStatus         = "subscriptionStatus"
	EventPong                       = "pong"
	EventAddOrderStatus             = "addOrderStatus"
	EventCancelOrderStatus          = "cancelOrderStatus"
	EventCancelAllStatus            = "cancelAllStatus"
	EventCancelAllOrdersAfterStatus = "cancelAllOrdersAfterStatus"
	EventError                      = "error"
)

// Subscription status values
const (
	StatusSubscribed   = "subscribed"
	StatusUnsubscribed = "unsubscribed"
	StatusError        = "error"
	StatusOK           = "ok"
)

// GenericResponse is the minimal view of any object shaped frame. It is used
// to classify a frame before decoding it into its concrete type.
type GenericResponse struct {
	Event        string          `json:"event,omitempty"`
	Status       string          `json:"status,omitempty"`
	ReqID        *json.Number    `json:"reqid,omitempty"` // Absent on unsolicited frames
	ErrorMessage string          `json:"errorMessage,omitempty"`
	ChannelID    json.RawMessage `json:"channelID,omitempty"`
}

// SubscriptionStatus acknowledges (or rejects) a subscribe/unsubscribe request.
type SubscriptionStatus struct {
	ChannelID    int                 `json:"channelID"`
	ChannelName  string              `json:"channelName"`
	Event        string              `json:"event"` // Always "subscriptionStatus"
	ReqID        int                 `json:"reqid"`
	Pair         string              `json:"pair"`
	Status       string              `json:"status"` // subscribed, unsubscribed, error
	ErrorMessage string              `json:"errorMessage"`
	Subscription SubscriptionDetails `json:"subscription"`
}

// SystemStatus is sent on connect and whenever the system status changes.
type SystemStatus struct {
	ConnectionID uint64 `json:"connectionID"`
	Event        string `json:"event"`  // Always "systemStatus"
	Status       string `json:"status"` // online, maintenance, cancel_only, limit_only, post_only
	Version      string `json:"version"`
}

// Heartbeat is sent by the server when no other traffic occurred for about a second.
type Heartbeat struct {
	Event string `json:"event"` // Always "heartbeat"
}

// Pong answers a PingRequest.
type Pong struct {
	Event string `json:"event"` // Always "pong"
	ReqID int    `json:"reqid"`
}

// AddOrderStatus answers an AddOrderRequest.
type AddOrderStatus struct {
	Event        string `json:"event"` // Always "addOrderStatus"
	ReqID        int    `json:"reqid"`
	Status       string `json:"status"`
	TxID         string `json:"txid"`
	Description  string `json:"descr"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// CancelOrderStatus answers a CancelOrderRequest.
type CancelOrderStatus struct {
	Event        string `json:"event"` // Always "cancelOrderStatus"
	ReqID        int    `json:"reqid"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// CancelAllStatus answers a CancelAllRequest.
type CancelAllStatus struct {
	Event        string `json:"event"` // Always "cancelAllStatus"
	ReqID        int    `json:"reqid"`
	Status       string `json:"status"`
	Count        int    `json:"count"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// CancelAllAfterStatus answers a CancelAllAfterRequest.
type CancelAllAfterStatus struct {
	Event        string `json:"event"` // Always "cancelAllOrdersAfterStatus"
	ReqID        int    `json:"reqid"`
	Status       string `json:"status"`
	CurrentTime  string `json:"currentTime"`
	TriggerTime  string `json:"triggerTime"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}
