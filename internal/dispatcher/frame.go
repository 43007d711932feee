package dispatcher

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/alejoacosta74/kraken-ws/pkg/kraken"
)

// Kind identifies the variant of a classified inbound frame.
type Kind int

const (
	KindUnroutable         Kind = iota // Not JSON, or no component can claim it
	KindHeartbeat                      // {"event":"heartbeat"}
	KindSystemStatus                   // {"event":"systemStatus",...}
	KindQueryResponse                  // Object frame with a reqid, other than a subscription status
	KindSubscriptionStatus             // {"event":"subscriptionStatus","reqid":n,...}
	KindStreamUpdate                   // Array frame
)

func (k Kind) String() string {
	switch k {
	case KindHeartbeat:
		return "heartbeat"
	case KindSystemStatus:
		return "system_status"
	case KindQueryResponse:
		return "query_response"
	case KindSubscriptionStatus:
		return "subscription_status"
	case KindStreamUpdate:
		return "stream_update"
	default:
		return "unroutable"
	}
}

// Shape is the top level JSON shape of a frame.
type Shape int

const (
	ShapeInvalid Shape = iota
	ShapeObject
	ShapeArray
)

// Frame is an inbound frame after classification. Which fields are set
// depends on Kind:
//
//	KindHeartbeat, KindSystemStatus     Event
//	KindQueryResponse                   Event, RequestID, ErrorMessage
//	KindSubscriptionStatus              Event, RequestID, ErrorMessage, Status
//	KindStreamUpdate (public)           Channel, Pair
//	KindStreamUpdate (private)          Topic, Private
//	KindUnroutable                      Reason
//
// Raw always holds the complete frame.
type Frame struct {
	Kind  Kind
	Shape Shape
	Raw   []byte

	Event        string
	RequestID    int
	ErrorMessage string
	Status       string

	Channel string
	Pair    string // Server spelling
	Topic   string
	Private bool

	Reason string
}

// Classify parses raw once and returns its variant. It never fails:
// anything it cannot make sense of is KindUnroutable with a Reason.
func Classify(raw []byte) Frame {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return unroutable(raw, ShapeInvalid, "empty frame")
	}
	switch trimmed[0] {
	case '{':
		return classifyObject(raw)
	case '[':
		return classifyArray(raw)
	default:
		return unroutable(raw, ShapeInvalid, "frame is neither an object nor an array")
	}
}

func classifyObject(raw []byte) Frame {
	var msg kraken.GenericResponse
	if err := json.Unmarshal(raw, &msg); err != nil {
		return unroutable(raw, ShapeObject, fmt.Sprintf("malformed object: %v", err))
	}

	f := Frame{Shape: ShapeObject, Raw: raw, Event: msg.Event, ErrorMessage: msg.ErrorMessage, Status: msg.Status}
	switch msg.Event {
	case kraken.EventHeartbeat:
		f.Kind = KindHeartbeat
		return f
	case kraken.EventSystemStatus:
		f.Kind = KindSystemStatus
		return f
	}

	if msg.ReqID == nil {
		return unroutable(raw, ShapeObject, fmt.Sprintf("event %q without reqid", msg.Event))
	}
	id, err := msg.ReqID.Int64()
	if err != nil || id <= 0 {
		return unroutable(raw, ShapeObject, fmt.Sprintf("invalid reqid %q", msg.ReqID.String()))
	}
	f.RequestID = int(id)

	if msg.Event == kraken.EventSubscriptionStatus {
		f.Kind = KindSubscriptionStatus
	} else {
		f.Kind = KindQueryResponse
	}
	return f
}

// classifyArray extracts the routing key of a stream update by position:
//
//	[channelID, payload, channelName, pair]                 public, length 4
//	[channelID, payload, payload, channelName, pair]        public, length 5
//	[payload, topic, {"sequence":n}]                        private, any other length
func classifyArray(raw []byte) Frame {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return unroutable(raw, ShapeArray, fmt.Sprintf("malformed array: %v", err))
	}

	f := Frame{Kind: KindStreamUpdate, Shape: ShapeArray, Raw: raw}
	switch n := len(elems); n {
	case 4, 5:
		if err := json.Unmarshal(elems[n-2], &f.Channel); err != nil {
			return unroutable(raw, ShapeArray, "channel name is not a string")
		}
		if err := json.Unmarshal(elems[n-1], &f.Pair); err != nil {
			return unroutable(raw, ShapeArray, "pair is not a string")
		}
	default:
		if n < 2 {
			return unroutable(raw, ShapeArray, fmt.Sprintf("array of length %d", n))
		}
		if err := json.Unmarshal(elems[1], &f.Topic); err != nil {
			return unroutable(raw, ShapeArray, "topic is not a string")
		}
		f.Private = true
	}
	return f
}

func unroutable(raw []byte, shape Shape, reason string) Frame {
	return Frame{Kind: KindUnroutable, Shape: shape, Raw: raw, Reason: reason}
}
