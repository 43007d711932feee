package kraken

import "strconv"

// Channel (topic) names of the v1 API
const (
	ChannelTicker     = "ticker"
	ChannelOHLC       = "ohlc"
	ChannelTrade      = "trade"
	ChannelSpread     = "spread"
	ChannelBook       = "book"
	ChannelOwnTrades  = "ownTrades"
	ChannelOpenOrders = "openOrders"
)

// IsPrivate reports whether the topic is only served by the authenticated
// endpoint and is addressed by token rather than by channel id.
func IsPrivate(topic string) bool {
	return topic == ChannelOwnTrades || topic == ChannelOpenOrders
}

// ValidBookDepths lists the order book depths accepted by the server.
var ValidBookDepths = []int{10, 25, 100, 500, 1000}

// IsValidBookDepth reports whether depth is one of ValidBookDepths.
func IsValidBookDepth(depth int) bool {
	for _, d := range ValidBookDepths {
		if d == depth {
			return true
		}
	}
	return false
}

// OHLC intervals in minutes
const (
	Interval1m  = 1
	Interval5m  = 5
	Interval15m = 15
	Interval30m = 30
	Interval1h  = 60
	Interval4h  = 240
	Interval1d  = 1440
	Interval1w  = 10080
	Interval15d = 21600
)

// IsValidInterval reports whether minutes is an OHLC interval the server accepts.
func IsValidInterval(minutes int) bool {
	switch minutes {
	case Interval1m, Interval5m, Interval15m, Interval30m, Interval1h,
		Interval4h, Interval1d, Interval1w, Interval15d:
		return true
	}
	return false
}

// OrderSide is the side of an order
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType is the order type accepted by addOrder
type OrderType string

const (
	OrderTypeMarket          OrderType = "market"
	OrderTypeLimit           OrderType = "limit"
	OrderTypeStopLoss        OrderType = "stop-loss"
	OrderTypeTakeProfit      OrderType = "take-profit"
	OrderTypeStopLossLimit   OrderType = "stop-loss-limit"
	OrderTypeTakeProfitLimit OrderType = "take-profit-limit"
	OrderTypeSettlePosition  OrderType = "settle-position"
)

func itoa(i int) string { return strconv.Itoa(i) }
