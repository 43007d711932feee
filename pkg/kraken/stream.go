package kraken

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Update is the positional envelope of a public stream frame:
//
//	[channelID, payload, channelName, pair]
//	[channelID, payload, payload, channelName, pair]   (book frames carrying asks and bids)
type Update struct {
	ChannelID   int
	Payload     []json.RawMessage
	ChannelName string
	Pair        string
}

// ParseUpdate decodes a public stream frame envelope.
func ParseUpdate(data []byte) (Update, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return Update{}, fmt.Errorf("error unmarshalling stream frame: %w", err)
	}
	if len(raw) != 4 && len(raw) != 5 {
		return Update{}, fmt.Errorf("unexpected stream frame length %d", len(raw))
	}
	var u Update
	if err := json.Unmarshal(raw[0], &u.ChannelID); err != nil {
		return Update{}, fmt.Errorf("error unmarshalling channel id: %w", err)
	}
	n := len(raw)
	u.Payload = raw[1 : n-2]
	if err := json.Unmarshal(raw[n-2], &u.ChannelName); err != nil {
		return Update{}, fmt.Errorf("error unmarshalling channel name: %w", err)
	}
	if err := json.Unmarshal(raw[n-1], &u.Pair); err != nil {
		return Update{}, fmt.Errorf("error unmarshalling pair: %w", err)
	}
	return u, nil
}

// PrivateUpdate is the envelope of an authenticated feed frame:
//
//	[payload, topic, {"sequence": n}]
type PrivateUpdate struct {
	Payload  json.RawMessage
	Topic    string
	Sequence int
}

// ParsePrivateUpdate decodes an authenticated feed frame envelope.
func ParsePrivateUpdate(data []byte) (PrivateUpdate, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return PrivateUpdate{}, fmt.Errorf("error unmarshalling private frame: %w", err)
	}
	if len(raw) < 2 {
		return PrivateUpdate{}, fmt.Errorf("unexpected private frame length %d", len(raw))
	}
	p := PrivateUpdate{Payload: raw[0]}
	if err := json.Unmarshal(raw[1], &p.Topic); err != nil {
		return PrivateUpdate{}, fmt.Errorf("error unmarshalling topic: %w", err)
	}
	if len(raw) > 2 {
		var seq struct {
			Sequence int `json:"sequence"`
		}
		if err := json.Unmarshal(raw[2], &seq); err != nil {
			return PrivateUpdate{}, fmt.Errorf("error unmarshalling sequence: %w", err)
		}
		p.Sequence = seq.Sequence
	}
	return p, nil
}

// unmarshalPositional decodes a JSON array element by element into targets.
// Extra trailing elements are ignored.
func unmarshalPositional(data []byte, targets ...interface{}) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) < len(targets) {
		return fmt.Errorf("unexpected JSON array length %d, want at least %d", len(raw), len(targets))
	}
	for i, t := range targets {
		if err := json.Unmarshal(raw[i], t); err != nil {
			return fmt.Errorf("element %d: %w", i, err)
		}
	}
	return nil
}

// Timestamp is a Kraken "seconds.micros" time value.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	sec := d.IntPart()
	nsec := d.Sub(decimal.NewFromInt(sec)).Shift(9).IntPart()
	t.Time = time.Unix(sec, nsec).UTC()
	return nil
}

// Ticker is the payload of a ticker update.
type Ticker struct {
	Ask    TickerLevel `json:"a"`
	Bid    TickerLevel `json:"b"`
	Close  TickerClose `json:"c"`
	Volume DailyValue  `json:"v"`
	VWAP   DailyValue  `json:"p"`
	Trades DailyCount  `json:"t"`
	Low    DailyValue  `json:"l"`
	High   DailyValue  `json:"h"`
	Open   DailyValue  `json:"o"`
}

// TickerLevel is a best bid or ask: [price, wholeLotVolume, lotVolume]
type TickerLevel struct {
	Price          decimal.Decimal
	WholeLotVolume int
	LotVolume      decimal.Decimal
}

func (l *TickerLevel) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &l.Price, &l.WholeLotVolume, &l.LotVolume)
}

// TickerClose is the last trade: [price, lotVolume]
type TickerClose struct {
	Price     decimal.Decimal
	LotVolume decimal.Decimal
}

func (c *TickerClose) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &c.Price, &c.LotVolume)
}

// DailyValue is a [today, last24Hours] pair.
type DailyValue struct {
	Today       decimal.Decimal
	Last24Hours decimal.Decimal
}

func (d *DailyValue) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &d.Today, &d.Last24Hours)
}

// DailyCount is a [today, last24Hours] pair of counts.
type DailyCount struct {
	Today       int
	Last24Hours int
}

func (d *DailyCount) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &d.Today, &d.Last24Hours)
}

// OHLC is the payload of an ohlc-N update.
type OHLC struct {
	Time    Timestamp
	EndTime Timestamp
	Open    decimal.Decimal
	High    decimal.Decimal
	Low     decimal.Decimal
	Close   decimal.Decimal
	VWAP    decimal.Decimal
	Volume  decimal.Decimal
	Count   int
}

func (o *OHLC) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &o.Time, &o.EndTime, &o.Open, &o.High, &o.Low,
		&o.Close, &o.VWAP, &o.Volume, &o.Count)
}

// Trade is one element of a trade update.
type Trade struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Time      Timestamp
	Side      string // "b" or "s"
	OrderType string // "m" or "l"
	Misc      string
}

func (t *Trade) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &t.Price, &t.Volume, &t.Time, &t.Side, &t.OrderType, &t.Misc)
}

// Spread is the payload of a spread update.
type Spread struct {
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Time      Timestamp
	BidVolume decimal.Decimal
	AskVolume decimal.Decimal
}

func (s *Spread) UnmarshalJSON(data []byte) error {
	return unmarshalPositional(data, &s.Bid, &s.Ask, &s.Time, &s.BidVolume, &s.AskVolume)
}

// BookLevel is a price level: [price, volume, timestamp(, "r")]
type BookLevel struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Time      Timestamp
	Republish bool
}

func (b *BookLevel) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := unmarshalPositional(data, &b.Price, &b.Volume, &b.Time); err != nil {
		return err
	}
	if len(raw) > 3 {
		var flag string
		if err := json.Unmarshal(raw[3], &flag); err == nil && flag == "r" {
			b.Republish = true
		}
	}
	return nil
}

// bookPayload covers both the snapshot (as/bs) and the update (a/b/c) forms.
type bookPayload struct {
	SnapshotAsks []BookLevel `json:"as"`
	SnapshotBids []BookLevel `json:"bs"`
	Asks         []BookLevel `json:"a"`
	Bids         []BookLevel `json:"b"`
	Checksum     string      `json:"c"`
}

// Book is a decoded book-N update. A frame may carry asks and bids in two
// separate payload objects; they are merged here.
type Book struct {
	Asks     []BookLevel
	Bids     []BookLevel
	Checksum string
	Snapshot bool
}

// DecodeTicker decodes the payload of a ticker update.
func DecodeTicker(u Update) (Ticker, error) {
	var t Ticker
	if len(u.Payload) == 0 {
		return t, fmt.Errorf("empty ticker payload")
	}
	if err := json.Unmarshal(u.Payload[0], &t); err != nil {
		return t, fmt.Errorf("error unmarshalling ticker: %w", err)
	}
	return t, nil
}

// DecodeOHLC decodes the payload of an ohlc-N update.
func DecodeOHLC(u Update) (OHLC, error) {
	var o OHLC
	if len(u.Payload) == 0 {
		return o, fmt.Errorf("empty ohlc payload")
	}
	if err := json.Unmarshal(u.Payload[0], &o); err != nil {
		return o, fmt.Errorf("error unmarshalling ohlc: %w", err)
	}
	return o, nil
}

// DecodeTrades decodes the payload of a trade update.
func DecodeTrades(u Update) ([]Trade, error) {
	var trades []Trade
	if len(u.Payload) == 0 {
		return nil, fmt.Errorf("empty trade payload")
	}
	if err := json.Unmarshal(u.Payload[0], &trades); err != nil {
		return nil, fmt.Errorf("error unmarshalling trades: %w", err)
	}
	return trades, nil
}

// DecodeSpread decodes the payload of a spread update.
func DecodeSpread(u Update) (Spread, error) {
	var s Spread
	if len(u.Payload) == 0 {
		return s, fmt.Errorf("empty spread payload")
	}
	if err := json.Unmarshal(u.Payload[0], &s); err != nil {
		return s, fmt.Errorf("error unmarshalling spread: %w", err)
	}
	return s, nil
}

// DecodeBook decodes a book-N snapshot or update, merging split payloads.
func DecodeBook(u Update) (Book, error) {
	var b Book
	if len(u.Payload) == 0 {
		return b, fmt.Errorf("empty book payload")
	}
	for _, raw := range u.Payload {
		var p bookPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return Book{}, fmt.Errorf("error unmarshalling book: %w", err)
		}
		if p.SnapshotAsks != nil || p.SnapshotBids != nil {
			b.Snapshot = true
			b.Asks = append(b.Asks, p.SnapshotAsks...)
			b.Bids = append(b.Bids, p.SnapshotBids...)
		}
		b.Asks = append(b.Asks, p.Asks...)
		b.Bids = append(b.Bids, p.Bids...)
		if p.Checksum != "" {
			b.Checksum = p.Checksum
		}
	}
	return b, nil
}

// OwnTrade is a fill of one of the account's orders.
type OwnTrade struct {
	ID        string          `json:"-"` // Trade id, the key of the payload object
	Sequence  int             `json:"-"`
	OrderTxID string          `json:"ordertxid"`
	PosTxID   string          `json:"postxid"`
	Pair      string          `json:"pair"`
	Time      Timestamp       `json:"time"`
	Type      OrderSide       `json:"type"`
	OrderType OrderType       `json:"ordertype"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
	Fee       decimal.Decimal `json:"fee"`
	Volume    decimal.Decimal `json:"vol"`
	Margin    decimal.Decimal `json:"margin"`
	UserRef   int             `json:"userref"`
}

// OpenOrder is an order state change of the account.
type OpenOrder struct {
	ID             string            `json:"-"` // Order txid, the key of the payload object
	Sequence       int               `json:"-"`
	RefID          string            `json:"refid"`
	UserRef        int               `json:"userref"`
	Status         string            `json:"status"`
	OpenTime       *Timestamp        `json:"opentm,omitempty"`
	StartTime      *Timestamp        `json:"starttm,omitempty"`
	ExpireTime     *Timestamp        `json:"expiretm,omitempty"`
	Description    *OrderDescription `json:"descr,omitempty"`
	Volume         *decimal.Decimal  `json:"vol,omitempty"`
	VolumeExecuted *decimal.Decimal  `json:"vol_exec,omitempty"`
	Cost           *decimal.Decimal  `json:"cost,omitempty"`
	Fee            *decimal.Decimal  `json:"fee,omitempty"`
	AveragePrice   *decimal.Decimal  `json:"avg_price,omitempty"`
	StopPrice      *decimal.Decimal  `json:"stopprice,omitempty"`
	LimitPrice     *decimal.Decimal  `json:"limitprice,omitempty"`
	Misc           string            `json:"misc"`
	OFlags         string            `json:"oflags"`
}

// OrderDescription describes the order parameters of an OpenOrder.
type OrderDescription struct {
	Pair      string           `json:"pair"`
	Type      OrderSide        `json:"type"`
	OrderType OrderType        `json:"ordertype"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Price2    *decimal.Decimal `json:"price2,omitempty"`
	Leverage  string           `json:"leverage"`
	Order     string           `json:"order"`
	Close     string           `json:"close"`
}

// DecodeOwnTrades flattens an ownTrades payload ([{id: trade}, ...]) into a slice.
func DecodeOwnTrades(p PrivateUpdate) ([]OwnTrade, error) {
	var entries []map[string]OwnTrade
	if err := json.Unmarshal(p.Payload, &entries); err != nil {
		return nil, fmt.Errorf("error unmarshalling own trades: %w", err)
	}
	var trades []OwnTrade
	for _, entry := range entries {
		for id, t := range entry {
			t.ID = id
			t.Sequence = p.Sequence
			trades = append(trades, t)
		}
	}
	return trades, nil
}

// DecodeOpenOrders flattens an openOrders payload ([{txid: order}, ...]) into a slice.
func DecodeOpenOrders(p PrivateUpdate) ([]OpenOrder, error) {
	var entries []map[string]OpenOrder
	if err := json.Unmarshal(p.Payload, &entries); err != nil {
		return nil, fmt.Errorf("error unmarshalling open orders: %w", err)
	}
	var orders []OpenOrder
	for _, entry := range entries {
		for id, o := range entry {
			o.ID = id
			o.Sequence = p.Sequence
			orders = append(orders, o)
		}
	}
	return orders, nil
}
