package kraken

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseUpdate(t *testing.T) {
	tests := []struct {
		name        string
		frame       string
		wantChannel string
		wantPair    string
		wantPayload int
		wantErr     bool
	}{
		{
			name:        "ticker frame",
			frame:       `[340,{"a":["5525.40000",1,"1.000"]},"ticker","XBT/USD"]`,
			wantChannel: "ticker",
			wantPair:    "XBT/USD",
			wantPayload: 1,
		},
		{
			name:        "book frame with asks and bids",
			frame:       `[1234,{"a":[["5541.30000","2.50700000","1534614248.456738"]]},{"b":[["5541.20000","1.52900000","1534614248.765567"]],"c":"974942666"},"book-10","XBT/USD"]`,
			wantChannel: "book-10",
			wantPair:    "XBT/USD",
			wantPayload: 2,
		},
		{
			name:    "private frame length",
			frame:   `[[{"id":{}}],"ownTrades",{"sequence":1}]`,
			wantErr: true,
		},
		{
			name:    "not an array",
			frame:   `{"event":"heartbeat"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUpdate([]byte(tt.frame))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantChannel, u.ChannelName)
			assert.Equal(t, tt.wantPair, u.Pair)
			assert.Len(t, u.Payload, tt.wantPayload)
		})
	}
}

func TestDecodeTicker(t *testing.T) {
	frame := `[0,{"a":["5525.40000",1,"1.000"],"b":["5525.10000",1,"1.000"],"c":["5525.10000","0.00398963"],` +
		`"v":["2634.11501494","3591.17907851"],"p":["5631.44067",  "5653.78939"],"t":[11493,16267],` +
		`"l":["5505.00000","5505.00000"],"h":["5783.00000","5783.00000"],"o":["5760.70000","5763.40000"]},"ticker","XBT/USD"]`

	u, err := ParseUpdate([]byte(frame))
	require.NoError(t, err)
	ticker, err := DecodeTicker(u)
	require.NoError(t, err)

	assert.True(t, dec("5525.4").Equal(ticker.Ask.Price))
	assert.Equal(t, 1, ticker.Ask.WholeLotVolume)
	assert.True(t, dec("5525.1").Equal(ticker.Bid.Price))
	assert.True(t, dec("0.00398963").Equal(ticker.Close.LotVolume))
	assert.Equal(t, 16267, ticker.Trades.Last24Hours)
	assert.True(t, dec("5760.7").Equal(ticker.Open.Today))
}

func TestDecodeBook(t *testing.T) {
	tests := []struct {
		name         string
		frame        string
		wantSnapshot bool
		wantAsks     int
		wantBids     int
		wantChecksum string
	}{
		{
			name:         "snapshot",
			frame:        `[0,{"as":[["5541.30000","2.50700000","1534614248.123678"],["5541.80000","0.33000000","1534614098.345543"]],"bs":[["5541.20000","1.52900000","1534614248.765567"]]},"book-10","XBT/USD"]`,
			wantSnapshot: true,
			wantAsks:     2,
			wantBids:     1,
		},
		{
			name:         "split update",
			frame:        `[1234,{"a":[["5541.30000","2.50700000","1534614248.456738","r"]]},{"b":[["5541.20000","1.52900000","1534614248.765567"]],"c":"974942666"},"book-10","XBT/USD"]`,
			wantAsks:     1,
			wantBids:     1,
			wantChecksum: "974942666",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := ParseUpdate([]byte(tt.frame))
			require.NoError(t, err)
			book, err := DecodeBook(u)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSnapshot, book.Snapshot)
			assert.Len(t, book.Asks, tt.wantAsks)
			assert.Len(t, book.Bids, tt.wantBids)
			assert.Equal(t, tt.wantChecksum, book.Checksum)
			assert.Contains(t, book.PrettyPrint("XBT/USD"), "XBT/USD")
		})
	}
}

func TestBookLevelRepublishFlag(t *testing.T) {
	var lvl BookLevel
	require.NoError(t, json.Unmarshal([]byte(`["5541.30000","2.50700000","1534614248.456738","r"]`), &lvl))
	assert.True(t, lvl.Republish)
	assert.Equal(t, int64(1534614248), lvl.Time.Unix())
	assert.Equal(t, 456738000, lvl.Time.Nanosecond())
}

func TestDecodeTradesAndSpread(t *testing.T) {
	u, err := ParseUpdate([]byte(`[0,[["5541.20000","0.15850568","1534614057.321597","s","l",""],["6060.00000","0.02455000","1534614057.324998","b","l",""]],"trade","XBT/USD"]`))
	require.NoError(t, err)
	trades, err := DecodeTrades(u)
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.Equal(t, "s", trades[0].Side)
	assert.True(t, dec("6060").Equal(trades[1].Price))

	u, err = ParseUpdate([]byte(`[0,["5698.40000","5700.00000","1542057299.545897","1.01234567","0.98765432"],"spread","XBT/USD"]`))
	require.NoError(t, err)
	spread, err := DecodeSpread(u)
	require.NoError(t, err)
	assert.True(t, dec("5700").Equal(spread.Ask))
	assert.True(t, dec("0.98765432").Equal(spread.AskVolume))
}

func TestDecodeOHLC(t *testing.T) {
	u, err := ParseUpdate([]byte(`[42,["1542057314.748456","1542057360.435743","3586.70000","3586.70000","3586.60000","3586.60000","3586.68894","0.03373000",2],"ohlc-5","XBT/USD"]`))
	require.NoError(t, err)
	o, err := DecodeOHLC(u)
	require.NoError(t, err)
	assert.Equal(t, "ohlc-5", u.ChannelName)
	assert.Equal(t, 2, o.Count)
	assert.True(t, dec("3586.6").Equal(o.Close))
}

func TestDecodePrivateFeeds(t *testing.T) {
	frame := `[[{"TDLH43-DVQXD-2KHVYY":{"cost":"1000000.00000","fee":"1600.00000","margin":"0.00000","ordertxid":"TDLH43-DVQXD-2KHVYY","ordertype":"limit","pair":"XBT/EUR","postxid":"OGTT3Y-C6I3P-XRI6HX","price":"100000.00000","time":"1560516023.070651","type":"sell","vol":"1000000000.00000000"}}],"ownTrades",{"sequence":2948}]`
	p, err := ParsePrivateUpdate([]byte(frame))
	require.NoError(t, err)
	assert.Equal(t, ChannelOwnTrades, p.Topic)
	assert.Equal(t, 2948, p.Sequence)

	trades, err := DecodeOwnTrades(p)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "TDLH43-DVQXD-2KHVYY", trades[0].ID)
	assert.Equal(t, SideSell, trades[0].Type)
	assert.Equal(t, 2948, trades[0].Sequence)
	assert.True(t, dec("1600").Equal(trades[0].Fee))

	frame = `[[{"OGTT3Y-C6I3P-XRI6HX":{"status":"closed","vol_exec":"0.5"}}],"openOrders",{"sequence":3}]`
	p, err = ParsePrivateUpdate([]byte(frame))
	require.NoError(t, err)
	orders, err := DecodeOpenOrders(p)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "closed", orders[0].Status)
	require.NotNil(t, orders[0].VolumeExecuted)
	assert.True(t, dec("0.5").Equal(*orders[0].VolumeExecuted))
}

func TestRequestEncoding(t *testing.T) {
	snapshot := false
	tests := []struct {
		name string
		req  Request
		want string
	}{
		{
			name: "subscribe book",
			req:  NewSubscribeRequest(7, SubscriptionDetails{Name: ChannelBook, Depth: 25}, "XBT/USD"),
			want: `{"event":"subscribe","reqid":7,"pair":["XBT/USD"],"subscription":{"name":"book","depth":25}}`,
		},
		{
			name: "subscribe own trades",
			req:  NewSubscribeRequest(8, SubscriptionDetails{Name: ChannelOwnTrades, Token: "tok", Snapshot: &snapshot}),
			want: `{"event":"subscribe","reqid":8,"subscription":{"name":"ownTrades","token":"tok","snapshot":false}}`,
		},
		{
			name: "unsubscribe by channel",
			req:  NewUnsubscribeByChannel(9, 1234),
			want: `{"event":"unsubscribe","reqid":9,"channelID":1234}`,
		},
		{
			name: "unsubscribe by token",
			req:  NewUnsubscribeByToken(10, ChannelOpenOrders, "tok"),
			want: `{"event":"unsubscribe","reqid":10,"subscription":{"name":"openOrders","token":"tok"}}`,
		},
		{
			name: "cancel all after",
			req:  CancelAllAfterRequest{Event: EventCancelAllOrdersAfter, Token: "tok", ReqID: 11, Timeout: 60},
			want: `{"event":"cancelAllOrdersAfter","token":"tok","reqid":11,"timeout":60}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.req)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}

func TestChannelName(t *testing.T) {
	assert.Equal(t, "book-100", SubscriptionDetails{Name: ChannelBook, Depth: 100}.ChannelName())
	assert.Equal(t, "ohlc-5", SubscriptionDetails{Name: ChannelOHLC, Interval: 5}.ChannelName())
	assert.Equal(t, "ticker", SubscriptionDetails{Name: ChannelTicker}.ChannelName())
	assert.True(t, IsPrivate(ChannelOpenOrders))
	assert.False(t, IsPrivate(ChannelTicker))
	assert.True(t, IsValidBookDepth(500))
	assert.False(t, IsValidBookDepth(50))
}
