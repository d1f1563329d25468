package kraken

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Every REST response arrives in an envelope with an "error" array and a
// "result" payload. A non-empty error array becomes an APIError.
type apiEnvelope struct {
	Error  []string        `json:"error"`
	Result json.RawMessage `json:"result"`
}

// APIError carries the error strings reported by the exchange, encoded as
// <severity><category>:<type>[:<extra>], e.g. "EOrder:Insufficient funds".
type APIError struct {
	Messages []string
}

func (e *APIError) Error() string {
	return "kraken api error: " + strings.Join(e.Messages, ", ")
}

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type TimeResponse struct {
	Unixtime int64 `json:"unixtime"`
}

type SystemStatusResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type AssetInfo struct {
	Altname         string `json:"altname"`
	Aclass          string `json:"aclass"`
	Decimals        int    `json:"decimals"`
	DisplayDecimals int    `json:"display_decimals"`
}

type AssetsResponse map[string]AssetInfo

// AssetPair describes one traded pair. WsName is the identifier the
// websocket feed uses, distinct from the legacy key of the response map.
type AssetPair struct {
	Altname      string `json:"altname"`
	WsName       string `json:"wsname"`
	Base         string `json:"base"`
	Quote        string `json:"quote"`
	PairDecimals int    `json:"pair_decimals"`
	LotDecimals  int    `json:"lot_decimals"`
	OrderMin     string `json:"ordermin"`
}

type AssetPairsResponse map[string]AssetPair

// TickerInfo fields are arrays of strings as sent by the exchange:
// a = ask [price, whole lot volume, lot volume], b = bid likewise,
// c = last trade closed [price, lot volume], v = volume, p = vwap,
// t = trade counts, l = low, h = high, o = today's opening price.
type TickerInfo struct {
	Ask    []string `json:"a"`
	Bid    []string `json:"b"`
	Closed []string `json:"c"`
	Volume []string `json:"v"`
	VWAP   []string `json:"p"`
	Trades []int64  `json:"t"`
	Low    []string `json:"l"`
	High   []string `json:"h"`
	Open   string   `json:"o"`
}

type TickerResponse map[string]TickerInfo

// LastAndData decodes responses where one page of rows sits at a
// dynamically-named pair key next to a "last" pagination cursor, which the
// exchange sends either as a number or a string.
type LastAndData[T any] struct {
	Last string
	Data T
}

func (l *LastAndData[T]) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var dataRaw json.RawMessage
	for key, value := range raw {
		if key == "last" {
			last, err := stringOrNumber(value)
			if err != nil {
				return fmt.Errorf("could not parse last cursor: %w", err)
			}
			l.Last = last
			continue
		}
		if dataRaw != nil {
			return fmt.Errorf("expected a single data key next to last, got %q too", key)
		}
		dataRaw = value
	}

	if dataRaw == nil {
		return fmt.Errorf("missing data key in paged response")
	}
	return json.Unmarshal(dataRaw, &l.Data)
}

func stringOrNumber(raw json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// OHLCRow is one candle: [time, open, high, low, close, vwap, volume,
// count] with prices as strings on the wire.
type OHLCRow struct {
	Time   int64
	Open   decimal.Decimal
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	VWAP   decimal.Decimal
	Volume decimal.Decimal
	Count  int64
}

func (r *OHLCRow) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 8 {
		return fmt.Errorf("ohlc row has %d fields, want 8", len(fields))
	}

	if err := json.Unmarshal(fields[0], &r.Time); err != nil {
		return err
	}
	targets := []*decimal.Decimal{&r.Open, &r.High, &r.Low, &r.Close, &r.VWAP, &r.Volume}
	for i, target := range targets {
		if err := json.Unmarshal(fields[i+1], target); err != nil {
			return err
		}
	}
	return json.Unmarshal(fields[7], &r.Count)
}

type OHLCResponse = LastAndData[[]OHLCRow]

// RecentTrade is one row of the public Trades endpoint: [price, volume,
// time, side, order type, misc], with a numeric trade id appended on
// newer API revisions.
type RecentTrade struct {
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Time      decimal.Decimal
	Side      string
	OrderType string
	Misc      string
}

func (r *RecentTrade) UnmarshalJSON(data []byte) error {
	var fields []json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if len(fields) < 6 {
		return fmt.Errorf("trade row has %d fields, want at least 6", len(fields))
	}

	if err := json.Unmarshal(fields[0], &r.Price); err != nil {
		return err
	}
	if err := json.Unmarshal(fields[1], &r.Volume); err != nil {
		return err
	}
	if err := json.Unmarshal(fields[2], &r.Time); err != nil {
		return err
	}
	if err := json.Unmarshal(fields[3], &r.Side); err != nil {
		return err
	}
	if err := json.Unmarshal(fields[4], &r.OrderType); err != nil {
		return err
	}
	return json.Unmarshal(fields[5], &r.Misc)
}

type RecentTradesResponse = LastAndData[[]RecentTrade]

type BalanceResponse map[string]decimal.Decimal

type FeeTierInfo struct {
	Fee        decimal.Decimal     `json:"fee"`
	MinFee     decimal.Decimal     `json:"minfee"`
	MaxFee     decimal.Decimal     `json:"maxfee"`
	NextFee    decimal.NullDecimal `json:"nextfee"`
	NextVolume decimal.NullDecimal `json:"nextvolume"`
	TierVolume decimal.Decimal     `json:"tiervolume"`
}

type TradeVolumeResponse struct {
	Currency  string                 `json:"currency"`
	Volume    decimal.Decimal        `json:"volume"`
	Fees      map[string]FeeTierInfo `json:"fees"`
	FeesMaker map[string]FeeTierInfo `json:"fees_maker"`
}

type WebSocketsTokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

type OrderDescription struct {
	Pair      string          `json:"pair"`
	Side      OrderSide       `json:"type"`
	OrderType string          `json:"ordertype"`
	Price     decimal.Decimal `json:"price"`
	Price2    decimal.Decimal `json:"price2"`
	Order     string          `json:"order"`
}

type OrderInfo struct {
	UserRef    int32            `json:"userref"`
	Status     string           `json:"status"`
	OpenTime   float64          `json:"opentm"`
	StartTime  float64          `json:"starttm"`
	ExpireTime float64          `json:"expiretm"`
	Descr      OrderDescription `json:"descr"`
	Volume     decimal.Decimal  `json:"vol"`
	VolumeExec decimal.Decimal  `json:"vol_exec"`
	Cost       decimal.Decimal  `json:"cost"`
	Fee        decimal.Decimal  `json:"fee"`
	Price      decimal.Decimal  `json:"price"`
}

type OpenOrdersResponse struct {
	Open map[string]OrderInfo `json:"open"`
}

type QueryOrdersResponse map[string]OrderInfo

// MarketOrder executes immediately at the best available price.
type MarketOrder struct {
	Side       OrderSide
	Pair       string
	Volume     string
	OrderFlags []string
}

// LimitOrder rests at Price until matched or cancelled.
type LimitOrder struct {
	Side       OrderSide
	Pair       string
	Volume     string
	Price      string
	OrderFlags []string
}

type AddOrderDescription struct {
	Order string `json:"order"`
}

type AddOrderResponse struct {
	Descr AddOrderDescription `json:"descr"`
	TxIDs []string            `json:"txid"`
}

type CancelOrderResponse struct {
	Count int `json:"count"`
}

type CancelAllOrdersAfterResponse struct {
	CurrentTime string `json:"currentTime"`
	TriggerTime string `json:"triggerTime"`
}
