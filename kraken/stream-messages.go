package kraken

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/spooky-finn/go-kraken-client/domain"
)

const (
	bookChannelPrefix    = "book"
	tradeChannelName     = "trade"
	ownOrdersChannelName = "openOrders"
)

// SystemStatus is the trading engine state announced on connect and on
// every mode change.
type SystemStatus string

const (
	SystemUnknown     SystemStatus = ""
	SystemOnline      SystemStatus = "online"
	SystemMaintenance SystemStatus = "maintenance"
	SystemCancelOnly  SystemStatus = "cancel_only"
	SystemLimitOnly   SystemStatus = "limit_only"
	SystemPostOnly    SystemStatus = "post_only"
)

// FeedEvent is one decoded feed message. Concrete types are dispatched
// with a type switch.
type FeedEvent interface {
	feedEvent()
}

type HeartbeatEvent struct{}

type PongEvent struct {
	ReqID int64
}

type SystemStatusEvent struct {
	Status       SystemStatus
	ConnectionID uint64
	Version      string
}

// SubscriptionStatusEvent acknowledges a subscribe or unsubscribe, or
// reports a per-pair subscription error. SubscriptionName is the plain
// channel name ("book"), ChannelName the depth-qualified one ("book-10").
type SubscriptionStatusEvent struct {
	ChannelName      string
	SubscriptionName string
	Pair             string
	Status           string
	ErrorMessage     string
	ReqID            int64
}

type BookSnapshotEvent struct {
	Pair        string
	ChannelName string
	Bids        []domain.BookEntry
	Asks        []domain.BookEntry
}

type BookUpdateEvent struct {
	Pair        string
	ChannelName string
	Bids        []domain.BookEntry
	Asks        []domain.BookEntry
	Checksum    uint32
	HasChecksum bool
}

type TradesEvent struct {
	Pair   string
	Trades []domain.Trade
}

// OwnOrderUpdate is one order's patch from the openOrders channel. The
// exchange sends partial objects after the initial snapshot, so the raw
// JSON is kept and merged over the known order state.
type OwnOrderUpdate struct {
	TxID  string
	Order json.RawMessage
}

type OwnOrdersEvent struct {
	Updates  []OwnOrderUpdate
	Sequence int64
}

// ErrorEvent is the exchange rejecting a request it could not process,
// e.g. a malformed subscribe payload.
type ErrorEvent struct {
	Message string
	ReqID   int64
}

// UnknownEvent carries an object message with an unrecognized event tag.
type UnknownEvent struct {
	Event string
	Raw   []byte
}

func (HeartbeatEvent) feedEvent()          {}
func (PongEvent) feedEvent()               {}
func (SystemStatusEvent) feedEvent()       {}
func (SubscriptionStatusEvent) feedEvent() {}
func (BookSnapshotEvent) feedEvent()       {}
func (BookUpdateEvent) feedEvent()         {}
func (TradesEvent) feedEvent()             {}
func (OwnOrdersEvent) feedEvent()          {}
func (ErrorEvent) feedEvent()              {}
func (UnknownEvent) feedEvent()            {}

// OwnOrder mirrors one order on the private openOrders channel.
type OwnOrder struct {
	Status     string           `json:"status"`
	UserRef    int32            `json:"userref"`
	Descr      OrderDescription `json:"descr"`
	Volume     decimal.Decimal  `json:"vol"`
	VolumeExec decimal.Decimal  `json:"vol_exec"`
	Cost       decimal.Decimal  `json:"cost"`
	Fee        decimal.Decimal  `json:"fee"`
	AvgPrice   decimal.Decimal  `json:"avg_price"`
	OpenTime   string           `json:"opentm"`
}

// unmarshalOwnOrder merges an order patch into dst. Absent fields keep
// their previous values, which is how partial updates accumulate.
func unmarshalOwnOrder(raw json.RawMessage, dst *OwnOrder) error {
	return json.Unmarshal(raw, dst)
}

type wsSubscription struct {
	Name  string `json:"name"`
	Depth int    `json:"depth,omitempty"`
	Token string `json:"token,omitempty"`
}

type wsSubscribeRequest struct {
	Event        string         `json:"event"`
	Pair         []string       `json:"pair,omitempty"`
	Subscription wsSubscription `json:"subscription"`
}

// ParseFeedMessage decodes one raw feed message. Object messages carry an
// event tag; array messages are channel data with the channel name second
// to last.
func ParseFeedMessage(raw []byte) (FeedEvent, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty feed message")
	}

	if trimmed[0] == '[' {
		return parseChannelMessage(raw)
	}
	return parseEventMessage(raw)
}

type eventEnvelope struct {
	Event        string `json:"event"`
	Status       string `json:"status"`
	Pair         string `json:"pair"`
	ChannelName  string `json:"channelName"`
	ErrorMessage string `json:"errorMessage"`
	ConnectionID uint64 `json:"connectionID"`
	Version      string `json:"version"`
	ReqID        int64  `json:"reqid"`
	Subscription struct {
		Name string `json:"name"`
	} `json:"subscription"`
}

func parseEventMessage(raw []byte) (FeedEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("could not parse event message: %w", err)
	}

	switch envelope.Event {
	case "heartbeat":
		return HeartbeatEvent{}, nil
	case "pong":
		return PongEvent{ReqID: envelope.ReqID}, nil
	case "systemStatus":
		return SystemStatusEvent{
			Status:       SystemStatus(envelope.Status),
			ConnectionID: envelope.ConnectionID,
			Version:      envelope.Version,
		}, nil
	case "subscriptionStatus":
		return SubscriptionStatusEvent{
			ChannelName:      envelope.ChannelName,
			SubscriptionName: envelope.Subscription.Name,
			Pair:             envelope.Pair,
			Status:           envelope.Status,
			ErrorMessage:     envelope.ErrorMessage,
			ReqID:            envelope.ReqID,
		}, nil
	case "error":
		return ErrorEvent{Message: envelope.ErrorMessage, ReqID: envelope.ReqID}, nil
	default:
		return UnknownEvent{Event: envelope.Event, Raw: raw}, nil
	}
}

func parseChannelMessage(raw []byte) (FeedEvent, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(raw, &elements); err != nil {
		return nil, fmt.Errorf("could not parse channel message: %w", err)
	}
	if len(elements) < 3 {
		return nil, fmt.Errorf("channel message with %d elements", len(elements))
	}

	var channelName string
	if err := json.Unmarshal(elements[len(elements)-2], &channelName); err != nil {
		return nil, fmt.Errorf("could not parse channel name: %w", err)
	}

	switch {
	case strings.HasPrefix(channelName, bookChannelPrefix):
		return parseBookMessage(elements, channelName)
	case channelName == tradeChannelName:
		return parseTradeMessage(elements)
	case channelName == ownOrdersChannelName:
		return parseOwnOrdersMessage(elements)
	default:
		return nil, fmt.Errorf("message for unknown channel %q", channelName)
	}
}

// bookPayload covers both wire shapes: snapshots use "as"/"bs", updates
// use "a"/"b" plus an optional "c" checksum.
type bookPayload struct {
	Asks         [][]string `json:"a"`
	Bids         [][]string `json:"b"`
	SnapshotAsks [][]string `json:"as"`
	SnapshotBids [][]string `json:"bs"`
	Checksum     string     `json:"c"`
}

func parseBookMessage(elements []json.RawMessage, channelName string) (FeedEvent, error) {
	if len(elements) < 4 {
		return nil, fmt.Errorf("book message with %d elements", len(elements))
	}

	var pair string
	if err := json.Unmarshal(elements[len(elements)-1], &pair); err != nil {
		return nil, fmt.Errorf("could not parse book message pair: %w", err)
	}

	snapshot := BookSnapshotEvent{Pair: pair, ChannelName: channelName}
	update := BookUpdateEvent{Pair: pair, ChannelName: channelName}
	isSnapshot := false

	// bid and ask halves of one update may arrive as separate payload
	// objects within the same message
	for _, element := range elements[1 : len(elements)-2] {
		var payload bookPayload
		if err := json.Unmarshal(element, &payload); err != nil {
			return nil, fmt.Errorf("could not parse book payload: %w", err)
		}

		if payload.SnapshotAsks != nil || payload.SnapshotBids != nil {
			isSnapshot = true
			asks, err := parseBookRows(payload.SnapshotAsks)
			if err != nil {
				return nil, err
			}
			bids, err := parseBookRows(payload.SnapshotBids)
			if err != nil {
				return nil, err
			}
			snapshot.Asks = append(snapshot.Asks, asks...)
			snapshot.Bids = append(snapshot.Bids, bids...)
			continue
		}

		asks, err := parseBookRows(payload.Asks)
		if err != nil {
			return nil, err
		}
		bids, err := parseBookRows(payload.Bids)
		if err != nil {
			return nil, err
		}
		update.Asks = append(update.Asks, asks...)
		update.Bids = append(update.Bids, bids...)

		if payload.Checksum != "" {
			checksum, err := strconv.ParseUint(payload.Checksum, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("could not parse book checksum %q: %w", payload.Checksum, err)
			}
			update.Checksum = uint32(checksum)
			update.HasChecksum = true
		}
	}

	if isSnapshot {
		return snapshot, nil
	}
	return update, nil
}

// parseBookRows converts wire levels [price, volume, timestamp] into book
// entries. A fourth "r" republish marker may trail a level; it is ignored.
func parseBookRows(rows [][]string) ([]domain.BookEntry, error) {
	entries := make([]domain.BookEntry, 0, len(rows))
	for _, row := range rows {
		if len(row) < 3 {
			return nil, fmt.Errorf("book level with %d fields", len(row))
		}

		entry, err := domain.NewBookEntry(row[0], row[1], row[2])
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

func parseTradeMessage(elements []json.RawMessage) (FeedEvent, error) {
	if len(elements) < 4 {
		return nil, fmt.Errorf("trade message with %d elements", len(elements))
	}

	var pair string
	if err := json.Unmarshal(elements[len(elements)-1], &pair); err != nil {
		return nil, fmt.Errorf("could not parse trade message pair: %w", err)
	}

	event := TradesEvent{Pair: pair}
	for _, element := range elements[1 : len(elements)-2] {
		var rows [][]string
		if err := json.Unmarshal(element, &rows); err != nil {
			return nil, fmt.Errorf("could not parse trade payload: %w", err)
		}

		trades, err := parseTradeRows(pair, rows)
		if err != nil {
			return nil, err
		}
		event.Trades = append(event.Trades, trades...)
	}

	return event, nil
}

// parseTradeRows converts wire trades
// [price, volume, time, side, orderType, misc] into domain trades.
func parseTradeRows(pair string, rows [][]string) ([]domain.Trade, error) {
	trades := make([]domain.Trade, 0, len(rows))
	for _, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("trade with %d fields", len(row))
		}

		price, err := decimal.NewFromString(row[0])
		if err != nil {
			return nil, fmt.Errorf("could not parse trade price %q: %w", row[0], err)
		}
		volume, err := decimal.NewFromString(row[1])
		if err != nil {
			return nil, fmt.Errorf("could not parse trade volume %q: %w", row[1], err)
		}
		tradeTime, err := decimal.NewFromString(row[2])
		if err != nil {
			return nil, fmt.Errorf("could not parse trade time %q: %w", row[2], err)
		}

		trades = append(trades, domain.Trade{
			Pair:      pair,
			Price:     price,
			Volume:    volume,
			Time:      tradeTime,
			Side:      row[3],
			OrderType: row[4],
			Misc:      row[5],
		})
	}

	return trades, nil
}

// parseOwnOrdersMessage decodes [orders, "openOrders", {"sequence": n}].
// Unlike public channels the last element is a sequence object, not a pair.
func parseOwnOrdersMessage(elements []json.RawMessage) (FeedEvent, error) {
	var orderMaps []map[string]json.RawMessage
	if err := json.Unmarshal(elements[0], &orderMaps); err != nil {
		return nil, fmt.Errorf("could not parse own orders payload: %w", err)
	}

	var seq struct {
		Sequence int64 `json:"sequence"`
	}
	if err := json.Unmarshal(elements[len(elements)-1], &seq); err != nil {
		return nil, fmt.Errorf("could not parse own orders sequence: %w", err)
	}

	event := OwnOrdersEvent{Sequence: seq.Sequence}
	for _, orderMap := range orderMaps {
		for txid, order := range orderMap {
			event.Updates = append(event.Updates, OwnOrderUpdate{TxID: txid, Order: order})
		}
	}

	return event, nil
}
