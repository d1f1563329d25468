package domain

import (
	"sync"

	"github.com/gammazero/deque"
	"github.com/shopspring/decimal"
)

// Trade is one public trade as reported by the feed. Side is "b" or "s",
// OrderType "m" (market) or "l" (limit), matching the wire encoding.
type Trade struct {
	Pair      string
	Price     decimal.Decimal
	Volume    decimal.Decimal
	Time      decimal.Decimal
	Side      string
	OrderType string
	Misc      string
}

// TradeLog buffers trades between the feed driver and the consumer.
// Reads drain the queue: a trade is delivered at most once.
type TradeLog struct {
	mu    sync.Mutex
	queue deque.Deque[Trade]
}

func NewTradeLog() *TradeLog {
	return &TradeLog{}
}

func (l *TradeLog) Append(trades []Trade) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, t := range trades {
		l.queue.PushBack(t)
	}
}

// Drain removes and returns all buffered trades in arrival order.
func (l *TradeLog) Drain() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	trades := make([]Trade, 0, l.queue.Len())
	for l.queue.Len() > 0 {
		trades = append(trades, l.queue.PopFront())
	}

	return trades
}

func (l *TradeLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.queue.Len()
}
