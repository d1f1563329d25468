package kraken

import (
	"github.com/spooky-finn/go-kraken-client/config"
	"github.com/spooky-finn/go-kraken-client/domain"
	promclient "github.com/spooky-finn/go-kraken-client/infrastructure/prometheus"
)

// OrderbookMaintainer applies decoded feed messages to the mirrored books
// and the trade log. All methods run on the session's driver goroutine;
// the storage layer makes every change visible to concurrent readers as
// one atomic step.
type OrderbookMaintainer struct {
	storage  *domain.OrderBookStorage
	tradeLog *domain.TradeLog
	depth    int
}

func NewOrderBookMaintainer(depth int) *OrderbookMaintainer {
	return &OrderbookMaintainer{
		storage:  domain.NewOrderBookStorage(),
		tradeLog: domain.NewTradeLog(),
		depth:    depth,
	}
}

// ApplySnapshot replaces the book for the pair. A fresh snapshot also
// clears a previous checksum failure, since the book is rebuilt from
// authoritative state.
func (m *OrderbookMaintainer) ApplySnapshot(snapshot BookSnapshotEvent) {
	orderbook := domain.NewOrderBook(snapshot.Pair, m.depth, snapshot.Bids, snapshot.Asks)
	m.storage.Add(snapshot.Pair, orderbook)

	promclient.MirroredBooksGauge.Set(float64(m.storage.OrderBookCount()))
	logger.Printf("mirroring order book %s at depth %d \n", snapshot.Pair, m.depth)
}

// ApplyUpdate applies one incremental update and, when the message carries
// a checksum, verifies the book against it inside the same critical
// section. An update for a pair without a book is dropped: it raced ahead
// of its snapshot or belongs to a pair this session never subscribed.
func (m *OrderbookMaintainer) ApplyUpdate(update BookUpdateEvent) {
	err := m.storage.Mutate(update.Pair, func(orderbook *domain.OrderBook) {
		orderbook.UpdateBids(update.Bids)
		orderbook.UpdateAsks(update.Asks)

		if update.HasChecksum && !orderbook.ChecksumFailed && !orderbook.VerifyChecksum(update.Checksum) {
			orderbook.ChecksumFailed = true
			promclient.ChecksumFailuresCounter.Inc()
			logger.Printf("checksum mismatch for %s: book no longer mirrors the exchange \n", update.Pair)
		}
	})
	if err != nil {
		if config.DebugMode {
			logger.Printf("dropping update for unknown pair %s \n", update.Pair)
		}
		return
	}

	promclient.BookUpdatesCounter.Inc()
}

func (m *OrderbookMaintainer) ApplyTrades(event TradesEvent) {
	m.tradeLog.Append(event.Trades)
	promclient.TradesSeenCounter.Add(float64(len(event.Trades)))
}
