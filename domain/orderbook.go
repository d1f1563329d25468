package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// BookEntry is one price level of an order book side. Price and volume are
// kept both as decimals and as the exact strings from the wire: the
// exchange's checksum is defined over the original string encoding, so
// re-rendering a decimal is not an option.
type BookEntry struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	// Exchange timestamp of the level, seconds since epoch with a
	// fractional part. Used only to discard stale resends.
	Timestamp decimal.Decimal
	PriceStr  string
	VolumeStr string
}

func NewBookEntry(priceStr, volumeStr, timestampStr string) (BookEntry, error) {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return BookEntry{}, fmt.Errorf("could not parse price level %q: %w", priceStr, err)
	}

	volume, err := decimal.NewFromString(volumeStr)
	if err != nil {
		return BookEntry{}, fmt.Errorf("could not parse volume %q: %w", volumeStr, err)
	}

	timestamp, err := decimal.NewFromString(timestampStr)
	if err != nil {
		return BookEntry{}, fmt.Errorf("could not parse timestamp %q: %w", timestampStr, err)
	}

	return BookEntry{
		Price:     price,
		Volume:    volume,
		Timestamp: timestamp,
		PriceStr:  priceStr,
		VolumeStr: volumeStr,
	}, nil
}

func byPrice(a, b BookEntry) bool {
	return a.Price.LessThan(b.Price)
}

// OrderBook mirrors the exchange's book for one pair, both sides bounded to
// Depth levels. It carries no lock of its own: the storage layer serializes
// all access to live books.
type OrderBook struct {
	Pair  string
	Depth int

	// Both sides are ordered ascending by price; bids are read in reverse.
	Bids *btree.BTreeG[BookEntry]
	Asks *btree.BTreeG[BookEntry]

	// Set when a checksum verification failed. Sticky for the lifetime of
	// this book; a fresh snapshot starts clean.
	ChecksumFailed bool
}

// NewOrderBook builds a book from snapshot levels. Each side is truncated
// to depth, keeping the best-ranked levels.
func NewOrderBook(pair string, depth int, bids []BookEntry, asks []BookEntry) *OrderBook {
	ob := &OrderBook{
		Pair:  pair,
		Depth: depth,
		Bids:  btree.NewBTreeG[BookEntry](byPrice),
		Asks:  btree.NewBTreeG[BookEntry](byPrice),
	}

	ob.UpdateBids(bids)
	ob.UpdateAsks(asks)
	return ob
}

// UpdateAsks applies update entries to the ask side, then evicts excess
// levels from the top: the highest asks are the worst ranked.
func (ob *OrderBook) UpdateAsks(entries []BookEntry) {
	updateSide(ob.Asks, entries)

	for ob.Asks.Len() > ob.Depth {
		ob.Asks.PopMax()
	}
}

// UpdateBids applies update entries to the bid side, then evicts excess
// levels from the bottom: the lowest bids are the worst ranked.
func (ob *OrderBook) UpdateBids(entries []BookEntry) {
	updateSide(ob.Bids, entries)

	for ob.Bids.Len() > ob.Depth {
		ob.Bids.PopMin()
	}
}

func updateSide(side *btree.BTreeG[BookEntry], entries []BookEntry) {
	for _, entry := range entries {
		if entry.Volume.IsZero() {
			// remove price level; no-op when absent
			side.Delete(entry)
			continue
		}

		if current, ok := side.Get(entry); ok && entry.Timestamp.LessThan(current.Timestamp) {
			// stale resend of an already-replaced level
			continue
		}

		side.Set(entry)
	}
}

// BidsDescending returns the bid side best-first (highest price first).
func (ob *OrderBook) BidsDescending() []BookEntry {
	entries := make([]BookEntry, 0, ob.Bids.Len())
	ob.Bids.Reverse(func(entry BookEntry) bool {
		entries = append(entries, entry)
		return true
	})

	return entries
}

// AsksAscending returns the ask side best-first (lowest price first).
func (ob *OrderBook) AsksAscending() []BookEntry {
	entries := make([]BookEntry, 0, ob.Asks.Len())
	ob.Asks.Scan(func(entry BookEntry) bool {
		entries = append(entries, entry)
		return true
	})

	return entries
}

func (ob *OrderBook) BestBid() (BookEntry, bool) {
	return ob.Bids.Max()
}

func (ob *OrderBook) BestAsk() (BookEntry, bool) {
	return ob.Asks.Min()
}

// Clone returns a consistent copy sharing no mutable state with the
// original. The tree copies are copy-on-write, so this is cheap.
func (ob *OrderBook) Clone() *OrderBook {
	return &OrderBook{
		Pair:           ob.Pair,
		Depth:          ob.Depth,
		Bids:           ob.Bids.Copy(),
		Asks:           ob.Asks.Copy(),
		ChecksumFailed: ob.ChecksumFailed,
	}
}
