package domain

import (
	"errors"
	"log"
	"os"
	"sync"

	"github.com/spooky-finn/go-kraken-client/config"
)

var logger = log.New(os.Stdout, "[orderbook-storage] ", log.LstdFlags)
var ErrOrderBookNotFound = errors.New("order book not found")

// OrderBookStorage holds the canonical books keyed by websocket pair name.
// One writer (the feed driver) mutates them; any number of readers take
// cloned snapshots, never references into live state.
type OrderBookStorage struct {
	mu      sync.Mutex
	storage map[string]*OrderBook
}

func NewOrderBookStorage() *OrderBookStorage {
	return &OrderBookStorage{
		storage: make(map[string]*OrderBook),
	}
}

// Add replaces any existing book for the pair. This happens on snapshot.
func (o *OrderBookStorage) Add(pair string, orderBook *OrderBook) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.storage[pair]; ok && config.DebugMode {
		logger.Printf("replacing order book for %s", pair)
	}

	o.storage[pair] = orderBook
}

// Mutate runs fn on the live book under the storage lock. Update
// application and checksum verification must both happen inside fn so a
// reader never observes levels and checksum state from different updates.
func (o *OrderBookStorage) Mutate(pair string, fn func(*OrderBook)) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	ob, ok := o.storage[pair]
	if !ok {
		return ErrOrderBookNotFound
	}

	fn(ob)
	return nil
}

// Get returns a consistent snapshot of the book for the pair.
func (o *OrderBookStorage) Get(pair string) (OrderBook, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ob, ok := o.storage[pair]
	if !ok {
		return OrderBook{}, ErrOrderBookNotFound
	}

	return *ob.Clone(), nil
}

// GetAll returns a consistent snapshot of every book.
func (o *OrderBookStorage) GetAll() map[string]OrderBook {
	o.mu.Lock()
	defer o.mu.Unlock()

	books := make(map[string]OrderBook, len(o.storage))
	for pair, ob := range o.storage {
		books[pair] = *ob.Clone()
	}

	return books
}

func (o *OrderBookStorage) OrderBookCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.storage)
}
