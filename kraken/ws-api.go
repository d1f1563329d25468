package kraken

import (
	"time"

	"github.com/spooky-finn/go-kraken-client/config"
	"github.com/spooky-finn/go-kraken-client/domain"
)

// KrakenWsAPI is the public face of the streaming side: it owns one feed
// session and exposes consistent snapshots of the state that session
// mirrors. All getters are safe to call from any goroutine while the
// driver keeps writing.
type KrakenWsAPI struct {
	session *KrakenStreamAPI
}

// NewKrakenWsAPI connects, subscribes and returns once the session is
// streaming. A config with private channels goes to the authenticated
// endpoint.
func NewKrakenWsAPI(wsConfig KrakenWsConfig) (*KrakenWsAPI, error) {
	if err := wsConfig.validate(); err != nil {
		return nil, err
	}

	endpoint := config.WsURL
	if wsConfig.privateEnabled() {
		endpoint = config.WsAuthURL
	}

	client := NewKrakenStreamClient()
	if err := client.Connect(endpoint); err != nil {
		return nil, err
	}

	session := NewKrakenStreamAPI(client, wsConfig)
	if err := session.Start(); err != nil {
		return nil, err
	}

	return &KrakenWsAPI{session: session}, nil
}

// GetBook returns a snapshot of the mirrored book for the pair. Check
// ChecksumFailed before trusting it.
func (api *KrakenWsAPI) GetBook(pair string) (domain.OrderBook, bool) {
	book, err := api.session.maintainer.storage.Get(pair)
	if err != nil {
		return domain.OrderBook{}, false
	}
	return book, true
}

// GetAllBooks returns a snapshot of every mirrored book. Books of pairs
// whose snapshot has not arrived yet are absent.
func (api *KrakenWsAPI) GetAllBooks() map[string]domain.OrderBook {
	return api.session.maintainer.storage.GetAll()
}

// GetTrades drains the accumulated public trades, oldest first.
func (api *KrakenWsAPI) GetTrades() []domain.Trade {
	return api.session.maintainer.tradeLog.Drain()
}

// GetOpenOrders returns a copy of the open orders mirrored from the
// private feed, keyed by transaction id.
func (api *KrakenWsAPI) GetOpenOrders() map[string]OwnOrder {
	return api.session.OwnOrders()
}

func (api *KrakenWsAPI) State() ConnectionState {
	return api.session.State()
}

func (api *KrakenWsAPI) SystemStatus() SystemStatus {
	return api.session.SystemStatus()
}

// LastHeartbeat is the arrival time of the latest feed heartbeat. Staleness
// policy belongs to the caller.
func (api *KrakenWsAPI) LastHeartbeat() time.Time {
	return api.session.LastHeartbeat()
}

// StreamClosed reports whether the session ended. Sticky: once true, the
// books stop updating for good and a new session must be started.
func (api *KrakenWsAPI) StreamClosed() bool {
	return api.session.StreamClosed()
}

func (api *KrakenWsAPI) Close() error {
	return api.session.Close()
}
