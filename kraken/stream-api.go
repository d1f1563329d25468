package kraken

import (
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jpillora/backoff"

	"github.com/spooky-finn/go-kraken-client/domain"
)

var logger = log.New(os.Stdout, "[kraken] ", log.LstdFlags)

type ConnectionState string

const (
	StateConnecting    ConnectionState = "connecting"
	StateSubscribing   ConnectionState = "subscribing"
	StateStreaming     ConnectionState = "streaming"
	StateResubscribing ConnectionState = "resubscribing"
	StateClosed        ConnectionState = "closed"
)

// StreamConn is the transport the session drives. Satisfied by
// KrakenStreamClient; tests substitute a scripted fake.
type StreamConn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v interface{}) error
	Close() error
}

type subscriptionKey struct {
	channel string
	pair    string
}

type subscriptionStatus string

const (
	subPending      subscriptionStatus = "pending"
	subSubscribed   subscriptionStatus = "subscribed"
	subUnsubscribed subscriptionStatus = "unsubscribed"
	// the exchange rejected the subscription; the pair is out of this session
	subExcluded subscriptionStatus = "excluded"
)

// KrakenStreamAPI runs one feed session over one connection. A single
// driver goroutine is the only writer to the mirrored state; callers read
// consistent snapshots through the handles. There is deliberately no
// automatic reconnect: once the transport drops, the session is closed for
// good and StreamClosed reports it.
type KrakenStreamAPI struct {
	conn   StreamConn
	config KrakenWsConfig

	maintainer *OrderbookMaintainer

	state         *domain.ResultHandle[ConnectionState]
	systemStatus  *domain.ResultHandle[SystemStatus]
	lastHeartbeat *domain.ResultHandle[time.Time]
	streamClosed  *domain.ResultHandle[bool]
	ownOrders     *domain.ResultHandle[map[string]OwnOrder]

	mu            sync.Mutex
	subscriptions map[subscriptionKey]subscriptionStatus

	settled     chan struct{}
	settledOnce sync.Once
	done        chan struct{}

	// driver-only
	ownOrdersSeq     int64
	resubscribePacer *backoff.Backoff
	nextResubscribe  time.Time

	apiTimeout time.Duration
}

func NewKrakenStreamAPI(conn StreamConn, config KrakenWsConfig) *KrakenStreamAPI {
	return &KrakenStreamAPI{
		conn:   conn,
		config: config,

		maintainer: NewOrderBookMaintainer(config.bookDepth()),

		state:         domain.NewResultHandle(StateConnecting),
		systemStatus:  domain.NewResultHandle(SystemUnknown),
		lastHeartbeat: domain.NewResultHandle(time.Time{}),
		streamClosed:  domain.NewResultHandle(false),
		ownOrders:     domain.NewResultHandle(map[string]OwnOrder{}),

		subscriptions: make(map[subscriptionKey]subscriptionStatus),
		settled:       make(chan struct{}),
		done:          make(chan struct{}),

		resubscribePacer: &backoff.Backoff{
			Min:    10 * time.Second,
			Max:    2 * time.Minute,
			Factor: 2,
		},

		apiTimeout: time.Second * 10,
	}
}

// Start sends the configured subscriptions, spawns the driver goroutine
// and waits until every subscription is acknowledged or the timeout runs
// out. It fails only when not a single subscription succeeded.
func (s *KrakenStreamAPI) Start() error {
	if err := s.config.validate(); err != nil {
		return err
	}

	s.registerSubscriptions()
	s.setState(StateSubscribing)

	// the driver must be reading before the acks come back
	go s.run()

	if err := s.sendSubscriptions(); err != nil {
		s.Close()
		return err
	}

	select {
	case <-s.settled:
	case <-time.After(s.apiTimeout):
		logger.Printf("timed out waiting for subscription acks \n")
	}

	if s.activeSubscriptionCount() == 0 {
		s.Close()
		return fmt.Errorf("no subscription succeeded")
	}

	// closed is terminal, even when the transport died mid-handshake
	s.state.Write(func(current *ConnectionState) {
		if *current != StateClosed {
			*current = StateStreaming
		}
	})
	return nil
}

// Close tears down the connection and waits for the driver to exit.
func (s *KrakenStreamAPI) Close() error {
	err := s.conn.Close()
	<-s.done
	return err
}

func (s *KrakenStreamAPI) State() ConnectionState {
	return s.state.Read()
}

func (s *KrakenStreamAPI) SystemStatus() SystemStatus {
	return s.systemStatus.Read()
}

func (s *KrakenStreamAPI) LastHeartbeat() time.Time {
	return s.lastHeartbeat.Read()
}

func (s *KrakenStreamAPI) StreamClosed() bool {
	return s.streamClosed.Read()
}

// OwnOrders returns a copy of the currently open orders by transaction id.
func (s *KrakenStreamAPI) OwnOrders() map[string]OwnOrder {
	current := s.ownOrders.Read()

	orders := make(map[string]OwnOrder, len(current))
	for txid, order := range current {
		orders[txid] = order
	}
	return orders
}

func (s *KrakenStreamAPI) registerSubscriptions() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pair := range s.config.SubscribeBook {
		s.subscriptions[subscriptionKey{channel: bookChannelPrefix, pair: pair}] = subPending
		if s.config.SubscribeTrades {
			s.subscriptions[subscriptionKey{channel: tradeChannelName, pair: pair}] = subPending
		}
	}

	if s.config.privateEnabled() && s.config.Private.SubscribeOpenOrders {
		s.subscriptions[subscriptionKey{channel: ownOrdersChannelName}] = subPending
	}
}

func (s *KrakenStreamAPI) sendSubscriptions() error {
	// one request per pair, like the book resubscription path; the
	// exchange acks each pair separately either way
	for _, pair := range s.config.SubscribeBook {
		if err := s.subscribeBook([]string{pair}); err != nil {
			return fmt.Errorf("could not send book subscription: %w", err)
		}
	}

	if s.config.SubscribeTrades && len(s.config.SubscribeBook) > 0 {
		if err := s.subscribeTrades(s.config.SubscribeBook); err != nil {
			return fmt.Errorf("could not send trade subscription: %w", err)
		}
	}

	if s.config.privateEnabled() && s.config.Private.SubscribeOpenOrders {
		if err := s.subscribeOwnOrders(); err != nil {
			return fmt.Errorf("could not send own orders subscription: %w", err)
		}
	}

	return nil
}

func (s *KrakenStreamAPI) subscribeBook(pairs []string) error {
	return s.conn.WriteJSON(wsSubscribeRequest{
		Event: "subscribe",
		Pair:  pairs,
		Subscription: wsSubscription{
			Name:  bookChannelPrefix,
			Depth: s.config.bookDepth(),
		},
	})
}

func (s *KrakenStreamAPI) subscribeTrades(pairs []string) error {
	return s.conn.WriteJSON(wsSubscribeRequest{
		Event:        "subscribe",
		Pair:         pairs,
		Subscription: wsSubscription{Name: tradeChannelName},
	})
}

func (s *KrakenStreamAPI) subscribeOwnOrders() error {
	return s.conn.WriteJSON(wsSubscribeRequest{
		Event: "subscribe",
		Subscription: wsSubscription{
			Name:  ownOrdersChannelName,
			Token: s.config.Private.Token,
		},
	})
}

// run is the driver loop: the blocking read is the only suspension point,
// and every message is fully applied before the next read. This makes the
// driver the single writer of all mirrored state.
func (s *KrakenStreamAPI) run() {
	defer close(s.done)

	for {
		msg, err := s.conn.ReadMessage()
		if err != nil {
			logger.Printf("stream closed: %s \n", err)
			s.markClosed()
			return
		}

		s.dispatch(msg)
		s.maybeResubscribe()
	}
}

func (s *KrakenStreamAPI) dispatch(raw []byte) {
	event, err := ParseFeedMessage(raw)
	if err != nil {
		logger.Printf("skipping feed message: %s \n", err)
		return
	}

	switch event := event.(type) {
	case HeartbeatEvent:
		now := time.Now()
		s.lastHeartbeat.Write(func(at *time.Time) { *at = now })

	case PongEvent:
		// nothing to do

	case SystemStatusEvent:
		logger.Printf("system status: %s \n", event.Status)
		s.systemStatus.Write(func(status *SystemStatus) { *status = event.Status })

	case SubscriptionStatusEvent:
		s.handleSubscriptionStatus(event)

	case BookSnapshotEvent:
		s.maintainer.ApplySnapshot(event)

	case BookUpdateEvent:
		s.maintainer.ApplyUpdate(event)

	case TradesEvent:
		s.maintainer.ApplyTrades(event)

	case OwnOrdersEvent:
		s.applyOwnOrders(event)

	case ErrorEvent:
		logger.Printf("feed error: %s \n", event.Message)

	case UnknownEvent:
		logger.Printf("unknown event %q from the feed \n", event.Event)
	}
}

func (s *KrakenStreamAPI) handleSubscriptionStatus(event SubscriptionStatusEvent) {
	key := subscriptionKey{channel: event.SubscriptionName, pair: event.Pair}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch event.Status {
	case "subscribed":
		if s.subscriptions[key] == subSubscribed {
			logger.Printf("unexpected repeated subscription ack for %s %s \n", key.channel, key.pair)
			break
		}
		logger.Printf("subscribed to %s %s \n", event.ChannelName, event.Pair)
		s.subscriptions[key] = subSubscribed

	case "unsubscribed":
		logger.Printf("unsubscribed from %s %s \n", event.ChannelName, event.Pair)
		s.subscriptions[key] = subUnsubscribed

	case "error":
		logger.Printf("subscription (%s, %s) error: %s \n", key.channel, event.Pair, event.ErrorMessage)
		s.subscriptions[key] = subExcluded

	default:
		logger.Printf("subscription status %q for %s %s \n", event.Status, key.channel, event.Pair)
	}

	s.maybeSettleLocked()
}

// maybeSettleLocked closes the settled channel once no subscription is
// pending anymore, releasing Start. Callers hold s.mu.
func (s *KrakenStreamAPI) maybeSettleLocked() {
	for _, status := range s.subscriptions {
		if status == subPending {
			return
		}
	}
	s.settledOnce.Do(func() { close(s.settled) })
}

func (s *KrakenStreamAPI) activeSubscriptionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, status := range s.subscriptions {
		if status == subSubscribed {
			count++
		}
	}
	return count
}

// missingSubscriptions lists subscriptions the exchange kicked us out of.
// Excluded ones are not retried.
func (s *KrakenStreamAPI) missingSubscriptions() []subscriptionKey {
	s.mu.Lock()
	defer s.mu.Unlock()

	var missing []subscriptionKey
	for key, status := range s.subscriptions {
		if status == subUnsubscribed {
			missing = append(missing, key)
		}
	}
	return missing
}

// maybeResubscribe re-sends subscriptions after an exchange-initiated
// unsubscribe (system outages end that way). Attempts are paced by a
// backoff so a flapping exchange is not hammered.
func (s *KrakenStreamAPI) maybeResubscribe() {
	state := s.State()
	if state != StateStreaming && state != StateResubscribing {
		return
	}

	missing := s.missingSubscriptions()
	if len(missing) == 0 {
		if state == StateResubscribing {
			s.setState(StateStreaming)
			s.resubscribePacer.Reset()
			s.nextResubscribe = time.Time{}
		}
		return
	}

	if state != StateResubscribing {
		s.setState(StateResubscribing)
	}

	now := time.Now()
	if now.Before(s.nextResubscribe) {
		return
	}
	s.nextResubscribe = now.Add(s.resubscribePacer.Duration())

	for _, key := range missing {
		logger.Printf("resubscribing to %s %s \n", key.channel, key.pair)

		var err error
		switch key.channel {
		case bookChannelPrefix:
			err = s.subscribeBook([]string{key.pair})
		case tradeChannelName:
			err = s.subscribeTrades([]string{key.pair})
		case ownOrdersChannelName:
			err = s.subscribeOwnOrders()
		}
		if err != nil {
			logger.Printf("could not resubscribe to %s %s: %s \n", key.channel, key.pair, err)
		}
	}
}

func (s *KrakenStreamAPI) applyOwnOrders(event OwnOrdersEvent) {
	if s.ownOrdersSeq != 0 && event.Sequence != s.ownOrdersSeq+1 {
		logger.Printf("own orders sequence gap: %d -> %d \n", s.ownOrdersSeq, event.Sequence)
	}
	s.ownOrdersSeq = event.Sequence

	s.ownOrders.Write(func(orders *map[string]OwnOrder) {
		// replace, never mutate: readers may hold the previous map
		next := make(map[string]OwnOrder, len(*orders)+len(event.Updates))
		for txid, order := range *orders {
			next[txid] = order
		}

		for _, update := range event.Updates {
			merged := next[update.TxID]
			if err := unmarshalOwnOrder(update.Order, &merged); err != nil {
				logger.Printf("skipping own order update for %s: %s \n", update.TxID, err)
				continue
			}

			if isTerminalOrderStatus(merged.Status) {
				delete(next, update.TxID)
			} else {
				next[update.TxID] = merged
			}
		}

		*orders = next
	})
}

func isTerminalOrderStatus(status string) bool {
	switch status {
	case "closed", "canceled", "expired":
		return true
	}
	return false
}

func (s *KrakenStreamAPI) markClosed() {
	s.setState(StateClosed)
	s.streamClosed.Write(func(closed *bool) { *closed = true })

	// release Start if it is still waiting for acks
	s.settledOnce.Do(func() { close(s.settled) })
}

func (s *KrakenStreamAPI) setState(state ConnectionState) {
	s.state.Write(func(current *ConnectionState) { *current = state })
}
