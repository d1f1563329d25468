package kraken

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamConn feeds the driver a scripted message sequence and records
// everything the session writes.
type fakeStreamConn struct {
	incoming chan []byte

	mu      sync.Mutex
	written []wsSubscribeRequest
	closed  bool
}

func newFakeStreamConn() *fakeStreamConn {
	return &fakeStreamConn{incoming: make(chan []byte, 64)}
}

func (c *fakeStreamConn) ReadMessage() ([]byte, error) {
	msg, ok := <-c.incoming
	if !ok {
		return nil, errors.New("connection closed")
	}
	return msg, nil
}

func (c *fakeStreamConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if req, ok := v.(wsSubscribeRequest); ok {
		c.written = append(c.written, req)
	}
	return nil
}

func (c *fakeStreamConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.incoming)
	}
	return nil
}

func (c *fakeStreamConn) push(msg string) {
	c.incoming <- []byte(msg)
}

func (c *fakeStreamConn) requests(channel string) []wsSubscribeRequest {
	c.mu.Lock()
	defer c.mu.Unlock()

	var reqs []wsSubscribeRequest
	for _, req := range c.written {
		if req.Subscription.Name == channel {
			reqs = append(reqs, req)
		}
	}
	return reqs
}

const (
	bookSubscribedAck   = `{"channelID":640,"channelName":"book-10","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"depth":10,"name":"book"}}`
	bookUnsubscribedAck = `{"channelID":640,"channelName":"book-10","event":"subscriptionStatus","pair":"XBT/USD","status":"unsubscribed","subscription":{"depth":10,"name":"book"}}`
	bookSnapshotMsg     = `[640,{"as":[["100.5","2.0","1534614248.1"],["101.0","4.0","1534614248.2"]],"bs":[["100.0","5.0","1534614248.3"],["99.5","3.0","1534614248.4"]]},"book-10","XBT/USD"]`
)

func TestStreamAPI_StartAwaitsAcks(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	assert.Equal(t, StateStreaming, s.State())

	reqs := conn.requests("book")
	require.Len(t, reqs, 1)
	assert.Equal(t, "subscribe", reqs[0].Event)
	assert.Equal(t, []string{"XBT/USD"}, reqs[0].Pair)
	assert.Equal(t, 10, reqs[0].Subscription.Depth, "zero config depth must fall back to 10")
}

func TestStreamAPI_ConfiguredDepthIsSent(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(`{"channelName":"book-25","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"depth":25,"name":"book"}}`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}, BookDepth: 25})
	require.NoError(t, s.Start())
	defer s.Close()

	reqs := conn.requests("book")
	require.Len(t, reqs, 1)
	assert.Equal(t, 25, reqs[0].Subscription.Depth)
}

func TestStreamAPI_StartFailsWhenAllPairsRejected(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(`{"errorMessage":"Currency pair not supported DOGE/XBT","event":"subscriptionStatus","pair":"DOGE/XBT","status":"error","subscription":{"name":"book"}}`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"DOGE/XBT"}})
	assert.Error(t, s.Start())
}

func TestStreamAPI_RejectedPairDoesNotStopTheOthers(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)
	conn.push(`{"errorMessage":"Currency pair not supported DOGE/XBT","event":"subscriptionStatus","pair":"DOGE/XBT","status":"error","subscription":{"name":"book"}}`)
	conn.push(bookSnapshotMsg)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD", "DOGE/XBT"}})
	require.NoError(t, s.Start())
	defer s.Close()

	require.Eventually(t, func() bool {
		_, err := s.maintainer.storage.Get("XBT/USD")
		return err == nil
	}, time.Second, 10*time.Millisecond, "surviving pair must be mirrored")

	assert.Equal(t, 1, s.maintainer.storage.OrderBookCount())
}

func TestStreamAPI_InvalidConfigRejected(t *testing.T) {
	testCases := []struct {
		name   string
		config KrakenWsConfig
	}{
		{name: "nothing to subscribe", config: KrakenWsConfig{}},
		{name: "bad pair", config: KrakenWsConfig{SubscribeBook: []string{"XBTUSD"}}},
		{name: "bad depth", config: KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}, BookDepth: 42}},
		{name: "private without token", config: KrakenWsConfig{Private: &PrivateWsConfig{SubscribeOpenOrders: true}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewKrakenStreamAPI(newFakeStreamConn(), tc.config)
			assert.Error(t, s.Start())
		})
	}
}

func TestStreamAPI_MalformedMessageDoesNotKillSession(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	conn.push(`this is not json`)
	conn.push(`[640,{"a":[["bad-price","1.0","1.0"]]},"book-10","XBT/USD"]`)
	conn.push(bookSnapshotMsg)

	require.Eventually(t, func() bool {
		_, err := s.maintainer.storage.Get("XBT/USD")
		return err == nil
	}, time.Second, 10*time.Millisecond, "session must keep going past bad messages")

	assert.False(t, s.StreamClosed())
}

func TestStreamAPI_ChecksumMismatchSurfacesButStreams(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)
	conn.push(bookSnapshotMsg)
	conn.push(`[640,{"a":[["100.5","1.0","1534614335.1"]],"c":"1"},"book-10","XBT/USD"]`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	require.Eventually(t, func() bool {
		book, err := s.maintainer.storage.Get("XBT/USD")
		return err == nil && book.ChecksumFailed
	}, time.Second, 10*time.Millisecond)

	// the flag is advisory; the session itself stays up
	conn.push(`[640,{"b":[["99.9","1.0","1534614336.1"]]},"book-10","XBT/USD"]`)

	require.Eventually(t, func() bool {
		book, err := s.maintainer.storage.Get("XBT/USD")
		return err == nil && len(book.BidsDescending()) == 3
	}, time.Second, 10*time.Millisecond)
	assert.False(t, s.StreamClosed())
}

func TestStreamAPI_UpdateForUnknownPairDropped(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)
	conn.push(bookSnapshotMsg)
	conn.push(`[641,{"a":[["200.0","1.0","1534614335.1"]]},"book-10","ETH/USD"]`)
	// messages are dispatched in order, so a seen heartbeat proves the
	// stray update went through the driver already
	conn.push(`{"event":"heartbeat"}`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	require.Eventually(t, func() bool {
		return !s.LastHeartbeat().IsZero()
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, s.maintainer.storage.OrderBookCount(), "stray pair must not grow the storage")
}

func TestStreamAPI_StreamClosedIsSticky(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)
	conn.push(bookSnapshotMsg)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		_, err := s.maintainer.storage.Get("XBT/USD")
		return err == nil
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())

	assert.True(t, s.StreamClosed())
	assert.Equal(t, StateClosed, s.State())

	// the last mirrored state stays readable after the session ended
	book, err := s.maintainer.storage.Get("XBT/USD")
	require.NoError(t, err)
	bestBid, ok := book.BestBid()
	require.True(t, ok)
	assert.Equal(t, "100.0", bestBid.PriceStr)
}

func TestStreamAPI_ResubscribesAfterExchangeUnsubscribe(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	conn.push(bookUnsubscribedAck)

	require.Eventually(t, func() bool {
		return len(conn.requests("book")) == 2
	}, time.Second, 10*time.Millisecond, "session must re-send the subscribe request")
	assert.Equal(t, StateResubscribing, s.State())

	conn.push(bookSubscribedAck)
	conn.push(`{"event":"heartbeat"}`)

	require.Eventually(t, func() bool {
		return s.State() == StateStreaming
	}, time.Second, 10*time.Millisecond)
}

func TestStreamAPI_HeartbeatAndSystemStatus(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}})
	require.NoError(t, s.Start())
	defer s.Close()

	assert.True(t, s.LastHeartbeat().IsZero())
	assert.Equal(t, SystemUnknown, s.SystemStatus())

	conn.push(`{"connectionID":123,"event":"systemStatus","status":"cancel_only","version":"1.0.0"}`)
	conn.push(`{"event":"heartbeat"}`)

	require.Eventually(t, func() bool {
		return !s.LastHeartbeat().IsZero() && s.SystemStatus() == SystemCancelOnly
	}, time.Second, 10*time.Millisecond)
}

func TestStreamAPI_OwnOrdersLifecycle(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(`{"channelName":"openOrders","event":"subscriptionStatus","status":"subscribed","subscription":{"name":"openOrders"}}`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{
		Private: &PrivateWsConfig{Token: "ws-token", SubscribeOpenOrders: true},
	})
	require.NoError(t, s.Start())
	defer s.Close()

	reqs := conn.requests("openOrders")
	require.Len(t, reqs, 1)
	assert.Equal(t, "ws-token", reqs[0].Subscription.Token)
	assert.Empty(t, reqs[0].Pair, "own orders subscription carries no pair list")

	conn.push(`[[{"OGTT3Y-C6I3P-XRI6HX":{"status":"open","vol":"10.0","vol_exec":"0.0","descr":{"pair":"XBT/EUR","type":"sell","ordertype":"limit","price":"34.5"}}}],"openOrders",{"sequence":1}]`)

	require.Eventually(t, func() bool {
		orders := s.OwnOrders()
		order, ok := orders["OGTT3Y-C6I3P-XRI6HX"]
		return ok && order.Status == "open" && order.Descr.Pair == "XBT/EUR"
	}, time.Second, 10*time.Millisecond)

	// partial patch: only the carried fields change
	conn.push(`[[{"OGTT3Y-C6I3P-XRI6HX":{"vol_exec":"2.5"}}],"openOrders",{"sequence":2}]`)

	require.Eventually(t, func() bool {
		order, ok := s.OwnOrders()["OGTT3Y-C6I3P-XRI6HX"]
		return ok && order.VolumeExec.String() == "2.5" && order.Descr.Pair == "XBT/EUR"
	}, time.Second, 10*time.Millisecond)

	// terminal status removes the order from the open set
	conn.push(`[[{"OGTT3Y-C6I3P-XRI6HX":{"status":"canceled"}}],"openOrders",{"sequence":3}]`)

	require.Eventually(t, func() bool {
		_, ok := s.OwnOrders()["OGTT3Y-C6I3P-XRI6HX"]
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestStreamAPI_TradesFlowIntoLog(t *testing.T) {
	conn := newFakeStreamConn()
	conn.push(bookSubscribedAck)
	conn.push(`{"channelID":642,"channelName":"trade","event":"subscriptionStatus","pair":"XBT/USD","status":"subscribed","subscription":{"name":"trade"}}`)

	s := NewKrakenStreamAPI(conn, KrakenWsConfig{SubscribeBook: []string{"XBT/USD"}, SubscribeTrades: true})
	require.NoError(t, s.Start())
	defer s.Close()

	reqs := conn.requests("trade")
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"XBT/USD"}, reqs[0].Pair)

	conn.push(`[642,[["5541.20000","0.15850568","1534614057.321597","s","l",""]],"trade","XBT/USD"]`)

	require.Eventually(t, func() bool {
		return s.maintainer.tradeLog.Len() == 1
	}, time.Second, 10*time.Millisecond)

	trades := s.maintainer.tradeLog.Drain()
	require.Len(t, trades, 1)
	assert.Equal(t, "s", trades[0].Side)
}
