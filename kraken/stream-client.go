package kraken

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const maxFeedMessageSize = 655350

// KrakenStreamClient owns the websocket connection to one feed endpoint.
// It deliberately does not reconnect: a mirrored book is only trustworthy
// while the ordered stream that built it is unbroken, so transport errors
// end the session and the caller decides whether to start a fresh one.
type KrakenStreamClient struct {
	conn *websocket.Conn
}

func NewKrakenStreamClient() *KrakenStreamClient {
	return &KrakenStreamClient{}
}

func (c *KrakenStreamClient) Connect(endpoint string) error {
	logger.Printf("connecting to the %s \n", endpoint)

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 5 * time.Second,
	}

	conn, _, err := dialer.Dial(endpoint, nil)
	if err != nil {
		return err
	}
	conn.SetReadLimit(maxFeedMessageSize)

	c.conn = conn
	return nil
}

// ReadMessage blocks until the next feed message arrives.
func (c *KrakenStreamClient) ReadMessage() ([]byte, error) {
	_, msg, err := c.conn.ReadMessage()
	return msg, err
}

func (c *KrakenStreamClient) WriteJSON(v interface{}) error {
	return c.conn.WriteJSON(v)
}

func (c *KrakenStreamClient) Close() error {
	return c.conn.Close()
}
