package kraken

import (
	"fmt"

	"github.com/spooky-finn/go-kraken-client/domain"
)

const defaultBookDepth = 10

// depth tiers the exchange serves for the book channel
var validBookDepths = []int{10, 25, 100, 500, 1000}

// KrakenWsConfig describes one feed session: which pairs to mirror and
// which channels to attach.
type KrakenWsConfig struct {
	// SubscribeBook lists the pairs to mirror order books for, in the
	// feed's "XBT/USD" notation.
	SubscribeBook []string
	// BookDepth selects the book subscription tier. Zero means 10.
	BookDepth int
	// SubscribeTrades attaches the public trade channel for the same pairs.
	SubscribeTrades bool
	// Private enables the authenticated channels on the auth endpoint.
	Private *PrivateWsConfig
}

// PrivateWsConfig carries the short-lived token obtained from
// KrakenSyncAPI.WebSocketsToken.
type PrivateWsConfig struct {
	Token               string
	SubscribeOpenOrders bool
}

func (c *KrakenWsConfig) validate() error {
	subscribesPrivate := c.privateEnabled() && c.Private.SubscribeOpenOrders
	if len(c.SubscribeBook) == 0 && !subscribesPrivate {
		return fmt.Errorf("ws config: nothing to subscribe to")
	}

	for _, pair := range c.SubscribeBook {
		if _, err := domain.NewMarketSymbolFromString(pair); err != nil {
			return fmt.Errorf("ws config: bad pair %q: %w", pair, err)
		}
	}

	if c.BookDepth != 0 && !isValidBookDepth(c.BookDepth) {
		return fmt.Errorf("ws config: unsupported book depth %d", c.BookDepth)
	}

	if c.privateEnabled() && c.Private.Token == "" {
		return fmt.Errorf("ws config: private channels require a token")
	}

	return nil
}

// bookDepth resolves the configured tier, applying the default.
func (c *KrakenWsConfig) bookDepth() int {
	if c.BookDepth == 0 {
		return defaultBookDepth
	}
	return c.BookDepth
}

func (c *KrakenWsConfig) privateEnabled() bool {
	return c.Private != nil
}

func isValidBookDepth(depth int) bool {
	for _, d := range validBookDepths {
		if d == depth {
			return true
		}
	}
	return false
}
