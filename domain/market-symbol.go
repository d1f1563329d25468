package domain

import (
	"fmt"
	"strings"
)

// MarketSymbol is a traded pair in the exchange's websocket naming
// convention, e.g. XBT/USD. The REST API identifies the same pair by an
// altname (XBTUSD) or a legacy id (XXBTZUSD); RestAltName maps the
// websocket name onto the altname form.
type MarketSymbol struct {
	BaseAsset  string
	QuoteAsset string
}

func NewMarketSymbol(base string, quote string) (*MarketSymbol, error) {
	if base == quote {
		return nil, fmt.Errorf("base and quote must be different")
	}
	if base == "" || quote == "" {
		return nil, fmt.Errorf("base and quote must not be empty")
	}
	base = strings.ToUpper(base)
	quote = strings.ToUpper(quote)
	return &MarketSymbol{
		BaseAsset:  base,
		QuoteAsset: quote,
	}, nil
}

// NewMarketSymbolFromString parses a websocket pair name like "XBT/USD".
func NewMarketSymbolFromString(s string) (*MarketSymbol, error) {
	split := strings.Split(s, "/")

	if len(split) != 2 {
		return nil, fmt.Errorf("invalid pair string %q", s)
	}

	base := split[0]
	quote := split[1]
	return NewMarketSymbol(base, quote)
}

// String returns the websocket name, base and quote joined by a slash.
func (ms *MarketSymbol) String() string {
	return fmt.Sprintf("%s/%s", ms.BaseAsset, ms.QuoteAsset)
}

// RestAltName returns the pair as the REST API's altname, e.g. XBTUSD.
func (ms *MarketSymbol) RestAltName() string {
	return fmt.Sprintf("%s%s", ms.BaseAsset, ms.QuoteAsset)
}
