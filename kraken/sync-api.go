package kraken

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/spooky-finn/go-kraken-client/config"
	"github.com/spooky-finn/go-kraken-client/domain"
)

// KrakenSyncAPI is the request/response half of the client: public market
// data plus the signed private trading surface. It is safe for concurrent
// use; the exchange orders private requests by their nonce. Pair arguments
// accept the feed name (XBT/USD) as well as the REST altname (XBTUSD).
type KrakenSyncAPI struct {
	endpoint string
	client   *http.Client
	creds    Credentials
	version  int
}

func NewKrakenSyncAPI(creds Credentials) *KrakenSyncAPI {
	return &KrakenSyncAPI{
		endpoint: config.RestBaseURL,
		client:   &http.Client{Timeout: 30 * time.Second},
		creds:    creds,
		version:  0,
	}
}

// Time returns the exchange server time.
func (api *KrakenSyncAPI) Time() (TimeResponse, error) {
	var result TimeResponse
	err := api.queryPublic("Time", url.Values{}, &result)
	return result, err
}

// SystemStatus reports whether the trading engine accepts orders.
func (api *KrakenSyncAPI) SystemStatus() (SystemStatusResponse, error) {
	var result SystemStatusResponse
	err := api.queryPublic("SystemStatus", url.Values{}, &result)
	return result, err
}

func (api *KrakenSyncAPI) Assets() (AssetsResponse, error) {
	var result AssetsResponse
	err := api.queryPublic("Assets", url.Values{}, &result)
	return result, err
}

// AssetPairs returns pair metadata, including the websocket names needed
// to subscribe to the feed. An empty list returns every pair.
func (api *KrakenSyncAPI) AssetPairs(pairs []string) (AssetPairsResponse, error) {
	params := url.Values{}
	if len(pairs) > 0 {
		params.Set("pair", restPairList(pairs))
	}

	var result AssetPairsResponse
	err := api.queryPublic("AssetPairs", params, &result)
	return result, err
}

func (api *KrakenSyncAPI) Ticker(pairs []string) (TickerResponse, error) {
	params := url.Values{}
	params.Set("pair", restPairList(pairs))

	var result TickerResponse
	err := api.queryPublic("Ticker", params, &result)
	return result, err
}

// OHLC returns candles at one minute intervals, optionally only entries
// after the since cursor. The exchange serves up to 720 recent entries.
func (api *KrakenSyncAPI) OHLC(pair string, since string) (OHLCResponse, error) {
	return api.OHLCAtInterval(pair, 0, since)
}

// OHLCAtInterval returns candles at the given interval in minutes. Valid
// intervals are 1, 5, 15, 30, 60, 240, 1440, 10080, 21600.
func (api *KrakenSyncAPI) OHLCAtInterval(pair string, interval int, since string) (OHLCResponse, error) {
	params := url.Values{}
	params.Set("pair", restPair(pair))
	if interval > 0 {
		params.Set("interval", strconv.Itoa(interval))
	}
	if since != "" {
		params.Set("since", since)
	}

	var result OHLCResponse
	err := api.queryPublic("OHLC", params, &result)
	return result, err
}

// RecentTrades returns up to 1000 trades; the response's Last cursor can
// be passed back as since to fetch the next page.
func (api *KrakenSyncAPI) RecentTrades(pair string, since string) (RecentTradesResponse, error) {
	params := url.Values{}
	params.Set("pair", restPair(pair))
	if since != "" {
		params.Set("since", since)
	}

	var result RecentTradesResponse
	err := api.queryPublic("Trades", params, &result)
	return result, err
}

func (api *KrakenSyncAPI) AccountBalance() (BalanceResponse, error) {
	var result BalanceResponse
	err := api.queryPrivate("Balance", url.Values{}, &result)
	return result, err
}

func (api *KrakenSyncAPI) TradeVolume(pairs []string) (TradeVolumeResponse, error) {
	params := url.Values{}
	params.Set("pair", restPairList(pairs))

	var result TradeVolumeResponse
	err := api.queryPrivate("TradeVolume", params, &result)
	return result, err
}

// WebSocketsToken returns a short-lived token required to subscribe to
// private feed channels.
func (api *KrakenSyncAPI) WebSocketsToken() (WebSocketsTokenResponse, error) {
	var result WebSocketsTokenResponse
	err := api.queryPrivate("GetWebSocketsToken", url.Values{}, &result)
	return result, err
}

func (api *KrakenSyncAPI) OpenOrders(userRef *int32) (OpenOrdersResponse, error) {
	params := url.Values{}
	if userRef != nil {
		params.Set("userref", strconv.FormatInt(int64(*userRef), 10))
	}

	var result OpenOrdersResponse
	err := api.queryPrivate("OpenOrders", params, &result)
	return result, err
}

func (api *KrakenSyncAPI) QueryOrders(txids []string) (QueryOrdersResponse, error) {
	params := url.Values{}
	params.Set("txid", strings.Join(txids, ","))

	var result QueryOrdersResponse
	err := api.queryPrivate("QueryOrders", params, &result)
	return result, err
}

// AddMarketOrder places a market order. With validate set the order is
// checked by the exchange but not placed.
func (api *KrakenSyncAPI) AddMarketOrder(order MarketOrder, userRef *int32, validate bool) (AddOrderResponse, error) {
	params := url.Values{}
	params.Set("ordertype", "market")
	params.Set("type", string(order.Side))
	params.Set("volume", order.Volume)
	params.Set("pair", restPair(order.Pair))
	if len(order.OrderFlags) > 0 {
		params.Set("oflags", strings.Join(order.OrderFlags, ","))
	}
	applyOrderExtras(params, userRef, validate)

	var result AddOrderResponse
	err := api.queryPrivate("AddOrder", params, &result)
	return result, err
}

// AddLimitOrder places a limit order. With validate set the order is
// checked by the exchange but not placed.
func (api *KrakenSyncAPI) AddLimitOrder(order LimitOrder, userRef *int32, validate bool) (AddOrderResponse, error) {
	params := url.Values{}
	params.Set("ordertype", "limit")
	params.Set("type", string(order.Side))
	params.Set("volume", order.Volume)
	params.Set("pair", restPair(order.Pair))
	params.Set("price", order.Price)
	if len(order.OrderFlags) > 0 {
		params.Set("oflags", strings.Join(order.OrderFlags, ","))
	}
	applyOrderExtras(params, userRef, validate)

	var result AddOrderResponse
	err := api.queryPrivate("AddOrder", params, &result)
	return result, err
}

func applyOrderExtras(params url.Values, userRef *int32, validate bool) {
	if userRef != nil {
		params.Set("userref", strconv.FormatInt(int64(*userRef), 10))
	}
	if validate {
		params.Set("validate", "true")
	}
}

// CancelOrder cancels by transaction id or user reference id.
func (api *KrakenSyncAPI) CancelOrder(id string) (CancelOrderResponse, error) {
	params := url.Values{}
	params.Set("txid", id)

	var result CancelOrderResponse
	err := api.queryPrivate("CancelOrder", params, &result)
	return result, err
}

func (api *KrakenSyncAPI) CancelAllOrders() (CancelOrderResponse, error) {
	var result CancelOrderResponse
	err := api.queryPrivate("CancelAll", url.Values{}, &result)
	return result, err
}

// CancelAllOrdersAfter arms a dead man's switch: all orders are cancelled
// unless the timer is re-armed before timeout seconds pass. Zero disables.
func (api *KrakenSyncAPI) CancelAllOrdersAfter(timeout int64) (CancelAllOrdersAfterResponse, error) {
	params := url.Values{}
	params.Set("timeout", strconv.FormatInt(timeout, 10))

	var result CancelAllOrdersAfterResponse
	err := api.queryPrivate("CancelAllOrdersAfter", params, &result)
	return result, err
}

// restPair maps a feed pair name like XBT/USD onto the altname form the
// REST pair parameter expects. Anything that is not a feed name passes
// through, so altnames and legacy ids work unchanged.
func restPair(pair string) string {
	symbol, err := domain.NewMarketSymbolFromString(pair)
	if err != nil {
		return pair
	}
	return symbol.RestAltName()
}

func restPairList(pairs []string) string {
	names := make([]string, len(pairs))
	for i, pair := range pairs {
		names[i] = restPair(pair)
	}
	return strings.Join(names, ",")
}

func (api *KrakenSyncAPI) queryPublic(method string, params url.Values, result interface{}) error {
	urlPath := fmt.Sprintf("/%d/public/%s", api.version, method)
	return api.query(urlPath, nil, params.Encode(), result)
}

func (api *KrakenSyncAPI) queryPrivate(method string, params url.Values, result interface{}) error {
	if api.creds.Empty() {
		return ErrMissingCredentials
	}

	urlPath := fmt.Sprintf("/%d/private/%s", api.version, method)
	nonce := strconv.FormatInt(time.Now().UnixMilli(), 10)

	// the nonce leads the post data; the signature covers the exact body
	postData := "nonce=" + nonce
	if encoded := params.Encode(); encoded != "" {
		postData += "&" + encoded
	}

	signature, err := signRequest(urlPath, nonce, postData, api.creds.Secret)
	if err != nil {
		return err
	}

	headers := map[string]string{
		"API-Key":  api.creds.Key,
		"API-Sign": signature,
	}
	return api.query(urlPath, headers, postData, result)
}

// signRequest implements the exchange's signing scheme: base64 of
// HMAC-SHA512(base64decode(secret), urlPath + SHA256(nonce + postData)).
func signRequest(urlPath, nonce, postData, secret string) (string, error) {
	digest := sha256.Sum256([]byte(nonce + postData))

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", fmt.Errorf("could not decode api secret: %w", err)
	}

	mac := hmac.New(sha512.New, key)
	mac.Write([]byte(urlPath))
	mac.Write(digest[:])

	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (api *KrakenSyncAPI) query(urlPath string, headers map[string]string, postData string, result interface{}) error {
	req, err := http.NewRequest(http.MethodPost, api.endpoint+urlPath, strings.NewReader(postData))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := api.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("bad status code %d from %s", resp.StatusCode, urlPath)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	return unpackEnvelope(body, result)
}

// unpackEnvelope splits the {"error": [...], "result": ...} envelope the
// exchange wraps every response in.
func unpackEnvelope(body []byte, result interface{}) error {
	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("could not parse response: %w", err)
	}

	if len(envelope.Error) > 0 {
		return &APIError{Messages: envelope.Error}
	}

	if result == nil || len(envelope.Result) == 0 {
		return nil
	}
	return json.Unmarshal(envelope.Result, result)
}
