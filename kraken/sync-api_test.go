package kraken

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignRequest_MatchesPublishedExample(t *testing.T) {
	// worked example from the exchange's API documentation
	urlPath := "/0/private/AddOrder"
	nonce := "1616492376594"
	postData := "nonce=1616492376594&ordertype=limit&pair=XBTUSD&price=37500&type=buy&volume=1.25"
	secret := "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="

	signature, err := signRequest(urlPath, nonce, postData, secret)
	require.NoError(t, err)
	assert.Equal(t, "4/dpxb3iT4tp/ZCVEwSnEsLxx0bqyhLpdfOpc6fn7OR8+UClSV5n9E6aSS8MPtnRfp32bAb0nmbRn6H8ndwLUQ==", signature)
}

func TestSignRequest_RejectsMalformedSecret(t *testing.T) {
	_, err := signRequest("/0/private/Balance", "1", "nonce=1", "not base64 !!!")
	assert.Error(t, err)
}

func TestUnpackEnvelope(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		expectError bool
	}{
		{name: "result only", body: `{"error":[],"result":{"unixtime":1616336594}}`},
		{name: "missing error field", body: `{"result":{"unixtime":1616336594}}`},
		{name: "exchange error", body: `{"error":["EGeneral:Invalid arguments"]}`, expectError: true},
		{name: "not json", body: `<html>`, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var result TimeResponse
			err := unpackEnvelope([]byte(tc.body), &result)

			if tc.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, int64(1616336594), result.Unixtime)
			}
		})
	}
}

func TestUnpackEnvelope_ExchangeErrorsAreTyped(t *testing.T) {
	body := `{"error":["EOrder:Insufficient funds","EGeneral:Temporary lockout"],"result":null}`

	err := unpackEnvelope([]byte(body), nil)
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, []string{"EOrder:Insufficient funds", "EGeneral:Temporary lockout"}, apiErr.Messages)
	assert.Contains(t, err.Error(), "EOrder:Insufficient funds")
}

func TestLastAndData_Decode(t *testing.T) {
	testCases := []struct {
		name        string
		body        string
		expectError bool
		expectLast  string
		expectData  int
	}{
		{name: "string cursor", body: `{"XXBTZUSD":19,"last":"1616663618269000000"}`, expectLast: "1616663618269000000", expectData: 19},
		{name: "numeric cursor", body: `{"XXBTZUSD":19,"last":1616663618269000000}`, expectLast: "1616663618269000000", expectData: 19},
		{name: "cursor listed first", body: `{"last":"7","XETHZUSD":3}`, expectLast: "7", expectData: 3},
		{name: "two data keys", body: `{"XXBTZUSD":1,"XETHZUSD":2,"last":"7"}`, expectError: true},
		{name: "no data key", body: `{"last":"7"}`, expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded LastAndData[int]
			err := json.Unmarshal([]byte(tc.body), &decoded)

			if tc.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expectLast, decoded.Last)
			assert.Equal(t, tc.expectData, decoded.Data)
		})
	}
}

func TestOHLCRow_Decode(t *testing.T) {
	body := `[1616662740,"52591.9","52599.9","52591.8","52599.9","52599.1","0.11091626",5]`

	var row OHLCRow
	require.NoError(t, json.Unmarshal([]byte(body), &row))

	assert.Equal(t, int64(1616662740), row.Time)
	assert.True(t, row.Open.Equal(decimal.RequireFromString("52591.9")), "open %s", row.Open)
	assert.True(t, row.High.Equal(decimal.RequireFromString("52599.9")), "high %s", row.High)
	assert.True(t, row.Low.Equal(decimal.RequireFromString("52591.8")), "low %s", row.Low)
	assert.True(t, row.Close.Equal(decimal.RequireFromString("52599.9")), "close %s", row.Close)
	assert.True(t, row.VWAP.Equal(decimal.RequireFromString("52599.1")), "vwap %s", row.VWAP)
	assert.True(t, row.Volume.Equal(decimal.RequireFromString("0.11091626")), "volume %s", row.Volume)
	assert.Equal(t, int64(5), row.Count)
}

func TestOHLCRow_DecodeRejectsShortRow(t *testing.T) {
	var row OHLCRow
	err := json.Unmarshal([]byte(`[1616662740,"52591.9"]`), &row)
	assert.Error(t, err)
}

func TestRecentTrade_Decode(t *testing.T) {
	// the exchange appends a numeric trade id to newer responses
	body := `["52601.10000","0.00080000",1616663618.0362,"b","l","",39256789]`

	var trade RecentTrade
	require.NoError(t, json.Unmarshal([]byte(body), &trade))

	assert.True(t, trade.Price.Equal(decimal.RequireFromString("52601.10000")), "price %s", trade.Price)
	assert.True(t, trade.Volume.Equal(decimal.RequireFromString("0.00080000")), "volume %s", trade.Volume)
	assert.Equal(t, "b", trade.Side)
	assert.Equal(t, "l", trade.OrderType)
}

func TestQueryPrivate_RequiresCredentials(t *testing.T) {
	api := NewKrakenSyncAPI(Credentials{})

	_, err := api.AccountBalance()
	assert.ErrorIs(t, err, ErrMissingCredentials)
}

func TestSyncAPI_PublicRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/0/public/Time", r.URL.Path)

		w.Write([]byte(`{"error":[],"result":{"unixtime":1616336594,"rfc1123":"Sun, 21 Mar 21 14:23:14 +0000"}}`))
	}))
	defer srv.Close()

	api := &KrakenSyncAPI{endpoint: srv.URL, client: srv.Client()}

	resp, err := api.Time()
	require.NoError(t, err)
	assert.Equal(t, int64(1616336594), resp.Unixtime)
}

func TestSyncAPI_PrivateRoundTrip(t *testing.T) {
	secret := "kQH5HW/8p1uGOVjbgWA7FunAmGO8lsSUXNsu3eow76sz84Q18fWxnyRzBHCd3pd5nE9qa99HAZtuZuj6F1huXg=="

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/private/AddOrder", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("API-Key"))
		assert.NotEmpty(t, r.Header.Get("API-Sign"))

		assert.NoError(t, r.ParseForm())
		assert.NotEmpty(t, r.PostForm.Get("nonce"))
		assert.Equal(t, "limit", r.PostForm.Get("ordertype"))
		assert.Equal(t, "buy", r.PostForm.Get("type"))
		assert.Equal(t, "XBTUSD", r.PostForm.Get("pair"))
		assert.Equal(t, "37500", r.PostForm.Get("price"))
		assert.Equal(t, "1.25", r.PostForm.Get("volume"))
		assert.Equal(t, "true", r.PostForm.Get("validate"))

		w.Write([]byte(`{"error":[],"result":{"descr":{"order":"buy 1.25 XBTUSD @ limit 37500"},"txid":["OUF4EM-FRGI2-MQMWZD"]}}`))
	}))
	defer srv.Close()

	api := &KrakenSyncAPI{
		endpoint: srv.URL,
		client:   srv.Client(),
		creds:    Credentials{Key: "test-key", Secret: secret},
	}

	order := LimitOrder{Side: Buy, Pair: "XBTUSD", Volume: "1.25", Price: "37500"}
	resp, err := api.AddLimitOrder(order, nil, true)
	require.NoError(t, err)

	assert.Equal(t, []string{"OUF4EM-FRGI2-MQMWZD"}, resp.TxIDs)
	assert.Equal(t, "buy 1.25 XBTUSD @ limit 37500", resp.Descr.Order)
}

func TestRestPair(t *testing.T) {
	assert.Equal(t, "XBTUSD", restPair("XBT/USD"))
	assert.Equal(t, "XBTUSD", restPair("XBTUSD"))
	assert.Equal(t, "XXBTZUSD", restPair("XXBTZUSD"))
	assert.Equal(t, "XBT/USD/EUR", restPair("XBT/USD/EUR"), "unparseable names pass through untouched")
}

func TestSyncAPI_PairParamsAcceptFeedNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/0/public/Ticker", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "XBTUSD,ETHEUR,XXBTZUSD", r.PostForm.Get("pair"))

		w.Write([]byte(`{"error":[],"result":{}}`))
	}))
	defer srv.Close()

	api := &KrakenSyncAPI{endpoint: srv.URL, client: srv.Client()}

	_, err := api.Ticker([]string{"XBT/USD", "ETH/EUR", "XXBTZUSD"})
	require.NoError(t, err)
}

func TestSyncAPI_BadStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	api := &KrakenSyncAPI{endpoint: srv.URL, client: srv.Client()}

	_, err := api.Time()
	assert.Error(t, err)
}
