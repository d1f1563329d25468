package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/spooky-finn/go-kraken-client/config"
	"github.com/spooky-finn/go-kraken-client/helpers"
	"github.com/spooky-finn/go-kraken-client/kraken"
)

const usage = `usage: krakctl [flags] <command> [args]

Market data:
  time                              exchange server time
  system-status                     trading engine status
  assets                            asset list
  asset-pairs [pairs...]            pair metadata (all pairs when none given)
  ticker <pairs...>                 ticker info
  ohlc <pair> [interval]            candles, interval in minutes
  trades <pair>                     recent public trades

Private (needs credentials):
  balance                           account balance
  trade-volume <pairs...>           30-day volume and fee tier
  ws-token                          token for the private websocket feed
  open-orders                       currently open orders
  query-orders <txids...>           order info by transaction id
  market-buy <volume> <pair>        place a market buy
  market-sell <volume> <pair>       place a market sell
  limit-buy <volume> <pair> <price>   place a post-only limit buy
  limit-sell <volume> <pair> <price>  place a post-only limit sell
  cancel-order <id>                 cancel by txid or userref
  cancel-all                        cancel all open orders
  cancel-all-after <seconds>        arm the dead man's switch

Flags:
`

func main() {
	config.Load()

	credsPath := flag.String("creds", "", "json credentials file; KRAKEN_API_KEY/KRAKEN_API_SECRET are used otherwise")
	validate := flag.Bool("validate", false, "let the exchange validate orders without placing them")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	api := kraken.NewKrakenSyncAPI(loadCredentials(*credsPath))

	command, args := args[0], args[1:]
	switch command {
	case "time":
		printResult(api.Time())

	case "system-status":
		printResult(api.SystemStatus())

	case "assets":
		printResult(api.Assets())

	case "asset-pairs":
		printResult(api.AssetPairs(args))

	case "ticker":
		requireArgs(args, 1, "ticker <pairs...>")
		printResult(api.Ticker(args))

	case "ohlc":
		requireArgs(args, 1, "ohlc <pair> [interval]")
		interval := 0
		if len(args) > 1 {
			parsed, err := strconv.Atoi(args[1])
			if err != nil {
				fatalf("bad interval %q: %s", args[1], err)
			}
			interval = parsed
		}
		printResult(api.OHLCAtInterval(args[0], interval, ""))

	case "trades":
		requireArgs(args, 1, "trades <pair>")
		printResult(api.RecentTrades(args[0], ""))

	case "balance":
		printResult(api.AccountBalance())

	case "trade-volume":
		requireArgs(args, 1, "trade-volume <pairs...>")
		printResult(api.TradeVolume(args))

	case "ws-token":
		printResult(api.WebSocketsToken())

	case "open-orders":
		printResult(api.OpenOrders(nil))

	case "query-orders":
		requireArgs(args, 1, "query-orders <txids...>")
		printResult(api.QueryOrders(args))

	case "market-buy":
		requireArgs(args, 2, "market-buy <volume> <pair>")
		order := kraken.MarketOrder{Side: kraken.Buy, Volume: args[0], Pair: args[1]}
		printResult(api.AddMarketOrder(order, nil, *validate))

	case "market-sell":
		requireArgs(args, 2, "market-sell <volume> <pair>")
		order := kraken.MarketOrder{Side: kraken.Sell, Volume: args[0], Pair: args[1]}
		printResult(api.AddMarketOrder(order, nil, *validate))

	case "limit-buy":
		requireArgs(args, 3, "limit-buy <volume> <pair> <price>")
		order := kraken.LimitOrder{Side: kraken.Buy, Volume: args[0], Pair: args[1], Price: args[2], OrderFlags: []string{"post"}}
		printResult(api.AddLimitOrder(order, nil, *validate))

	case "limit-sell":
		requireArgs(args, 3, "limit-sell <volume> <pair> <price>")
		order := kraken.LimitOrder{Side: kraken.Sell, Volume: args[0], Pair: args[1], Price: args[2], OrderFlags: []string{"post"}}
		printResult(api.AddLimitOrder(order, nil, *validate))

	case "cancel-order":
		requireArgs(args, 1, "cancel-order <id>")
		printResult(api.CancelOrder(args[0]))

	case "cancel-all":
		printResult(api.CancelAllOrders())

	case "cancel-all-after":
		requireArgs(args, 1, "cancel-all-after <seconds>")
		seconds, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			fatalf("bad timeout %q: %s", args[0], err)
		}
		printResult(api.CancelAllOrdersAfter(seconds))

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

func loadCredentials(path string) kraken.Credentials {
	if path == "" {
		return kraken.CredentialsFromEnv()
	}

	creds, err := kraken.LoadCredentialsFile(path)
	if err != nil {
		fatalf("%s", err)
	}
	return creds
}

func printResult(result interface{}, err error) {
	if err != nil {
		fatalf("api call failed: %s", err)
	}
	fmt.Println(helpers.ToPrettyJsonString(result))
}

func requireArgs(args []string, n int, form string) {
	if len(args) < n {
		fmt.Fprintf(os.Stderr, "usage: krakctl %s\n", form)
		os.Exit(2)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
