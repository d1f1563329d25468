package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spooky-finn/go-kraken-client/config"
	"github.com/spooky-finn/go-kraken-client/domain"
	"github.com/spooky-finn/go-kraken-client/helpers"
	promclient "github.com/spooky-finn/go-kraken-client/infrastructure/prometheus"
	"github.com/spooky-finn/go-kraken-client/kraken"
)

const usage = `usage: krakfeed [flags] <command> [args]

Commands:
  book <pairs...>    mirror order books and print them as they change
  own-orders         mirror open orders from the private feed

Flags:
`

const pollInterval = 100 * time.Millisecond

func main() {
	config.Load()

	credsPath := flag.String("creds", "", "json credentials file; KRAKEN_API_KEY/KRAKEN_API_SECRET are used otherwise")
	depth := flag.Int("depth", 10, "book depth tier: 10, 25, 100, 500 or 1000")
	trades := flag.Bool("trades", false, "also subscribe to public trades and print them")
	metricsAddr := flag.String("metrics", "", "serve prometheus metrics at this address, e.g. :2112")
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

	if *metricsAddr != "" {
		go promclient.StartPromClientServer(*metricsAddr)
	}

	interrupted := make(chan os.Signal, 1)
	signal.Notify(interrupted, syscall.SIGINT, syscall.SIGTERM)

	command, args := args[0], args[1:]
	switch command {
	case "book":
		runBook(args, *depth, *trades, interrupted)

	case "own-orders":
		runOwnOrders(loadCredentials(*credsPath), interrupted)

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", command)
		flag.Usage()
		os.Exit(2)
	}
}

// runBook keeps a mirror of the books for the given pairs and reprints
// every book whenever the rendered state changes.
func runBook(pairs []string, depth int, trades bool, interrupted <-chan os.Signal) {
	if len(pairs) == 0 {
		fmt.Fprintln(os.Stderr, "usage: krakfeed book <pairs...>")
		os.Exit(2)
	}

	api, err := kraken.NewKrakenWsAPI(kraken.KrakenWsConfig{
		SubscribeBook:   pairs,
		BookDepth:       depth,
		SubscribeTrades: trades,
	})
	if err != nil {
		fatalf("could not start feed session: %s", err)
	}
	defer api.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	rendered := ""
	for {
		select {
		case <-interrupted:
			return
		case <-ticker.C:
		}

		for _, trade := range api.GetTrades() {
			fmt.Printf("trade %s\n", helpers.ToJsonString(trade))
		}

		books := api.GetAllBooks()
		if next := renderBooks(books); next != rendered {
			fmt.Print(next)
			rendered = next
		}

		for _, book := range books {
			if book.ChecksumFailed {
				fmt.Println("Checksum failed, aborting")
				return
			}
		}

		if api.StreamClosed() {
			fmt.Println("Stream closed")
			return
		}
	}
}

// runOwnOrders fetches a websocket token over REST, mirrors the private
// openOrders channel and reprints the open set whenever it changes.
func runOwnOrders(creds kraken.Credentials, interrupted <-chan os.Signal) {
	restAPI := kraken.NewKrakenSyncAPI(creds)
	token, err := restAPI.WebSocketsToken()
	if err != nil {
		fatalf("could not get a websockets token: %s", err)
	}

	api, err := kraken.NewKrakenWsAPI(kraken.KrakenWsConfig{
		Private: &kraken.PrivateWsConfig{
			Token:               token.Token,
			SubscribeOpenOrders: true,
		},
	})
	if err != nil {
		fatalf("could not start feed session: %s", err)
	}
	defer api.Close()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	rendered := ""
	for {
		select {
		case <-interrupted:
			return
		case <-ticker.C:
		}

		if next := helpers.ToPrettyJsonString(api.GetOpenOrders()); next != rendered {
			fmt.Println("Orders:")
			fmt.Println(next)
			rendered = next
		}

		if api.StreamClosed() {
			fmt.Println("Stream closed")
			return
		}
	}
}

// renderBooks renders all books pair by pair, bids then asks, best levels
// first. Rendering to a string makes change detection a plain comparison.
func renderBooks(books map[string]domain.OrderBook) string {
	pairs := make([]string, 0, len(books))
	for pair := range books {
		pairs = append(pairs, pair)
	}
	sort.Strings(pairs)

	var sb strings.Builder
	for _, pair := range pairs {
		book := books[pair]
		fmt.Fprintf(&sb, "%s bids:\n", pair)
		for _, entry := range book.BidsDescending() {
			fmt.Fprintf(&sb, "  %s\t\t%s\n", entry.PriceStr, entry.VolumeStr)
		}
		fmt.Fprintf(&sb, "%s asks:\n", pair)
		for _, entry := range book.AsksAscending() {
			fmt.Fprintf(&sb, "  %s\t\t%s\n", entry.PriceStr, entry.VolumeStr)
		}
		sb.WriteString("\n")
	}
	return sb.String()
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

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
