package promclient

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var MirroredBooksGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "kraken_mirrored_order_books",
		Help: "order books currently mirrored from the feed",
	},
)

var BookUpdatesCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kraken_book_updates_applied_total",
		Help: "incremental book updates applied to mirrored books",
	},
)

var ChecksumFailuresCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kraken_book_checksum_failures_total",
		Help: "book checksum verifications that failed",
	},
)

var TradesSeenCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "kraken_trades_seen_total",
		Help: "public trades received from the feed",
	},
)

func StartPromClientServer(addr string) {
	reg := prometheus.NewRegistry()
	promHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	reg.MustRegister(MirroredBooksGauge)
	reg.MustRegister(BookUpdatesCounter)
	reg.MustRegister(ChecksumFailuresCounter)
	reg.MustRegister(TradesSeenCounter)
	reg.MustRegister(collectors.NewGoCollector())

	http.Handle("/metrics", promHandler)
	log.Printf("prometheus server listening at %s", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
