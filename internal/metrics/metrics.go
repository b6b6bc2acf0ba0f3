// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kartshart"

var (
	CartsConsolidated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "consolidated_total",
		Help:      "Duplicate active carts merged into their canonical cart.",
	})

	LoginMerges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "login_merges_total",
		Help:      "Login merge runs by outcome case.",
	}, []string{"case"})

	StockClamps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stock",
		Name:      "clamps_total",
		Help:      "Item quantities reduced to the available stock, by caller.",
	}, []string{"source"})

	CheckoutBlocks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "checkout_blocks_total",
		Help:      "Checkouts aborted by an unavailable item, by stock status.",
	}, []string{"status"})

	AddRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "cart",
		Name:      "add_rejections_total",
		Help:      "Add-to-cart requests refused, by reason.",
	}, []string{"reason"})
)
