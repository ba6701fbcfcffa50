package usagemetrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer builds the HTTP server serving /metrics on addr for gatherer. A
// nil gatherer serves prometheus.DefaultGatherer. A dedicated mux is used
// rather than the global http.DefaultServeMux so a process can host this
// alongside other HTTP surfaces without a registration collision.
func NewServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux}
}
