// Package metrics builds the root tally.Scope every component
// sub-scopes its own counters and gauges from, and exposes it over
// either a Prometheus or statsd reporter (spec.md §6).
package metrics

import (
	"fmt"
	"io"
	nethttp "net/http"
	"strings"
	"time"

	"github.com/cactus/go-statsd-client/statsd"
	log "github.com/sirupsen/logrus"
	"github.com/uber-go/tally"
	tallyprom "github.com/uber-go/tally/prometheus"
	tallystatsd "github.com/uber-go/tally/statsd"
)

// Config selects which metrics backend to report to. At most one of
// Prometheus/Statsd should be enabled; if neither is, metrics are
// computed but discarded via a noop statsd client.
type Config struct {
	Prometheus *PrometheusConfig `yaml:"prometheus"`
	Statsd     *StatsdConfig     `yaml:"statsd"`
}

// PrometheusConfig enables scraping metrics off a /metrics endpoint.
type PrometheusConfig struct {
	Enable bool `yaml:"enable"`
}

// StatsdConfig enables pushing metrics to a statsd endpoint.
type StatsdConfig struct {
	Enable   bool   `yaml:"enable"`
	Endpoint string `yaml:"endpoint"`
}

// InitMetricScope builds the root scope, its closer, and an HTTP mux
// exposing /metrics (Prometheus mode) and /health.
func InitMetricScope(cfg *Config, rootMetricScope string, flushInterval time.Duration) (tally.Scope, io.Closer, *nethttp.ServeMux) {
	mux := nethttp.NewServeMux()
	var reporter tally.StatsReporter
	var cachedReporter tally.CachedStatsReporter
	var promHandler nethttp.Handler
	separator := "."

	switch {
	case cfg.Prometheus != nil && cfg.Prometheus.Enable:
		// tally panics on scope names containing "-"
		rootMetricScope = strings.Replace(rootMetricScope, "-", "_", -1)
		separator = "_"
		promReporter := tallyprom.NewReporter(tallyprom.Options{})
		cachedReporter = promReporter
		promHandler = promReporter.HTTPHandler()
	case cfg.Statsd != nil && cfg.Statsd.Enable:
		log.WithField("endpoint", cfg.Statsd.Endpoint).Info("metrics: reporting to statsd")
		c, err := statsd.NewClient(cfg.Statsd.Endpoint, "")
		if err != nil {
			log.WithError(err).Fatal("metrics: failed to create statsd client")
		}
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	default:
		log.Warn("metrics: no backend configured, metrics are computed but discarded")
		c, _ := statsd.NewNoopClient()
		reporter = tallystatsd.NewReporter(c, tallystatsd.Options{})
	}

	if promHandler != nil {
		mux.Handle("/metrics", promHandler)
	}
	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		w.WriteHeader(nethttp.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	scope, closer := tally.NewRootScope(tally.ScopeOptions{
		Prefix:         rootMetricScope,
		Tags:           map[string]string{},
		Reporter:       reporter,
		CachedReporter: cachedReporter,
		Separator:      separator,
	}, flushInterval)
	return scope, closer, mux
}
