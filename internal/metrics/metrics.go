// Package metrics exports session activity as prometheus collectors.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"serumdepth/internal/book"
	"serumdepth/internal/common/timestamp"
	"serumdepth/internal/session"
)

// Observer implements session.Observer.
type Observer struct {
	Updates        *prometheus.CounterVec
	DecodeErrors   *prometheus.CounterVec
	DepthErrors    *prometheus.CounterVec
	Dropped        *prometheus.CounterVec
	Price          *prometheus.GaugeVec
	Orders         *prometheus.GaugeVec
	Slot           *prometheus.GaugeVec
	ProcessLatency *prometheus.HistogramVec
}

var _ session.Observer = (*Observer)(nil)

func NewObserver(market string) *Observer {
	labels := prometheus.Labels{"market": market}
	return &Observer{
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serum_book_updates_total", Help: "Decoded book snapshots by side", ConstLabels: labels,
		}, []string{"side"}),
		DecodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serum_book_decode_errors_total", Help: "Undecodable book snapshots by side and reason", ConstLabels: labels,
		}, []string{"side", "reason"}),
		DepthErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serum_depth_errors_total", Help: "Snapshots too shallow for the configured quantity", ConstLabels: labels,
		}, []string{"side"}),
		Dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "serum_updates_dropped_total", Help: "Updates dropped from a full queue", ConstLabels: labels,
		}, []string{"side"}),
		Price: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serum_cumulative_price", Help: "Last cumulative crossing price by side", ConstLabels: labels,
		}, []string{"side"}),
		Orders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serum_book_orders", Help: "Orders in the last snapshot by side", ConstLabels: labels,
		}, []string{"side"}),
		Slot: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "serum_book_slot", Help: "Slot of the last snapshot by side", ConstLabels: labels,
		}, []string{"side"}),
		ProcessLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "serum_update_latency_seconds", Help: "Receipt to quote latency", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"side"}),
	}
}

func (o *Observer) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		o.Updates, o.DecodeErrors, o.DepthErrors, o.Dropped,
		o.Price, o.Orders, o.Slot, o.ProcessLatency,
	}
}

func (o *Observer) OnUpdate(u session.Update) {
	side := u.Side.String()
	o.Updates.WithLabelValues(side).Inc()
	o.Orders.WithLabelValues(side).Set(float64(u.Book.Len()))
	o.Slot.WithLabelValues(side).Set(float64(u.Slot))
	if u.PriceErr == nil {
		o.Price.WithLabelValues(side).Set(u.Price.InexactFloat64())
	}
	if !u.Received.IsZero() {
		o.ProcessLatency.WithLabelValues(side).Observe(timestamp.Now().Sub(u.Received).Seconds())
	}
}

func (o *Observer) OnDecodeError(side book.Side, err error) {
	reason := "other"
	var de *book.DecodeError
	if errors.As(err, &de) {
		reason = de.Reason.String()
	}
	o.DecodeErrors.WithLabelValues(side.String(), reason).Inc()
}

func (o *Observer) OnDepthError(side book.Side, _ error) {
	o.DepthErrors.WithLabelValues(side.String()).Inc()
}

func (o *Observer) OnDrop(side book.Side) {
	o.Dropped.WithLabelValues(side.String()).Inc()
}

// Registry returns a registry holding the runtime collectors and cs.
func Registry(logger zerolog.Logger, cs ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	cs = append(cs,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			logger.Warn().Err(err).Msg("metrics: register")
		}
	}
	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Serve starts serving reg on addr under /metrics in the background.
func Serve(addr string, reg *prometheus.Registry, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("addr", addr).Msg("metrics: serve")
		}
	}()
	logger.Info().Str("addr", addr).Msg("metrics: listening")
	return srv
}
