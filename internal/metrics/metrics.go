// Package metrics exposes node counters in Prometheus format. Counters are
// fed by the event emitter, so they only count committed work.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tolelom/battlechain/events"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	reg *prometheus.Registry

	BlockHeight   prometheus.Gauge
	BlocksTotal   prometheus.Counter
	TxTotal       *prometheus.CounterVec
	GamesCreated  prometheus.Counter
	GamesFinished *prometheus.CounterVec
	Torpedoes     *prometheus.CounterVec
	PotPaid       prometheus.Counter
}

// New registers the node metrics. mempoolSize may be nil.
func New(mempoolSize func() int) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		BlockHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "battlechain",
			Name:      "block_height",
			Help:      "Height of the last committed block.",
		}),
		BlocksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "blocks_total",
			Help:      "Blocks committed by this node.",
		}),
		TxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "transactions_total",
			Help:      "Transactions processed, by type and outcome.",
		}, []string{"type", "outcome"}),
		GamesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "games_created_total",
			Help:      "Games opened.",
		}),
		GamesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "games_finished_total",
			Help:      "Games finished, by winning condition.",
		}, []string{"cond"}),
		Torpedoes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "torpedo_results_total",
			Help:      "Revealed torpedo results.",
		}, []string{"result"}),
		PotPaid: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "battlechain",
			Name:      "payout_tokens_total",
			Help:      "Tokens released from game escrow.",
		}),
	}
	m.reg.MustRegister(
		m.BlockHeight, m.BlocksTotal, m.TxTotal, m.GamesCreated,
		m.GamesFinished, m.Torpedoes, m.PotPaid,
		collectors.NewGoCollector(),
	)
	if mempoolSize != nil {
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "battlechain",
			Name:      "mempool_size",
			Help:      "Pending transactions.",
		}, func() float64 { return float64(mempoolSize()) }))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Observe subscribes the counters to emitter.
func (m *Metrics) Observe(emitter *events.Emitter) {
	emitter.Subscribe(events.EventBlockCommit, func(ev events.Event) {
		m.BlocksTotal.Inc()
		m.BlockHeight.Set(float64(ev.BlockHeight))
	})
	emitter.Subscribe(events.EventTxExecuted, func(ev events.Event) {
		var p events.TxExecuted
		if ev.Decode(&p) == nil {
			m.TxTotal.WithLabelValues(p.Type, "executed").Inc()
		}
	})
	emitter.Subscribe(events.EventTxFailed, func(ev events.Event) {
		var p events.TxFailed
		if ev.Decode(&p) == nil {
			m.TxTotal.WithLabelValues(p.Type, "failed").Inc()
		}
	})
	emitter.Subscribe(events.EventGameCreated, func(events.Event) { m.GamesCreated.Inc() })
	emitter.Subscribe(events.EventGameFinished, func(ev events.Event) {
		var p events.GameFinished
		if ev.Decode(&p) == nil {
			m.GamesFinished.WithLabelValues(p.WinningCond).Inc()
		}
	})
	emitter.Subscribe(events.EventTorpedoResult, func(ev events.Event) {
		var p events.TorpedoResult
		if ev.Decode(&p) != nil {
			return
		}
		result := "miss"
		if p.Result == 1 {
			result = "hit"
		}
		m.Torpedoes.WithLabelValues(result).Inc()
	})
	emitter.Subscribe(events.EventGamePaid, func(ev events.Event) {
		var p events.GamePaid
		if ev.Decode(&p) == nil {
			m.PotPaid.Add(float64(p.Amount))
		}
	})
}
