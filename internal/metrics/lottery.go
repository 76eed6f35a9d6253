// Package metrics exposes Prometheus instruments for the lottery engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"verilotto/internal/models"
)

var (
	ticketTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_ticket_purchases_total",
			Help: "Ticket purchase attempts by result code",
		},
		[]string{"result"},
	)

	roundsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_rounds_created_total",
			Help: "Rounds opened by the operator",
		},
	)

	drawTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lottery_draws_total",
			Help: "Draw attempts by result code",
		},
		[]string{"result"},
	)

	drawDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lottery_draw_duration_ms",
			Help:    "Draw processing duration in milliseconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"result"},
	)

	roundsSettled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lottery_rounds_settled_total",
			Help: "Rounds settled by a draw",
		},
	)

	settledWinners = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lottery_round_winners",
			Help:    "Winning tickets per settled round",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 100, 1000},
		},
	)
)

// ResultOK labels successful operations; failures use their error code.
const ResultOK = "ok"

// RecordTicket counts one purchase attempt.
func RecordTicket(result string) {
	ticketTotal.WithLabelValues(result).Inc()
}

// RecordRoundCreated counts one opened round.
func RecordRoundCreated() {
	roundsCreated.Inc()
}

// RecordDraw counts one draw attempt and its latency.
func RecordDraw(result string, started time.Time) {
	drawTotal.WithLabelValues(result).Inc()
	drawDuration.WithLabelValues(result).Observe(float64(time.Since(started).Milliseconds()))
}

// RecordSettlement counts a settled round and observes its winner count.
// Its signature matches services.SettlementObserverFunc.
func RecordSettlement(ev models.SettlementEvent) {
	roundsSettled.Inc()
	settledWinners.Observe(float64(ev.WinnerCount))
}
