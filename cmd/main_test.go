package main

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"verilotto/internal/config"
	"verilotto/internal/deployment"
	"verilotto/internal/services"
	"verilotto/internal/storage"
)

func settledRounds(t *testing.T) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == "lottery_rounds_settled_total" {
			return f.GetMetric()[0].GetCounter().GetValue()
		}
	}
	return 0
}

func TestNewLotteryServiceRecordsSettlements(t *testing.T) {
	ctx := context.Background()
	manifest, err := deployment.NewManifest("0x00000000000000000000000000000000000ad111", "http://localhost:8080", "keccak256", time.Now())
	require.NoError(t, err)
	cfg := config.Config{TicketPrice: decimal.RequireFromString("0.01"), CurrencyDecimals: 18}

	svc, err := newLotteryService(ctx, cfg, manifest, storage.NewMemoryStore())
	require.NoError(t, err)

	admin, err := manifest.AdminAddress()
	require.NoError(t, err)
	r, err := svc.CreateRound(ctx, admin, services.CreateRoundRequest{Name: "wired", DrawTime: time.Now().Add(2 * time.Second)})
	require.NoError(t, err)
	require.Equal(t, int64(10_000_000_000_000_000), r.TicketPrice)

	before := settledRounds(t)
	require.Eventually(t, func() bool {
		_, err := svc.Draw(ctx, r.ID, admin, services.Reveal{WinningNumber: 4242})
		return err == nil
	}, 5*time.Second, 100*time.Millisecond)
	require.Equal(t, before+1, settledRounds(t))
}

func TestSettlementObservers(t *testing.T) {
	require.Len(t, settlementObservers(), 2)
}
