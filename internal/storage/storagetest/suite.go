// Package storagetest holds the behaviour every RoundStore backend must share.
package storagetest

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"verilotto/internal/models"
	"verilotto/internal/storage"
)

var (
	alice = models.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob   = models.MustParseAddress("0x0000000000000000000000000000000000000b0b")

	baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

// Factory opens a fresh, empty store for one subtest.
type Factory func(t *testing.T) storage.RoundStore

// RunRoundStoreSuite runs the shared RoundStore behaviour against a backend.
func RunRoundStoreSuite(t *testing.T, open Factory) {
	t.Run("create assigns dense ids", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			r, err := s.CreateRound(ctx, Draft("round", time.Hour))
			require.NoError(t, err)
			require.Equal(t, int64(i), r.ID)
			require.Equal(t, models.RoundOpen, r.State)
			require.Zero(t, r.TicketCount)
			require.Zero(t, r.TotalAmount)
			require.Zero(t, r.WinningNumber)
			require.Empty(t, r.Tickets)
		}
		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
	})

	t.Run("create rejects draw time not in the future", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.CreateRound(ctx, Draft("late", 0))
		require.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)
		_, err = s.CreateRound(ctx, Draft("later", -time.Minute))
		require.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		require.Zero(t, n)

		r, err := s.CreateRound(ctx, Draft("ok", time.Second))
		require.NoError(t, err)
		require.Equal(t, int64(0), r.ID)
	})

	t.Run("create rejects draw time past year 9999", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		d := Draft("far", time.Hour)
		d.DrawTime = time.Unix(1e12, 0)
		_, err := s.CreateRound(ctx, d)
		require.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)

		d.DrawTime = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)
		r, err := s.CreateRound(ctx, d)
		require.NoError(t, err)
		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.True(t, got.DrawTime.Equal(d.DrawTime), "draw time %v", got.DrawTime)
	})

	t.Run("create keeps draft fields", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		d := Draft("  Spring Draw ", time.Hour)
		d.Commitment = "0xAB" + zeros(62)
		r, err := s.CreateRound(ctx, d)
		require.NoError(t, err)

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, "Spring Draw", got.Name)
		require.True(t, got.DrawTime.Equal(baseTime.Add(time.Hour)), "draw time %v", got.DrawTime)
		require.True(t, got.CreatedAt.Equal(baseTime))
		require.Equal(t, int64(10), got.TicketPrice)
		require.Equal(t, "ab"+zeros(62), got.Commitment)
	})

	t.Run("append updates totals in purchase order", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r, err := s.CreateRound(ctx, Draft("round", time.Hour))
		require.NoError(t, err)

		buys := []models.Ticket{
			{Buyer: alice, Number: 4242, Amount: 10, PurchasedAt: baseTime},
			{Buyer: bob, Number: 4242, Amount: 10, PurchasedAt: baseTime.Add(time.Second)},
			{Buyer: alice, Number: 4242, Amount: 10, PurchasedAt: baseTime.Add(2 * time.Second)},
			{Buyer: bob, Number: 1000, Amount: 15, PurchasedAt: baseTime.Add(3 * time.Second)},
		}
		for i, b := range buys {
			tk, err := s.AppendTicket(ctx, r.ID, b)
			require.NoError(t, err)
			require.Equal(t, i, tk.Seq)
			require.Equal(t, r.ID, tk.RoundID)
		}

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 4, got.TicketCount)
		require.Equal(t, int64(45), got.TotalAmount)
		require.Len(t, got.Tickets, 4)
		for i, tk := range got.Tickets {
			require.Equal(t, buys[i].Buyer, tk.Buyer)
			require.Equal(t, buys[i].Number, tk.Number)
			require.Equal(t, buys[i].Amount, tk.Amount)
			require.True(t, tk.PurchasedAt.Equal(buys[i].PurchasedAt))
		}
	})

	t.Run("append rejects unknown round and bad tickets", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.AppendTicket(ctx, 7, models.Ticket{Buyer: alice, Number: 4242, Amount: 10})
		require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)

		r, err := s.CreateRound(ctx, Draft("round", time.Hour))
		require.NoError(t, err)
		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 999, Amount: 10})
		require.True(t, errors.Is(err, models.ErrNumberOutOfRange), "got %v", err)
		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 10000, Amount: 10})
		require.True(t, errors.Is(err, models.ErrNumberOutOfRange), "got %v", err)

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Zero(t, got.TicketCount)
		require.Zero(t, got.TotalAmount)
	})

	t.Run("large amounts add up exactly", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r, err := s.CreateRound(ctx, Draft("wei", time.Hour))
		require.NoError(t, err)

		const amount = int64(1_000_000_000_000_000_000) // 1.0 at 18 decimals
		var sum int64
		for i := 0; i < 9; i++ {
			tk, err := s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 1000 + i, Amount: amount, PurchasedAt: baseTime})
			require.NoError(t, err)
			sum += tk.Amount
		}

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 9, got.TicketCount)
		require.Equal(t, sum, got.TotalAmount)
		require.Equal(t, int64(9_000_000_000_000_000_000), got.TotalAmount)
	})

	t.Run("append rejects a ticket that overflows the total", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r, err := s.CreateRound(ctx, Draft("whale", time.Hour))
		require.NoError(t, err)

		const amount = int64(math.MaxInt64/2 - 1)
		for i := 0; i < 2; i++ {
			_, err := s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 4242, Amount: amount, PurchasedAt: baseTime})
			require.NoError(t, err)
		}
		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: bob, Number: 4242, Amount: amount, PurchasedAt: baseTime})
		require.True(t, errors.Is(err, models.ErrInvalidInput), "got %v", err)

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 2, got.TicketCount)
		require.Len(t, got.Tickets, 2)
		require.Equal(t, 2*amount, got.TotalAmount)

		// The round stays usable after the rejection.
		tk, err := s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: bob, Number: 4242, Amount: 1, PurchasedAt: baseTime})
		require.NoError(t, err)
		require.Equal(t, 2, tk.Seq)
		require.NoError(t, s.SettleRound(ctx, r.ID, 4242, 3, baseTime.Add(time.Hour)))

		list, err := s.ListRounds(ctx)
		require.NoError(t, err)
		require.Equal(t, 2*amount+1, list[0].TotalAmount)
	})

	t.Run("settle once then freeze", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r, err := s.CreateRound(ctx, Draft("round", time.Hour))
		require.NoError(t, err)
		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 1234, Amount: 10})
		require.NoError(t, err)

		settledAt := baseTime.Add(2 * time.Hour)
		require.NoError(t, s.SettleRound(ctx, r.ID, 1234, 1, settledAt))

		err = s.SettleRound(ctx, r.ID, 5678, 0, settledAt.Add(time.Minute))
		require.True(t, errors.Is(err, models.ErrAlreadySettled), "got %v", err)

		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: bob, Number: 1234, Amount: 10})
		require.True(t, errors.Is(err, models.ErrAlreadySettled), "got %v", err)

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, models.RoundSettled, got.State)
		require.Equal(t, 1234, got.WinningNumber)
		require.Equal(t, 1, got.WinnerCount)
		require.Equal(t, 1, got.TicketCount)
		require.True(t, got.SettledAt.Equal(settledAt))
	})

	t.Run("settle unknown round", func(t *testing.T) {
		s := open(t)
		err := s.SettleRound(context.Background(), 0, 1234, 0, baseTime)
		require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
	})

	t.Run("get returns a detached copy", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		r, err := s.CreateRound(ctx, Draft("round", time.Hour))
		require.NoError(t, err)
		_, err = s.AppendTicket(ctx, r.ID, models.Ticket{Buyer: alice, Number: 4242, Amount: 10})
		require.NoError(t, err)

		got, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		got.Tickets[0].Number = 1111
		got.TotalAmount = 0

		again, err := s.GetRound(ctx, r.ID)
		require.NoError(t, err)
		require.Equal(t, 4242, again.Tickets[0].Number)
		require.Equal(t, int64(10), again.TotalAmount)

		_, err = s.GetRound(ctx, 99)
		require.True(t, errors.Is(err, models.ErrNotFound), "got %v", err)
	})

	t.Run("list returns summaries by id", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		empty, err := s.ListRounds(ctx)
		require.NoError(t, err)
		require.Empty(t, empty)

		for _, name := range []string{"a", "b", "c"} {
			_, err := s.CreateRound(ctx, Draft(name, time.Hour))
			require.NoError(t, err)
		}
		_, err = s.AppendTicket(ctx, 1, models.Ticket{Buyer: bob, Number: 2000, Amount: 10})
		require.NoError(t, err)
		require.NoError(t, s.SettleRound(ctx, 2, 3000, 0, baseTime.Add(2*time.Hour)))

		list, err := s.ListRounds(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		for i, r := range list {
			require.Equal(t, int64(i), r.ID)
		}
		require.Equal(t, 1, list[1].TicketCount)
		require.Equal(t, int64(10), list[1].TotalAmount)
		require.Equal(t, models.RoundSettled, list[2].State)
		require.Equal(t, 3000, list[2].WinningNumber)
	})

	t.Run("canceled context", func(t *testing.T) {
		s := open(t)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := s.CreateRound(ctx, Draft("round", time.Hour))
		require.ErrorIs(t, err, context.Canceled)
	})
}

// Draft returns a round draft created at a fixed base time with price 10.
func Draft(name string, drawIn time.Duration) models.RoundDraft {
	return models.RoundDraft{
		Name:        name,
		DrawTime:    baseTime.Add(drawIn),
		TicketPrice: 10,
		CreatedAt:   baseTime,
	}
}

func zeros(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
