package services

import (
	"context"
	"sort"

	"verilotto/internal/models"
)

// ListRounds returns round summaries, latest draw time first.
func (s *LotteryService) ListRounds(ctx context.Context) ([]models.RoundSummary, error) {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(rounds, func(i, j int) bool {
		if rounds[i].DrawTime.Equal(rounds[j].DrawTime) {
			return rounds[i].ID > rounds[j].ID
		}
		return rounds[i].DrawTime.After(rounds[j].DrawTime)
	})
	return rounds, nil
}

// GetRound returns one round with its tickets.
func (s *LotteryService) GetRound(ctx context.Context, roundID int64) (models.Round, error) {
	return s.store.GetRound(ctx, roundID)
}

// CountRounds returns how many rounds were ever created.
func (s *LotteryService) CountRounds(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// GetWinners returns the buyer of every winning ticket in purchase order.
// Open rounds and rounds without winners yield an empty slice.
func (s *LotteryService) GetWinners(ctx context.Context, roundID int64) ([]models.Address, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if !round.Settled() || round.WinnerCount == 0 {
		return []models.Address{}, nil
	}
	return round.Winners(), nil
}

// WinningTickets returns the winning tickets of a settled round.
func (s *LotteryService) WinningTickets(ctx context.Context, roundID int64) (models.Round, []models.Ticket, error) {
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return models.Round{}, nil, err
	}
	tickets := make([]models.Ticket, 0, round.WinnerCount)
	if !round.Settled() {
		return round, tickets, nil
	}
	for _, t := range round.Tickets {
		if t.IsWinner(round.WinningNumber) {
			tickets = append(tickets, t)
		}
	}
	return round, tickets, nil
}

// AggregateStats folds one snapshot of every round into totals.
func (s *LotteryService) AggregateStats(ctx context.Context) (models.Stats, error) {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return models.Stats{}, err
	}
	var stats models.Stats
	for _, r := range rounds {
		stats.Add(r)
	}
	return stats, nil
}

// Events returns settlement events with sequence numbers above after.
func (s *LotteryService) Events(after uint64, limit int) []models.SettlementEvent {
	return s.events.After(after, limit)
}

// EventEpoch identifies the current event log. It changes on every restart.
func (s *LotteryService) EventEpoch() string {
	return s.events.Epoch()
}
