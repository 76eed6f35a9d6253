package storage

import (
	"context"
	"sync"
	"time"

	"verilotto/internal/models"
)

// MemoryStore keeps rounds in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	rounds []*models.Round
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CreateRound appends a new open round.
func (s *MemoryStore) CreateRound(ctx context.Context, draft models.RoundDraft) (models.Round, error) {
	if err := ctx.Err(); err != nil {
		return models.Round{}, err
	}
	if err := draft.Validate(); err != nil {
		return models.Round{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round := &models.Round{
		RoundSummary: models.RoundSummary{
			ID:          int64(len(s.rounds)),
			Name:        draft.Name,
			DrawTime:    draft.DrawTime,
			State:       models.RoundOpen,
			TicketPrice: draft.TicketPrice,
			Commitment:  draft.Commitment,
			CreatedAt:   draft.CreatedAt,
		},
		Tickets: make([]models.Ticket, 0),
	}
	s.rounds = append(s.rounds, round)
	return copyRound(round), nil
}

// AppendTicket appends a ticket and updates the round totals.
func (s *MemoryStore) AppendTicket(ctx context.Context, roundID int64, ticket models.Ticket) (models.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return models.Ticket{}, err
	}
	if err := ValidateTicket(ticket); err != nil {
		return models.Ticket{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.lookup(roundID)
	if err != nil {
		return models.Ticket{}, err
	}
	if round.Settled() {
		return models.Ticket{}, RoundAlreadySettled(roundID)
	}

	total, err := AddToTotal(roundID, round.TotalAmount, ticket.Amount)
	if err != nil {
		return models.Ticket{}, err
	}

	ticket.RoundID = roundID
	ticket.Seq = len(round.Tickets)
	ticket.PurchasedAt = ticket.PurchasedAt.Truncate(time.Second).UTC()
	round.Tickets = append(round.Tickets, ticket)
	round.TicketCount = len(round.Tickets)
	round.TotalAmount = total
	return ticket, nil
}

// SettleRound marks the round settled with its outcome.
func (s *MemoryStore) SettleRound(ctx context.Context, roundID int64, winningNumber, winnerCount int, settledAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	round, err := s.lookup(roundID)
	if err != nil {
		return err
	}
	if round.Settled() {
		return RoundAlreadySettled(roundID)
	}
	round.State = models.RoundSettled
	round.WinningNumber = winningNumber
	round.WinnerCount = winnerCount
	round.SettledAt = settledAt.Truncate(time.Second).UTC()
	return nil
}

// GetRound returns a copy of the round.
func (s *MemoryStore) GetRound(ctx context.Context, roundID int64) (models.Round, error) {
	if err := ctx.Err(); err != nil {
		return models.Round{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	round, err := s.lookup(roundID)
	if err != nil {
		return models.Round{}, err
	}
	return copyRound(round), nil
}

// ListRounds returns all round summaries ordered by id.
func (s *MemoryStore) ListRounds(ctx context.Context) ([]models.RoundSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]models.RoundSummary, 0, len(s.rounds))
	for _, r := range s.rounds {
		summaries = append(summaries, r.RoundSummary)
	}
	return summaries, nil
}

// Count returns the number of rounds.
func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rounds)), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) lookup(roundID int64) (*models.Round, error) {
	if roundID < 0 || roundID >= int64(len(s.rounds)) {
		return nil, RoundNotFound(roundID)
	}
	return s.rounds[roundID], nil
}

func copyRound(r *models.Round) models.Round {
	out := *r
	out.Tickets = make([]models.Ticket, len(r.Tickets))
	copy(out.Tickets, r.Tickets)
	return out
}
