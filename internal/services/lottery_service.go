package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/logger"

	"verilotto/internal/metrics"
	"verilotto/internal/models"
	"verilotto/internal/storage"
)

// Options wires a LotteryService.
type Options struct {
	Store       storage.RoundStore
	Access      *AccessControl
	Clock       Clock
	Commitments CommitmentPolicy
	// DefaultTicketPrice applies to rounds created without an explicit price.
	DefaultTicketPrice int64
	Observers          []SettlementObserver
	EventCapacity      int
}

// LotteryService is the engine: round creation, registration, draw and
// read projections over one RoundStore.
//
// Mutations of a round (BuyTicket, Draw) hold that round's lock for their
// whole check-then-write sequence, so every round sees a total order of
// mutations. Reads go straight to the store.
type LotteryService struct {
	store       storage.RoundStore
	access      *AccessControl
	clock       Clock
	commitments CommitmentPolicy
	price       int64
	observers   []SettlementObserver
	events      *EventLog

	mu    sync.Mutex
	locks map[int64]*sync.Mutex // Key: round ID
}

// NewLotteryService creates and initializes a LotteryService. Settlement
// events for rounds already settled in the store are replayed into the
// event log in settlement order under a fresh epoch.
func NewLotteryService(ctx context.Context, opts Options) (*LotteryService, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("round store is required")
	}
	if opts.Access == nil {
		return nil, fmt.Errorf("access control is required")
	}
	if opts.DefaultTicketPrice <= 0 {
		return nil, fmt.Errorf("default ticket price must be positive")
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Commitments == nil {
		opts.Commitments = Keccak256Commitment()
	}

	s := &LotteryService{
		store:       opts.Store,
		access:      opts.Access,
		clock:       opts.Clock,
		commitments: opts.Commitments,
		price:       opts.DefaultTicketPrice,
		observers:   opts.Observers,
		events:      NewEventLog(opts.EventCapacity),
		locks:       make(map[int64]*sync.Mutex),
	}
	if err := s.replaySettlements(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Admin returns the admin identity.
func (s *LotteryService) Admin() models.Address {
	return s.access.Admin()
}

// IsAdmin reports whether identity may create and draw rounds.
func (s *LotteryService) IsAdmin(identity models.Address) bool {
	return s.access.IsAdmin(identity)
}

// CommitmentScheme names the active commitment policy.
func (s *LotteryService) CommitmentScheme() string {
	return s.commitments.Name()
}

// lockRound returns the unlock func for the round's exclusive lock.
func (s *LotteryService) lockRound(roundID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[roundID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[roundID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// requireRound fails with NOT_FOUND before any lock is allocated for an id
// that was never created. Rounds are never deleted, so a positive answer
// stays true.
func (s *LotteryService) requireRound(ctx context.Context, roundID int64) error {
	n, err := s.store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count rounds: %w", err)
	}
	if roundID < 0 || roundID >= n {
		return storage.RoundNotFound(roundID)
	}
	return nil
}

// ReleaseSettledLocks drops the locks of settled rounds. Settled rounds
// reject every mutation, so they no longer need serializing.
func (s *LotteryService) ReleaseSettledLocks(ctx context.Context) (int, error) {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	released := 0
	for _, r := range rounds {
		if _, ok := s.locks[r.ID]; ok && r.Settled() {
			delete(s.locks, r.ID)
			released++
		}
	}
	if released > 0 {
		logger.Infof("released %d settled round locks, %d remain", released, len(s.locks))
	}
	return released, nil
}

func (s *LotteryService) replaySettlements(ctx context.Context) error {
	rounds, err := s.store.ListRounds(ctx)
	if err != nil {
		return fmt.Errorf("list rounds: %w", err)
	}
	settled := make([]models.RoundSummary, 0)
	for _, r := range rounds {
		if r.Settled() {
			settled = append(settled, r)
		}
	}
	sort.SliceStable(settled, func(i, j int) bool {
		if settled[i].SettledAt.Equal(settled[j].SettledAt) {
			return settled[i].ID < settled[j].ID
		}
		return settled[i].SettledAt.Before(settled[j].SettledAt)
	})
	for _, r := range settled {
		s.events.Append(settlementEvent(r))
	}
	return nil
}

func settlementEvent(r models.RoundSummary) models.SettlementEvent {
	return models.SettlementEvent{
		RoundID:       r.ID,
		WinningNumber: r.WinningNumber,
		WinnerCount:   r.WinnerCount,
		TicketCount:   r.TicketCount,
		TotalAmount:   r.TotalAmount,
		SettledAt:     r.SettledAt,
	}
}

// resultLabel maps an operation outcome to a metrics label.
func resultLabel(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	return string(models.CodeOf(err))
}
