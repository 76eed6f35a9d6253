package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"

	"verilotto/internal/metrics"
	"verilotto/internal/models"
)

// CreateRoundRequest describes a round the admin wants to open.
type CreateRoundRequest struct {
	Name     string
	DrawTime time.Time
	// TicketPrice in smallest currency units; 0 selects the default price.
	TicketPrice int64
	// Commitment optionally binds the winning number now; see CommitmentPolicy.
	Commitment string
}

// CreateRound opens a new round. Only the admin may call it.
func (s *LotteryService) CreateRound(ctx context.Context, caller models.Address, req CreateRoundRequest) (models.Round, error) {
	if err := s.access.authorize(caller, "create round"); err != nil {
		return models.Round{}, err
	}

	price := req.TicketPrice
	if price == 0 {
		price = s.price
	}
	round, err := s.store.CreateRound(ctx, models.RoundDraft{
		Name:        req.Name,
		DrawTime:    req.DrawTime,
		TicketPrice: price,
		Commitment:  req.Commitment,
		CreatedAt:   s.clock.Now(),
	})
	if err != nil {
		return models.Round{}, err
	}

	metrics.RecordRoundCreated()
	logger.Infof("round %d %q opened, draw at %s, price %d, committed=%t",
		round.ID, round.Name, round.DrawTime.Format(time.RFC3339), round.TicketPrice, round.Commitment != "")
	return round, nil
}

// BuyTicket registers number for buyer in an open round. Checks run in a
// fixed order: round exists, window open, number in range, exact payment.
// Duplicate (buyer, number) tickets are recorded independently.
func (s *LotteryService) BuyTicket(ctx context.Context, roundID int64, buyer models.Address, number int, amount int64) (models.Ticket, error) {
	ticket, err := s.buyTicket(ctx, roundID, buyer, number, amount)
	metrics.RecordTicket(resultLabel(err))
	return ticket, err
}

func (s *LotteryService) buyTicket(ctx context.Context, roundID int64, buyer models.Address, number int, amount int64) (models.Ticket, error) {
	if buyer == "" {
		return models.Ticket{}, models.NewError(models.CodeInvalidInput, "buyer identity is required")
	}
	if err := s.requireRound(ctx, roundID); err != nil {
		return models.Ticket{}, err
	}

	unlock := s.lockRound(roundID)
	defer unlock()

	now := s.clock.Now()
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return models.Ticket{}, err
	}
	if !round.AcceptsTickets(now) {
		return models.Ticket{}, models.NewError(models.CodeRoundClosed, fmt.Sprintf("round %d is closed for registration", roundID))
	}
	if !models.ValidNumber(number) {
		return models.Ticket{}, models.NewError(models.CodeNumberOutOfRange,
			fmt.Sprintf("number %d outside [%d, %d]", number, models.MinNumber, models.MaxNumber))
	}
	if amount != round.TicketPrice {
		return models.Ticket{}, models.NewError(models.CodePaymentMismatch,
			fmt.Sprintf("payment %d does not match ticket price %d", amount, round.TicketPrice))
	}

	return s.store.AppendTicket(ctx, roundID, models.Ticket{
		Buyer:       buyer,
		Number:      number,
		Amount:      amount,
		PurchasedAt: now,
	})
}
