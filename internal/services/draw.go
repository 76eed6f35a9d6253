package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/logger"

	"verilotto/internal/metrics"
	"verilotto/internal/models"
)

// Reveal is the admin's disclosure of the winning number. Salt opens the
// round's commitment when one was recorded at creation.
type Reveal struct {
	WinningNumber int
	Salt          string
}

// Draw settles a round with the revealed winning number. It succeeds at most
// once per round; the winning number is taken from the reveal only and is
// never derived from the stored tickets.
func (s *LotteryService) Draw(ctx context.Context, roundID int64, caller models.Address, reveal Reveal) (models.SettlementEvent, error) {
	started := time.Now()
	ev, err := s.draw(ctx, roundID, caller, reveal)
	metrics.RecordDraw(resultLabel(err), started)
	if err != nil {
		logger.Warningf("draw of round %d by %s rejected: %v", roundID, caller, err)
		return models.SettlementEvent{}, err
	}
	return ev, nil
}

func (s *LotteryService) draw(ctx context.Context, roundID int64, caller models.Address, reveal Reveal) (models.SettlementEvent, error) {
	if err := s.access.authorize(caller, "draw"); err != nil {
		return models.SettlementEvent{}, err
	}
	if err := s.requireRound(ctx, roundID); err != nil {
		return models.SettlementEvent{}, err
	}

	unlock := s.lockRound(roundID)
	defer unlock()

	now := s.clock.Now()
	round, err := s.store.GetRound(ctx, roundID)
	if err != nil {
		return models.SettlementEvent{}, err
	}
	if round.Settled() {
		return models.SettlementEvent{}, models.NewError(models.CodeAlreadySettled,
			fmt.Sprintf("round %d was already drawn with %d", roundID, round.WinningNumber))
	}
	if now.Before(round.DrawTime) {
		return models.SettlementEvent{}, models.NewError(models.CodeTooEarly,
			fmt.Sprintf("round %d cannot be drawn before %s", roundID, round.DrawTime.Format(time.RFC3339)))
	}
	if !models.ValidNumber(reveal.WinningNumber) {
		return models.SettlementEvent{}, models.NewError(models.CodeNumberOutOfRange,
			fmt.Sprintf("winning number %d outside [%d, %d]", reveal.WinningNumber, models.MinNumber, models.MaxNumber))
	}
	if round.Commitment != "" {
		salt, err := DecodeSalt(reveal.Salt)
		if err != nil {
			return models.SettlementEvent{}, err
		}
		if err := s.commitments.Verify(round.Commitment, reveal.WinningNumber, salt); err != nil {
			return models.SettlementEvent{}, err
		}
	}

	winnerCount := models.CountWinners(round.Tickets, reveal.WinningNumber)
	if err := s.store.SettleRound(ctx, roundID, reveal.WinningNumber, winnerCount, now); err != nil {
		return models.SettlementEvent{}, err
	}

	round.State = models.RoundSettled
	round.WinningNumber = reveal.WinningNumber
	round.WinnerCount = winnerCount
	round.SettledAt = now.Truncate(time.Second).UTC()
	ev := s.events.Append(settlementEvent(round.RoundSummary))
	for _, o := range s.observers {
		o.RoundSettled(ev)
	}
	return ev, nil
}
