// Package storage defines the round store contract and an in-memory implementation.
package storage

import (
	"context"
	"fmt"
	"math"
	"time"

	"verilotto/internal/models"
)

// RoundStore is the authoritative collection of rounds and their tickets.
// It enforces structural invariants only: dense ids, append-only tickets,
// a single settlement per round. Timing and authorization are the caller's job.
//
// Errors are *models.Error values with codes NOT_FOUND, INVALID_INPUT or
// ALREADY_SETTLED; anything else is a backend failure.
type RoundStore interface {
	// CreateRound validates the draft and appends a new open round.
	CreateRound(ctx context.Context, draft models.RoundDraft) (models.Round, error)
	// AppendTicket appends to an open round and returns the stored ticket.
	AppendTicket(ctx context.Context, roundID int64, ticket models.Ticket) (models.Ticket, error)
	// SettleRound fixes the outcome of an open round.
	SettleRound(ctx context.Context, roundID int64, winningNumber, winnerCount int, settledAt time.Time) error
	// GetRound returns a copy of the round including its tickets.
	GetRound(ctx context.Context, roundID int64) (models.Round, error)
	// ListRounds returns every round summary, ordered by id.
	ListRounds(ctx context.Context) ([]models.RoundSummary, error)
	// Count returns the number of rounds ever created.
	Count(ctx context.Context) (int64, error)
	// Close releases backend resources.
	Close() error
}

// RoundNotFound is the error every backend returns for an unknown id.
func RoundNotFound(roundID int64) error {
	return models.NewError(models.CodeNotFound, fmt.Sprintf("round %d not found", roundID))
}

// RoundAlreadySettled is returned when mutating a settled round.
func RoundAlreadySettled(roundID int64) error {
	return models.NewError(models.CodeAlreadySettled, fmt.Sprintf("round %d already settled", roundID))
}

// ValidateTicket guards the ticket invariants every backend must hold.
func ValidateTicket(t models.Ticket) error {
	if !models.ValidNumber(t.Number) {
		return models.NewError(models.CodeNumberOutOfRange, fmt.Sprintf("number %d outside [%d, %d]", t.Number, models.MinNumber, models.MaxNumber))
	}
	if t.Buyer == "" {
		return models.NewError(models.CodeInvalidInput, "ticket buyer is required")
	}
	if t.Amount <= 0 {
		return models.NewError(models.CodeInvalidInput, "ticket amount must be positive")
	}
	return nil
}

// AddToTotal returns the round total after accepting amount, or
// INVALID_INPUT when the total would no longer fit in an int64. Backends
// call it before writing anything so a rejected ticket leaves no trace.
func AddToTotal(roundID, total, amount int64) (int64, error) {
	if amount > math.MaxInt64-total {
		return 0, models.NewError(models.CodeInvalidInput,
			fmt.Sprintf("round %d total %d cannot take another %d", roundID, total, amount))
	}
	return total + amount, nil
}
