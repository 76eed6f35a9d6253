package models

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Ticket numbers live in a fixed 4-digit space.
const (
	MinNumber = 1000
	MaxNumber = 9999

	maxRoundNameLength = 128
	// Timestamps past this year have no RFC 3339 encoding.
	maxDrawYear = 9999
)

// RoundState is the lifecycle state of a round. The only transition is
// RoundOpen -> RoundSettled.
type RoundState string

const (
	RoundOpen    RoundState = "open"
	RoundSettled RoundState = "settled"
)

// ValidNumber reports whether n is a registrable ticket number.
func ValidNumber(n int) bool {
	return n >= MinNumber && n <= MaxNumber
}

// Ticket is one registration of a guess number against a round.
type Ticket struct {
	RoundID     int64     `json:"roundId"`
	Seq         int       `json:"seq"`
	Buyer       Address   `json:"buyer"`
	Number      int       `json:"number"`
	Amount      int64     `json:"amount"`
	PurchasedAt time.Time `json:"purchasedAt"`
}

// IsWinner reports whether the ticket matches the winning number.
func (t Ticket) IsWinner(winningNumber int) bool {
	return t.Number == winningNumber
}

// RoundSummary is a round without its ticket sequence.
type RoundSummary struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	DrawTime      time.Time  `json:"drawTime"`
	State         RoundState `json:"state"`
	WinningNumber int        `json:"winningNumber"`
	TicketPrice   int64      `json:"ticketPrice"`
	Commitment    string     `json:"commitment"`
	TicketCount   int        `json:"ticketCount"`
	TotalAmount   int64      `json:"totalAmount"`
	WinnerCount   int        `json:"winnerCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	SettledAt     time.Time  `json:"settledAt"`
}

// Round is a full snapshot of one lottery instance, tickets in purchase order.
type Round struct {
	RoundSummary
	Tickets []Ticket `json:"tickets"`
}

// Settled reports whether the round has been drawn.
func (r RoundSummary) Settled() bool {
	return r.State == RoundSettled
}

// AcceptsTickets reports whether a purchase at now is inside the open window.
func (r RoundSummary) AcceptsTickets(now time.Time) bool {
	return r.State == RoundOpen && now.Before(r.DrawTime)
}

// Winners returns the buyers of every winning ticket in purchase order.
// A buyer holding several winning tickets appears once per ticket.
func (r Round) Winners() []Address {
	winners := make([]Address, 0, r.WinnerCount)
	if !r.Settled() {
		return winners
	}
	for _, t := range r.Tickets {
		if t.IsWinner(r.WinningNumber) {
			winners = append(winners, t.Buyer)
		}
	}
	return winners
}

// CountWinners counts tickets matching winningNumber.
func CountWinners(tickets []Ticket, winningNumber int) int {
	n := 0
	for _, t := range tickets {
		if t.IsWinner(winningNumber) {
			n++
		}
	}
	return n
}

// RoundDraft carries everything a store needs to append a new round.
type RoundDraft struct {
	Name        string
	DrawTime    time.Time
	TicketPrice int64
	Commitment  string
	CreatedAt   time.Time
}

// Validate checks the draft and normalises it in place: the name is trimmed,
// times are truncated to whole seconds and the commitment is lowercased.
func (d *RoundDraft) Validate() error {
	d.Name = strings.TrimSpace(d.Name)
	d.DrawTime = d.DrawTime.Truncate(time.Second).UTC()
	d.CreatedAt = d.CreatedAt.Truncate(time.Second).UTC()
	d.Commitment = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(d.Commitment), "0x"))

	if d.Name == "" {
		return NewError(CodeInvalidInput, "round name is required")
	}
	if utf8.RuneCountInString(d.Name) > maxRoundNameLength {
		return NewError(CodeInvalidInput, "round name is too long")
	}
	if !d.DrawTime.After(d.CreatedAt) {
		return NewError(CodeInvalidInput, "draw time must be in the future")
	}
	if d.DrawTime.Year() > maxDrawYear {
		return NewError(CodeInvalidInput, fmt.Sprintf("draw time must be before year %d", maxDrawYear+1))
	}
	if d.TicketPrice <= 0 {
		return NewError(CodeInvalidInput, "ticket price must be positive")
	}
	if d.Commitment != "" {
		raw, err := hex.DecodeString(d.Commitment)
		if err != nil || len(raw) != CommitmentSize {
			return NewError(CodeInvalidInput, "commitment must be 32 hex-encoded bytes")
		}
	}
	return nil
}

// CommitmentSize is the byte length of a winning-number commitment.
const CommitmentSize = 32

// Stats is the aggregate view over every round.
type Stats struct {
	ActiveRounds  int `json:"activeRounds"`
	SettledRounds int `json:"settledRounds"`
	// TotalAmount sums the round totals, which individually fit in int64
	// but together may not. It is encoded as a decimal string.
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	TotalTickets int             `json:"totalTickets"`
	TotalWinners int             `json:"totalWinners"`
}

// Add folds one round into the stats.
func (s *Stats) Add(r RoundSummary) {
	if r.Settled() {
		s.SettledRounds++
	} else {
		s.ActiveRounds++
	}
	s.TotalAmount = s.TotalAmount.Add(decimal.NewFromInt(r.TotalAmount))
	s.TotalTickets += r.TicketCount
	s.TotalWinners += r.WinnerCount
}

// SettlementEvent is published once per round when it is drawn.
type SettlementEvent struct {
	Seq           uint64    `json:"seq"`
	RoundID       int64     `json:"roundId"`
	WinningNumber int       `json:"winningNumber"`
	WinnerCount   int       `json:"winnerCount"`
	TicketCount   int       `json:"ticketCount"`
	TotalAmount   int64     `json:"totalAmount"`
	SettledAt     time.Time `json:"settledAt"`
}
