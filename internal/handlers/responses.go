package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"

	"verilotto/internal/models"
)

// Times cross the wire as epoch seconds; zero times as 0.

type createRoundRequest struct {
	Name        string `json:"name"`
	DrawTime    *int64 `json:"drawTime" binding:"required"`
	TicketPrice int64  `json:"ticketPrice"`
	Commitment  string `json:"commitment"`
}

type buyTicketRequest struct {
	Number *int   `json:"number" binding:"required"`
	Amount *int64 `json:"amount" binding:"required"`
}

type drawRequest struct {
	WinningNumber *int   `json:"winningNumber" binding:"required"`
	Salt          string `json:"salt"`
}

type roundSummaryResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	DrawTime      int64  `json:"drawTime"`
	State         string `json:"state"`
	WinningNumber int    `json:"winningNumber"`
	TicketPrice   int64  `json:"ticketPrice"`
	Commitment    string `json:"commitment,omitempty"`
	TicketCount   int    `json:"ticketCount"`
	TotalAmount   int64  `json:"totalAmount"`
	WinnerCount   int    `json:"winnerCount"`
	CreatedAt     int64  `json:"createdAt"`
	SettledAt     int64  `json:"settledAt"`
}

type ticketResponse struct {
	RoundID     int64  `json:"roundId"`
	Seq         int    `json:"seq"`
	Buyer       string `json:"buyer"`
	Number      int    `json:"number"`
	Amount      int64  `json:"amount"`
	PurchasedAt int64  `json:"purchasedAt"`
}

type roundResponse struct {
	roundSummaryResponse
	Tickets []ticketResponse `json:"tickets"`
}

type eventResponse struct {
	Seq           uint64 `json:"seq"`
	RoundID       int64  `json:"roundId"`
	WinningNumber int    `json:"winningNumber"`
	WinnerCount   int    `json:"winnerCount"`
	TicketCount   int    `json:"ticketCount"`
	TotalAmount   int64  `json:"totalAmount"`
	SettledAt     int64  `json:"settledAt"`
}

type errorResponse struct {
	Code    models.Code `json:"code"`
	Message string      `json:"message"`
}

func epoch(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func newRoundSummaryResponse(r models.RoundSummary) roundSummaryResponse {
	return roundSummaryResponse{
		ID:            r.ID,
		Name:          r.Name,
		DrawTime:      epoch(r.DrawTime),
		State:         string(r.State),
		WinningNumber: r.WinningNumber,
		TicketPrice:   r.TicketPrice,
		Commitment:    r.Commitment,
		TicketCount:   r.TicketCount,
		TotalAmount:   r.TotalAmount,
		WinnerCount:   r.WinnerCount,
		CreatedAt:     epoch(r.CreatedAt),
		SettledAt:     epoch(r.SettledAt),
	}
}

func newTicketResponse(t models.Ticket) ticketResponse {
	return ticketResponse{
		RoundID:     t.RoundID,
		Seq:         t.Seq,
		Buyer:       t.Buyer.String(),
		Number:      t.Number,
		Amount:      t.Amount,
		PurchasedAt: epoch(t.PurchasedAt),
	}
}

func newRoundResponse(r models.Round) roundResponse {
	tickets := make([]ticketResponse, 0, len(r.Tickets))
	for _, t := range r.Tickets {
		tickets = append(tickets, newTicketResponse(t))
	}
	return roundResponse{roundSummaryResponse: newRoundSummaryResponse(r.RoundSummary), Tickets: tickets}
}

func newEventResponse(ev models.SettlementEvent) eventResponse {
	return eventResponse{
		Seq:           ev.Seq,
		RoundID:       ev.RoundID,
		WinningNumber: ev.WinningNumber,
		WinnerCount:   ev.WinnerCount,
		TicketCount:   ev.TicketCount,
		TotalAmount:   ev.TotalAmount,
		SettledAt:     epoch(ev.SettledAt),
	}
}

// writeError maps a coded error to its HTTP status. UNAUTHORIZED from the
// engine means the caller authenticated but is not allowed, hence 403.
func writeError(c *gin.Context, err error) {
	code := models.CodeOf(err)
	status := statusFor(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		logger.Errorf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, errorResponse{Code: code, Message: message})
}

func statusFor(code models.Code) int {
	switch code {
	case models.CodeNotFound:
		return http.StatusNotFound
	case models.CodeInvalidInput, models.CodeNumberOutOfRange, models.CodePaymentMismatch, models.CodeCommitmentMismatch:
		return http.StatusBadRequest
	case models.CodeUnauthorized:
		return http.StatusForbidden
	case models.CodeRoundClosed, models.CodeTooEarly, models.CodeAlreadySettled:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
