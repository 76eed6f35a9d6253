package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"verilotto/internal/models"
	"verilotto/internal/services"
)

const (
	defaultEventsLimit = 100
	maxEventsLimit     = 1000
)

// HTTPHandler holds the dependencies for the HTTP handlers, like the lottery service.
type HTTPHandler struct {
	service *services.LotteryService
	tokens  TokenVerifier
}

// NewHTTPHandler creates a new HTTPHandler.
func NewHTTPHandler(service *services.LotteryService, tokens TokenVerifier) *HTTPHandler {
	return &HTTPHandler{
		service: service,
		tokens:  tokens,
	}
}

// RegisterPublicRoutes registers the unauthenticated routes.
func (h *HTTPHandler) RegisterPublicRoutes(r gin.IRoutes) {
	h.register(r, false)
}

// RegisterAuthenticatedRoutes registers the state-changing routes. The
// caller is expected to have applied AuthMiddleware to r.
func (h *HTTPHandler) RegisterAuthenticatedRoutes(r gin.IRoutes) {
	h.register(r, true)
}

func (h *HTTPHandler) register(r gin.IRoutes, authenticated bool) {
	handlers := h.handlers()
	for _, op := range operations {
		if op.Authenticated != authenticated {
			continue
		}
		handler, ok := handlers[op.Name]
		if !ok {
			panic(fmt.Sprintf("no handler for operation %q", op.Name))
		}
		r.Handle(op.Method, op.Path, handler)
	}
}

func (h *HTTPHandler) handlers() map[string]gin.HandlerFunc {
	return map[string]gin.HandlerFunc{
		"health":            h.Health,
		"metrics":           gin.WrapH(promhttp.Handler()),
		"describeInterface": h.DescribeInterface,
		"listRounds":        h.ListRounds,
		"getRound":          h.GetRound,
		"getWinners":        h.GetWinners,
		"exportWinners":     h.ExportWinnersCSV,
		"aggregateStats":    h.AggregateStats,
		"events":            h.Events,
		"createRound":       h.CreateRound,
		"buyTicket":         h.BuyTicket,
		"draw":              h.Draw,
	}
}

// Health reports that the process is serving.
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// DescribeInterface publishes the operations and the admin identity to the
// display layer.
func (h *HTTPHandler) DescribeInterface(c *gin.Context) {
	c.JSON(http.StatusOK, Describe(h.service.Admin(), h.service.CommitmentScheme()))
}

// ListRounds returns every round summary, latest draw time first.
func (h *HTTPHandler) ListRounds(c *gin.Context) {
	rounds, err := h.service.ListRounds(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]roundSummaryResponse, 0, len(rounds))
	for _, r := range rounds {
		out = append(out, newRoundSummaryResponse(r))
	}
	c.JSON(http.StatusOK, gin.H{"rounds": out})
}

// GetRound returns one round with its tickets.
func (h *HTTPHandler) GetRound(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	round, err := h.service.GetRound(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newRoundResponse(round))
}

// GetWinners returns the buyer of every winning ticket in purchase order.
func (h *HTTPHandler) GetWinners(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	winners, err := h.service.GetWinners(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roundId": id, "winners": winners})
}

// ExportWinnersCSV handles the request to download the winning tickets of a round as a CSV file.
func (h *HTTPHandler) ExportWinnersCSV(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	round, tickets, err := h.service.WinningTickets(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv")
	c.Header("Content-Disposition", fmt.Sprintf("attachment;filename=round_%d_winners.csv", round.ID))

	// Add BOM to ensure UTF-8 compatibility in Excel
	c.Writer.Write([]byte("\xef\xbb\xbf"))

	w := csv.NewWriter(c.Writer)
	if err := w.Write([]string{"round_id", "round_name", "seq", "buyer", "number", "amount", "purchased_at"}); err != nil {
		logger.Infof("Error writing CSV header: %v", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	for _, t := range tickets {
		row := []string{
			strconv.FormatInt(round.ID, 10),
			round.Name,
			strconv.Itoa(t.Seq),
			t.Buyer.String(),
			strconv.Itoa(t.Number),
			strconv.FormatInt(t.Amount, 10),
			t.PurchasedAt.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			logger.Infof("Error writing CSV row: %v", err)
			return
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		logger.Infof("Error flushing CSV writer: %v", err)
	}
}

// AggregateStats returns totals over every round.
func (h *HTTPHandler) AggregateStats(c *gin.Context) {
	stats, err := h.service.AggregateStats(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Events returns settlement events after the ?after cursor. The cursor is
// scoped to the returned epoch; clients that see a new epoch start over
// from after=0.
func (h *HTTPHandler) Events(c *gin.Context) {
	after, err := strconv.ParseUint(c.DefaultQuery("after", "0"), 10, 64)
	if err != nil {
		writeError(c, models.NewError(models.CodeInvalidInput, "after must be a non-negative integer"))
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultEventsLimit)))
	if err != nil || limit <= 0 {
		writeError(c, models.NewError(models.CodeInvalidInput, "limit must be a positive integer"))
		return
	}
	if limit > maxEventsLimit {
		limit = maxEventsLimit
	}

	events := h.service.Events(after, limit)
	out := make([]eventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, newEventResponse(ev))
	}
	c.JSON(http.StatusOK, gin.H{"epoch": h.service.EventEpoch(), "events": out})
}

// CreateRound opens a new round on behalf of the authenticated admin.
func (h *HTTPHandler) CreateRound(c *gin.Context) {
	var req createRoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, models.WrapError(models.CodeInvalidInput, "invalid round request", err))
		return
	}

	round, err := h.service.CreateRound(c.Request.Context(), caller(c), services.CreateRoundRequest{
		Name:        req.Name,
		DrawTime:    time.Unix(*req.DrawTime, 0).UTC(),
		TicketPrice: req.TicketPrice,
		Commitment:  req.Commitment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newRoundResponse(round))
}

// BuyTicket registers a ticket for the authenticated caller.
func (h *HTTPHandler) BuyTicket(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	var req buyTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, models.WrapError(models.CodeInvalidInput, "invalid ticket request", err))
		return
	}

	ticket, err := h.service.BuyTicket(c.Request.Context(), id, caller(c), *req.Number, *req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTicketResponse(ticket))
}

// Draw settles a round with the admin's reveal.
func (h *HTTPHandler) Draw(c *gin.Context) {
	id, ok := roundID(c)
	if !ok {
		return
	}
	var req drawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, models.WrapError(models.CodeInvalidInput, "invalid draw request", err))
		return
	}

	ev, err := h.service.Draw(c.Request.Context(), id, caller(c), services.Reveal{
		WinningNumber: *req.WinningNumber,
		Salt:          req.Salt,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newEventResponse(ev))
}

func roundID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, models.NewError(models.CodeInvalidInput, "round id must be an integer"))
		return 0, false
	}
	return id, true
}
