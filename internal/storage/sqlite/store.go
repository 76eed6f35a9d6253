// Package sqlite provides a SQLite-backed round store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"verilotto/internal/models"
	"verilotto/internal/storage"
	"verilotto/internal/storage/sqlite/migrations"
)

const roundColumns = `id, name, draw_time, state, winning_number, ticket_price, commitment,
       ticket_count, total_amount, winner_count, created_at, settled_at`

// Store persists rounds and tickets in SQLite.
type Store struct {
	db *sqlx.DB
}

var _ storage.RoundStore = (*Store)(nil)

type roundRow struct {
	ID            int64  `db:"id"`
	Name          string `db:"name"`
	DrawTime      int64  `db:"draw_time"`
	State         string `db:"state"`
	WinningNumber int    `db:"winning_number"`
	TicketPrice   int64  `db:"ticket_price"`
	Commitment    string `db:"commitment"`
	TicketCount   int    `db:"ticket_count"`
	TotalAmount   int64  `db:"total_amount"`
	WinnerCount   int    `db:"winner_count"`
	CreatedAt     int64  `db:"created_at"`
	SettledAt     int64  `db:"settled_at"`
}

type ticketRow struct {
	RoundID     int64  `db:"round_id"`
	Seq         int    `db:"seq"`
	Buyer       string `db:"buyer"`
	Number      int    `db:"number"`
	Amount      int64  `db:"amount"`
	PurchasedAt int64  `db:"purchased_at"`
}

// Open opens (creating if needed) a SQLite store and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=synchronous(NORMAL)"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite has a single writer; one connection also makes every
	// transaction below a consistent snapshot.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(context.Background(), db.DB, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRound appends a new open round with id = current round count.
func (s *Store) CreateRound(ctx context.Context, draft models.RoundDraft) (models.Round, error) {
	if err := s.ready(ctx); err != nil {
		return models.Round{}, err
	}
	if err := draft.Validate(); err != nil {
		return models.Round{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Round{}, fmt.Errorf("begin create round: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int64
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM rounds`); err != nil {
		return models.Round{}, fmt.Errorf("count rounds: %w", err)
	}

	row := roundRow{
		ID:          count,
		Name:        draft.Name,
		DrawTime:    draft.DrawTime.Unix(),
		State:       string(models.RoundOpen),
		TicketPrice: draft.TicketPrice,
		Commitment:  draft.Commitment,
		CreatedAt:   draft.CreatedAt.Unix(),
	}
	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO rounds (`+roundColumns+`)
		 VALUES (:id, :name, :draw_time, :state, :winning_number, :ticket_price, :commitment,
		         :ticket_count, :total_amount, :winner_count, :created_at, :settled_at)`,
		row,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Round{}, fmt.Errorf("round id %d taken by a concurrent writer: %w", count, err)
		}
		return models.Round{}, fmt.Errorf("insert round: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Round{}, fmt.Errorf("commit create round: %w", err)
	}

	return models.Round{RoundSummary: row.summary(), Tickets: make([]models.Ticket, 0)}, nil
}

// AppendTicket appends a ticket to an open round and updates its totals.
func (s *Store) AppendTicket(ctx context.Context, roundID int64, ticket models.Ticket) (models.Ticket, error) {
	if err := s.ready(ctx); err != nil {
		return models.Ticket{}, err
	}
	if err := storage.ValidateTicket(ticket); err != nil {
		return models.Ticket{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Ticket{}, fmt.Errorf("begin append ticket: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	round, err := getRoundRow(ctx, tx, roundID)
	if err != nil {
		return models.Ticket{}, err
	}
	if round.State == string(models.RoundSettled) {
		return models.Ticket{}, storage.RoundAlreadySettled(roundID)
	}
	total, err := storage.AddToTotal(roundID, round.TotalAmount, ticket.Amount)
	if err != nil {
		return models.Ticket{}, err
	}

	row := ticketRow{
		RoundID:     roundID,
		Seq:         round.TicketCount,
		Buyer:       ticket.Buyer.String(),
		Number:      ticket.Number,
		Amount:      ticket.Amount,
		PurchasedAt: ticket.PurchasedAt.Unix(),
	}
	if _, err := tx.NamedExecContext(ctx,
		`INSERT INTO tickets (round_id, seq, buyer, number, amount, purchased_at)
		 VALUES (:round_id, :seq, :buyer, :number, :amount, :purchased_at)`,
		row,
	); err != nil {
		return models.Ticket{}, fmt.Errorf("insert ticket: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rounds SET ticket_count = ticket_count + 1, total_amount = ? WHERE id = ?`,
		total, roundID,
	); err != nil {
		return models.Ticket{}, fmt.Errorf("update round totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Ticket{}, fmt.Errorf("commit append ticket: %w", err)
	}
	return row.ticket(), nil
}

// SettleRound fixes the outcome of an open round.
func (s *Store) SettleRound(ctx context.Context, roundID int64, winningNumber, winnerCount int, settledAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin settle round: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE rounds
		    SET state = ?, winning_number = ?, winner_count = ?, settled_at = ?
		  WHERE id = ? AND state = ?`,
		string(models.RoundSettled), winningNumber, winnerCount, settledAt.Unix(),
		roundID, string(models.RoundOpen),
	)
	if err != nil {
		return fmt.Errorf("settle round: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("settle round: %w", err)
	}
	if affected == 0 {
		if _, err := getRoundRow(ctx, tx, roundID); err != nil {
			return err
		}
		return storage.RoundAlreadySettled(roundID)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit settle round: %w", err)
	}
	return nil
}

// GetRound returns a round and its tickets from one transaction.
func (s *Store) GetRound(ctx context.Context, roundID int64) (models.Round, error) {
	if err := s.ready(ctx); err != nil {
		return models.Round{}, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Round{}, fmt.Errorf("begin get round: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row, err := getRoundRow(ctx, tx, roundID)
	if err != nil {
		return models.Round{}, err
	}
	var tickets []ticketRow
	if err := tx.SelectContext(ctx, &tickets,
		`SELECT round_id, seq, buyer, number, amount, purchased_at
		   FROM tickets
		  WHERE round_id = ?
		  ORDER BY seq`,
		roundID,
	); err != nil {
		return models.Round{}, fmt.Errorf("list tickets: %w", err)
	}

	round := models.Round{RoundSummary: row.summary(), Tickets: make([]models.Ticket, 0, len(tickets))}
	for _, t := range tickets {
		round.Tickets = append(round.Tickets, t.ticket())
	}
	return round, nil
}

// ListRounds returns every round summary ordered by id.
func (s *Store) ListRounds(ctx context.Context) ([]models.RoundSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var rows []roundRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+roundColumns+` FROM rounds ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}
	summaries := make([]models.RoundSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.summary())
	}
	return summaries, nil
}

// Count returns the number of rounds.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM rounds`); err != nil {
		return 0, fmt.Errorf("count rounds: %w", err)
	}
	return count, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func getRoundRow(ctx context.Context, tx *sqlx.Tx, roundID int64) (roundRow, error) {
	var row roundRow
	err := tx.GetContext(ctx, &row, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, roundID)
	if errors.Is(err, sql.ErrNoRows) {
		return roundRow{}, storage.RoundNotFound(roundID)
	}
	if err != nil {
		return roundRow{}, fmt.Errorf("get round: %w", err)
	}
	return row, nil
}

func (r roundRow) summary() models.RoundSummary {
	return models.RoundSummary{
		ID:            r.ID,
		Name:          r.Name,
		DrawTime:      fromUnix(r.DrawTime),
		State:         models.RoundState(r.State),
		WinningNumber: r.WinningNumber,
		TicketPrice:   r.TicketPrice,
		Commitment:    r.Commitment,
		TicketCount:   r.TicketCount,
		TotalAmount:   r.TotalAmount,
		WinnerCount:   r.WinnerCount,
		CreatedAt:     fromUnix(r.CreatedAt),
		SettledAt:     fromUnix(r.SettledAt),
	}
}

func (t ticketRow) ticket() models.Ticket {
	return models.Ticket{
		RoundID:     t.RoundID,
		Seq:         t.Seq,
		Buyer:       models.Address(t.Buyer),
		Number:      t.Number,
		Amount:      t.Amount,
		PurchasedAt: fromUnix(t.PurchasedAt),
	}
}

// fromUnix maps 0 back to the zero time so unset timestamps survive a round trip.
func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
