// Package bbolt provides a BoltDB-backed round store.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"verilotto/internal/models"
	"verilotto/internal/storage"
)

const (
	roundBucket  = "rounds"
	ticketBucket = "tickets"
)

// Store keeps one JSON record per round and a nested ticket bucket per round.
type Store struct {
	db *bbolt.DB
}

var _ storage.RoundStore = (*Store)(nil)

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}

	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateRound appends a new open round.
func (s *Store) CreateRound(ctx context.Context, draft models.RoundDraft) (models.Round, error) {
	if err := s.ready(ctx); err != nil {
		return models.Round{}, err
	}
	if err := draft.Validate(); err != nil {
		return models.Round{}, err
	}

	var summary models.RoundSummary
	err := s.db.Update(func(tx *bbolt.Tx) error {
		rounds := tx.Bucket([]byte(roundBucket))
		seq, err := rounds.NextSequence()
		if err != nil {
			return fmt.Errorf("next round id: %w", err)
		}
		summary = models.RoundSummary{
			ID:          int64(seq - 1),
			Name:        draft.Name,
			DrawTime:    draft.DrawTime,
			State:       models.RoundOpen,
			TicketPrice: draft.TicketPrice,
			Commitment:  draft.Commitment,
			CreatedAt:   draft.CreatedAt,
		}
		if err := putRound(rounds, summary); err != nil {
			return err
		}
		if _, err := tx.Bucket([]byte(ticketBucket)).CreateBucket(key(uint64(summary.ID))); err != nil {
			return fmt.Errorf("create ticket bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.Round{}, err
	}
	return models.Round{RoundSummary: summary, Tickets: make([]models.Ticket, 0)}, nil
}

// AppendTicket appends a ticket to an open round and updates its totals.
func (s *Store) AppendTicket(ctx context.Context, roundID int64, ticket models.Ticket) (models.Ticket, error) {
	if err := s.ready(ctx); err != nil {
		return models.Ticket{}, err
	}
	if err := storage.ValidateTicket(ticket); err != nil {
		return models.Ticket{}, err
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		rounds := tx.Bucket([]byte(roundBucket))
		summary, err := getRound(rounds, roundID)
		if err != nil {
			return err
		}
		if summary.Settled() {
			return storage.RoundAlreadySettled(roundID)
		}
		total, err := storage.AddToTotal(roundID, summary.TotalAmount, ticket.Amount)
		if err != nil {
			return err
		}
		tickets := tx.Bucket([]byte(ticketBucket)).Bucket(key(uint64(roundID)))
		if tickets == nil {
			return fmt.Errorf("ticket bucket for round %d is missing", roundID)
		}

		ticket.RoundID = roundID
		ticket.Seq = summary.TicketCount
		ticket.PurchasedAt = ticket.PurchasedAt.Truncate(time.Second).UTC()
		payload, err := json.Marshal(ticket)
		if err != nil {
			return fmt.Errorf("marshal ticket: %w", err)
		}
		if err := tickets.Put(key(uint64(ticket.Seq)), payload); err != nil {
			return fmt.Errorf("put ticket: %w", err)
		}

		summary.TicketCount++
		summary.TotalAmount = total
		return putRound(rounds, summary)
	})
	if err != nil {
		return models.Ticket{}, err
	}
	return ticket, nil
}

// SettleRound fixes the outcome of an open round.
func (s *Store) SettleRound(ctx context.Context, roundID int64, winningNumber, winnerCount int, settledAt time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		rounds := tx.Bucket([]byte(roundBucket))
		summary, err := getRound(rounds, roundID)
		if err != nil {
			return err
		}
		if summary.Settled() {
			return storage.RoundAlreadySettled(roundID)
		}
		summary.State = models.RoundSettled
		summary.WinningNumber = winningNumber
		summary.WinnerCount = winnerCount
		summary.SettledAt = settledAt.Truncate(time.Second).UTC()
		return putRound(rounds, summary)
	})
}

// GetRound returns a round and its tickets from one read transaction.
func (s *Store) GetRound(ctx context.Context, roundID int64) (models.Round, error) {
	if err := s.ready(ctx); err != nil {
		return models.Round{}, err
	}

	var round models.Round
	err := s.db.View(func(tx *bbolt.Tx) error {
		summary, err := getRound(tx.Bucket([]byte(roundBucket)), roundID)
		if err != nil {
			return err
		}
		round = models.Round{RoundSummary: summary, Tickets: make([]models.Ticket, 0, summary.TicketCount)}

		tickets := tx.Bucket([]byte(ticketBucket)).Bucket(key(uint64(roundID)))
		if tickets == nil {
			return nil
		}
		return tickets.ForEach(func(_, v []byte) error {
			var t models.Ticket
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("unmarshal ticket: %w", err)
			}
			round.Tickets = append(round.Tickets, t)
			return nil
		})
	})
	if err != nil {
		return models.Round{}, err
	}
	return round, nil
}

// ListRounds returns every round summary ordered by id.
func (s *Store) ListRounds(ctx context.Context) ([]models.RoundSummary, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}

	summaries := make([]models.RoundSummary, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(roundBucket)).ForEach(func(_, v []byte) error {
			var r models.RoundSummary
			if err := json.Unmarshal(v, &r); err != nil {
				return fmt.Errorf("unmarshal round: %w", err)
			}
			summaries = append(summaries, r)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

// Count returns the number of rounds.
func (s *Store) Count(ctx context.Context) (int64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var count int64
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = int64(tx.Bucket([]byte(roundBucket)).Sequence())
		return nil
	})
	return count, err
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

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{roundBucket, ticketBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func getRound(rounds *bbolt.Bucket, roundID int64) (models.RoundSummary, error) {
	if roundID < 0 {
		return models.RoundSummary{}, storage.RoundNotFound(roundID)
	}
	payload := rounds.Get(key(uint64(roundID)))
	if payload == nil {
		return models.RoundSummary{}, storage.RoundNotFound(roundID)
	}
	var r models.RoundSummary
	if err := json.Unmarshal(payload, &r); err != nil {
		return models.RoundSummary{}, fmt.Errorf("unmarshal round: %w", err)
	}
	return r, nil
}

func putRound(rounds *bbolt.Bucket, r models.RoundSummary) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal round: %w", err)
	}
	if err := rounds.Put(key(uint64(r.ID)), payload); err != nil {
		return fmt.Errorf("put round: %w", err)
	}
	return nil
}

// key encodes ids big-endian so cursor order matches numeric order.
func key(id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return b
}
