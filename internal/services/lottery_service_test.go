package services

import (
	"context"
	"encoding/hex"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"verilotto/internal/models"
	"verilotto/internal/storage"
)

var (
	admin = models.MustParseAddress("0x00000000000000000000000000000000000ad111")
	alice = models.MustParseAddress("0x00000000000000000000000000000000000a11ce")
	bob   = models.MustParseAddress("0x0000000000000000000000000000000000000b0b")
	carol = models.MustParseAddress("0x00000000000000000000000000000000000ca201")

	t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
)

const price = 10

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T, observers ...SettlementObserver) (*LotteryService, *fakeClock, storage.RoundStore) {
	t.Helper()
	store := storage.NewMemoryStore()
	access, err := NewAccessControl(admin)
	if err != nil {
		t.Fatalf("NewAccessControl: %v", err)
	}
	clock := &fakeClock{now: t0}
	svc, err := NewLotteryService(context.Background(), Options{
		Store:              store,
		Access:             access,
		Clock:              clock,
		DefaultTicketPrice: price,
		Observers:          observers,
	})
	if err != nil {
		t.Fatalf("NewLotteryService: %v", err)
	}
	return svc, clock, store
}

func mustCreate(t *testing.T, svc *LotteryService, name string, drawIn time.Duration) models.Round {
	t.Helper()
	r, err := svc.CreateRound(context.Background(), admin, CreateRoundRequest{Name: name, DrawTime: t0.Add(drawIn)})
	if err != nil {
		t.Fatalf("CreateRound(%q): %v", name, err)
	}
	return r
}

func mustBuy(t *testing.T, svc *LotteryService, roundID int64, buyer models.Address, number int) {
	t.Helper()
	if _, err := svc.BuyTicket(context.Background(), roundID, buyer, number, price); err != nil {
		t.Fatalf("BuyTicket(%s, %d): %v", buyer, number, err)
	}
}

func expectCode(t *testing.T, err error, want *models.Error) {
	t.Helper()
	if !errors.Is(err, want) {
		t.Fatalf("expected %s, got %v", want.Code, err)
	}
}

func TestLotteryService_SpringDraw(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	round := mustCreate(t, svc, "Spring Draw", time.Hour)
	mustBuy(t, svc, round.ID, alice, 4242)
	mustBuy(t, svc, round.ID, bob, 4242)
	mustBuy(t, svc, round.ID, carol, 1000)

	clock.Set(t0.Add(3700 * time.Second))
	ev, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 4242})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if ev.WinnerCount != 2 {
		t.Errorf("expected 2 winners, got %d", ev.WinnerCount)
	}
	if ev.TotalAmount != 30 {
		t.Errorf("expected total amount 30, got %d", ev.TotalAmount)
	}

	winners, err := svc.GetWinners(ctx, round.ID)
	if err != nil {
		t.Fatalf("GetWinners: %v", err)
	}
	if !reflect.DeepEqual(winners, []models.Address{alice, bob}) {
		t.Errorf("unexpected winners %v", winners)
	}

	got, err := svc.GetRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if got.State != models.RoundSettled || got.WinningNumber != 4242 || got.WinnerCount != 2 || got.TotalAmount != 30 {
		t.Errorf("unexpected settled round %+v", got.RoundSummary)
	}
}

func TestLotteryService_NumberRange(t *testing.T) {
	cases := []struct {
		number int
		ok     bool
	}{
		{500, false},
		{999, false},
		{1000, true},
		{5555, true},
		{9999, true},
		{10000, false},
		{-1000, false},
	}

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	round := mustCreate(t, svc, "range", time.Hour)

	accepted := 0
	for _, tc := range cases {
		_, err := svc.BuyTicket(ctx, round.ID, alice, tc.number, price)
		if tc.ok {
			if err != nil {
				t.Errorf("number %d: expected success, got %v", tc.number, err)
			}
			accepted++
			continue
		}
		if !errors.Is(err, models.ErrNumberOutOfRange) {
			t.Errorf("number %d: expected NUMBER_OUT_OF_RANGE, got %v", tc.number, err)
		}
	}

	got, err := svc.GetRound(ctx, round.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	if got.TicketCount != accepted || got.TotalAmount != int64(accepted*price) {
		t.Errorf("rejected tickets changed state: %+v", got.RoundSummary)
	}
	if got.State != models.RoundOpen {
		t.Errorf("expected round to stay open, got %s", got.State)
	}
}

func TestLotteryService_RegistrationWindow(t *testing.T) {
	t.Run("closed at draw time", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "window", time.Hour)

		clock.Set(round.DrawTime.Add(-time.Second))
		mustBuy(t, svc, round.ID, alice, 1234)

		clock.Set(round.DrawTime)
		_, err := svc.BuyTicket(context.Background(), round.ID, alice, 1234, price)
		expectCode(t, err, models.ErrRoundClosed)

		clock.Set(round.DrawTime.Add(time.Hour))
		_, err = svc.BuyTicket(context.Background(), round.ID, bob, 1234, price)
		expectCode(t, err, models.ErrRoundClosed)
	})

	t.Run("closed after settlement", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "settled", time.Hour)
		clock.Set(round.DrawTime)
		if _, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: 1234}); err != nil {
			t.Fatalf("Draw: %v", err)
		}
		_, err := svc.BuyTicket(context.Background(), round.ID, alice, 1234, price)
		expectCode(t, err, models.ErrRoundClosed)
	})

	t.Run("closed wins over range and payment", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "order", time.Hour)
		clock.Set(round.DrawTime)
		_, err := svc.BuyTicket(context.Background(), round.ID, alice, 5, 1)
		expectCode(t, err, models.ErrRoundClosed)
	})

	t.Run("unknown round", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.BuyTicket(context.Background(), 3, alice, 1234, price)
		expectCode(t, err, models.ErrNotFound)
		_, err = svc.BuyTicket(context.Background(), -1, alice, 1234, price)
		expectCode(t, err, models.ErrNotFound)
	})
}

func TestLotteryService_Payment(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	round := mustCreate(t, svc, "default price", time.Hour)
	if round.TicketPrice != price {
		t.Fatalf("expected default price %d, got %d", price, round.TicketPrice)
	}
	for _, amount := range []int64{0, price - 1, price + 1} {
		_, err := svc.BuyTicket(ctx, round.ID, alice, 4242, amount)
		expectCode(t, err, models.ErrPaymentMismatch)
	}

	priced, err := svc.CreateRound(ctx, admin, CreateRoundRequest{Name: "priced", DrawTime: t0.Add(time.Hour), TicketPrice: 25})
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	if _, err := svc.BuyTicket(ctx, priced.ID, alice, 4242, 25); err != nil {
		t.Fatalf("BuyTicket at round price: %v", err)
	}
	_, err = svc.BuyTicket(ctx, priced.ID, alice, 4242, price)
	expectCode(t, err, models.ErrPaymentMismatch)

	got, _ := svc.GetRound(ctx, round.ID)
	if got.TotalAmount != 0 {
		t.Errorf("rejected payments changed total: %d", got.TotalAmount)
	}
}

func TestLotteryService_DuplicateTickets(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	round := mustCreate(t, svc, "dupes", time.Hour)

	mustBuy(t, svc, round.ID, alice, 7777)
	mustBuy(t, svc, round.ID, bob, 1111)
	mustBuy(t, svc, round.ID, alice, 7777)

	clock.Set(round.DrawTime)
	ev, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 7777})
	if err != nil {
		t.Fatalf("Draw: %v", err)
	}
	if ev.WinnerCount != 2 {
		t.Errorf("expected ticket-level winner count 2, got %d", ev.WinnerCount)
	}
	winners, _ := svc.GetWinners(ctx, round.ID)
	if !reflect.DeepEqual(winners, []models.Address{alice, alice}) {
		t.Errorf("unexpected winners %v", winners)
	}
}

func TestLotteryService_Draw(t *testing.T) {
	t.Run("too early keeps round open", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "early", time.Hour)
		clock.Set(round.DrawTime.Add(-time.Second))

		_, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: 1234})
		expectCode(t, err, models.ErrTooEarly)

		got, _ := svc.GetRound(context.Background(), round.ID)
		if got.State != models.RoundOpen || got.WinningNumber != 0 {
			t.Errorf("expected open round, got %+v", got.RoundSummary)
		}
	})

	t.Run("second draw is rejected", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "twice", time.Hour)
		clock.Set(round.DrawTime)

		if _, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: 1234}); err != nil {
			t.Fatalf("first Draw: %v", err)
		}
		_, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: 5678})
		expectCode(t, err, models.ErrAlreadySettled)

		got, _ := svc.GetRound(context.Background(), round.ID)
		if got.WinningNumber != 1234 {
			t.Errorf("expected winning number 1234, got %d", got.WinningNumber)
		}
	})

	t.Run("winning number out of range", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "range", time.Hour)
		clock.Set(round.DrawTime)

		for _, n := range []int{0, 999, 10000} {
			_, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: n})
			expectCode(t, err, models.ErrNumberOutOfRange)
		}
		got, _ := svc.GetRound(context.Background(), round.ID)
		if got.Settled() {
			t.Error("rejected draw settled the round")
		}
	})

	t.Run("unknown round", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		_, err := svc.Draw(context.Background(), 0, admin, Reveal{WinningNumber: 1234})
		expectCode(t, err, models.ErrNotFound)
	})

	t.Run("no winners", func(t *testing.T) {
		svc, clock, _ := newTestService(t)
		round := mustCreate(t, svc, "empty", time.Hour)
		mustBuy(t, svc, round.ID, alice, 1000)
		clock.Set(round.DrawTime)

		ev, err := svc.Draw(context.Background(), round.ID, admin, Reveal{WinningNumber: 9999})
		if err != nil {
			t.Fatalf("Draw: %v", err)
		}
		if ev.WinnerCount != 0 {
			t.Errorf("expected no winners, got %d", ev.WinnerCount)
		}
		winners, err := svc.GetWinners(context.Background(), round.ID)
		if err != nil || len(winners) != 0 {
			t.Errorf("expected empty winners, got %v, %v", winners, err)
		}
	})
}

func TestLotteryService_Authorization(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateRound(ctx, alice, CreateRoundRequest{Name: "mine", DrawTime: t0.Add(time.Hour)})
	expectCode(t, err, models.ErrUnauthorized)
	_, err = svc.CreateRound(ctx, "", CreateRoundRequest{Name: "anon", DrawTime: t0.Add(time.Hour)})
	expectCode(t, err, models.ErrUnauthorized)
	if n, _ := svc.CountRounds(ctx); n != 0 {
		t.Fatalf("unauthorized create changed round count to %d", n)
	}

	round := mustCreate(t, svc, "guarded", time.Hour)
	mustBuy(t, svc, round.ID, alice, 4242)
	clock.Set(round.DrawTime)

	_, err = svc.Draw(ctx, round.ID, alice, Reveal{WinningNumber: 4242})
	expectCode(t, err, models.ErrUnauthorized)
	got, _ := svc.GetRound(ctx, round.ID)
	if got.Settled() {
		t.Fatal("unauthorized draw settled the round")
	}
	if !svc.IsAdmin(admin) || svc.IsAdmin(alice) {
		t.Error("unexpected admin check result")
	}
}

func TestLotteryService_CreateRoundValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreateRoundRequest
	}{
		{"past draw time", CreateRoundRequest{Name: "past", DrawTime: t0.Add(-time.Minute)}},
		{"draw time now", CreateRoundRequest{Name: "now", DrawTime: t0}},
		{"blank name", CreateRoundRequest{Name: "   ", DrawTime: t0.Add(time.Hour)}},
		{"negative price", CreateRoundRequest{Name: "neg", DrawTime: t0.Add(time.Hour), TicketPrice: -5}},
		{"bad commitment", CreateRoundRequest{Name: "c", DrawTime: t0.Add(time.Hour), Commitment: "xyz"}},
		{"short commitment", CreateRoundRequest{Name: "c", DrawTime: t0.Add(time.Hour), Commitment: "abcd"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateRound(ctx, admin, tc.req)
			expectCode(t, err, models.ErrInvalidInput)
		})
	}
	if n, _ := svc.CountRounds(ctx); n != 0 {
		t.Fatalf("invalid creates changed round count to %d", n)
	}

	first := mustCreate(t, svc, "first", time.Hour)
	second := mustCreate(t, svc, "second", time.Hour)
	if first.ID != 0 || second.ID != 1 {
		t.Errorf("expected dense ids 0 and 1, got %d and %d", first.ID, second.ID)
	}
}

func TestLotteryService_Commitment(t *testing.T) {
	policy := Keccak256Commitment()
	salt := []byte("0123456789abcdef0123456789abcdef")
	commitment := policy.Commit(4242, salt)

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	round, err := svc.CreateRound(ctx, admin, CreateRoundRequest{
		Name:       "committed",
		DrawTime:   t0.Add(time.Hour),
		Commitment: "0x" + commitment,
	})
	if err != nil {
		t.Fatalf("CreateRound: %v", err)
	}
	mustBuy(t, svc, round.ID, alice, 4242)
	mustBuy(t, svc, round.ID, bob, 1111)
	clock.Set(round.DrawTime)

	t.Run("wrong number", func(t *testing.T) {
		_, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 1111, Salt: hex.EncodeToString(salt)})
		expectCode(t, err, models.ErrCommitmentMismatch)
	})
	t.Run("missing salt", func(t *testing.T) {
		_, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 4242})
		expectCode(t, err, models.ErrCommitmentMismatch)
	})
	t.Run("malformed salt", func(t *testing.T) {
		_, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 4242, Salt: "zz"})
		expectCode(t, err, models.ErrInvalidInput)
	})

	got, _ := svc.GetRound(ctx, round.ID)
	if got.Settled() {
		t.Fatal("rejected reveals settled the round")
	}

	ev, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 4242, Salt: "0x" + hex.EncodeToString(salt)})
	if err != nil {
		t.Fatalf("Draw with valid reveal: %v", err)
	}
	if ev.WinningNumber != 4242 || ev.WinnerCount != 1 {
		t.Errorf("unexpected settlement %+v", ev)
	}
}

func TestLotteryService_Queries(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	late := mustCreate(t, svc, "late", 3*time.Hour)
	early := mustCreate(t, svc, "early", time.Hour)
	tie := mustCreate(t, svc, "tie", 3*time.Hour)

	mustBuy(t, svc, early.ID, alice, 4242)
	mustBuy(t, svc, early.ID, bob, 4242)
	mustBuy(t, svc, late.ID, carol, 1000)

	list, err := svc.ListRounds(ctx)
	if err != nil {
		t.Fatalf("ListRounds: %v", err)
	}
	var ids []int64
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	if !reflect.DeepEqual(ids, []int64{tie.ID, late.ID, early.ID}) {
		t.Errorf("expected draw-time descending order, got %v", ids)
	}

	winners, err := svc.GetWinners(ctx, early.ID)
	if err != nil || len(winners) != 0 {
		t.Errorf("expected no winners for an open round, got %v, %v", winners, err)
	}
	_, err = svc.GetWinners(ctx, 42)
	expectCode(t, err, models.ErrNotFound)

	clock.Set(early.DrawTime)
	if _, err := svc.Draw(ctx, early.ID, admin, Reveal{WinningNumber: 4242}); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	stats, err := svc.AggregateStats(ctx)
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}
	if stats.ActiveRounds != 2 || stats.SettledRounds != 1 || stats.TotalTickets != 3 || stats.TotalWinners != 2 {
		t.Errorf("unexpected stats %+v", stats)
	}
	if !stats.TotalAmount.Equal(decimal.NewFromInt(30)) {
		t.Errorf("expected total amount 30, got %s", stats.TotalAmount)
	}

	_, tickets, err := svc.WinningTickets(ctx, early.ID)
	if err != nil || len(tickets) != 2 || tickets[0].Buyer != alice || tickets[1].Seq != 1 {
		t.Errorf("unexpected winning tickets %+v, %v", tickets, err)
	}
}

func TestLotteryService_Events(t *testing.T) {
	var observed []models.SettlementEvent
	svc, clock, store := newTestService(t, SettlementObserverFunc(func(ev models.SettlementEvent) {
		observed = append(observed, ev)
	}))
	ctx := context.Background()

	a := mustCreate(t, svc, "a", time.Hour)
	b := mustCreate(t, svc, "b", time.Hour)
	clock.Set(t0.Add(2 * time.Hour))
	if _, err := svc.Draw(ctx, b.ID, admin, Reveal{WinningNumber: 2222}); err != nil {
		t.Fatalf("Draw b: %v", err)
	}
	clock.Set(t0.Add(3 * time.Hour))
	if _, err := svc.Draw(ctx, a.ID, admin, Reveal{WinningNumber: 1111}); err != nil {
		t.Fatalf("Draw a: %v", err)
	}

	events := svc.Events(0, 0)
	if len(events) != 2 || events[0].RoundID != b.ID || events[1].RoundID != a.ID {
		t.Fatalf("unexpected events %+v", events)
	}
	if events[0].Seq != 1 || events[1].Seq != 2 {
		t.Errorf("unexpected sequence numbers %d, %d", events[0].Seq, events[1].Seq)
	}
	if got := svc.Events(1, 0); len(got) != 1 || got[0].RoundID != a.ID {
		t.Errorf("unexpected events after 1: %+v", got)
	}
	if got := svc.Events(0, 1); len(got) != 1 {
		t.Errorf("limit not applied: %+v", got)
	}
	if !reflect.DeepEqual(observed, events) {
		t.Errorf("observers saw %+v, log has %+v", observed, events)
	}

	// A restarted engine rebuilds the log from the store.
	access, _ := NewAccessControl(admin)
	restarted, err := NewLotteryService(ctx, Options{Store: store, Access: access, Clock: clock, DefaultTicketPrice: price})
	if err != nil {
		t.Fatalf("NewLotteryService: %v", err)
	}
	replayed := restarted.Events(0, 0)
	if len(replayed) != 2 || replayed[0].RoundID != b.ID || replayed[1].WinningNumber != 1111 {
		t.Errorf("unexpected replayed events %+v", replayed)
	}
	if restarted.EventEpoch() == svc.EventEpoch() {
		t.Error("restart kept the event epoch; old cursors would be trusted")
	}
	if len(observed) != 2 {
		t.Errorf("replay notified observers: %d events", len(observed))
	}
}

func TestLotteryService_TotalsAtWeiPrices(t *testing.T) {
	const wei = int64(10_000_000_000_000_000) // 0.01 at 18 decimals
	access, err := NewAccessControl(admin)
	if err != nil {
		t.Fatalf("NewAccessControl: %v", err)
	}
	clock := &fakeClock{now: t0}
	store := storage.NewMemoryStore()
	svc, err := NewLotteryService(context.Background(), Options{Store: store, Access: access, Clock: clock, DefaultTicketPrice: wei})
	if err != nil {
		t.Fatalf("NewLotteryService: %v", err)
	}
	ctx := context.Background()
	r := mustCreate(t, svc, "wei", time.Hour)
	other := mustCreate(t, svc, "other", time.Hour)

	// 922 tickets fit in an int64 total; the 923rd would not.
	const fit = 922
	for i := 0; i < fit; i++ {
		if _, err := svc.BuyTicket(ctx, r.ID, alice, spreadNumber(i), wei); err != nil {
			t.Fatalf("BuyTicket %d: %v", i, err)
		}
	}
	_, err = svc.BuyTicket(ctx, r.ID, bob, 4242, wei)
	expectCode(t, err, models.ErrInvalidInput)

	got, err := svc.GetRound(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRound: %v", err)
	}
	var sum int64
	for _, tk := range got.Tickets {
		sum += tk.Amount
	}
	if got.TicketCount != fit || got.TotalAmount != sum || got.TotalAmount != fit*wei {
		t.Fatalf("expected %d tickets totalling %d, got %d totalling %d (sum %d)", fit, fit*wei, got.TicketCount, got.TotalAmount, sum)
	}

	for i := 0; i < fit; i++ {
		if _, err := svc.BuyTicket(ctx, other.ID, bob, 4242, wei); err != nil {
			t.Fatalf("BuyTicket other %d: %v", i, err)
		}
	}
	stats, err := svc.AggregateStats(ctx)
	if err != nil {
		t.Fatalf("AggregateStats: %v", err)
	}
	want := decimal.NewFromInt(fit * wei).Mul(decimal.NewFromInt(2))
	if !stats.TotalAmount.Equal(want) || !stats.TotalAmount.IsPositive() {
		t.Errorf("expected stats total %s, got %s", want, stats.TotalAmount)
	}
}

// spreadNumber maps i onto the valid number space.
func spreadNumber(i int) int {
	return models.MinNumber + i%(models.MaxNumber-models.MinNumber+1)
}

func TestLotteryService_ConcurrentPurchasesAndDraw(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	round := mustCreate(t, svc, "busy", time.Hour)

	const buyers = 50
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := alice
			if i%2 == 1 {
				buyer = bob
			}
			if _, err := svc.BuyTicket(ctx, round.ID, buyer, 1000+i%5, price); err != nil {
				t.Errorf("BuyTicket: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, _ := svc.GetRound(ctx, round.ID)
	if got.TicketCount != buyers || got.TotalAmount != buyers*price {
		t.Fatalf("expected %d tickets totalling %d, got %+v", buyers, buyers*price, got.RoundSummary)
	}
	var sum int64
	for i, tk := range got.Tickets {
		sum += tk.Amount
		if tk.Seq != i {
			t.Fatalf("ticket %d has seq %d", i, tk.Seq)
		}
	}
	if sum != got.TotalAmount {
		t.Fatalf("total %d does not match ticket sum %d", got.TotalAmount, sum)
	}

	clock.Set(round.DrawTime)
	results := make(chan error, 8)
	for i := 0; i < cap(results); i++ {
		go func(n int) {
			_, err := svc.Draw(ctx, round.ID, admin, Reveal{WinningNumber: 1000 + n%5})
			results <- err
		}(i)
	}
	succeeded := 0
	for i := 0; i < cap(results); i++ {
		err := <-results
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, models.ErrAlreadySettled):
			t.Errorf("unexpected draw error %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one successful draw, got %d", succeeded)
	}

	settled, _ := svc.GetRound(ctx, round.ID)
	if settled.WinnerCount != models.CountWinners(settled.Tickets, settled.WinningNumber) {
		t.Errorf("winner count %d does not match tickets", settled.WinnerCount)
	}
}

func TestLotteryService_ReleaseSettledLocks(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()

	open := mustCreate(t, svc, "open", 2*time.Hour)
	done := mustCreate(t, svc, "done", time.Hour)
	mustBuy(t, svc, open.ID, alice, 1234)
	mustBuy(t, svc, done.ID, alice, 1234)
	clock.Set(done.DrawTime)
	if _, err := svc.Draw(ctx, done.ID, admin, Reveal{WinningNumber: 1234}); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	released, err := svc.ReleaseSettledLocks(ctx)
	if err != nil {
		t.Fatalf("ReleaseSettledLocks: %v", err)
	}
	if released != 1 {
		t.Errorf("expected 1 released lock, got %d", released)
	}
	if _, ok := svc.locks[open.ID]; !ok {
		t.Error("lock of open round was released")
	}

	_, err = svc.Draw(ctx, done.ID, admin, Reveal{WinningNumber: 4321})
	expectCode(t, err, models.ErrAlreadySettled)
}
