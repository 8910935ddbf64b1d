package lottery

import (
	"context"
	"errors"
	"testing"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
)

type fakeBank struct {
	tickets map[string]int
	exp     map[string]int
}

func newFakeBank() *fakeBank {
	return &fakeBank{tickets: map[string]int{}, exp: map[string]int{}}
}

func (b *fakeBank) LotteryTickets(_ context.Context, userID string) (int, error) {
	return b.tickets[userID], nil
}

func (b *fakeBank) SpendLotteryTickets(_ context.Context, userID string, n int) error {
	if b.tickets[userID] < n {
		return errors.New("insufficient")
	}
	b.tickets[userID] -= n
	return nil
}

func (b *fakeBank) SpendAllLotteryTickets(_ context.Context, userID string) (int, error) {
	n := b.tickets[userID]
	b.tickets[userID] = 0
	return n, nil
}

func (b *fakeBank) RecordLotteryTicketChange(userID string, delta int) {
	b.tickets[userID] += delta
}

func (b *fakeBank) RecordDirectExp(userID string, exp int) {
	b.exp[userID] += exp
}

// useRandom replaces drawRandomInt with a cycle over values.
func useRandom(t *testing.T, values ...int) {
	t.Helper()
	original := drawRandomInt
	i := 0
	drawRandomInt = func(max int) (int, error) {
		v := values[i%len(values)]
		i++
		if v >= max {
			t.Fatalf("random value out of range: got=%d max=%d", v, max)
		}
		return v, nil
	}
	t.Cleanup(func() { drawRandomInt = original })
}

func newEngine(bank *fakeBank, mutate func(*settings.FanscoreConfig)) (*Engine, *notify.Recorder) {
	cfg := settings.DefaultFanscoreConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	rec := &notify.Recorder{}
	return New(Deps{
		Bank:     bank,
		Config:   settings.NewLive(cfg, settings.DefaultYachtConfig()),
		Notifier: rec,
	}), rec
}

func TestDrawNumbers_Distinct(t *testing.T) {
	for i := 0; i < 200; i++ {
		n, err := DrawNumbers()
		if err != nil {
			t.Fatalf("DrawNumbers failed: %v", err)
		}
		if !n.Valid() {
			t.Fatalf("drawn numbers are not distinct digits: %v", n)
		}
	}
}

func TestDrawNumbers_PartialShuffle(t *testing.T) {
	useRandom(t, 1, 1, 7)
	got, err := DrawNumbers()
	if err != nil {
		t.Fatalf("DrawNumbers failed: %v", err)
	}
	if want := (Numbers{1, 2, 9}); got != want {
		t.Fatalf("unexpected draw: got=%v want=%v", got, want)
	}
}

func TestReward_Tiers(t *testing.T) {
	want := map[int]int{0: 0, 1: 10, 2: 100, 3: 1000, 4: 0, -1: 0}
	for m, w := range want {
		if got := Reward(m); got != w {
			t.Fatalf("Reward(%d): got=%d want=%d", m, got, w)
		}
	}
}

func TestPlaySingle_TwoMatchesPaysHundred(t *testing.T) {
	useRandom(t, 1, 1, 7) // drawn [1 2 9]
	bank := newFakeBank()
	bank.tickets["u1"] = 2
	e, rec := newEngine(bank, nil)

	res, err := e.PlaySingle(context.Background(), "u1", Numbers{1, 2, 3})
	if err != nil {
		t.Fatalf("PlaySingle failed: %v", err)
	}
	if res.Matches != 2 || res.Reward != 100 {
		t.Fatalf("unexpected result: got=%+v", res)
	}
	if bank.tickets["u1"] != 1 {
		t.Fatalf("unexpected tickets: got=%d want=1", bank.tickets["u1"])
	}
	if bank.exp["u1"] != 100 {
		t.Fatalf("unexpected exp: got=%d want=100", bank.exp["u1"])
	}
	if len(rec.EventsOn(notify.ChannelLotteryResult)) != 1 {
		t.Fatalf("lottery result should be emitted")
	}
}

func TestPlaySingle_Rejections(t *testing.T) {
	bank := newFakeBank()
	e, rec := newEngine(bank, nil)
	ctx := context.Background()

	if _, err := e.PlaySingle(ctx, "u1", Numbers{1, 2, 3}); !errors.Is(err, ErrNoTickets) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrNoTickets)
	}

	bank.tickets["u1"] = 1
	for _, g := range []Numbers{{1, 1, 2}, {1, 2, 10}, {-1, 2, 3}} {
		if _, err := e.PlaySingle(ctx, "u1", g); !errors.Is(err, ErrInvalidGuess) {
			t.Fatalf("guess %v: got=%v want=%v", g, err, ErrInvalidGuess)
		}
	}
	if bank.tickets["u1"] != 1 {
		t.Fatalf("rejected plays must not spend: got=%d want=1", bank.tickets["u1"])
	}
	if len(rec.Events()) != 0 {
		t.Fatalf("rejected plays must not emit")
	}

	disabled, _ := newEngine(bank, func(c *settings.FanscoreConfig) { c.LotteryEnabled = false })
	if _, err := disabled.PlaySingle(ctx, "u1", Numbers{1, 2, 3}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrDisabled)
	}
}

func TestPlaySingle_DrawFailureRefunds(t *testing.T) {
	original := drawRandomInt
	drawRandomInt = func(int) (int, error) { return 0, errors.New("entropy") }
	t.Cleanup(func() { drawRandomInt = original })

	bank := newFakeBank()
	bank.tickets["u1"] = 1
	e, _ := newEngine(bank, nil)

	if _, err := e.PlaySingle(context.Background(), "u1", Numbers{1, 2, 3}); err == nil {
		t.Fatalf("expected draw failure")
	}
	if bank.tickets["u1"] != 1 {
		t.Fatalf("ticket should be refunded: got=%d want=1", bank.tickets["u1"])
	}
}

func TestPlayAuto_TalliesTiers(t *testing.T) {
	// 1回目: [1 2 9] (2一致), 2回目: [0 4 5] (0一致), 3回目: [1 2 3] (3一致)
	useRandom(t, 1, 1, 7, 0, 3, 3, 1, 1, 1)
	bank := newFakeBank()
	bank.tickets["u1"] = 3
	e, _ := newEngine(bank, nil)

	res, err := e.PlayAuto(context.Background(), "u1")
	if err != nil {
		t.Fatalf("PlayAuto failed: %v", err)
	}
	if res.Plays != 3 {
		t.Fatalf("unexpected plays: got=%d want=3", res.Plays)
	}
	if want := [4]int{1, 0, 1, 1}; res.Tiers != want {
		t.Fatalf("unexpected tiers: got=%v want=%v", res.Tiers, want)
	}
	if res.Reward != 1100 || bank.exp["u1"] != 1100 {
		t.Fatalf("unexpected reward: got=%d exp=%d want=1100", res.Reward, bank.exp["u1"])
	}
	if bank.tickets["u1"] != 0 {
		t.Fatalf("balance should be consumed: got=%d", bank.tickets["u1"])
	}

	if _, err := e.PlayAuto(context.Background(), "u1"); !errors.Is(err, ErrNoTickets) {
		t.Fatalf("unexpected error: got=%v want=%v", err, ErrNoTickets)
	}
}

func TestHandleGift_GrantsPerRequiredAmount(t *testing.T) {
	bank := newFakeBank()
	e, _ := newEngine(bank, func(c *settings.FanscoreConfig) { c.LotterySpoonRequired = 100 })

	if got := e.HandleGift("u1", 250); got != 2 {
		t.Fatalf("unexpected grant: got=%d want=2", got)
	}
	if got := e.HandleGift("u1", 99); got != 0 {
		t.Fatalf("unexpected grant: got=%d want=0", got)
	}
	if bank.tickets["u1"] != 2 {
		t.Fatalf("unexpected tickets: got=%d want=2", bank.tickets["u1"])
	}
}
