// Package lottery implements the number-matching game paid for with fan lottery tickets.
package lottery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

var (
	ErrDisabled     = errors.New("lottery is disabled")
	ErrNoTickets    = errors.New("no lottery tickets")
	ErrInvalidGuess = errors.New("guess must be 3 distinct digits 0-9")
)

// AutoGuess is the fixed guess used by PlayAuto.
var AutoGuess = Numbers{1, 2, 3}

// TicketBank owns ticket balances and exp crediting.
type TicketBank interface {
	LotteryTickets(ctx context.Context, userID string) (int, error)
	SpendLotteryTickets(ctx context.Context, userID string, n int) error
	SpendAllLotteryTickets(ctx context.Context, userID string) (int, error)
	RecordLotteryTicketChange(userID string, delta int)
	RecordDirectExp(userID string, exp int)
}

type ConfigSource interface {
	Fanscore() settings.FanscoreConfig
}

type Deps struct {
	Bank     TicketBank
	Config   ConfigSource
	Notifier notify.Notifier
}

type Engine struct {
	bank     TicketBank
	cfg      ConfigSource
	notifier notify.Notifier
}

func New(d Deps) *Engine {
	e := &Engine{bank: d.Bank, cfg: d.Config, notifier: d.Notifier}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	return e
}

type PlayResult struct {
	UserID  string  `json:"user_id"`
	Guess   Numbers `json:"guess"`
	Drawn   Numbers `json:"drawn"`
	Matches int     `json:"matches"`
	Reward  int     `json:"reward"`
}

// AutoResult tallies a PlayAuto run. Tiers[m] is the number of plays with m matches.
type AutoResult struct {
	UserID string              `json:"user_id"`
	Plays  int                 `json:"plays"`
	Tiers  [DigitCount + 1]int `json:"tiers"`
	Reward int                 `json:"reward"`
}

func (e *Engine) enabled() bool {
	return e.cfg == nil || e.cfg.Fanscore().LotteryEnabled
}

// Tickets returns the viewer's current balance.
func (e *Engine) Tickets(ctx context.Context, userID string) (int, error) {
	return e.bank.LotteryTickets(ctx, userID)
}

// PlaySingle spends one ticket on guess and credits the reward as direct exp.
func (e *Engine) PlaySingle(ctx context.Context, userID string, guess Numbers) (PlayResult, error) {
	if !e.enabled() {
		return PlayResult{}, ErrDisabled
	}
	if !guess.Valid() {
		return PlayResult{}, ErrInvalidGuess
	}
	balance, err := e.bank.LotteryTickets(ctx, userID)
	if err != nil {
		return PlayResult{}, fmt.Errorf("failed to read lottery tickets: %w", err)
	}
	if balance < 1 {
		return PlayResult{}, ErrNoTickets
	}
	if err := e.bank.SpendLotteryTickets(ctx, userID, 1); err != nil {
		return PlayResult{}, fmt.Errorf("failed to spend lottery ticket: %w", err)
	}

	drawn, err := DrawNumbers()
	if err != nil {
		e.bank.RecordLotteryTicketChange(userID, 1)
		return PlayResult{}, fmt.Errorf("failed to draw lottery numbers: %w", err)
	}

	res := PlayResult{UserID: userID, Guess: guess, Drawn: drawn}
	res.Matches = Matches(guess, drawn)
	res.Reward = Reward(res.Matches)
	if res.Reward > 0 {
		e.bank.RecordDirectExp(userID, res.Reward)
	}

	logger.Info("Lottery played",
		zap.String("user_id", userID),
		zap.Ints("guess", guess[:]),
		zap.Ints("drawn", drawn[:]),
		zap.Int("matches", res.Matches),
		zap.Int("reward", res.Reward))
	e.notifier.Emit(notify.ChannelLotteryResult, res)
	return res, nil
}

// PlayAuto spends the whole balance with AutoGuess and credits the summed reward.
func (e *Engine) PlayAuto(ctx context.Context, userID string) (AutoResult, error) {
	if !e.enabled() {
		return AutoResult{}, ErrDisabled
	}
	n, err := e.bank.SpendAllLotteryTickets(ctx, userID)
	if err != nil {
		return AutoResult{}, fmt.Errorf("failed to spend lottery tickets: %w", err)
	}
	if n <= 0 {
		return AutoResult{}, ErrNoTickets
	}

	res := AutoResult{UserID: userID, Plays: n}
	for i := 0; i < n; i++ {
		drawn, err := DrawNumbers()
		if err != nil {
			// 何も付与していないので全額返す
			e.bank.RecordLotteryTicketChange(userID, n)
			return AutoResult{}, fmt.Errorf("failed to draw lottery numbers: %w", err)
		}
		m := Matches(AutoGuess, drawn)
		res.Tiers[m]++
		res.Reward += Reward(m)
	}
	if res.Reward > 0 {
		e.bank.RecordDirectExp(userID, res.Reward)
	}

	logger.Info("Lottery auto played",
		zap.String("user_id", userID),
		zap.Int("plays", res.Plays),
		zap.Ints("tiers", res.Tiers[:]),
		zap.Int("reward", res.Reward))
	e.notifier.Emit(notify.ChannelLotteryResult, res)
	return res, nil
}

// HandleGift grants amount / lottery_spoon_required tickets and returns how many were granted.
func (e *Engine) HandleGift(userID string, amount int) int {
	if e.cfg == nil {
		return 0
	}
	cfg := e.cfg.Fanscore()
	if !cfg.LotteryEnabled || cfg.LotterySpoonRequired <= 0 || amount <= 0 {
		return 0
	}
	n := amount / cfg.LotterySpoonRequired
	if n > 0 {
		e.bank.RecordLotteryTicketChange(userID, n)
		logger.Debug("Lottery tickets granted for gift", zap.String("user_id", userID), zap.Int("amount", amount), zap.Int("tickets", n))
	}
	return n
}
