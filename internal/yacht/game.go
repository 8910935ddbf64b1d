// Package yacht implements a per-viewer five-dice game with two rerolls and a cooldown.
package yacht

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

// MaxRerolls is the number of rerolls a new game starts with.
const MaxRerolls = 2

var (
	ErrDisabled         = errors.New("yacht is disabled")
	ErrGameInProgress   = errors.New("yacht game already in progress")
	ErrCooldown         = errors.New("yacht is cooling down")
	ErrNoGame           = errors.New("no yacht game in progress")
	ErrNoRerolls        = errors.New("no rerolls remaining")
	ErrInvalidPositions = errors.New("positions must be 1-5 distinct values between 1 and 5")
)

// CooldownError carries how long the viewer still has to wait.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: %s remaining", ErrCooldown, e.Remaining.Round(time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrCooldown }

// ExpCrediter receives winnings.
type ExpCrediter interface {
	RecordDirectExp(userID string, exp int)
}

type ConfigSource interface {
	Yacht() settings.YachtConfig
}

type Deps struct {
	Exp      ExpCrediter
	Config   ConfigSource
	Notifier notify.Notifier
	Now      func() time.Time
}

// State is one viewer's game in progress.
type State struct {
	UserID         string    `json:"user_id"`
	Nickname       string    `json:"nickname"`
	Dice           Dice      `json:"dice"`
	Hand           Hand      `json:"hand"`
	Score          int       `json:"score"`
	RollsRemaining int       `json:"rolls_remaining"`
	StartedAt      time.Time `json:"started_at"`
}

func (s *State) classify() {
	s.Hand = Classify(s.Dice)
	s.Score = s.Hand.Score()
}

type Result struct {
	State
	Won    bool `json:"won"`
	Reward int  `json:"reward"`
}

type Game struct {
	exp      ExpCrediter
	cfg      ConfigSource
	notifier notify.Notifier
	now      func() time.Time

	mu        sync.Mutex
	sessions  map[string]*State
	cooldowns map[string]time.Time
}

func New(d Deps) *Game {
	g := &Game{
		exp:       d.Exp,
		cfg:       d.Config,
		notifier:  d.Notifier,
		now:       d.Now,
		sessions:  make(map[string]*State),
		cooldowns: make(map[string]time.Time),
	}
	if g.notifier == nil {
		g.notifier = notify.Nop{}
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

func (g *Game) config() settings.YachtConfig {
	if g.cfg == nil {
		return settings.DefaultYachtConfig()
	}
	return g.cfg.Yacht()
}

// Start rolls five fresh dice for the viewer.
func (g *Game) Start(userID, nickname string) (State, error) {
	cfg := g.config()
	if !cfg.Enabled {
		return State{}, ErrDisabled
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.sessions[userID]; ok {
		return State{}, ErrGameInProgress
	}
	now := g.now()
	if last, ok := g.cooldowns[userID]; ok {
		if remaining := last.Add(cfg.GameCooldown).Sub(now); remaining > 0 {
			return State{}, &CooldownError{Remaining: remaining}
		}
	}

	s := &State{
		UserID:         userID,
		Nickname:       nickname,
		Dice:           rollAll(),
		RollsRemaining: MaxRerolls,
		StartedAt:      now,
	}
	s.classify()
	g.sessions[userID] = s

	logger.Debug("Yacht game started", zap.String("user_id", userID), zap.Ints("dice", s.Dice[:]), zap.String("hand", string(s.Hand)))
	return *s, nil
}

// Reroll re-samples the dice at the given 1-based positions.
// When RollsRemaining reaches zero the caller is expected to Decide.
func (g *Game) Reroll(userID string, positions []int) (State, error) {
	if !validPositions(positions) {
		return State{}, ErrInvalidPositions
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[userID]
	if !ok {
		return State{}, ErrNoGame
	}
	if s.RollsRemaining <= 0 {
		return State{}, ErrNoRerolls
	}

	for _, p := range positions {
		s.Dice[p-1] = rollDie()
	}
	s.classify()
	s.RollsRemaining--

	logger.Debug("Yacht reroll", zap.String("user_id", userID), zap.Ints("positions", positions), zap.Ints("dice", s.Dice[:]), zap.Int("rolls_remaining", s.RollsRemaining))
	return *s, nil
}

// Decide ends the game, pays the reward when the hand reaches the winning score,
// and starts the cooldown whether or not it won.
func (g *Game) Decide(userID string) (Result, error) {
	cfg := g.config()

	g.mu.Lock()
	s, ok := g.sessions[userID]
	if !ok {
		g.mu.Unlock()
		return Result{}, ErrNoGame
	}
	delete(g.sessions, userID)
	g.cooldowns[userID] = g.now()
	g.mu.Unlock()

	res := Result{State: *s}
	if s.Score >= cfg.WinningScore {
		res.Won = true
		res.Reward = s.Score * max(1, cfg.ScoreMultiplier)
		if g.exp != nil {
			g.exp.RecordDirectExp(userID, res.Reward)
		}
	}

	logger.Info("Yacht game decided",
		zap.String("user_id", userID),
		zap.Ints("dice", s.Dice[:]),
		zap.String("hand", string(s.Hand)),
		zap.Int("score", s.Score),
		zap.Bool("won", res.Won),
		zap.Int("reward", res.Reward))
	g.notifier.Emit(notify.ChannelYachtResult, res)
	return res, nil
}

// Session returns the viewer's game in progress.
func (g *Game) Session(userID string) (State, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[userID]
	if !ok {
		return State{}, false
	}
	return *s, true
}

func validPositions(positions []int) bool {
	if len(positions) == 0 || len(positions) > DiceCount {
		return false
	}
	var seen [DiceCount + 1]bool
	for _, p := range positions {
		if p < 1 || p > DiceCount || seen[p] {
			return false
		}
		seen[p] = true
	}
	return true
}
