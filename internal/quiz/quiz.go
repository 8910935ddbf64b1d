// Package quiz runs timed chat trivia on a recurring timer.
package quiz

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/scheduler"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const keyQuestions = "quiz:questions"

var (
	ErrDisabled        = errors.New("quiz is disabled")
	ErrAlreadyWaiting  = errors.New("a quiz question is already open")
	ErrNoQuestions     = errors.New("quiz question pool is empty")
	ErrInvalidQuestion = errors.New("question and answer are required")
)

var pickIndex = func(n int) int {
	return rand.IntN(n)
}

type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type ExpCrediter interface {
	RecordDirectExp(userID string, exp int)
}

type ConfigSource interface {
	Fanscore() settings.FanscoreConfig
}

type Deps struct {
	Store     *recordstore.Store
	Exp       ExpCrediter
	Config    ConfigSource
	Scheduler scheduler.Scheduler
	Notifier  notify.Notifier
	Messenger notify.Messenger
}

// Announcement is emitted when a question opens.
type Announcement struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Timeout  int    `json:"timeout_seconds"`
}

// Answered is emitted when a viewer answers correctly.
type Answered struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Nickname string `json:"nickname"`
	Answer   string `json:"answer"`
	Bonus    int    `json:"bonus"`
}

// TimedOut is emitted when nobody answered in time.
type TimedOut struct {
	ID     string `json:"id"`
	Answer string `json:"answer"`
}

// Master owns the single open question. At most one is open at a time.
type Master struct {
	store     *recordstore.Store
	exp       ExpCrediter
	cfg       ConfigSource
	sched     scheduler.Scheduler
	notifier  notify.Notifier
	messenger notify.Messenger

	mu       sync.Mutex
	ctx      context.Context
	task     scheduler.Task
	waiting  bool
	asking   bool
	current  Question
	round    uint64
	deadline scheduler.Task
}

func New(d Deps) *Master {
	m := &Master{
		store:     d.Store,
		exp:       d.Exp,
		cfg:       d.Config,
		sched:     d.Scheduler,
		notifier:  d.Notifier,
		messenger: d.Messenger,
		ctx:       context.Background(),
	}
	if m.sched == nil {
		m.sched = scheduler.NewReal()
	}
	if m.notifier == nil {
		m.notifier = notify.Nop{}
	}
	if m.messenger == nil {
		m.messenger = notify.Nop{}
	}
	return m
}

// Start arms the recurring timer with the configured interval.
func (m *Master) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctx = ctx
	m.armLocked()
}

// Restart re-arms the recurring timer with the current interval.
// An open question and its timeout are left as they are.
func (m *Master) Restart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.armLocked()
}

// Stop cancels the recurring timer and any open question's timeout.
func (m *Master) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.task != nil {
		m.task.Stop()
		m.task = nil
	}
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	m.waiting = false
}

func (m *Master) armLocked() {
	if m.task != nil {
		m.task.Stop()
	}
	interval := m.cfg.Fanscore().QuizInterval
	if interval <= 0 {
		interval = settings.DefaultFanscoreConfig().QuizInterval
	}
	m.task = m.sched.Every(interval, m.tick)
	logger.Debug("Quiz timer armed", zap.Duration("interval", interval))
}

func (m *Master) tick() {
	if !m.cfg.Fanscore().QuizEnabled {
		return
	}
	m.mu.Lock()
	ctx := m.ctx
	m.mu.Unlock()

	if _, err := m.Ask(ctx); err != nil && !errors.Is(err, ErrAlreadyWaiting) && !errors.Is(err, ErrNoQuestions) {
		logger.Warn("Scheduled quiz failed", zap.Error(err))
	}
}

// Ask opens a random question from the pool now.
func (m *Master) Ask(ctx context.Context) (Question, error) {
	cfg := m.cfg.Fanscore()
	if !cfg.QuizEnabled {
		return Question{}, ErrDisabled
	}

	m.mu.Lock()
	if m.waiting || m.asking {
		m.mu.Unlock()
		return Question{}, ErrAlreadyWaiting
	}
	m.asking = true
	m.mu.Unlock()

	pool, err := m.Questions(ctx)

	m.mu.Lock()
	m.asking = false
	if err != nil {
		m.mu.Unlock()
		return Question{}, err
	}
	if len(pool) == 0 {
		m.mu.Unlock()
		return Question{}, ErrNoQuestions
	}
	q := pool[pickIndex(len(pool))]
	m.waiting = true
	m.current = q
	m.round++
	round := m.round
	m.deadline = m.sched.After(cfg.QuizTimeout, func() { m.expire(round) })
	m.mu.Unlock()

	logger.Info("Quiz question opened", zap.String("question_id", q.ID), zap.Duration("timeout", cfg.QuizTimeout))
	m.notifier.Emit(notify.ChannelQuizQuestion, Announcement{
		ID:       q.ID,
		Question: q.Question,
		Timeout:  int(cfg.QuizTimeout / time.Second),
	})
	m.messenger.SendText(fmt.Sprintf("[QUIZ] %s (answer in chat within %ds)", q.Question, int(cfg.QuizTimeout/time.Second)))
	return q, nil
}

// HandleChat checks text against the open question and reports whether it answered it.
func (m *Master) HandleChat(userID, nickname, text string) bool {
	m.mu.Lock()
	if !m.waiting || strings.TrimSpace(text) != strings.TrimSpace(m.current.Answer) {
		m.mu.Unlock()
		return false
	}
	q := m.current
	m.waiting = false
	if m.deadline != nil {
		m.deadline.Stop()
		m.deadline = nil
	}
	m.mu.Unlock()

	bonus := m.cfg.Fanscore().QuizBonus
	if bonus > 0 && m.exp != nil {
		m.exp.RecordDirectExp(userID, bonus)
	}

	name := nickname
	if name == "" {
		name = userID
	}
	logger.Info("Quiz answered", zap.String("question_id", q.ID), zap.String("user_id", userID), zap.Int("bonus", bonus))
	m.notifier.Emit(notify.ChannelQuizAnswered, Answered{
		ID:       q.ID,
		UserID:   userID,
		Nickname: nickname,
		Answer:   q.Answer,
		Bonus:    bonus,
	})
	m.messenger.SendText(fmt.Sprintf("%s got it! The answer was %s (+%d exp)", name, q.Answer, bonus))
	return true
}

func (m *Master) expire(round uint64) {
	m.mu.Lock()
	if !m.waiting || m.round != round {
		m.mu.Unlock()
		return
	}
	q := m.current
	m.waiting = false
	m.deadline = nil
	m.mu.Unlock()

	logger.Info("Quiz timed out", zap.String("question_id", q.ID))
	m.notifier.Emit(notify.ChannelQuizTimeout, TimedOut{ID: q.ID, Answer: q.Answer})
	m.messenger.SendText(fmt.Sprintf("Time's up! The answer was %s", q.Answer))
}

// Current returns the open question.
func (m *Master) Current() (Question, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.waiting {
		return Question{}, false
	}
	return m.current, true
}

func (m *Master) Questions(ctx context.Context) ([]Question, error) {
	list, err := recordstore.Read(ctx, m.store, keyQuestions, []Question{})
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz questions: %w", err)
	}
	return list, nil
}

// SaveQuestions replaces the pool. Entries without an ID get one.
func (m *Master) SaveQuestions(ctx context.Context, qs []Question) error {
	out := make([]Question, 0, len(qs))
	for i, q := range qs {
		q.Question = strings.TrimSpace(q.Question)
		q.Answer = strings.TrimSpace(q.Answer)
		if q.Question == "" || q.Answer == "" {
			return fmt.Errorf("%w: entry %d", ErrInvalidQuestion, i)
		}
		if q.ID == "" {
			id, err := gonanoid.New()
			if err != nil {
				return fmt.Errorf("failed to generate question id: %w", err)
			}
			q.ID = id
		}
		out = append(out, q)
	}
	if err := recordstore.Write(ctx, m.store, keyQuestions, out); err != nil {
		return fmt.Errorf("failed to save quiz questions: %w", err)
	}
	logger.Info("Quiz questions saved", zap.Int("count", len(out)))
	return nil
}
