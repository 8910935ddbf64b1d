// Package roulette implements weighted-item draws paid for with per-template tickets.
package roulette

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// TicketGranter credits lottery tickets won from ticket items.
type TicketGranter interface {
	RecordLotteryTicketChange(userID string, delta int)
}

type Deps struct {
	Store     *recordstore.Store
	Lottery   TicketGranter
	Notifier  notify.Notifier
	Messenger notify.Messenger
	Now       func() time.Time
}

type Engine struct {
	store     *recordstore.Store
	lottery   TicketGranter
	notifier  notify.Notifier
	messenger notify.Messenger
	now       func() time.Time

	mu        sync.Mutex
	templates []Template
	loaded    bool
}

func New(d Deps) *Engine {
	e := &Engine{
		store:     d.Store,
		lottery:   d.Lottery,
		notifier:  d.Notifier,
		messenger: d.Messenger,
		now:       d.Now,
	}
	if e.notifier == nil {
		e.notifier = notify.Nop{}
	}
	if e.messenger == nil {
		e.messenger = notify.Nop{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// Templates returns every template, served from cache after the first read.
func (e *Engine) Templates(ctx context.Context) ([]Template, error) {
	e.mu.Lock()
	if e.loaded {
		out := append([]Template(nil), e.templates...)
		e.mu.Unlock()
		return out, nil
	}
	e.mu.Unlock()

	list, err := recordstore.Read(ctx, e.store, keyTemplates, []Template{})
	if err != nil {
		return nil, fmt.Errorf("failed to load roulette templates: %w", err)
	}

	e.mu.Lock()
	e.templates = list
	e.loaded = true
	e.mu.Unlock()
	return append([]Template(nil), list...), nil
}

func (e *Engine) Template(ctx context.Context, id string) (Template, error) {
	list, err := e.Templates(ctx)
	if err != nil {
		return Template{}, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
}

// SaveTemplate validates t and inserts or replaces it. An empty ID gets a new one.
func (e *Engine) SaveTemplate(ctx context.Context, t Template) (Template, error) {
	if err := t.Validate(); err != nil {
		return Template{}, err
	}
	if t.ID == "" {
		id, err := gonanoid.New()
		if err != nil {
			return Template{}, fmt.Errorf("failed to generate template id: %w", err)
		}
		t.ID = id
	}

	list, err := recordstore.Update(ctx, e.store, keyTemplates, []Template{}, func(list []Template) ([]Template, error) {
		for i := range list {
			if list[i].ID == t.ID {
				list[i] = t
				return list, nil
			}
		}
		return append(list, t), nil
	})
	e.invalidate(list, err)
	if err != nil {
		return Template{}, fmt.Errorf("failed to save roulette template: %w", err)
	}
	logger.Info("Roulette template saved", zap.String("template_id", t.ID), zap.String("name", t.Name))
	return t, nil
}

func (e *Engine) DeleteTemplate(ctx context.Context, id string) error {
	list, err := recordstore.Update(ctx, e.store, keyTemplates, []Template{}, func(list []Template) ([]Template, error) {
		for i := range list {
			if list[i].ID == id {
				return append(list[:i], list[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	})
	e.invalidate(list, err)
	return err
}

func (e *Engine) invalidate(list []Template, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err != nil {
		e.loaded = false
		e.templates = nil
		return
	}
	e.templates = list
	e.loaded = true
}

// Tickets returns the viewer's balance per template. Always read from the store.
func (e *Engine) Tickets(ctx context.Context, userID string) (map[string]int, error) {
	m, err := recordstore.Read(ctx, e.store, ticketsKey(userID), map[string]int{})
	if err != nil {
		return nil, fmt.Errorf("failed to read roulette tickets: %w", err)
	}
	return m, nil
}

// IssueTickets adds delta (negative to consume) to the viewer's balance for templateID.
// The balance never goes below zero. Auto-run templates spin the whole new balance at once.
func (e *Engine) IssueTickets(ctx context.Context, userID, nickname, templateID string, delta int) (IssueResult, error) {
	tmpl, err := e.Template(ctx, templateID)
	if err != nil {
		return IssueResult{}, err
	}

	m, err := recordstore.Update(ctx, e.store, ticketsKey(userID), map[string]int{}, func(m map[string]int) (map[string]int, error) {
		m[templateID] = max(0, m[templateID]+delta)
		return m, nil
	})
	if err != nil {
		return IssueResult{}, fmt.Errorf("failed to issue roulette tickets: %w", err)
	}
	res := IssueResult{TemplateID: tmpl.ID, TemplateName: tmpl.Name, Balance: m[templateID]}
	logger.Debug("Roulette tickets issued",
		zap.String("user_id", userID),
		zap.String("template_id", templateID),
		zap.Int("delta", delta),
		zap.Int("balance", res.Balance))

	if tmpl.AutoRun && tmpl.Enabled && delta > 0 && res.Balance > 0 {
		spin, err := e.Spin(ctx, userID, nickname, templateID, res.Balance)
		if err != nil {
			// 発行自体は成功しているので残高は残る
			logger.Warn("Auto-run spin failed", zap.String("user_id", userID), zap.String("template_id", templateID), zap.Error(err))
			return res, nil
		}
		res.Spin = &spin
		res.Balance = spin.Remaining
	}
	return res, nil
}

// HandleGift issues amount/division tickets on every enabled gift-mode template.
func (e *Engine) HandleGift(ctx context.Context, userID, nickname string, amount int) []IssueResult {
	return e.issueForMode(ctx, userID, nickname, ModeSpoon, func(t Template) int {
		return amount / t.Division
	})
}

// HandleLike issues one ticket on every enabled like-mode template.
func (e *Engine) HandleLike(ctx context.Context, userID, nickname string) []IssueResult {
	return e.issueForMode(ctx, userID, nickname, ModeLike, func(Template) int { return 1 })
}

func (e *Engine) issueForMode(ctx context.Context, userID, nickname string, mode Mode, count func(Template) int) []IssueResult {
	list, err := e.Templates(ctx)
	if err != nil {
		logger.Warn("Failed to load templates for ticket issue", zap.Error(err))
		return nil
	}

	var results []IssueResult
	for _, t := range list {
		if t.Mode != mode || !t.Enabled {
			continue
		}
		n := count(t)
		if n <= 0 {
			continue
		}
		res, err := e.IssueTickets(ctx, userID, nickname, t.ID, n)
		if err != nil {
			logger.Warn("Failed to issue roulette tickets",
				zap.String("user_id", userID),
				zap.String("template_id", t.ID),
				zap.Error(err))
			continue
		}
		results = append(results, res)
	}
	return results
}

// Counters returns the shared counters adjusted by counter items.
func (e *Engine) Counters(ctx context.Context) (map[string]int, error) {
	return recordstore.Read(ctx, e.store, keyCounters, map[string]int{})
}

// History returns up to limit records, newest first. limit <= 0 returns everything.
func (e *Engine) History(ctx context.Context, limit int) ([]HistoryRecord, error) {
	list, err := recordstore.Read(ctx, e.store, keyHistory, []HistoryRecord{})
	if err != nil {
		return nil, err
	}
	out := make([]HistoryRecord, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		out = append(out, list[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func newRecordID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("r%d", time.Now().UnixNano())
	}
	return id
}

func isValidation(err error) bool {
	return errors.Is(err, ErrInsufficientTickets) ||
		errors.Is(err, ErrInvalidCount) ||
		errors.Is(err, ErrTemplateNotFound) ||
		errors.Is(err, ErrTemplateDisabled)
}
