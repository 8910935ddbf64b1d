package roulette

import (
	"context"
	"fmt"
	"strings"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

// Spin runs count draws on templateID for the viewer.
//
// The balance is checked against a fresh read before drawing and again inside the
// ledger's queue slot when it is decremented; either failure leaves everything untouched.
// Once the ledger is decremented, reward effects are applied best-effort: a failed
// effect is logged and never rolls back the spin.
func (e *Engine) Spin(ctx context.Context, userID, nickname, templateID string, count int) (SpinResult, error) {
	res, err := e.spin(ctx, userID, nickname, templateID, count)
	if err != nil {
		if isValidation(err) {
			logger.Debug("Spin rejected", zap.String("user_id", userID), zap.String("template_id", templateID), zap.Error(err))
		} else {
			logger.Warn("Spin failed", zap.String("user_id", userID), zap.String("template_id", templateID), zap.Error(err))
		}
		return SpinResult{}, err
	}
	return res, nil
}

func (e *Engine) spin(ctx context.Context, userID, nickname, templateID string, count int) (SpinResult, error) {
	if count <= 0 {
		return SpinResult{}, ErrInvalidCount
	}
	tmpl, err := e.Template(ctx, templateID)
	if err != nil {
		return SpinResult{}, err
	}
	if !tmpl.Enabled {
		return SpinResult{}, fmt.Errorf("%w: %s", ErrTemplateDisabled, tmpl.Name)
	}

	balance, err := e.Tickets(ctx, userID)
	if err != nil {
		return SpinResult{}, err
	}
	if balance[templateID] < count {
		return SpinResult{}, fmt.Errorf("%w: have %d, need %d", ErrInsufficientTickets, balance[templateID], count)
	}

	hits, misses := drawMany(tmpl.Items, count)
	groups, rare := groupHits(tmpl.Items, hits, misses)

	ledger, err := recordstore.Update(ctx, e.store, ticketsKey(userID), map[string]int{}, func(m map[string]int) (map[string]int, error) {
		if m[templateID] < count {
			return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientTickets, m[templateID], count)
		}
		m[templateID] -= count
		return m, nil
	})
	if err != nil {
		return SpinResult{}, err
	}

	res := SpinResult{
		TemplateID:   tmpl.ID,
		TemplateName: tmpl.Name,
		UserID:       userID,
		Nickname:     nickname,
		Count:        count,
		Groups:       groups,
		Rare:         rare,
		Remaining:    ledger[templateID],
	}

	e.settle(ctx, tmpl, res)

	if tmpl.Mode == ModeLike && res.AllMiss() {
		return res, nil
	}
	e.notifier.Emit(notify.ChannelRouletteSpin, res)
	e.messenger.SendText(formatSpin(res))
	return res, nil
}

// settle applies every winning group and logs it to history.
func (e *Engine) settle(ctx context.Context, tmpl Template, res SpinResult) {
	now := e.now()
	var history []HistoryRecord
	var keeps []KeepItem

	for _, g := range res.Groups {
		if g.Miss {
			continue
		}
		it := g.Item
		switch it.Type {
		case ItemCounter:
			add := it.amount() * g.Count
			if _, err := recordstore.Update(ctx, e.store, keyCounters, map[string]int{}, func(m map[string]int) (map[string]int, error) {
				m[it.Label] += add
				return m, nil
			}); err != nil {
				logger.Error("Failed to apply counter reward",
					zap.String("user_id", res.UserID),
					zap.String("label", it.Label),
					zap.Int("amount", add),
					zap.Error(err))
			}
		case ItemTicket:
			if e.lottery != nil {
				e.lottery.RecordLotteryTicketChange(res.UserID, it.amount()*g.Count)
			}
		case ItemKeep:
			keeps = append(keeps, KeepItem{
				Type:         it.Type,
				Label:        it.Label,
				Count:        g.Count,
				Percentage:   it.Percentage,
				TemplateID:   tmpl.ID,
				TemplateName: tmpl.Name,
				Timestamp:    now,
			})
		}

		rec := HistoryRecord{
			ID:         newRecordID(),
			TemplateID: tmpl.ID,
			UserID:     res.UserID,
			Item:       it,
			Count:      g.Count,
			Timestamp:  now,
		}
		if it.Type.instant() {
			rec.UsedCount = g.Count
			rec.Used = true
		}
		history = append(history, rec)
	}

	if len(keeps) > 0 {
		if _, err := recordstore.Update(ctx, e.store, keepKey(res.UserID), []KeepItem{}, func(list []KeepItem) ([]KeepItem, error) {
			return append(list, keeps...), nil
		}); err != nil {
			logger.Error("Failed to store keep items", zap.String("user_id", res.UserID), zap.Int("items", len(keeps)), zap.Error(err))
		}
	}
	if len(history) > 0 {
		if _, err := recordstore.Update(ctx, e.store, keyHistory, []HistoryRecord{}, func(list []HistoryRecord) ([]HistoryRecord, error) {
			return append(list, history...), nil
		}); err != nil {
			logger.Error("Failed to append roulette history", zap.String("user_id", res.UserID), zap.Error(err))
		}
	}
}

func formatSpin(res SpinResult) string {
	name := res.Nickname
	if name == "" {
		name = res.UserID
	}

	parts := make([]string, 0, len(res.Groups))
	for _, g := range res.Groups {
		label := g.Item.Label
		if g.Miss {
			label = "miss"
		}
		parts = append(parts, fmt.Sprintf("%s x%d", label, g.Count))
	}

	prefix := ""
	if res.Rare {
		prefix = "[RARE] "
	}
	return fmt.Sprintf("%s%s spun %s x%d: %s", prefix, name, res.TemplateName, res.Count, strings.Join(parts, ", "))
}
