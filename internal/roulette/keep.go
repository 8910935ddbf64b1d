package roulette

import (
	"context"
	"fmt"

	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

func (e *Engine) KeepItems(ctx context.Context, userID string) ([]KeepItem, error) {
	return recordstore.Read(ctx, e.store, keepKey(userID), []KeepItem{})
}

// UseKeepItem redeems one unit of the item at index (0-based). The item is removed
// when its count reaches zero, and one unit of the oldest matching history record
// that still has unredeemed units is counted as used.
func (e *Engine) UseKeepItem(ctx context.Context, userID string, index int) (KeepItem, error) {
	var used KeepItem
	_, err := recordstore.Update(ctx, e.store, keepKey(userID), []KeepItem{}, func(list []KeepItem) ([]KeepItem, error) {
		if index < 0 || index >= len(list) {
			return nil, fmt.Errorf("%w: index %d", ErrKeepItemNotFound, index)
		}
		used = list[index]
		used.Count = 1
		list[index].Count--
		if list[index].Count <= 0 {
			list = append(list[:index], list[index+1:]...)
		}
		return list, nil
	})
	if err != nil {
		return KeepItem{}, err
	}

	if _, err := recordstore.Update(ctx, e.store, keyHistory, []HistoryRecord{}, func(list []HistoryRecord) ([]HistoryRecord, error) {
		for i := range list {
			r := &list[i]
			if !r.Used && r.UserID == userID && r.TemplateID == used.TemplateID && r.Item.Label == used.Label {
				r.redeem()
				break
			}
		}
		return list, nil
	}); err != nil {
		logger.Warn("Failed to mark keep item history as used", zap.String("user_id", userID), zap.Error(err))
	}

	logger.Info("Keep item used",
		zap.String("user_id", userID),
		zap.String("label", used.Label),
		zap.String("template_id", used.TemplateID))
	return used, nil
}
