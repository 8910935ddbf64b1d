package bot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/lottery"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/yacht"
	"go.uber.org/zap"
)

var replies = []struct {
	err  error
	text string
}{
	{lottery.ErrDisabled, "the lotto is closed right now"},
	{lottery.ErrNoTickets, "you have no lotto tickets"},
	{fanscore.ErrInsufficientTickets, "you have no lotto tickets"},
	{lottery.ErrInvalidGuess, "pick 3 different digits, e.g. !lotto 1 2 3"},
	{yacht.ErrDisabled, "yacht is closed right now"},
	{yacht.ErrGameInProgress, "you already have a game, use !reroll or !decide"},
	{yacht.ErrNoGame, "start a game with !yacht first"},
	{yacht.ErrNoRerolls, "no rerolls left, use !decide"},
	{yacht.ErrInvalidPositions, "choose dice 1-5, e.g. !reroll 1 3"},
	{roulette.ErrTemplateNotFound, "no such roulette"},
	{roulette.ErrTemplateDisabled, "that roulette is closed"},
	{roulette.ErrInsufficientTickets, "not enough roulette tickets"},
	{roulette.ErrInvalidCount, "spin count must be positive"},
	{roulette.ErrKeepItemNotFound, "no kept item with that number, see !keep"},
	{quiz.ErrDisabled, "the quiz is disabled"},
	{quiz.ErrAlreadyWaiting, "a question is already open"},
	{quiz.ErrNoQuestions, "the question pool is empty"},
}

// errorReply turns an engine error into a chat reply.
func errorReply(command string, err error) string {
	var cd *yacht.CooldownError
	if errors.As(err, &cd) {
		return fmt.Sprintf("yacht is cooling down, try again in %s", cd.Remaining.Round(time.Second))
	}
	if errors.Is(err, errUsage) {
		return strings.TrimPrefix(err.Error(), errUsage.Error()+": ")
	}
	for _, r := range replies {
		if errors.Is(err, r.err) {
			return r.text
		}
	}
	logger.Error("Command failed", zap.String("command", command), zap.Error(err))
	return "something went wrong, please try again"
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
