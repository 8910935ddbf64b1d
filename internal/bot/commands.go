package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/lottery"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/yacht"
)

var errUsage = errors.New("usage")

func usage(text string) error {
	return fmt.Errorf("%w: %s", errUsage, text)
}

func (r *Router) register() {
	if r.fans != nil {
		r.handle("score", false, r.cmdScore)
		r.handle("exp", true, r.cmdGrantExp)
		r.handle("lottotickets", true, r.cmdGrantLotto)
	}
	if r.lottery != nil {
		r.handle("lotto", false, r.cmdLotto)
	}
	if r.yacht != nil {
		r.handle("yacht", false, r.cmdYacht)
		r.handle("reroll", false, r.cmdReroll)
		r.handle("decide", false, r.cmdDecide)
	}
	if r.roulette != nil {
		r.handle("roulette", false, r.cmdRoulette)
		r.handle("keep", false, r.cmdKeep)
		r.handle("use", false, r.cmdUse)
		r.handle("tickets", true, r.cmdGrantRoulette)
	}
	if r.quiz != nil {
		r.handle("quiz", true, r.cmdQuiz)
	}
}

func (r *Router) cmdScore(ctx context.Context, msg ChatMessage, _ []string) (string, error) {
	u, err := r.fans.Lookup(ctx, msg.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Lv.%d (exp %d / next %d) score %d, lotto tickets %d",
		u.Level, u.Exp, fanscore.LevelThreshold(u.Level+1), u.Score, u.LotteryTickets), nil
}

// !lotto / !lotto 1 2 3 / !lotto 123 / !lotto auto
func (r *Router) cmdLotto(ctx context.Context, msg ChatMessage, args []string) (string, error) {
	if len(args) == 0 {
		n, err := r.lottery.Tickets(ctx, msg.UserID)
		if err != nil {
			return "", err
		}
		return "you have " + plural(n, "lotto ticket"), nil
	}

	if strings.EqualFold(args[0], "auto") {
		res, err := r.lottery.PlayAuto(ctx, msg.UserID)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("played %s: 3 hits x%d, 2 hits x%d, 1 hit x%d, +%d exp",
			plural(res.Plays, "ticket"), res.Tiers[3], res.Tiers[2], res.Tiers[1], res.Reward), nil
	}

	guess, err := parseGuess(args)
	if err != nil {
		return "", err
	}
	res, err := r.lottery.PlaySingle(ctx, msg.UserID, guess)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("drew %v for your %v: %d hit(s), +%d exp", res.Drawn, res.Guess, res.Matches, res.Reward), nil
}

func parseGuess(args []string) (lottery.Numbers, error) {
	digits := strings.Join(args, "")
	if len(digits) != lottery.DigitCount {
		return lottery.Numbers{}, lottery.ErrInvalidGuess
	}
	var g lottery.Numbers
	for i, c := range digits {
		if c < '0' || c > '9' {
			return lottery.Numbers{}, lottery.ErrInvalidGuess
		}
		g[i] = int(c - '0')
	}
	return g, nil
}

func (r *Router) cmdYacht(_ context.Context, msg ChatMessage, _ []string) (string, error) {
	s, err := r.yacht.Start(msg.UserID, msg.Nickname)
	if err != nil {
		return "", err
	}
	return formatDice(s) + " (!reroll 1 3 5 or !decide)", nil
}

func (r *Router) cmdReroll(_ context.Context, msg ChatMessage, args []string) (string, error) {
	positions, err := parsePositions(args)
	if err != nil {
		return "", err
	}
	s, err := r.yacht.Reroll(msg.UserID, positions)
	if err != nil {
		return "", err
	}
	if s.RollsRemaining > 0 {
		return formatDice(s), nil
	}
	res, err := r.yacht.Decide(msg.UserID)
	if err != nil {
		return "", err
	}
	return formatYachtResult(res), nil
}

func parsePositions(args []string) ([]int, error) {
	// "135" と "1 3 5" の両方を受け付ける
	joined := strings.Join(args, "")
	if joined == "" {
		return nil, yacht.ErrInvalidPositions
	}
	positions := make([]int, 0, len(joined))
	for _, c := range joined {
		if c < '0' || c > '9' {
			return nil, yacht.ErrInvalidPositions
		}
		positions = append(positions, int(c-'0'))
	}
	return positions, nil
}

func (r *Router) cmdDecide(_ context.Context, msg ChatMessage, _ []string) (string, error) {
	res, err := r.yacht.Decide(msg.UserID)
	if err != nil {
		return "", err
	}
	return formatYachtResult(res), nil
}

func formatDice(s yacht.State) string {
	return fmt.Sprintf("%v %s (%d pts), %s left", s.Dice, s.Hand, s.Score, plural(s.RollsRemaining, "reroll"))
}

func formatYachtResult(res yacht.Result) string {
	if res.Won {
		return fmt.Sprintf("%v %s (%d pts)! +%d exp", res.Dice, res.Hand, res.Score, res.Reward)
	}
	return fmt.Sprintf("%v %s (%d pts), no prize this time", res.Dice, res.Hand, res.Score)
}

// !roulette / !roulette <name> [count|all]
func (r *Router) cmdRoulette(ctx context.Context, msg ChatMessage, args []string) (string, error) {
	if len(args) == 0 {
		return r.rouletteBalances(ctx, msg.UserID)
	}

	tmpl, err := r.findTemplate(ctx, args[0])
	if err != nil {
		return "", err
	}
	count := 1
	if len(args) > 1 {
		if strings.EqualFold(args[1], "all") {
			balance, err := r.roulette.Tickets(ctx, msg.UserID)
			if err != nil {
				return "", err
			}
			count = balance[tmpl.ID]
			if count == 0 {
				return "", roulette.ErrInsufficientTickets
			}
		} else if count, err = strconv.Atoi(args[1]); err != nil {
			return "", usage("!roulette <name> [count|all]")
		}
	}

	if _, err := r.roulette.Spin(ctx, msg.UserID, msg.Nickname, tmpl.ID, count); err != nil {
		return "", err
	}
	// 結果は Spin が告知する
	return "", nil
}

func (r *Router) rouletteBalances(ctx context.Context, userID string) (string, error) {
	balance, err := r.roulette.Tickets(ctx, userID)
	if err != nil {
		return "", err
	}
	templates, err := r.roulette.Templates(ctx)
	if err != nil {
		return "", err
	}
	var parts []string
	for _, t := range templates {
		if n := balance[t.ID]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s x%d", t.Name, n))
		}
	}
	if len(parts) == 0 {
		return "you have no roulette tickets", nil
	}
	return "roulette tickets: " + strings.Join(parts, ", "), nil
}

func (r *Router) findTemplate(ctx context.Context, key string) (roulette.Template, error) {
	templates, err := r.roulette.Templates(ctx)
	if err != nil {
		return roulette.Template{}, err
	}
	for _, t := range templates {
		if t.ID == key || strings.EqualFold(t.Name, key) {
			return t, nil
		}
	}
	return roulette.Template{}, fmt.Errorf("%w: %s", roulette.ErrTemplateNotFound, key)
}

func (r *Router) cmdKeep(ctx context.Context, msg ChatMessage, _ []string) (string, error) {
	items, err := r.roulette.KeepItems(ctx, msg.UserID)
	if err != nil {
		return "", err
	}
	if len(items) == 0 {
		return "you have no kept items", nil
	}
	parts := make([]string, 0, len(items))
	for i, it := range items {
		parts = append(parts, fmt.Sprintf("%d. %s x%d", i+1, it.Label, it.Count))
	}
	return strings.Join(parts, ", ") + " (!use <number>)", nil
}

func (r *Router) cmdUse(ctx context.Context, msg ChatMessage, args []string) (string, error) {
	if len(args) != 1 {
		return "", usage("!use <number>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		return "", usage("!use <number>")
	}
	item, err := r.roulette.UseKeepItem(ctx, msg.UserID, n-1)
	if err != nil {
		return "", err
	}
	return "used " + item.Label, nil
}

// !tickets <user_id> <template> <delta>
func (r *Router) cmdGrantRoulette(ctx context.Context, _ ChatMessage, args []string) (string, error) {
	if len(args) != 3 {
		return "", usage("!tickets <user_id> <template> <delta>")
	}
	delta, err := strconv.Atoi(args[2])
	if err != nil {
		return "", usage("!tickets <user_id> <template> <delta>")
	}
	tmpl, err := r.findTemplate(ctx, args[1])
	if err != nil {
		return "", err
	}
	res, err := r.roulette.IssueTickets(ctx, args[0], "", tmpl.ID, delta)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s now has %s for %s", args[0], plural(res.Balance, "ticket"), tmpl.Name), nil
}

// !lottotickets <user_id> <delta>
func (r *Router) cmdGrantLotto(_ context.Context, _ ChatMessage, args []string) (string, error) {
	if len(args) != 2 {
		return "", usage("!lottotickets <user_id> <delta>")
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil || delta == 0 {
		return "", usage("!lottotickets <user_id> <delta>")
	}
	r.fans.RecordLotteryTicketChange(args[0], delta)
	return fmt.Sprintf("lotto tickets %+d for %s", delta, args[0]), nil
}

// !exp <user_id> <delta>
func (r *Router) cmdGrantExp(_ context.Context, _ ChatMessage, args []string) (string, error) {
	if len(args) != 2 {
		return "", usage("!exp <user_id> <delta>")
	}
	delta, err := strconv.Atoi(args[1])
	if err != nil || delta == 0 {
		return "", usage("!exp <user_id> <delta>")
	}
	r.fans.RecordDirectExp(args[0], delta)
	return fmt.Sprintf("exp %+d for %s", delta, args[0]), nil
}

func (r *Router) cmdQuiz(ctx context.Context, _ ChatMessage, _ []string) (string, error) {
	if _, err := r.quiz.Ask(ctx); err != nil {
		return "", err
	}
	return "", nil
}
