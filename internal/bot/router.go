// Package bot turns inbound chat, gift and like events into calls on the game engines.
package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/lottery"
	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"github.com/ichi0g0y/twitch-fanscore/internal/yacht"
	"go.uber.org/zap"
)

const commandPrefix = "!"

// ChatMessage is one inbound chat line. IsAdmin is decided by the transport.
type ChatMessage struct {
	UserID   string
	Nickname string
	Tag      string
	Text     string
	IsAdmin  bool
}

func (m ChatMessage) name() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.UserID
}

// Deps wires the engines. Nil engines disable their commands.
type Deps struct {
	Fans      *fanscore.Aggregator
	Roulette  *roulette.Engine
	Lottery   *lottery.Engine
	Yacht     *yacht.Game
	Quiz      *quiz.Master
	LiveID    func() string
	Messenger notify.Messenger
}

type handler func(ctx context.Context, msg ChatMessage, args []string) (string, error)

type command struct {
	admin bool
	run   handler
}

type Router struct {
	fans      *fanscore.Aggregator
	roulette  *roulette.Engine
	lottery   *lottery.Engine
	yacht     *yacht.Game
	quiz      *quiz.Master
	liveID    func() string
	messenger notify.Messenger
	commands  map[string]command
}

func NewRouter(d Deps) *Router {
	r := &Router{
		fans:      d.Fans,
		roulette:  d.Roulette,
		lottery:   d.Lottery,
		yacht:     d.Yacht,
		quiz:      d.Quiz,
		liveID:    d.LiveID,
		messenger: d.Messenger,
		commands:  make(map[string]command),
	}
	if r.liveID == nil {
		r.liveID = func() string { return "" }
	}
	if r.messenger == nil {
		r.messenger = notify.Nop{}
	}
	r.register()
	return r
}

func (r *Router) handle(name string, admin bool, run handler) {
	r.commands[name] = command{admin: admin, run: run}
}

// HandleChat records activity, checks quiz answers and runs commands.
func (r *Router) HandleChat(ctx context.Context, msg ChatMessage) {
	if msg.UserID == "" {
		return
	}
	if r.fans != nil {
		if liveID := r.liveID(); liveID != "" {
			r.fans.RecordAttendance(msg.UserID, msg.Nickname, msg.Tag, liveID)
		}
		r.fans.RecordChat(msg.UserID, msg.Nickname, msg.Tag)
	}

	if r.quiz != nil && r.quiz.HandleChat(msg.UserID, msg.Nickname, msg.Text) {
		return
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, commandPrefix) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(text, commandPrefix))
	if len(fields) == 0 {
		return
	}
	name := strings.ToLower(fields[0])
	cmd, ok := r.commands[name]
	if !ok {
		return
	}
	if cmd.admin && !msg.IsAdmin {
		logger.Debug("Admin command rejected", zap.String("command", name), zap.String("user_id", msg.UserID))
		r.reply(msg, "only the broadcaster can use !"+name)
		return
	}

	out, err := cmd.run(ctx, msg, fields[1:])
	if err != nil {
		out = errorReply(name, err)
	}
	if out != "" {
		r.reply(msg, out)
	}
}

// HandleGift credits a gift of amount to score, lottery tickets and gift-mode roulettes.
func (r *Router) HandleGift(ctx context.Context, userID, nickname, tag string, amount int) {
	if userID == "" || amount <= 0 {
		return
	}
	msg := ChatMessage{UserID: userID, Nickname: nickname, Tag: tag}
	if r.fans != nil {
		r.fans.RecordGift(userID, nickname, tag, amount)
	}
	if r.lottery != nil {
		if n := r.lottery.HandleGift(userID, amount); n > 0 {
			r.reply(msg, plural(n, "lotto ticket")+" received")
		}
	}
	if r.roulette != nil {
		r.announceIssued(ctx, msg, r.roulette.HandleGift(ctx, userID, nickname, amount))
	}
}

// HandleLike credits a like to score and like-mode roulettes.
func (r *Router) HandleLike(ctx context.Context, userID, nickname, tag string) {
	if userID == "" {
		return
	}
	if r.fans != nil {
		r.fans.RecordLike(userID, nickname, tag)
	}
	if r.roulette != nil {
		// like は頻度が高いので発行だけでは通知しない
		r.roulette.HandleLike(ctx, userID, nickname)
	}
}

func (r *Router) announceIssued(_ context.Context, msg ChatMessage, results []roulette.IssueResult) {
	for _, res := range results {
		if res.Spin != nil {
			// 自動実行の結果は Spin 側で告知済み
			continue
		}
		r.reply(msg, fmt.Sprintf("%s: %s", res.TemplateName, plural(res.Balance, "ticket")))
	}
}

func (r *Router) reply(msg ChatMessage, text string) {
	r.messenger.SendText("@" + msg.name() + " " + text)
}
