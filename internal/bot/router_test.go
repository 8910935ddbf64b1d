package bot

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/fanscore"
	"github.com/ichi0g0y/twitch-fanscore/internal/lottery"
	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/quiz"
	"github.com/ichi0g0y/twitch-fanscore/internal/recordstore"
	"github.com/ichi0g0y/twitch-fanscore/internal/roulette"
	"github.com/ichi0g0y/twitch-fanscore/internal/scheduler"
	"github.com/ichi0g0y/twitch-fanscore/internal/settings"
	"github.com/ichi0g0y/twitch-fanscore/internal/yacht"
)

type memRepo struct {
	mu    sync.Mutex
	users map[string]fanscore.FanUser
}

func (r *memRepo) GetFanUser(_ context.Context, userID string) (*fanscore.FanUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *memRepo) SaveFanUsers(_ context.Context, users []fanscore.FanUser) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range users {
		r.users[u.UserID] = u
	}
	return nil
}

type fixture struct {
	router   *Router
	fans     *fanscore.Aggregator
	roulette *roulette.Engine
	rec      *notify.Recorder
	chat     *notify.Recorder
	clock    *scheduler.Manual
	liveID   string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := settings.DefaultFanscoreConfig()
	cfg.Enabled = true
	cfg.AttendanceScore = 10
	cfg.ChatScore = 1
	cfg.LikeScore = 5
	cfg.SpoonScore = 100
	cfg.LotteryEnabled = true
	cfg.LotterySpoonRequired = 100
	cfg.QuizEnabled = true
	cfg.QuizBonus = 50
	cfg.QuizInterval = time.Hour
	cfg.QuizTimeout = time.Minute
	ycfg := settings.DefaultYachtConfig()
	ycfg.Enabled = true
	ycfg.GameCooldown = time.Minute

	live := settings.NewLive(cfg, ycfg)
	store := recordstore.New(recordstore.NewMemoryBackend())
	f := &fixture{
		rec:   &notify.Recorder{},
		chat:  &notify.Recorder{},
		clock: scheduler.NewManual(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
	}

	f.fans = fanscore.New(fanscore.Deps{
		Repo:      &memRepo{users: map[string]fanscore.FanUser{}},
		Config:    live,
		Scheduler: f.clock,
		Notifier:  f.rec,
		Messenger: f.chat,
	})
	f.roulette = roulette.New(roulette.Deps{
		Store:     store,
		Lottery:   f.fans,
		Notifier:  f.rec,
		Messenger: f.chat,
		Now:       f.clock.Now,
	})
	q := quiz.New(quiz.Deps{
		Store:     store,
		Exp:       f.fans,
		Config:    live,
		Scheduler: f.clock,
		Notifier:  f.rec,
		Messenger: f.chat,
	})
	if err := q.SaveQuestions(context.Background(), []quiz.Question{{Question: "1+1?", Answer: "2"}}); err != nil {
		t.Fatalf("SaveQuestions failed: %v", err)
	}

	f.router = NewRouter(Deps{
		Fans:      f.fans,
		Roulette:  f.roulette,
		Lottery:   lottery.New(lottery.Deps{Bank: f.fans, Config: live, Notifier: f.rec}),
		Yacht:     yacht.New(yacht.Deps{Exp: f.fans, Config: live, Notifier: f.rec, Now: f.clock.Now}),
		Quiz:      q,
		LiveID:    func() string { return f.liveID },
		Messenger: f.chat,
	})
	return f
}

func (f *fixture) say(userID, text string) string {
	before := len(f.chat.Messages())
	f.router.HandleChat(context.Background(), ChatMessage{UserID: userID, Nickname: userID, Text: text})
	msgs := f.chat.Messages()
	if len(msgs) == before {
		return ""
	}
	return msgs[len(msgs)-1]
}

func (f *fixture) admin(text string) string {
	before := len(f.chat.Messages())
	f.router.HandleChat(context.Background(), ChatMessage{UserID: "owner", Nickname: "owner", Text: text, IsAdmin: true})
	msgs := f.chat.Messages()
	if len(msgs) == before {
		return ""
	}
	return msgs[len(msgs)-1]
}

func assertReply(t *testing.T, got, want string) {
	t.Helper()
	if got != want {
		t.Fatalf("reply got=%q want=%q", got, want)
	}
}

func assertContains(t *testing.T, got, sub string) {
	t.Helper()
	if !strings.Contains(got, sub) {
		t.Fatalf("reply got=%q want it to contain %q", got, sub)
	}
}

func mustLookup(t *testing.T, f *fixture, userID string) fanscore.FanUser {
	t.Helper()
	u, err := f.fans.Lookup(context.Background(), userID)
	if err != nil {
		t.Fatalf("Lookup(%q) failed: %v", userID, err)
	}
	return u
}

func mustSaveTemplate(t *testing.T, f *fixture, tmpl roulette.Template) roulette.Template {
	t.Helper()
	saved, err := f.roulette.SaveTemplate(context.Background(), tmpl)
	if err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}
	return saved
}

func TestHandleChat_RecordsAttendanceOnlyWhenLive(t *testing.T) {
	f := newFixture(t)

	f.say("alice", "hello")
	u := mustLookup(t, f, "alice")
	if u.Score != 1 || u.AttendanceLiveID != "" {
		t.Fatalf("offline chat got score=%d live=%q want score=1 live=\"\"", u.Score, u.AttendanceLiveID)
	}

	f.liveID = "live-1"
	f.say("alice", "hi again")
	f.say("alice", "and again")
	u = mustLookup(t, f, "alice")
	if u.Score != 13 || u.AttendanceLiveID != "live-1" {
		t.Fatalf("live chat got score=%d live=%q want score=13 live=%q", u.Score, u.AttendanceLiveID, "live-1")
	}
}

func TestHandleChat_ScoreCommand(t *testing.T) {
	f := newFixture(t)

	reply := f.say("alice", "!score")
	if !strings.HasPrefix(reply, "@alice ") {
		t.Fatalf("reply got=%q want @alice prefix", reply)
	}
	assertContains(t, reply, "Lv.1")
	assertContains(t, reply, fmt.Sprintf("next %d", fanscore.LevelThreshold(2)))
}

func TestHandleChat_IgnoresUnknownAndPlainText(t *testing.T) {
	f := newFixture(t)

	for _, text := range []string{"!nosuchcommand", "score", "!"} {
		if reply := f.say("alice", text); reply != "" {
			t.Fatalf("%q got reply=%q want none", text, reply)
		}
	}
}

func TestHandleChat_AdminCommandsRequireAdmin(t *testing.T) {
	f := newFixture(t)

	assertReply(t, f.say("alice", "!exp alice 100"), "@alice only the broadcaster can use !exp")
	assertReply(t, f.say("alice", "!LOTTOTICKETS alice 3"), "@alice only the broadcaster can use !lottotickets")

	assertReply(t, f.admin("!exp alice 100"), "@owner exp +100 for alice")
	assertReply(t, f.admin("!lottotickets alice 3"), "@owner lotto tickets +3 for alice")
	assertReply(t, f.admin("!exp alice nope"), "@owner !exp <user_id> <delta>")

	assertReply(t, f.say("alice", "!lotto"), "@alice you have 3 lotto tickets")
}

func TestHandleChat_Lotto(t *testing.T) {
	f := newFixture(t)

	assertReply(t, f.say("bob", "!lotto 1 2 3"), "@bob you have no lotto tickets")
	assertReply(t, f.say("bob", "!lotto auto"), "@bob you have no lotto tickets")

	f.admin("!lottotickets bob 4")
	assertContains(t, f.say("bob", "!lotto 112"), "pick 3 different digits")
	assertContains(t, f.say("bob", "!lotto 1 2"), "pick 3 different digits")

	assertContains(t, f.say("bob", "!lotto 1 2 3"), "for your [1 2 3]")
	assertReply(t, f.say("bob", "!lotto"), "@bob you have 3 lotto tickets")

	assertContains(t, f.say("bob", "!lotto auto"), "played 3 tickets")
	assertReply(t, f.say("bob", "!lotto"), "@bob you have 0 lotto tickets")
	if n := len(f.rec.EventsOn(notify.ChannelLotteryResult)); n != 2 {
		t.Fatalf("lottery events got=%d want=2", n)
	}
}

func TestHandleChat_YachtFlow(t *testing.T) {
	f := newFixture(t)

	assertReply(t, f.say("carol", "!decide"), "@carol start a game with !yacht first")

	assertContains(t, f.say("carol", "!yacht"), "2 rerolls left")
	assertContains(t, f.say("carol", "!yacht"), "you already have a game")

	assertContains(t, f.say("carol", "!reroll 7"), "choose dice 1-5")
	assertContains(t, f.say("carol", "!reroll 1 2"), "1 reroll left")

	// 最後の振り直しで自動的に確定する
	reply := f.say("carol", "!reroll 345")
	if !strings.Contains(reply, "exp") && !strings.Contains(reply, "no prize") {
		t.Fatalf("final reroll got=%q want a result", reply)
	}
	if n := len(f.rec.EventsOn(notify.ChannelYachtResult)); n != 1 {
		t.Fatalf("yacht events got=%d want=1", n)
	}

	assertContains(t, f.say("carol", "!yacht"), "cooling down, try again in 1m0s")
	f.clock.Advance(time.Minute)
	assertContains(t, f.say("carol", "!yacht"), "2 rerolls left")
}

func TestHandleChat_RouletteSpinAndKeep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl := mustSaveTemplate(t, f, roulette.Template{
		Name:    "Prize",
		Mode:    roulette.ModeManual,
		Items:   []roulette.Item{{Type: roulette.ItemKeep, Label: "Sticker", Percentage: 100}},
		Enabled: true,
	})

	assertReply(t, f.say("dave", "!roulette"), "@dave you have no roulette tickets")
	assertReply(t, f.say("dave", "!roulette Nope"), "@dave no such roulette")
	assertReply(t, f.say("dave", "!roulette prize"), "@dave not enough roulette tickets")

	assertReply(t, f.admin("!tickets dave Prize 3"), "@owner dave now has 3 tickets for Prize")
	assertReply(t, f.say("dave", "!roulette"), "@dave roulette tickets: Prize x3")

	// 結果はエンジン側の告知のみで返信はしない
	assertReply(t, f.say("dave", "!roulette prize 2"), "dave spun Prize x2: Sticker x2")

	f.say("dave", "!roulette "+tmpl.ID+" all")
	balance, err := f.roulette.Tickets(ctx, "dave")
	if err != nil {
		t.Fatalf("Tickets failed: %v", err)
	}
	if n := balance[tmpl.ID]; n != 0 {
		t.Fatalf("tickets left got=%d want=0", n)
	}

	assertReply(t, f.say("dave", "!keep"), "@dave 1. Sticker x2, 2. Sticker x1 (!use <number>)")
	assertReply(t, f.say("dave", "!use 2"), "@dave used Sticker")
	assertReply(t, f.say("dave", "!use 5"), "@dave no kept item with that number, see !keep")
	assertReply(t, f.say("dave", "!use"), "@dave !use <number>")
}

func TestHandleGift_GrantsLottoAndRouletteTickets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mustSaveTemplate(t, f, roulette.Template{
		Name:     "Gift",
		Mode:     roulette.ModeSpoon,
		Division: 50,
		Items:    []roulette.Item{{Type: roulette.ItemCounter, Label: "push-ups", Percentage: 10}},
		Enabled:  true,
	})

	f.router.HandleGift(ctx, "erin", "Erin", "", 250)

	msgs := f.chat.Messages()
	for _, want := range []string{"@Erin 2 lotto tickets received", "@Erin Gift: 5 tickets"} {
		if !slices.Contains(msgs, want) {
			t.Fatalf("messages got=%q want to include %q", msgs, want)
		}
	}

	u := mustLookup(t, f, "erin")
	if u.Score != 250*100 || u.LotteryTickets != 2 {
		t.Fatalf("gift got score=%d tickets=%d want score=%d tickets=2", u.Score, u.LotteryTickets, 250*100)
	}
}

func TestHandleLike_IsSilentWithoutAutoRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tmpl := mustSaveTemplate(t, f, roulette.Template{
		Name:    "Like",
		Mode:    roulette.ModeLike,
		Items:   []roulette.Item{{Type: roulette.ItemCounter, Label: "hearts", Percentage: 50}},
		Enabled: true,
	})

	f.router.HandleLike(ctx, "frank", "Frank", "")
	if msgs := f.chat.Messages(); len(msgs) != 0 {
		t.Fatalf("messages got=%q want none", msgs)
	}

	balance, err := f.roulette.Tickets(ctx, "frank")
	if err != nil {
		t.Fatalf("Tickets failed: %v", err)
	}
	if n := balance[tmpl.ID]; n != 1 {
		t.Fatalf("like tickets got=%d want=1", n)
	}
}

func TestHandleChat_QuizAnswerAndAdminAsk(t *testing.T) {
	f := newFixture(t)

	assertReply(t, f.say("gina", "!quiz"), "@gina only the broadcaster can use !quiz")
	assertReply(t, f.admin("!quiz"), "[QUIZ] 1+1? (answer in chat within 60s)")
	assertReply(t, f.admin("!quiz"), "@owner a question is already open")

	assertReply(t, f.say("gina", "2"), "gina got it! The answer was 2 (+50 exp)")

	if u := mustLookup(t, f, "gina"); u.Exp != 50+2 {
		t.Fatalf("exp got=%d want=%d", u.Exp, 50+2)
	}
}

func TestErrorReply(t *testing.T) {
	tests := []struct {
		command string
		err     error
		want    string
	}{
		{"yacht", &yacht.CooldownError{Remaining: 41600 * time.Millisecond}, "yacht is cooling down, try again in 42s"},
		{"roulette", fmt.Errorf("%w: x", roulette.ErrTemplateNotFound), "no such roulette"},
		{"use", usage("!use <number>"), "!use <number>"},
		{"score", errors.New("boom"), "something went wrong, please try again"},
	}
	for _, tt := range tests {
		if got := errorReply(tt.command, tt.err); got != tt.want {
			t.Fatalf("errorReply(%q, %v) got=%q want=%q", tt.command, tt.err, got, tt.want)
		}
	}
}

func TestParseGuessAndPositions(t *testing.T) {
	g, err := parseGuess([]string{"9", "0", "5"})
	if err != nil {
		t.Fatalf("parseGuess failed: %v", err)
	}
	if want := (lottery.Numbers{9, 0, 5}); g != want {
		t.Fatalf("guess got=%v want=%v", g, want)
	}

	if _, err := parseGuess([]string{"12a"}); !errors.Is(err, lottery.ErrInvalidGuess) {
		t.Fatalf("parseGuess err got=%v want=%v", err, lottery.ErrInvalidGuess)
	}

	p, err := parsePositions([]string{"15", "3"})
	if err != nil {
		t.Fatalf("parsePositions failed: %v", err)
	}
	if want := []int{1, 5, 3}; !reflect.DeepEqual(p, want) {
		t.Fatalf("positions got=%v want=%v", p, want)
	}

	if _, err := parsePositions(nil); !errors.Is(err, yacht.ErrInvalidPositions) {
		t.Fatalf("parsePositions err got=%v want=%v", err, yacht.ErrInvalidPositions)
	}
}

func TestPlural(t *testing.T) {
	tests := map[int]string{1: "1 ticket", 0: "0 tickets", 7: "7 tickets"}
	for n, want := range tests {
		if got := plural(n, "ticket"); got != want {
			t.Fatalf("plural(%d) got=%q want=%q", n, got, want)
		}
	}
}
