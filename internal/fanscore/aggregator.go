package fanscore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ichi0g0y/twitch-fanscore/internal/notify"
	"github.com/ichi0g0y/twitch-fanscore/internal/scheduler"
	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

const DefaultFlushInterval = 5 * time.Second

var (
	ErrInsufficientTickets = errors.New("insufficient lottery tickets")
	ErrInvalidAmount       = errors.New("amount must be positive")
)

type Deps struct {
	Repo          Repository
	Config        ConfigSource
	Scheduler     scheduler.Scheduler
	Notifier      notify.Notifier
	Messenger     notify.Messenger
	FlushInterval time.Duration
}

// Aggregator buffers score events in memory and writes reconciled totals on a timer.
// Recorders never touch the repository; Flush is the only writer.
type Aggregator struct {
	repo      Repository
	cfg       ConfigSource
	sched     scheduler.Scheduler
	notifier  notify.Notifier
	messenger notify.Messenger
	interval  time.Duration

	mu         sync.Mutex
	snapshots  map[string]FanUser
	pending    map[string]*PendingDelta
	attendance map[string]string

	flushMu   sync.Mutex
	task      scheduler.Task
	onFlushed func(ctx context.Context, users []FanUser)
}

func New(d Deps) *Aggregator {
	a := &Aggregator{
		repo:       d.Repo,
		cfg:        d.Config,
		sched:      d.Scheduler,
		notifier:   d.Notifier,
		messenger:  d.Messenger,
		interval:   d.FlushInterval,
		snapshots:  make(map[string]FanUser),
		pending:    make(map[string]*PendingDelta),
		attendance: make(map[string]string),
	}
	if a.sched == nil {
		a.sched = scheduler.NewReal()
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.messenger == nil {
		a.messenger = notify.Nop{}
	}
	if a.interval <= 0 {
		a.interval = DefaultFlushInterval
	}
	return a
}

// OnFlushed registers a hook that receives the users written by each successful flush.
func (a *Aggregator) OnFlushed(fn func(ctx context.Context, users []FanUser)) {
	a.onFlushed = fn
}

// Start begins the periodic flush.
func (a *Aggregator) Start(ctx context.Context) {
	a.task = a.sched.Every(a.interval, func() {
		_ = a.Flush(ctx)
	})
	logger.Info("Fan score aggregator started", zap.Duration("interval", a.interval))
}

// Stop cancels the timer and runs a final flush.
func (a *Aggregator) Stop(ctx context.Context) error {
	if a.task != nil {
		a.task.Stop()
	}
	return a.Flush(ctx)
}

// delta returns the pending entry for userID. Caller holds a.mu.
func (a *Aggregator) delta(userID string) *PendingDelta {
	d, ok := a.pending[userID]
	if !ok {
		d = &PendingDelta{}
		a.pending[userID] = d
	}
	return d
}

func (a *Aggregator) touch(d *PendingDelta, nickname, tag string) {
	if nickname != "" {
		d.Nickname = nickname
	}
	if tag != "" {
		d.Tag = tag
	}
	d.LastActivityAt = a.sched.Now()
}

// RecordAttendance credits attendance once per live session.
func (a *Aggregator) RecordAttendance(userID, nickname, tag, liveID string) {
	cfg := a.cfg.Fanscore()
	if !cfg.Enabled || userID == "" || liveID == "" {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.attendance[userID] == liveID {
		return
	}
	a.attendance[userID] = liveID
	if s, ok := a.snapshots[userID]; ok && s.AttendanceLiveID == liveID {
		return
	}

	d := a.delta(userID)
	d.Attendance += cfg.AttendanceScore
	d.AttendanceLiveID = liveID
	a.touch(d, nickname, tag)
}

func (a *Aggregator) RecordChat(userID, nickname, tag string) {
	cfg := a.cfg.Fanscore()
	if !cfg.Enabled || userID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.delta(userID)
	d.Chat += cfg.ChatScore
	a.touch(d, nickname, tag)
}

func (a *Aggregator) RecordLike(userID, nickname, tag string) {
	cfg := a.cfg.Fanscore()
	if !cfg.Enabled || userID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.delta(userID)
	d.Like += cfg.LikeScore
	a.touch(d, nickname, tag)
}

// RecordGift credits amount gifted units.
func (a *Aggregator) RecordGift(userID, nickname, tag string, amount int) {
	cfg := a.cfg.Fanscore()
	if !cfg.Enabled || userID == "" || amount <= 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	d := a.delta(userID)
	d.Spoon += cfg.SpoonScore * amount
	a.touch(d, nickname, tag)
}

// RecordDirectExp adds exp that bypasses score, e.g. game rewards.
func (a *Aggregator) RecordDirectExp(userID string, exp int) {
	if userID == "" || exp == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delta(userID).ExpDirect += exp
}

// RecordLotteryTicketChange adjusts the ticket balance. The change is visible to
// LotteryTickets immediately and written at the next flush.
func (a *Aggregator) RecordLotteryTicketChange(userID string, delta int) {
	if userID == "" || delta == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.delta(userID).LotteryChange += delta
}

// LotteryTickets returns the current balance including unflushed changes.
func (a *Aggregator) LotteryTickets(ctx context.Context, userID string) (int, error) {
	loaded, err := a.snapshot(ctx, userID)
	if err != nil {
		return 0, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.balanceLocked(userID, loaded), nil
}

// SpendLotteryTickets consumes n tickets or fails with ErrInsufficientTickets without change.
func (a *Aggregator) SpendLotteryTickets(ctx context.Context, userID string, n int) error {
	if n <= 0 {
		return ErrInvalidAmount
	}
	loaded, err := a.snapshot(ctx, userID)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.balanceLocked(userID, loaded) < n {
		return ErrInsufficientTickets
	}
	a.delta(userID).LotteryChange -= n
	return nil
}

// SpendAllLotteryTickets consumes the whole balance and returns how many were spent.
func (a *Aggregator) SpendAllLotteryTickets(ctx context.Context, userID string) (int, error) {
	loaded, err := a.snapshot(ctx, userID)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	n := a.balanceLocked(userID, loaded)
	if n > 0 {
		a.delta(userID).LotteryChange -= n
	}
	return n, nil
}

func (a *Aggregator) balanceLocked(userID string, loaded FanUser) int {
	base, ok := a.snapshots[userID]
	if !ok {
		base = loaded
		a.snapshots[userID] = loaded
	}
	change := 0
	if d, ok := a.pending[userID]; ok {
		change = d.LotteryChange
	}
	return max(0, base.LotteryTickets+change)
}

// Lookup returns the user as the next flush would write it.
func (a *Aggregator) Lookup(ctx context.Context, userID string) (FanUser, error) {
	loaded, err := a.snapshot(ctx, userID)
	if err != nil {
		return FanUser{}, err
	}
	cfg := a.cfg.Fanscore()

	a.mu.Lock()
	defer a.mu.Unlock()
	base, ok := a.snapshots[userID]
	if !ok {
		base = loaded
	}
	if d, ok := a.pending[userID]; ok {
		return apply(base, d, cfg), nil
	}
	return base, nil
}

// snapshot returns the cached user, loading it from the repository on first use.
func (a *Aggregator) snapshot(ctx context.Context, userID string) (FanUser, error) {
	a.mu.Lock()
	s, ok := a.snapshots[userID]
	a.mu.Unlock()
	if ok {
		return s, nil
	}

	loaded, err := a.load(ctx, userID)
	if err != nil {
		return FanUser{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.snapshots[userID]; ok {
		return s, nil
	}
	a.snapshots[userID] = loaded
	return loaded, nil
}

func (a *Aggregator) load(ctx context.Context, userID string) (FanUser, error) {
	u, err := a.repo.GetFanUser(ctx, userID)
	if err != nil {
		return FanUser{}, fmt.Errorf("failed to load fan user %s: %w", userID, err)
	}
	if u == nil {
		return NewFanUser(userID), nil
	}
	if u.Level < MinLevel {
		u.Level = MinLevel
	}
	return *u, nil
}

// Flush writes every pending delta in one batch.
//
// The pending map is swapped out rather than cleared, so events recorded while the
// batch is written land in the next cycle. A failed write drops the cycle's deltas and
// evicts the affected snapshots so the next lookup reloads durable state.
func (a *Aggregator) Flush(ctx context.Context) error {
	a.flushMu.Lock()
	defer a.flushMu.Unlock()

	a.mu.Lock()
	if len(a.pending) == 0 {
		a.mu.Unlock()
		return nil
	}
	var missing []string
	for userID := range a.pending {
		if _, ok := a.snapshots[userID]; !ok {
			missing = append(missing, userID)
		}
	}
	a.mu.Unlock()

	loaded := make(map[string]FanUser, len(missing))
	for _, userID := range missing {
		u, err := a.load(ctx, userID)
		if err != nil {
			logger.Warn("Deferring fan user to next flush", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		loaded[userID] = u
	}

	cfg := a.cfg.Fanscore()

	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string]*PendingDelta)
	users := make([]FanUser, 0, len(batch))
	var levelUps []LevelUp
	for userID, d := range batch {
		prev, ok := a.snapshots[userID]
		if !ok {
			prev, ok = loaded[userID]
		}
		if !ok {
			// 読み込みに失敗したユーザーは次回に持ち越す
			a.pending[userID] = d
			continue
		}
		next := apply(prev, d, cfg)
		a.snapshots[userID] = next
		users = append(users, next)
		if next.Level > prev.Level {
			levelUps = append(levelUps, LevelUp{UserID: userID, Nickname: next.Nickname, From: prev.Level, To: next.Level})
		}
	}
	a.mu.Unlock()

	if len(users) == 0 {
		return nil
	}
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })

	if err := a.repo.SaveFanUsers(ctx, users); err != nil {
		logger.Error("Failed to flush fan scores, dropping this cycle",
			zap.Int("users", len(users)),
			zap.Error(err))
		a.mu.Lock()
		for _, u := range users {
			delete(a.snapshots, u.UserID)
		}
		a.mu.Unlock()
		return fmt.Errorf("failed to save fan users: %w", err)
	}
	logger.Debug("Flushed fan scores", zap.Int("users", len(users)), zap.Int("level_ups", len(levelUps)))

	sort.Slice(levelUps, func(i, j int) bool { return levelUps[i].UserID < levelUps[j].UserID })
	for _, up := range levelUps {
		a.announceLevelUp(up, cfg.LotteryEnabled)
	}

	if a.onFlushed != nil {
		a.onFlushed(ctx, users)
	}
	return nil
}

func (a *Aggregator) announceLevelUp(up LevelUp, lotteryEnabled bool) {
	name := up.Nickname
	if name == "" {
		name = up.UserID
	}
	a.notifier.Emit(notify.ChannelLevelUp, up)

	msg := fmt.Sprintf("%s reached level %d!", name, up.To)
	if lotteryEnabled {
		gained := up.To - up.From
		a.RecordLotteryTicketChange(up.UserID, gained)
		msg += fmt.Sprintf(" +%d lottery ticket(s)", gained)
	}
	a.messenger.SendText(msg)
}
