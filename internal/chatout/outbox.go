// Package chatout delivers bot replies to the live chat one at a time.
package chatout

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ichi0g0y/twitch-fanscore/internal/shared/logger"
	"go.uber.org/zap"
)

const (
	DefaultQueueSize = 100
	DefaultInterval  = time.Second
	// Twitchのチャット上限
	MaxMessageLength = 500
)

// Sender posts one message to chat.
type Sender interface {
	SendChatMessage(ctx context.Context, broadcasterID, senderID, text string) error
}

type Options struct {
	BroadcasterID string
	SenderID      string
	QueueSize     int
	// Interval is the minimum gap between two sends.
	Interval time.Duration
}

// Outbox is a bounded queue drained by one goroutine. SendText never blocks.
type Outbox struct {
	sender Sender
	opts   Options
	queue  chan string

	mu      sync.Mutex
	running bool
	done    chan struct{}
	wg      sync.WaitGroup
}

func New(sender Sender, opts Options) *Outbox {
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	return &Outbox{
		sender: sender,
		opts:   opts,
		queue:  make(chan string, opts.QueueSize),
	}
}

// Escape replaces line breaks with a literal \n marker and caps the length.
func Escape(text string) string {
	text = strings.ReplaceAll(text, "\r\n", `\n`)
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\n`)
	if utf8.RuneCountInString(text) > MaxMessageLength {
		runes := []rune(text)
		text = string(runes[:MaxMessageLength])
	}
	return text
}

// SendText enqueues text. It is dropped when the queue is full.
func (o *Outbox) SendText(text string) {
	text = Escape(strings.TrimSpace(text))
	if text == "" {
		return
	}
	select {
	case o.queue <- text:
		logger.Debug("Chat message enqueued", zap.Int("queue_size", len(o.queue)))
	default:
		logger.Warn("Chat outbox is full, dropping message", zap.String("text", text))
	}
}

// Start launches the processor goroutine. It stops when ctx is done or Stop is called.
func (o *Outbox) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running {
		return
	}
	o.running = true
	o.done = make(chan struct{})
	o.wg.Add(1)
	go o.process(ctx, o.done)
	logger.Info("Chat outbox started")
}

// Stop ends the processor and waits for it. Queued messages stay queued.
func (o *Outbox) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	close(o.done)
	o.mu.Unlock()
	o.wg.Wait()
}

func (o *Outbox) process(ctx context.Context, done <-chan struct{}) {
	defer o.wg.Done()
	for {
		select {
		case text := <-o.queue:
			if err := o.sender.SendChatMessage(ctx, o.opts.BroadcasterID, o.opts.SenderID, text); err != nil {
				logger.Error("Failed to send chat message", zap.String("text", text), zap.Error(err))
			}
			if o.opts.Interval > 0 {
				select {
				case <-time.After(o.opts.Interval):
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		case <-done:
			logger.Info("Chat outbox shutting down")
			return
		case <-ctx.Done():
			logger.Info("Chat outbox shutting down")
			return
		}
	}
}

// Pending returns the number of queued messages.
func (o *Outbox) Pending() int {
	return len(o.queue)
}
