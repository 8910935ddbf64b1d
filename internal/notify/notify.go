// Package notify defines the outbound ports used by the game engines.
// Both are fire-and-forget: implementations must not block and must swallow their own failures.
package notify

import "sync"

// Notifier pushes an event to the overlay UI.
type Notifier interface {
	Emit(channel string, payload any)
}

// Messenger posts a line of text to the live chat.
type Messenger interface {
	SendText(text string)
}

const (
	ChannelLevelUp       = "fanscore:levelup"
	ChannelRouletteSpin  = "roulette:result"
	ChannelLotteryResult = "lottery:result"
	ChannelYachtResult   = "yacht:result"
	ChannelQuizQuestion  = "quiz:question"
	ChannelQuizAnswered  = "quiz:answered"
	ChannelQuizTimeout   = "quiz:timeout"
)

type Nop struct{}

func (Nop) Emit(string, any) {}
func (Nop) SendText(string) {}

// Event is one captured Emit call.
type Event struct {
	Channel string
	Payload any
}

// Recorder captures everything sent through it. Used by tests and the CLI dry run.
type Recorder struct {
	mu       sync.Mutex
	events   []Event
	messages []string
}

func (r *Recorder) Emit(channel string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Channel: channel, Payload: payload})
}

func (r *Recorder) SendText(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// EventsOn returns the payloads emitted on channel.
func (r *Recorder) EventsOn(channel string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.Channel == channel {
			out = append(out, e.Payload)
		}
	}
	return out
}

func (r *Recorder) Messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}
