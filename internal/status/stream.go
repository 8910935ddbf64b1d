package status

import (
	"sync"
	"time"
)

// StreamStatus is the current live session. LiveID identifies one broadcast.
type StreamStatus struct {
	IsLive    bool      `json:"is_live"`
	LiveID    string    `json:"live_id"`
	StartedAt time.Time `json:"started_at"`
}

// StreamStatusChangeCallback is called when the stream goes online or offline
type StreamStatusChangeCallback func(StreamStatus)

var (
	mu              sync.RWMutex
	streamStatus    StreamStatus
	streamCallbacks []StreamStatusChangeCallback
)

// SetStreamOnline marks the stream live. A zero startedAt means now.
func SetStreamOnline(liveID string, startedAt time.Time) {
	if startedAt.IsZero() {
		startedAt = time.Now()
	}
	if liveID == "" {
		// IDが無い場合は開始時刻で配信を識別する
		liveID = startedAt.UTC().Format(time.RFC3339)
	}
	update(StreamStatus{IsLive: true, LiveID: liveID, StartedAt: startedAt})
}

// SetStreamOffline marks the stream offline.
func SetStreamOffline() {
	update(StreamStatus{})
}

func update(next StreamStatus) {
	mu.Lock()
	previous := streamStatus
	streamStatus = next
	callbacks := make([]StreamStatusChangeCallback, len(streamCallbacks))
	copy(callbacks, streamCallbacks)
	mu.Unlock()

	if previous.IsLive == next.IsLive && previous.LiveID == next.LiveID {
		return
	}
	for _, callback := range callbacks {
		if callback != nil {
			callback(next)
		}
	}
}

// GetStreamStatus returns the current stream status
func GetStreamStatus() StreamStatus {
	mu.RLock()
	defer mu.RUnlock()
	return streamStatus
}

// CurrentLiveID returns the live session id, or "" while offline.
func CurrentLiveID() string {
	mu.RLock()
	defer mu.RUnlock()
	return streamStatus.LiveID
}

// RegisterStreamStatusChangeCallback registers a callback for stream status changes
func RegisterStreamStatusChangeCallback(callback StreamStatusChangeCallback) {
	mu.Lock()
	defer mu.Unlock()
	streamCallbacks = append(streamCallbacks, callback)
}

// Reset clears the state and callbacks.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	streamStatus = StreamStatus{}
	streamCallbacks = nil
}
