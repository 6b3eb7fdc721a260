package design

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"dreamspace-gateway/internal/llm"
)

// Status messages shown while a call is in progress.
const (
	StatusFromCache  = "Loading from cache..."
	StatusOptimizing = "Optimizing image..."
	StatusSending    = "Sending to design engine..."
)

// Notice is a message emitted if a redesign is still running After its start.
type Notice struct {
	After   time.Duration
	Message string
}

// DefaultNotices keep the user informed during long image generations.
var DefaultNotices = []Notice{
	{After: 10 * time.Second, Message: "High traffic. Auto-retrying in background..."},
	{After: 25 * time.Second, Message: "Still working... High demand right now."},
	{After: 45 * time.Second, Message: "Almost there... Thanks for your patience."},
}

// statusSink serializes calls into a caller's callback. Notices fire from
// timer goroutines, so the callback may otherwise be entered concurrently.
type statusSink struct {
	mu     sync.Mutex
	fn     llm.StatusFunc
	logger *zap.Logger
}

func newStatusSink(fn llm.StatusFunc, logger *zap.Logger) *statusSink {
	return &statusSink{fn: fn, logger: logger}
}

func (s *statusSink) send(msg string) {
	if s == nil || s.fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("status callback panicked", zap.Any("panic", r))
		}
	}()
	s.fn(msg)
}

// startNotices schedules notices and returns a func that cancels the rest.
func (s *statusSink) startNotices(notices []Notice) func() {
	if s == nil || s.fn == nil {
		return func() {}
	}
	return scheduleNotices(notices, s.send)
}

func scheduleNotices(notices []Notice, send func(string)) func() {
	if len(notices) == 0 {
		return func() {}
	}
	timers := make([]*time.Timer, 0, len(notices))
	for _, n := range notices {
		msg := n.Message
		timers = append(timers, time.AfterFunc(n.After, func() { send(msg) }))
	}
	return func() {
		for _, t := range timers {
			t.Stop()
		}
	}
}

// statusHub fans a flight's progress out to every caller waiting on it.
// Callers that join late only see messages sent after they joined.
type statusHub struct {
	mu   sync.Mutex
	subs map[*statusSink]struct{}
}

func newStatusHub() *statusHub {
	return &statusHub{subs: make(map[*statusSink]struct{})}
}

func (h *statusHub) add(s *statusSink) {
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
}

func (h *statusHub) remove(s *statusSink) {
	h.mu.Lock()
	delete(h.subs, s)
	h.mu.Unlock()
}

func (h *statusHub) empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs) == 0
}

func (h *statusHub) send(msg string) {
	h.mu.Lock()
	subs := make([]*statusSink, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.send(msg)
	}
}

func (h *statusHub) startNotices(notices []Notice) func() {
	return scheduleNotices(notices, h.send)
}
