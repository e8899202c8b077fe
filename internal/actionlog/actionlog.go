package actionlog

import (
	"sync"
	"time"
)

const (
	MaxEntries   = 10
	OverlaySize  = 3
	FadeAfter    = 4 * time.Second
	FadeDuration = 500 * time.Millisecond
	VisibleFor   = FadeAfter + FadeDuration
	actorIDLen   = 8
)

type Entry struct {
	ID        int64  `json:"id"`
	Action    string `json:"action"`
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	Timestamp int64  `json:"timestamp"`
}

func NewEntry(action, userID, nickname string, now time.Time) Entry {
	ms := now.UnixMilli()
	if len(userID) > actorIDLen {
		userID = userID[:actorIDLen]
	}
	return Entry{
		ID:        ms,
		Action:    action,
		UserID:    userID,
		Nickname:  nickname,
		Timestamp: ms,
	}
}

// Prepend puts e in front and keeps at most MaxEntries. log is not modified.
func Prepend(log []Entry, e Entry) []Entry {
	keep := min(len(log), MaxEntries-1)
	out := make([]Entry, 0, keep+1)
	out = append(out, e)
	return append(out, log[:keep]...)
}

// Visible returns the newest entries still inside the display window.
func Visible(log []Entry, now time.Time) []Entry {
	var out []Entry
	for _, e := range log[:min(len(log), OverlaySize)] {
		if now.UnixMilli()-e.Timestamp < VisibleFor.Milliseconds() {
			out = append(out, e)
		}
	}
	return out
}

// Tracker owns the fade timers for entries this peer produced.
// Each entry starts fading after FadeAfter and is dropped FadeDuration later.
type Tracker struct {
	mu     sync.Mutex
	timers map[int64]*time.Timer
	fading map[int64]bool
	after  func(time.Duration, func()) *time.Timer
	closed bool
}

func NewTracker() *Tracker {
	return &Tracker{
		timers: make(map[int64]*time.Timer),
		fading: make(map[int64]bool),
		after:  time.AfterFunc,
	}
}

func (t *Tracker) Track(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if old, ok := t.timers[e.ID]; ok {
		old.Stop()
	}
	t.timers[e.ID] = t.after(FadeAfter, func() { t.startFade(e.ID) })
}

func (t *Tracker) startFade(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.fading[id] = true
	t.timers[id] = t.after(FadeDuration, func() { t.finish(id) })
}

func (t *Tracker) finish(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.fading, id)
	delete(t.timers, id)
}

// Cancel stops the timers for one entry.
func (t *Tracker) Cancel(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tm, ok := t.timers[id]; ok {
		tm.Stop()
		delete(t.timers, id)
	}
	delete(t.fading, id)
}

func (t *Tracker) Fading(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fading[id]
}

// Pending is the number of timers not yet fired or stopped.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Close stops every pending timer. Tracking after Close is a no-op.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.timers {
		tm.Stop()
		delete(t.timers, id)
	}
	clear(t.fading)
	t.closed = true
}
