package chat

import (
	"sync"

	"github.com/samber/lo"
)

// Feed holds the messages of one conversation, newest first, in arrival order.
//
// The initial snapshot is taken as-is: neither its ordering nor its ids are checked.
// Live messages are prepended in the order OnIncoming is called, regardless of their
// timestamps. A Feed expects a single writer; the mutex only makes concurrent reads
// from a render loop safe.
type Feed struct {
	mu       sync.RWMutex
	messages []Message
	ids      map[string]struct{}
	dedup    bool
	onChange func([]Message)
}

type FeedOption func(*Feed)

// WithDedup makes OnIncoming ignore messages whose id is already in the feed.
func WithDedup(enabled bool) FeedOption {
	return func(f *Feed) { f.dedup = enabled }
}

// WithOnChange registers the re-render trigger. It is called outside the feed lock
// with a copy of the messages after every accepted change.
func WithOnChange(fn func([]Message)) FeedOption {
	return func(f *Feed) { f.onChange = fn }
}

func NewFeed(snapshot []Message, opts ...FeedOption) *Feed {
	f := &Feed{}
	for _, o := range opts {
		o(f)
	}
	f.reset(snapshot)
	return f
}

// Initialize discards everything in the feed, including live messages, and seeds it
// from snapshot. It is the reset boundary used when the conversation changes.
func (f *Feed) Initialize(snapshot []Message) {
	f.mu.Lock()
	f.reset(snapshot)
	out := f.copyLocked()
	cb := f.onChange
	f.mu.Unlock()
	if cb != nil {
		cb(out)
	}
}

// OnIncoming prepends msg. It returns false only when dedup is enabled and the id
// is already present.
func (f *Feed) OnIncoming(msg Message) bool {
	f.mu.Lock()
	if f.dedup {
		if _, ok := f.ids[msg.ID]; ok {
			f.mu.Unlock()
			return false
		}
	}
	f.messages = append([]Message{msg}, f.messages...)
	f.ids[msg.ID] = struct{}{}
	out := f.copyLocked()
	cb := f.onChange
	f.mu.Unlock()
	if cb != nil {
		cb(out)
	}
	return true
}

// Messages returns a copy of the feed, newest first.
func (f *Feed) Messages() []Message {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.copyLocked()
}

func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.messages)
}

func (f *Feed) reset(snapshot []Message) {
	f.messages = append([]Message(nil), snapshot...)
	f.ids = lo.SliceToMap(snapshot, func(m Message) (string, struct{}) {
		return m.ID, struct{}{}
	})
}

func (f *Feed) copyLocked() []Message {
	return append([]Message(nil), f.messages...)
}
