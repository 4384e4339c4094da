package dialogue

import (
	"sync"

	"feed_mirror/internal/model"
)

// State is the step a user is at in a conversation. The set of states is
// closed: only the types in this file implement it.
type State interface {
	state()
}

// MainMenu is the idle state where commands are accepted.
type MainMenu struct{}

// AwaitingForwardedChannel waits for a message forwarded from the channel to link.
type AwaitingForwardedChannel struct{}

// AwaitingUnlinkChannelID waits for the chat ID of the channel to unlink.
type AwaitingUnlinkChannelID struct{}

// AwaitingUnlinkConfirmation waits for the channel title to be typed back.
type AwaitingUnlinkConfirmation struct {
	Channel model.Channel
}

// AwaitingFeedLinkChannelID waits for the chat ID of the channel a feed is linked to.
type AwaitingFeedLinkChannelID struct{}

// AwaitingFeedName waits for the name of the feed to link to Channel.
type AwaitingFeedName struct {
	Channel model.Channel
}

// AwaitingFeedUnlinkChannelID waits for the chat ID of the channel a feed is unlinked from.
type AwaitingFeedUnlinkChannelID struct{}

// AwaitingFeedUnlinkName waits for the name or ID of the feed to unlink from Channel.
type AwaitingFeedUnlinkName struct {
	Channel model.Channel
}

func (MainMenu) state()                    {}
func (AwaitingForwardedChannel) state()    {}
func (AwaitingUnlinkChannelID) state()     {}
func (AwaitingUnlinkConfirmation) state()  {}
func (AwaitingFeedLinkChannelID) state()   {}
func (AwaitingFeedName) state()            {}
func (AwaitingFeedUnlinkChannelID) state() {}
func (AwaitingFeedUnlinkName) state()      {}

// StateStore keeps the current conversation state of every user.
type StateStore interface {
	// Get returns the user's state, or MainMenu if none is stored.
	Get(userID int64) State
	Set(userID int64, s State)
}

// MemoryStates is an in-process StateStore. Conversations reset when the
// process restarts.
type MemoryStates struct {
	mu     sync.Mutex
	states map[int64]State
}

// NewMemoryStates creates an empty MemoryStates.
func NewMemoryStates() *MemoryStates {
	return &MemoryStates{states: make(map[int64]State)}
}

// Get implements StateStore.
func (m *MemoryStates) Get(userID int64) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[userID]; ok {
		return s
	}
	return MainMenu{}
}

// Set implements StateStore. Users back in MainMenu are dropped from the map.
func (m *MemoryStates) Set(userID int64, s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, idle := s.(MainMenu); idle || s == nil {
		delete(m.states, userID)
		return
	}
	m.states[userID] = s
}

// userLocks serializes event handling per user.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func newUserLocks() *userLocks {
	return &userLocks{locks: make(map[int64]*userLock)}
}

func (u *userLocks) lock(userID int64) (unlock func()) {
	u.mu.Lock()
	l, ok := u.locks[userID]
	if !ok {
		l = &userLock{}
		u.locks[userID] = l
	}
	l.refs++
	u.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		u.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(u.locks, userID)
		}
		u.mu.Unlock()
	}
}
