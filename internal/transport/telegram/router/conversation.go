package router

import "sync"

type convState int

const (
	stateIdle convState = iota
	stateAwaitLocation
	stateAwaitLead
)

// conversations tracks where each chat is in the /start setup flow.
type conversations struct {
	mu sync.Mutex
	m  map[int64]convState
}

func newConversations() *conversations {
	return &conversations{m: map[int64]convState{}}
}

func (c *conversations) get(chat int64) convState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[chat]
}

func (c *conversations) set(chat int64, s convState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s == stateIdle {
		delete(c.m, chat)
		return
	}
	c.m[chat] = s
}
