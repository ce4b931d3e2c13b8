package realtime

import (
	"sync"
)

// group is a membership + broadcast fanout primitive. Unlike a client,
// a group never owns its members' lifecycles: leaving a group does not
// shut the client down, since every connection belongs to at least two
// groups.
type group struct {
	name string

	mu      sync.RWMutex
	members map[string]*Client
}

func newGroup(name string) *group {
	return &group{
		name:    name,
		members: make(map[string]*Client),
	}
}

func (g *group) join(client *Client) {
	if g == nil || client == nil || client.ConnID == "" {
		return
	}
	g.mu.Lock()
	g.members[client.ConnID] = client
	g.mu.Unlock()
}

func (g *group) leave(connID string) {
	if g == nil || connID == "" {
		return
	}
	g.mu.Lock()
	delete(g.members, connID)
	g.mu.Unlock()
}

func (g *group) size() int {
	if g == nil {
		return 0
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.members)
}

// broadcast fanouts an envelope to all members. Non-blocking: if a member
// queue is full or the client is shutting down, the event is dropped.
func (g *group) broadcast(env Envelope) {
	if g == nil {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, m := range g.members {
		if m == nil {
			continue
		}

		select {
		case <-m.Done():
			continue
		default:
		}

		select {
		case m.Send <- env:
		default:
			// Drop rather than block the whole group.
		}
	}
}
