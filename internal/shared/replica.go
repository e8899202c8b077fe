package shared

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
)

// Sender hands a proposal to the transport. It must not block.
type Sender interface {
	Send(name string, value json.RawMessage) error
}

type SenderFunc func(name string, value json.RawMessage) error

func (f SenderFunc) Send(name string, value json.RawMessage) error { return f(name, value) }

type entry struct {
	version int
	value   json.RawMessage
}

// Replica is a peer's cache of the shared values and roster. It implements Adapter.
//
// Remote values are applied in per-name version order; an update carrying a
// version at or below the cached one is dropped. Local proposals are written
// to the cache immediately and superseded by whatever the relay delivers next.
type Replica struct {
	mu      sync.RWMutex
	localID string
	values  map[string]entry
	peers   []Peer
	sender  Sender

	nextSub    int
	subs       map[string]map[int]func(json.RawMessage)
	rosterSubs map[int]func([]Peer)
}

func NewReplica(localID string, sender Sender) *Replica {
	return &Replica{
		localID:    localID,
		values:     make(map[string]entry),
		sender:     sender,
		subs:       make(map[string]map[int]func(json.RawMessage)),
		rosterSubs: make(map[int]func([]Peer)),
	}
}

func (r *Replica) LocalID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.localID
}

func (r *Replica) Read(name string) (json.RawMessage, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.values[name]
	if !ok {
		return nil, false
	}
	return e.value, true
}

// Version is the last relay version applied for name.
func (r *Replica) Version(name string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.values[name].version
}

func (r *Replica) Propose(name string, value json.RawMessage) error {
	value = bytes.Clone(value)

	r.mu.Lock()
	prev, had := r.values[name]
	r.values[name] = entry{version: prev.version, value: value}
	fns := r.valueSubsLocked(name)
	r.mu.Unlock()

	if err := r.sender.Send(name, value); err != nil {
		r.rollback(name, value, prev, had)
		return err
	}
	for _, fn := range fns {
		fn(value)
	}
	return nil
}

// rollback restores prev unless something newer landed in the meantime.
func (r *Replica) rollback(name string, proposed json.RawMessage, prev entry, had bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur := r.values[name]
	if cur.version != prev.version || !bytes.Equal(cur.value, proposed) {
		return
	}
	if had {
		r.values[name] = prev
	} else {
		delete(r.values, name)
	}
}

func (r *Replica) Roster() []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.peers)
}

func (r *Replica) Subscribe(name string, fn func(json.RawMessage)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	if r.subs[name] == nil {
		r.subs[name] = make(map[int]func(json.RawMessage))
	}
	r.subs[name][id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.subs[name], id)
	}
}

func (r *Replica) SubscribeRoster(fn func([]Peer)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.nextSub
	r.nextSub++
	r.rosterSubs[id] = fn
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.rosterSubs, id)
	}
}

// Apply folds one relay update into the cache and notifies subscribers.
func (r *Replica) Apply(u Update) {
	switch u.Kind {
	case UpdateWelcome:
		r.mu.Lock()
		r.localID = u.PeerID
		r.mu.Unlock()

	case UpdateValue:
		r.mu.Lock()
		if cur, ok := r.values[u.Name]; ok && u.Version <= cur.version {
			r.mu.Unlock()
			return
		}
		value := bytes.Clone(u.Value)
		r.values[u.Name] = entry{version: u.Version, value: value}
		fns := r.valueSubsLocked(u.Name)
		r.mu.Unlock()
		for _, fn := range fns {
			fn(value)
		}

	case UpdateRoster:
		r.mu.Lock()
		peers := make([]Peer, len(u.Peers))
		for i, p := range u.Peers {
			p.IsLocal = p.ID == r.localID
			peers[i] = p
		}
		r.peers = peers
		fns := make([]func([]Peer), 0, len(r.rosterSubs))
		for _, fn := range r.rosterSubs {
			fns = append(fns, fn)
		}
		r.mu.Unlock()
		for _, fn := range fns {
			fn(slices.Clone(peers))
		}
	}
}

func (r *Replica) valueSubsLocked(name string) []func(json.RawMessage) {
	fns := make([]func(json.RawMessage), 0, len(r.subs[name]))
	for _, fn := range r.subs[name] {
		fns = append(fns, fn)
	}
	return fns
}
