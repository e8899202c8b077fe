// Package shared is the replicated-state contract the game core is written against.
//
// Every piece of logical state lives under a name. Any peer may read the latest
// full value and propose a full replacement; the relay broadcasts it to every
// peer. There is no compare-and-swap: the last write a peer observes wins.
package shared

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Names of the values the game shares.
const (
	KeyGame      = "tetris-game"
	KeyActionLog = "action-log"
	KeyScores    = "round-scores"
)

var (
	ErrClosed       = errors.New("shared: transport closed")
	ErrBackpressure = errors.New("shared: transport queue full")
)

type Peer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsLocal bool   `json:"isLocal,omitempty"`
}

type UpdateKind string

const (
	UpdateWelcome UpdateKind = "welcome"
	UpdateValue   UpdateKind = "value"
	UpdateRoster  UpdateKind = "roster"
)

// Update is one message from the relay to a peer.
type Update struct {
	Kind    UpdateKind
	PeerID  string // welcome: id assigned to the receiver
	From    string // value: proposer
	Name    string
	Version int
	Value   json.RawMessage
	Peers   []Peer
}

// Adapter is what a peer needs from the replication layer.
type Adapter interface {
	Read(name string) (json.RawMessage, bool)
	// Propose replaces the value under name. It does not wait for the broadcast.
	Propose(name string, value json.RawMessage) error
	Subscribe(name string, fn func(json.RawMessage)) (cancel func())
	Roster() []Peer
	SubscribeRoster(fn func([]Peer)) (cancel func())
}

// Get decodes the current value under name. ok is false when nothing was written yet.
func Get[T any](a Adapter, name string) (T, bool, error) {
	var out T
	raw, ok := a.Read(name)
	if !ok {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("decode %q: %w", name, err)
	}
	return out, true, nil
}

func Set[T any](a Adapter, name string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}
	return a.Propose(name, raw)
}
