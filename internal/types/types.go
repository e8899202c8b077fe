package types

import (
	"encoding/json"

	"github.com/DoyleJ11/tetris-together/internal/shared"
)

type ClientMessage struct {
	Type  string          `json:"type"` // "Propose"
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

type ServerMessage struct {
	Type    string          `json:"type"` // "welcome" | "value" | "roster" | "error"
	You     string          `json:"you,omitempty"`
	From    string          `json:"from,omitempty"`
	Name    string          `json:"name,omitempty"`
	Version int             `json:"version,omitempty"`
	Value   json.RawMessage `json:"value,omitempty"`
	Peers   []shared.Peer   `json:"peers,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const (
	MsgPropose = "Propose"
	MsgError   = "error"
)

func FromUpdate(u shared.Update) ServerMessage {
	return ServerMessage{
		Type:    string(u.Kind),
		You:     u.PeerID,
		From:    u.From,
		Name:    u.Name,
		Version: u.Version,
		Value:   u.Value,
		Peers:   u.Peers,
	}
}

// Update is the inverse of FromUpdate. ok is false for error and unknown messages.
func (m ServerMessage) Update() (shared.Update, bool) {
	switch shared.UpdateKind(m.Type) {
	case shared.UpdateWelcome, shared.UpdateValue, shared.UpdateRoster:
	default:
		return shared.Update{}, false
	}
	return shared.Update{
		Kind:    shared.UpdateKind(m.Type),
		PeerID:  m.You,
		From:    m.From,
		Name:    m.Name,
		Version: m.Version,
		Value:   m.Value,
		Peers:   m.Peers,
	}, true
}
