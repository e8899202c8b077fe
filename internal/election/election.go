// Package election picks the peer that drives gravity.
//
// The leader is the connected peer with the lexicographically smallest id.
// There are no terms and no sticky leadership: the result depends only on the
// roster passed in, so every peer holding the same roster agrees.
package election

import "github.com/DoyleJ11/tetris-together/internal/shared"

type Result struct {
	Leader    shared.Peer
	HasLeader bool
	IsLocal   bool // the local peer is the leader
	Peers     int
}

func Leader(peers []shared.Peer) (shared.Peer, bool) {
	if len(peers) == 0 {
		return shared.Peer{}, false
	}
	best := peers[0]
	for _, p := range peers[1:] {
		if p.ID < best.ID {
			best = p
		}
	}
	return best, true
}

func Elect(peers []shared.Peer) Result {
	leader, ok := Leader(peers)
	return Result{
		Leader:    leader,
		HasLeader: ok,
		IsLocal:   ok && leader.IsLocal,
		Peers:     len(peers),
	}
}
