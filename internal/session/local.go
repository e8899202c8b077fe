package session

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/google/uuid"
)

// Local is an in-process peer of a session.
type Local struct {
	*shared.Replica

	s      *Session
	id     string
	done   chan struct{}
	closer sync.Once
}

// Attach joins s as a new peer and keeps a Replica in step with it.
func Attach(ctx context.Context, s *Session, name string) (*Local, error) {
	id := uuid.NewString()
	l := &Local{s: s, id: id, done: make(chan struct{})}
	l.Replica = shared.NewReplica(id, shared.SenderFunc(l.send))

	out := make(chan shared.Update, 64)
	if err := s.Send(ctx, Join{PeerID: id, Name: name, Outbox: out}); err != nil {
		return nil, err
	}

	go func() {
		defer close(l.done)
		for u := range out {
			l.Apply(u)
		}
	}()
	return l, nil
}

func (l *Local) ID() string { return l.id }

// Done is closed when the session stops sending to this peer.
func (l *Local) Done() <-chan struct{} { return l.done }

func (l *Local) send(name string, value json.RawMessage) error {
	select {
	case <-l.s.done:
		return shared.ErrClosed
	default:
	}
	select {
	case l.s.inbox <- Propose{PeerID: l.id, Name: name, Value: value}:
		return nil
	case <-l.s.done:
		return shared.ErrClosed
	default:
		return shared.ErrBackpressure
	}
}

// Close leaves the session.
func (l *Local) Close() error {
	l.closer.Do(func() {
		select {
		case l.s.inbox <- Leave{PeerID: l.id}:
		case <-l.s.done:
		}
	})
	return nil
}
