package session

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"slices"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/DoyleJ11/tetris-together/internal/store"
	"go.uber.org/zap"
)

var ErrSessionClosed = errors.New("session closed")

const storeTimeout = 2 * time.Second

type Msg interface{ isSessionMsg() }

// Join registers a peer. Outbox needs room for the welcome, every current value and a roster.
type Join struct {
	PeerID string
	Name   string
	Outbox chan shared.Update
}

func (Join) isSessionMsg() {}

type Leave struct{ PeerID string }

func (Leave) isSessionMsg() {}

// Propose replaces the value under Name. Proposals from peers that have not joined are dropped.
type Propose struct {
	PeerID string
	Name   string
	Value  json.RawMessage
}

func (Propose) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

// Shutdown stops the session. Purge also forgets its stored values.
type Shutdown struct{ Purge bool }

func (Shutdown) isSessionMsg() {}

type View struct {
	Code   string
	Peers  []shared.Peer
	Values map[string]store.Value
}

type member struct {
	peer shared.Peer
	out  chan shared.Update
}

type Options struct {
	Store store.Store
	Log   *zap.Logger
	// OnEmpty runs on the session goroutine after the last peer left and the session stopped.
	OnEmpty func(code string)
	// JoinTimeout stops a session nobody joined in time. Zero waits forever.
	JoinTimeout time.Duration
}

// Session relays named shared values between the peers of one game.
// Every accepted proposal overwrites, bumps the version of that name and goes to every peer.
type Session struct {
	code    string
	inbox   chan Msg
	values  map[string]store.Value
	members map[string]*member
	order   []string // join order, for the roster
	store   store.Store
	log     *zap.Logger
	onEmpty func(string)
	joinBy  time.Duration
	joined  bool
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	rosterChanged bool // membership changed since the last roster broadcast
}

func New(parent context.Context, code string, opts Options) *Session {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}

	s := &Session{
		code:    code,
		inbox:   make(chan Msg, 64),
		values:  make(map[string]store.Value),
		members: make(map[string]*member),
		store:   opts.Store,
		log:     opts.Log.With(zap.String("session", code)),
		onEmpty: opts.OnEmpty,
		joinBy:  opts.JoinTimeout,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go s.loop()
	return s
}

func (s *Session) Code() string { return s.code }

// Inbox exposes the actor for tests and the ws layer.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Done is closed once the session stopped taking messages.
func (s *Session) Done() <-chan struct{} { return s.done }

// Send delivers m unless the session is gone or ctx ends first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) loop() {
	defer close(s.done)
	s.restore()

	var joinDeadline <-chan time.Time
	if s.joinBy > 0 {
		t := time.NewTimer(s.joinBy)
		defer t.Stop()
		joinDeadline = t.C
	}

	for {
		if s.joined {
			joinDeadline = nil
		}
		select {
		case <-s.ctx.Done():
			s.shutdown(false)
			return

		case <-joinDeadline:
			s.log.Info("nobody joined, stopping", zap.Duration("waited", s.joinBy))
			// values restored from the store stay there
			s.shutdown(false)
			if s.onEmpty != nil {
				s.onEmpty(s.code)
			}
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.join(msg)

			case Leave:
				if _, ok := s.members[msg.PeerID]; ok {
					s.remove(msg.PeerID)
					s.log.Info("peer left", zap.String("peer", msg.PeerID), zap.Int("peers", len(s.members)))
				}

			case Propose:
				s.propose(msg)

			case GetState:
				msg.Reply <- s.view()

			case Shutdown:
				s.shutdown(msg.Purge)
				return
			}

			if s.settleRoster() {
				return
			}
		}
	}
}

// settleRoster broadcasts a changed roster. It reports true when the last peer
// is gone and the session stopped.
func (s *Session) settleRoster() bool {
	for s.rosterChanged {
		s.rosterChanged = false
		if len(s.members) == 0 {
			s.shutdown(true)
			if s.onEmpty != nil {
				s.onEmpty(s.code)
			}
			return true
		}
		s.broadcast(shared.Update{Kind: shared.UpdateRoster, Peers: s.roster()})
	}
	return false
}

func (s *Session) restore() {
	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	defer cancel()
	vals, err := s.store.Load(ctx, s.code)
	if err != nil {
		s.log.Warn("restore failed, starting empty", zap.Error(err))
		return
	}
	for _, v := range vals {
		s.values[v.Name] = v
	}
	if len(vals) > 0 {
		s.log.Info("restored values", zap.Int("count", len(vals)))
	}
}

func (s *Session) join(msg Join) {
	if _, ok := s.members[msg.PeerID]; ok {
		s.log.Warn("duplicate peer id refused", zap.String("peer", msg.PeerID))
		close(msg.Outbox)
		return
	}
	m := &member{peer: shared.Peer{ID: msg.PeerID, Name: msg.Name}, out: msg.Outbox}
	s.members[msg.PeerID] = m
	s.order = append(s.order, msg.PeerID)
	s.joined = true

	if !s.deliver(m, shared.Update{Kind: shared.UpdateWelcome, PeerID: msg.PeerID}) {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(s.values)) {
		v := s.values[name]
		if !s.deliver(m, valueUpdate("", v)) {
			return
		}
	}
	s.log.Info("peer joined", zap.String("peer", msg.PeerID), zap.String("name", msg.Name), zap.Int("peers", len(s.members)))
	s.rosterChanged = true
}

func (s *Session) propose(msg Propose) {
	if _, ok := s.members[msg.PeerID]; !ok {
		s.log.Debug("proposal from unknown peer dropped", zap.String("peer", msg.PeerID), zap.String("name", msg.Name))
		return
	}
	v := store.Value{
		Name:    msg.Name,
		Version: s.values[msg.Name].Version + 1,
		Data:    msg.Value,
	}
	s.values[msg.Name] = v

	ctx, cancel := context.WithTimeout(s.ctx, storeTimeout)
	if err := s.store.Save(ctx, s.code, v); err != nil {
		s.log.Warn("save failed", zap.String("name", v.Name), zap.Int("version", v.Version), zap.Error(err))
	}
	cancel()

	s.broadcast(valueUpdate(msg.PeerID, v))
}

func valueUpdate(from string, v store.Value) shared.Update {
	return shared.Update{Kind: shared.UpdateValue, From: from, Name: v.Name, Version: v.Version, Value: v.Data}
}

func (s *Session) roster() []shared.Peer {
	peers := make([]shared.Peer, 0, len(s.order))
	for _, id := range s.order {
		peers = append(peers, s.members[id].peer)
	}
	return peers
}

func (s *Session) broadcast(u shared.Update) {
	for _, id := range slices.Clone(s.order) {
		m, ok := s.members[id]
		if !ok {
			continue
		}
		select {
		case m.out <- u:
		default:
			// Client is slow/full - drop them.
			s.log.Warn("dropping slow peer", zap.String("peer", id))
			s.remove(id)
		}
	}
}

// deliver sends to one member, dropping it when its outbox is full.
func (s *Session) deliver(m *member, u shared.Update) bool {
	select {
	case m.out <- u:
		return true
	default:
		s.log.Warn("dropping slow peer", zap.String("peer", m.peer.ID))
		s.remove(m.peer.ID)
		return false
	}
}

func (s *Session) remove(id string) {
	m, ok := s.members[id]
	if !ok {
		return
	}
	close(m.out) // Tell client no more updates
	delete(s.members, id)
	s.rosterChanged = true
	s.order = slices.DeleteFunc(s.order, func(o string) bool { return o == id })
}

func (s *Session) view() View {
	vals := make(map[string]store.Value, len(s.values))
	for k, v := range s.values {
		v.Data = slices.Clone(v.Data)
		vals[k] = v
	}
	return View{Code: s.code, Peers: s.roster(), Values: vals}
}

func (s *Session) shutdown(purge bool) {
	for id := range s.members {
		s.remove(id)
	}
	if purge {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := s.store.Purge(ctx, s.code); err != nil {
			s.log.Warn("purge failed", zap.Error(err))
		}
		cancel()
	}
	s.cancel()
	s.log.Info("session stopped", zap.Bool("purged", purge))
}
