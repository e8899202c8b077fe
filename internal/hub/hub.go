package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/session"
	"github.com/DoyleJ11/tetris-together/internal/store"
	"go.uber.org/zap"
)

type HubMsg interface{ isHubMsg() }

// CreateSession makes a new session under Code. Reply gets nil if the code is taken.
type CreateSession struct {
	Code  string
	Reply chan *session.Session
}

type GetSession struct {
	Code  string
	Reply chan *session.Session
}

// EnsureSession returns the live session or starts one, restoring whatever the store kept.
type EnsureSession struct {
	Code  string
	Reply chan *session.Session
}

// RemoveSession forgets Session if it is still the one registered under Code.
type RemoveSession struct {
	Code    string
	Session *session.Session
}

type ShutdownHub struct{}

func (CreateSession) isHubMsg() {}
func (GetSession) isHubMsg()    {}
func (EnsureSession) isHubMsg() {}
func (RemoveSession) isHubMsg() {}
func (ShutdownHub) isHubMsg()   {}

// DefaultJoinTimeout is how long a created session waits for its first peer.
const DefaultJoinTimeout = 2 * time.Minute

type Hub struct {
	inbox       chan HubMsg
	sessions    map[string]*session.Session
	store       store.Store
	log         *zap.Logger
	joinTimeout time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

type Option func(*Hub)

// WithJoinTimeout overrides DefaultJoinTimeout. Zero keeps unjoined sessions forever.
func WithJoinTimeout(d time.Duration) Option {
	return func(h *Hub) { h.joinTimeout = d }
}

func NewHub(parent context.Context, st store.Store, log *zap.Logger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:       make(chan HubMsg, 64),
		sessions:    make(map[string]*session.Session),
		store:       st,
		log:         log.Named("hub"),
		joinTimeout: DefaultJoinTimeout,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	for _, o := range opts {
		o(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed after the hub stopped every session.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Ensure is EnsureSession for callers outside the hub. It returns nil once the hub is gone.
func (h *Hub) Ensure(ctx context.Context, code string) *session.Session {
	return h.ask(ctx, func(reply chan *session.Session) HubMsg { return EnsureSession{Code: code, Reply: reply} })
}

func (h *Hub) Get(ctx context.Context, code string) *session.Session {
	return h.ask(ctx, func(reply chan *session.Session) HubMsg { return GetSession{Code: code, Reply: reply} })
}

func (h *Hub) Create(ctx context.Context, code string) *session.Session {
	return h.ask(ctx, func(reply chan *session.Session) HubMsg { return CreateSession{Code: code, Reply: reply} })
}

func (h *Hub) ask(ctx context.Context, build func(chan *session.Session) HubMsg) *session.Session {
	reply := make(chan *session.Session, 1)
	select {
	case h.inbox <- build(reply):
	case <-h.done:
		return nil
	case <-ctx.Done():
		return nil
	}
	select {
	case s := <-reply:
		return s
	case <-h.done:
		return nil
	case <-ctx.Done():
		return nil
	}
}

func (h *Hub) loop() {
	defer close(h.done)
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateSession:
				if h.live(msg.Code) != nil {
					msg.Reply <- nil
					break
				}
				msg.Reply <- h.start(msg.Code)

			case GetSession:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureSession:
				if s := h.live(msg.Code); s != nil {
					msg.Reply <- s
					break
				}
				msg.Reply <- h.start(msg.Code)

			case RemoveSession:
				if h.sessions[msg.Code] == msg.Session {
					delete(h.sessions, msg.Code)
					h.log.Info("session removed", zap.String("code", msg.Code), zap.Int("sessions", len(h.sessions)))
				}

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

// live returns the registered session unless it already stopped.
func (h *Hub) live(code string) *session.Session {
	s := h.sessions[code]
	if s == nil {
		return nil
	}
	select {
	case <-s.Done():
		delete(h.sessions, code)
		return nil
	default:
		return s
	}
}

func (h *Hub) start(code string) *session.Session {
	var s *session.Session
	s = session.New(h.ctx, code, session.Options{
		Store:       h.store,
		Log:         h.log,
		JoinTimeout: h.joinTimeout,
		OnEmpty: func(code string) {
			// runs on the session goroutine; never block it on the hub
			go func() {
				select {
				case h.inbox <- RemoveSession{Code: code, Session: s}:
				case <-h.done:
				}
			}()
		},
	})
	h.sessions[code] = s
	h.log.Info("session started", zap.String("code", code))
	return s
}

// shutdown stops every session and waits for them. Stored values are kept.
func (h *Hub) shutdown() {
	for _, s := range h.sessions {
		select {
		case s.Inbox() <- session.Shutdown{}:
		case <-s.Done():
		}
	}
	for _, s := range h.sessions {
		<-s.Done()
	}
	clear(h.sessions)
	h.cancel()
}
