// Package player runs one peer's side of the game: it turns local input into
// shared state, drives gravity while this peer is the leader, and records
// finished rounds.
package player

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/actionlog"
	"github.com/DoyleJ11/tetris-together/internal/election"
	"github.com/DoyleJ11/tetris-together/internal/engine"
	"github.com/DoyleJ11/tetris-together/internal/input"
	"github.com/DoyleJ11/tetris-together/internal/ledger"
	"github.com/DoyleJ11/tetris-together/internal/payment"
	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/DoyleJ11/tetris-together/pkg/types"
	"go.uber.org/zap"
)

var (
	ErrNotPaid       = errors.New("player: entry fee not paid for this round")
	ErrPlayerStopped = errors.New("player: stopped")
)

const (
	DefaultPollInterval = 16 * time.Millisecond
	gateTimeout         = 2 * time.Second
)

type Msg interface{ isPlayerMsg() }

type Input struct{ Cmd engine.Command }

func (Input) isPlayerMsg() {}

// Reset starts the next round. Reply is optional.
type Reset struct{ Reply chan error }

func (Reset) isPlayerMsg() {}

// EnterGame pays the entry fee for the current round. Reply is optional.
type EnterGame struct{ Reply chan error }

func (EnterGame) isPlayerMsg() {}

type GetView struct{ Reply chan types.View }

func (GetView) isPlayerMsg() {}

type Shutdown struct{}

func (Shutdown) isPlayerMsg() {}

type Options struct {
	Adapter shared.Adapter
	Gate    payment.Gate
	Source  engine.PieceSource
	Log     *zap.Logger
	Clock   func() time.Time

	PollInterval time.Duration
	PeerID       string // actor id written to the action log
	Name         string
	Account      string
}

type Player struct {
	inbox  chan Msg
	opts   Options
	log    *zap.Logger
	now    func() time.Time
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	rosterChanged chan struct{}
	unsubscribe   func()
	tracker       *actionlog.Tracker

	elect    election.Result
	lastDrop time.Time

	paidRound int // round the paid flag belongs to; 0 = unknown
	paid      bool

	// used until the first shared game value shows up
	fallback *engine.State
}

func New(parent context.Context, opts Options) *Player {
	ctx, cancel := context.WithCancel(parent)
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Source == nil {
		opts.Source = engine.NewRandomSource(uint64(time.Now().UnixNano()))
	}

	p := &Player{
		inbox:         make(chan Msg, 64),
		opts:          opts,
		log:           opts.Log.Named("player").With(zap.String("name", opts.Name)),
		now:           opts.Clock,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		rosterChanged: make(chan struct{}, 1),
		tracker:       actionlog.NewTracker(),
	}
	p.unsubscribe = opts.Adapter.SubscribeRoster(func([]shared.Peer) {
		select {
		case p.rosterChanged <- struct{}{}:
		default:
		}
	})
	p.lastDrop = p.now()
	p.onRoster()

	go p.loop()
	return p
}

func (p *Player) Inbox() chan<- Msg { return p.inbox }

func (p *Player) Done() <-chan struct{} { return p.done }

// Send delivers m unless the player stopped or ctx ends first.
func (p *Player) Send(ctx context.Context, m Msg) error {
	select {
	case <-p.done:
		return ErrPlayerStopped
	default:
	}
	select {
	case p.inbox <- m:
		return nil
	case <-p.done:
		return ErrPlayerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// View asks the loop for a snapshot.
func (p *Player) View(ctx context.Context) (types.View, error) {
	reply := make(chan types.View, 1)
	if err := p.Send(ctx, GetView{Reply: reply}); err != nil {
		return types.View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-p.done:
		return types.View{}, ErrPlayerStopped
	case <-ctx.Done():
		return types.View{}, ctx.Err()
	}
}

// Close stops the loop and waits for it.
func (p *Player) Close() error {
	select {
	case p.inbox <- Shutdown{}:
	case <-p.done:
	}
	<-p.done
	return nil
}

func (p *Player) loop() {
	defer close(p.done)
	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	var confirms <-chan payment.Receipt
	if p.opts.Gate != nil {
		confirms = p.opts.Gate.Confirmations()
	}

	for {
		select {
		case <-p.ctx.Done():
			p.shutdown()
			return

		case <-p.rosterChanged:
			p.onRoster()

		case rc := <-confirms:
			p.onConfirmed(rc)

		case <-ticker.C:
			p.tick()

		case m := <-p.inbox:
			switch msg := m.(type) {
			case Input:
				p.handleInput(msg.Cmd)

			case Reset:
				err := p.handleReset()
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case EnterGame:
				err := p.enter()
				if msg.Reply != nil {
					msg.Reply <- err
				}

			case GetView:
				msg.Reply <- p.view()

			case Shutdown:
				p.shutdown()
				return
			}
		}
	}
}

func (p *Player) onRoster() {
	prev := p.elect
	p.elect = election.Elect(p.opts.Adapter.Roster())
	if prev.IsLocal != p.elect.IsLocal || prev.Leader.ID != p.elect.Leader.ID {
		p.log.Info("leader changed",
			zap.String("leader", p.elect.Leader.ID),
			zap.Bool("local", p.elect.IsLocal),
			zap.Int("peers", p.elect.Peers))
		if p.elect.IsLocal {
			p.lastDrop = p.now()
		}
	}
}

// current is the latest observed game state. Every transition starts from here.
func (p *Player) current() engine.State {
	s, ok, err := shared.Get[engine.State](p.opts.Adapter, shared.KeyGame)
	if err != nil {
		p.log.Warn("unreadable game state", zap.Error(err))
	}
	if ok {
		return s
	}
	if p.fallback == nil {
		first := engine.NewInitialState(p.opts.Source)
		p.fallback = &first
	}
	return *p.fallback
}

func (p *Player) handleInput(cmd engine.Command) {
	if cmd.Type == engine.CmdReset {
		_ = p.handleReset()
		return
	}
	s := p.current()
	if s.GameOver {
		return
	}
	if !p.hasPaid(s.Round) {
		p.log.Debug("input refused, not paid", zap.Int("round", s.Round), zap.String("cmd", string(cmd.Type)))
		return
	}

	// every accepted key is logged, even one that moves nothing
	events, next := engine.Apply(s, cmd, p.opts.Source)
	if len(events) > 0 && !p.publish(next) {
		return
	}
	p.addAction(input.Describe(cmd.Type, s.Paused))
	if len(events) > 0 {
		p.settle(events, next)
	}
}

func (p *Player) handleReset() error {
	s := p.current()
	if !p.hasPaid(s.Round) {
		p.log.Info("reset refused, not paid", zap.Int("round", s.Round))
		return ErrNotPaid
	}
	if s.GameOver {
		p.recordScore(s)
	} else {
		p.recordAbandoned(s)
	}

	_, next := engine.Apply(s, engine.Command{Type: engine.CmdReset}, p.opts.Source)
	if err := p.publishErr(next); err != nil {
		return err
	}
	p.lastDrop = p.now()
	p.addAction(input.Describe(engine.CmdReset, s.Paused))
	p.log.Info("round started", zap.Int("round", next.Round))
	return nil
}

// tick drives gravity while this peer leads.
func (p *Player) tick() {
	if !p.elect.IsLocal || p.elect.Peers == 0 {
		return
	}
	s := p.current()
	if s.Paused || s.GameOver || !p.hasPaid(s.Round) {
		return
	}
	now := p.now()
	if now.Sub(p.lastDrop) <= engine.DropInterval(s.Level) {
		return
	}
	p.lastDrop = now

	events, next := engine.Apply(s, engine.Command{Type: engine.CmdSoftDrop}, p.opts.Source)
	if len(events) == 0 || !p.publish(next) {
		return
	}
	p.settle(events, next)
}

func (p *Player) settle(events []engine.Event, next engine.State) {
	for _, e := range events {
		if e.Type == engine.EvtLinesCleared {
			p.log.Info("lines cleared", zap.Int("round", e.Round), zap.Int("lines", e.Lines), zap.Int("points", e.Points))
		}
	}
	if engine.ContainsEvent(events, engine.EvtGameOver) {
		p.log.Info("game over", zap.Int("round", next.Round), zap.Int("score", next.Score))
		p.recordScore(next)
	}
}

// publish proposes s as the new game state. On failure the replica keeps the
// last value it received, so there is nothing to undo here.
func (p *Player) publish(s engine.State) bool {
	return p.publishErr(s) == nil
}

func (p *Player) publishErr(s engine.State) error {
	if err := shared.Set(p.opts.Adapter, shared.KeyGame, s); err != nil {
		p.log.Warn("propose game state failed", zap.Int("round", s.Round), zap.Error(err))
		return err
	}
	return nil
}

func (p *Player) addAction(action string) {
	entries, _, err := shared.Get[[]actionlog.Entry](p.opts.Adapter, shared.KeyActionLog)
	if err != nil {
		p.log.Warn("unreadable action log, starting over", zap.Error(err))
	}
	e := actionlog.NewEntry(action, p.actorID(), p.opts.Name, p.now())
	if err := shared.Set(p.opts.Adapter, shared.KeyActionLog, actionlog.Prepend(entries, e)); err != nil {
		p.log.Warn("propose action log failed", zap.Error(err))
		return
	}
	p.tracker.Track(e)
}

func (p *Player) actorID() string {
	if p.opts.PeerID != "" {
		return p.opts.PeerID
	}
	for _, peer := range p.opts.Adapter.Roster() {
		if peer.IsLocal {
			return peer.ID
		}
	}
	return p.opts.Name
}

func (p *Player) recordScore(s engine.State) {
	p.writeScores(s, ledger.Record)
}

func (p *Player) recordAbandoned(s engine.State) {
	p.writeScores(s, ledger.RecordAbandoned)
}

func (p *Player) writeScores(s engine.State, add func([]ledger.RoundScore, engine.State) ([]ledger.RoundScore, bool)) {
	list, _, err := shared.Get[[]ledger.RoundScore](p.opts.Adapter, shared.KeyScores)
	if err != nil {
		p.log.Warn("unreadable score ledger", zap.Error(err))
		return
	}
	next, changed := add(list, s)
	if !changed {
		return
	}
	if err := shared.Set(p.opts.Adapter, shared.KeyScores, next); err != nil {
		p.log.Warn("propose score ledger failed", zap.Int("round", s.Round), zap.Error(err))
		return
	}
	p.log.Info("round recorded", zap.Int("round", s.Round), zap.Int("score", s.Score), zap.Bool("finished", s.GameOver))
}

func (p *Player) hasPaid(round int) bool {
	if p.opts.Gate == nil {
		return true
	}
	if p.paidRound == round {
		return p.paid
	}
	ctx, cancel := context.WithTimeout(p.ctx, gateTimeout)
	defer cancel()
	paid, err := p.opts.Gate.HasPaid(ctx, p.opts.Account, round)
	if err != nil {
		p.log.Warn("payment status unavailable", zap.Int("round", round), zap.Error(err))
		return false
	}
	p.paidRound, p.paid = round, paid
	return paid
}

func (p *Player) enter() error {
	if p.opts.Gate == nil {
		return nil
	}
	s := p.current()
	if p.hasPaid(s.Round) {
		return nil
	}
	ctx, cancel := context.WithTimeout(p.ctx, gateTimeout)
	defer cancel()
	rc, err := p.opts.Gate.Enter(ctx, p.opts.Account, s.Round)
	if err != nil {
		if errors.Is(err, payment.ErrAlreadyPaid) {
			p.paidRound, p.paid = s.Round, true
			return nil
		}
		p.log.Warn("entry failed", zap.Int("round", s.Round), zap.Error(err))
		return err
	}
	p.log.Info("entry submitted", zap.Int("round", s.Round), zap.String("tx", rc.TxID))
	return nil
}

func (p *Player) onConfirmed(rc payment.Receipt) {
	if rc.Account != p.opts.Account {
		return
	}
	p.log.Info("entry confirmed", zap.Int("round", rc.Round), zap.String("tx", rc.TxID))
	if rc.Round == p.paidRound {
		p.paid = true
	}
}

func (p *Player) view() types.View {
	s := p.current()
	v := types.BuildView(s)
	v.Paid = p.hasPaid(s.Round)
	v.Leader = p.elect.Leader.ID
	v.IsLeader = p.elect.IsLocal
	v.Peers = p.opts.Adapter.Roster()

	entries, _, _ := shared.Get[[]actionlog.Entry](p.opts.Adapter, shared.KeyActionLog)
	v.Actions = actionlog.Visible(entries, p.now())
	for _, e := range v.Actions {
		if p.tracker.Fading(e.ID) {
			v.Fading = append(v.Fading, e.ID)
		}
	}
	v.Scores, _, _ = shared.Get[[]ledger.RoundScore](p.opts.Adapter, shared.KeyScores)
	return v
}

func (p *Player) shutdown() {
	p.unsubscribe()
	p.tracker.Close()
	p.cancel()
	p.log.Info("player stopped")
}
