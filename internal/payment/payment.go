// Package payment is the entry-fee gate a peer must pass before playing a round.
//
// The chain plumbing lives outside this module; Gate is the surface the game
// uses, and Memory is an in-process gate good for local sessions and tests.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyPaid = errors.New("payment: already paid for round")
	ErrNoAccount   = errors.New("payment: account not set")
	ErrPending     = errors.New("payment: entry already pending")
)

type Receipt struct {
	TxID    string
	Account string
	Round   int
	Fee     string
}

type Gate interface {
	HasPaid(ctx context.Context, account string, round int) (bool, error)
	// Enter submits the entry fee for round. Success means submitted, not confirmed.
	Enter(ctx context.Context, account string, round int) (Receipt, error)
	// Confirmations delivers a receipt once its entry is confirmed.
	Confirmations() <-chan Receipt
}

type key struct {
	account string
	round   int
}

type Memory struct {
	mu       sync.Mutex
	fee      string
	delay    time.Duration
	paid     map[key]bool
	pending  map[key]*time.Timer
	confirms chan Receipt
	seq      int
	log      *zap.Logger
}

func NewMemory(fee string, confirmDelay time.Duration, log *zap.Logger) *Memory {
	return &Memory{
		fee:      fee,
		delay:    confirmDelay,
		paid:     make(map[key]bool),
		pending:  make(map[key]*time.Timer),
		confirms: make(chan Receipt, 16),
		log:      log.Named("payment"),
	}
}

func (m *Memory) HasPaid(ctx context.Context, account string, round int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paid[key{account, round}], nil
}

func (m *Memory) Enter(ctx context.Context, account string, round int) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if account == "" {
		return Receipt{}, ErrNoAccount
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{account, round}
	if m.paid[k] {
		return Receipt{}, fmt.Errorf("%w %d", ErrAlreadyPaid, round)
	}
	if _, ok := m.pending[k]; ok {
		return Receipt{}, ErrPending
	}

	m.seq++
	rc := Receipt{TxID: fmt.Sprintf("mem-%d", m.seq), Account: account, Round: round, Fee: m.fee}
	m.log.Info("entry submitted", zap.String("account", account), zap.Int("round", round), zap.String("tx", rc.TxID))

	if m.delay <= 0 {
		m.confirmLocked(k, rc)
		return rc, nil
	}
	m.pending[k] = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.pending[k]; !ok {
			return
		}
		m.confirmLocked(k, rc)
	})
	return rc, nil
}

func (m *Memory) confirmLocked(k key, rc Receipt) {
	delete(m.pending, k)
	m.paid[k] = true
	select {
	case m.confirms <- rc:
	default:
		m.log.Warn("confirmation dropped, nobody listening", zap.String("tx", rc.TxID))
	}
}

func (m *Memory) Confirmations() <-chan Receipt { return m.confirms }

// Close cancels entries that have not confirmed yet.
func (m *Memory) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, tm := range m.pending {
		tm.Stop()
		delete(m.pending, k)
	}
}
