// Package store keeps a session's replicated values so a restarted relay can pick them back up.
package store

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
)

var ErrClosed = errors.New("store: closed")

// Value is one named shared value at the version the relay last assigned it.
type Value struct {
	Name    string
	Version int
	Data    json.RawMessage
}

type Store interface {
	// Load returns every value saved for the session, sorted by name.
	Load(ctx context.Context, code string) ([]Value, error)
	Save(ctx context.Context, code string, v Value) error
	// Purge forgets the session.
	Purge(ctx context.Context, code string) error
	Close() error
}

type Memory struct {
	mu       sync.Mutex
	sessions map[string]map[string]Value
	closed   bool
}

func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]map[string]Value)}
}

func (m *Memory) Load(ctx context.Context, code string) ([]Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]Value, 0, len(m.sessions[code]))
	for _, v := range m.sessions[code] {
		v.Data = slices.Clone(v.Data)
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b Value) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (m *Memory) Save(ctx context.Context, code string, v Value) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	vals := m.sessions[code]
	if vals == nil {
		vals = make(map[string]Value)
		m.sessions[code] = vals
	}
	v.Data = slices.Clone(v.Data)
	vals[v.Name] = v
	return nil
}

func (m *Memory) Purge(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.sessions, code)
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.sessions)
	return nil
}
