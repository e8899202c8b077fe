// Package wsclient connects a peer to a relay over websocket and keeps a shared.Replica in step with it.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/DoyleJ11/tetris-together/internal/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	writeTimeout = 3 * time.Second
	outboundSize = 64
)

var ErrNoWelcome = errors.New("wsclient: relay did not send a welcome")

type Client struct {
	*shared.Replica

	conn     *websocket.Conn
	outbound chan []byte
	log      *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial joins session code on the relay at serverURL and waits for the welcome.
func Dial(ctx context.Context, serverURL, code, name string, log *zap.Logger) (*Client, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, fmt.Errorf("server url: %w", err)
	}
	q := u.Query()
	q.Set("code", code)
	q.Set("name", name)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.Dial(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "no welcome")
		return nil, fmt.Errorf("read welcome: %w", err)
	}
	var msg types.ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type != string(shared.UpdateWelcome) || msg.You == "" {
		conn.Close(websocket.StatusProtocolError, "expected welcome")
		return nil, ErrNoWelcome
	}

	c := &Client{
		conn:     conn,
		outbound: make(chan []byte, outboundSize),
		log:      log.Named("wsclient").With(zap.String("session", code), zap.String("peer", msg.You)),
		closed:   make(chan struct{}),
	}
	c.Replica = shared.NewReplica(msg.You, shared.SenderFunc(c.send))
	c.log.Info("joined")
	return c, nil
}

// Run pumps the connection until ctx ends or the relay goes away.
func (c *Client) Run(ctx context.Context) error {
	defer c.markClosed()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readLoop(ctx) })
	g.Go(func() error { return c.writeLoop(ctx) })

	err := g.Wait()
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return nil
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
		return nil
	}
	return err
}

func (c *Client) readLoop(ctx context.Context) error {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			return err
		}
		var msg types.ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Warn("bad message from relay", zap.Error(err))
			continue
		}
		if msg.Type == types.MsgError {
			c.log.Warn("relay error", zap.String("error", msg.Error))
			continue
		}
		u, ok := msg.Update()
		if !ok {
			c.log.Debug("ignoring message", zap.String("type", msg.Type))
			continue
		}
		c.Apply(u)
	}
}

func (c *Client) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload := <-c.outbound:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
	}
}

func (c *Client) send(name string, value json.RawMessage) error {
	payload, err := json.Marshal(types.ClientMessage{Type: types.MsgPropose, Name: name, Value: value})
	if err != nil {
		return err
	}
	select {
	case <-c.closed:
		return shared.ErrClosed
	default:
	}
	select {
	case c.outbound <- payload:
		return nil
	default:
		return shared.ErrBackpressure
	}
}

// Done is closed once the client stopped.
func (c *Client) Done() <-chan struct{} { return c.closed }

func (c *Client) markClosed() {
	c.closeOnce.Do(func() { close(c.closed) })
}

func (c *Client) Close() error {
	c.markClosed()
	err := c.conn.Close(websocket.StatusNormalClosure, "bye")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}
