package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/hub"
	"github.com/DoyleJ11/tetris-together/internal/session"
	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/DoyleJ11/tetris-together/internal/types"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

type Options struct {
	IdleTimeout time.Duration
	ReadLimit   int64
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
}

func Handler(h *hub.Hub, opts Options, log *zap.Logger) http.HandlerFunc {
	log = log.Named("ws")
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			return
		}
		if !hub.ValidCode(code) {
			http.Error(w, "bad code", http.StatusBadRequest)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "anon"
		}

		// Ensure, not Get: a restarted relay brings the session back from the store.
		sess := h.Ensure(r.Context(), code)
		if sess == nil {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: opts.OriginPatterns})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")
		if opts.ReadLimit > 0 {
			conn.SetReadLimit(opts.ReadLimit)
		}

		peerID := uuid.NewString()
		log := log.With(zap.String("session", code), zap.String("peer", peerID))

		out := make(chan shared.Update, 64)
		if err := sess.Send(r.Context(), session.Join{PeerID: peerID, Name: name, Outbox: out}); err != nil {
			log.Info("join failed", zap.Error(err))
			conn.Close(websocket.StatusTryAgainLater, "session closed")
			return
		}
		defer func() {
			leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
			_ = sess.Send(leaveCtx, session.Leave{PeerID: peerID})
			cancel()
		}()

		// Writer goroutine
		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for u := range out {
				payload, _ := json.Marshal(types.FromUpdate(u))
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				err := conn.Write(ctx, websocket.MessageText, payload)
				cancel()
				if err != nil {
					log.Debug("write failed", zap.Error(err))
					writeCancel()
					return
				}
			}
			// the session dropped us
			conn.Close(websocket.StatusPolicyViolation, "too slow")
		}()

		// Reader loop
		for {
			ctx, cancel := readContext(writeCtx, opts.IdleTimeout)
			_, data, err := conn.Read(ctx)
			cancel()
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("peer closed")
				default:
					if !errors.Is(err, context.Canceled) {
						log.Debug("read ended", zap.Error(err))
					}
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				writeError(writeCtx, conn, "bad json")
				continue
			}
			if cm.Type != types.MsgPropose || cm.Name == "" || len(cm.Value) == 0 {
				writeError(writeCtx, conn, "unknown type")
				continue
			}
			if !json.Valid(cm.Value) {
				writeError(writeCtx, conn, "bad value")
				continue
			}

			if err := sess.Send(writeCtx, session.Propose{PeerID: peerID, Name: cm.Name, Value: cm.Value}); err != nil {
				log.Info("session gone", zap.Error(err))
				return
			}
		}
	}
}

func readContext(parent context.Context, idle time.Duration) (context.Context, context.CancelFunc) {
	if idle <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, idle)
}

func writeError(ctx context.Context, conn *websocket.Conn, msg string) {
	payload, _ := json.Marshal(types.ServerMessage{Type: types.MsgError, Error: msg})
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_ = conn.Write(ctx, websocket.MessageText, payload)
}
