package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DoyleJ11/tetris-together/internal/shared"
	"github.com/DoyleJ11/tetris-together/internal/store"
	"go.uber.org/zap/zaptest"
)

// helper: receive one update with a timeout so tests never hang
func recvUpdate(t *testing.T, ch <-chan shared.Update, within time.Duration) shared.Update {
	t.Helper()
	select {
	case u, ok := <-ch:
		if !ok {
			t.Fatalf("peer outbox closed unexpectedly")
		}
		return u
	case <-time.After(within):
		t.Fatalf("timed out waiting for update")
		return shared.Update{} // unreachable
	}
}

func recvClosed(t *testing.T, ch <-chan shared.Update, within time.Duration) {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("outbox not closed within %v", within)
		}
	}
}

func recvView(t *testing.T, s *Session) View {
	t.Helper()
	reply := make(chan View, 1)
	s.Inbox() <- GetState{Reply: reply}
	select {
	case v := <-reply:
		return v
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("timed out waiting for view")
		return View{} // unreachable
	}
}

// start runs a session that is stopped, and waited for, before the test ends.
func start(t *testing.T, code string, opts Options) *Session {
	t.Helper()
	opts.Log = zaptest.NewLogger(t)
	s := New(context.Background(), code, opts)
	t.Cleanup(func() {
		select {
		case s.Inbox() <- Shutdown{}:
		case <-s.Done():
		}
		<-s.Done()
	})
	return s
}

func join(t *testing.T, s *Session, id string) chan shared.Update {
	t.Helper()
	out := make(chan shared.Update, 16)
	s.Inbox() <- Join{PeerID: id, Name: "n-" + id, Outbox: out}
	welcome := recvUpdate(t, out, 100*time.Millisecond)
	if welcome.Kind != shared.UpdateWelcome || welcome.PeerID != id {
		t.Fatalf("want welcome for %s, got %+v", id, welcome)
	}
	return out
}

func TestSession_JoinSendsWelcomeValuesAndRoster(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	_ = st.Save(ctx, "ROOM01", store.Value{Name: shared.KeyGame, Version: 3, Data: json.RawMessage(`{"round":4}`)})

	s := start(t, "ROOM01", Options{Store: st})
	out := join(t, s, "a")

	val := recvUpdate(t, out, 100*time.Millisecond)
	if val.Kind != shared.UpdateValue || val.Name != shared.KeyGame || val.Version != 3 {
		t.Fatalf("want restored value, got %+v", val)
	}
	roster := recvUpdate(t, out, 100*time.Millisecond)
	if roster.Kind != shared.UpdateRoster || len(roster.Peers) != 1 || roster.Peers[0].ID != "a" {
		t.Fatalf("want roster [a], got %+v", roster)
	}
}

func TestSession_ProposeBroadcastsToEveryPeerAndBumpsVersion(t *testing.T) {
	s := start(t, "ROOM02", Options{})
	a := join(t, s, "a")
	_ = recvUpdate(t, a, 100*time.Millisecond) // roster [a]
	b := join(t, s, "b")
	_ = recvUpdate(t, b, 100*time.Millisecond) // roster [a b]
	_ = recvUpdate(t, a, 100*time.Millisecond) // roster [a b]

	s.Inbox() <- Propose{PeerID: "b", Name: shared.KeyGame, Value: json.RawMessage(`{"round":1}`)}
	s.Inbox() <- Propose{PeerID: "a", Name: shared.KeyGame, Value: json.RawMessage(`{"round":2}`)}

	for _, out := range []chan shared.Update{a, b} {
		first := recvUpdate(t, out, 100*time.Millisecond)
		second := recvUpdate(t, out, 100*time.Millisecond)
		if first.Version != 1 || first.From != "b" {
			t.Fatalf("first: want v1 from b, got %+v", first)
		}
		if second.Version != 2 || second.From != "a" || string(second.Value) != `{"round":2}` {
			t.Fatalf("second: want v2 from a, got %+v", second)
		}
	}

	v := recvView(t, s)
	if v.Values[shared.KeyGame].Version != 2 {
		t.Fatalf("want stored version 2, got %+v", v.Values)
	}
}

func TestSession_ProposeFromUnknownPeerDropped(t *testing.T) {
	s := start(t, "ROOM03", Options{})
	_ = join(t, s, "a")
	s.Inbox() <- Propose{PeerID: "ghost", Name: shared.KeyGame, Value: json.RawMessage(`{}`)}

	if v := recvView(t, s); len(v.Values) != 0 {
		t.Fatalf("want no values, got %+v", v.Values)
	}
}

func TestSession_DropSlowPeer(t *testing.T) {
	s := start(t, "ROOM04", Options{})
	fast := join(t, s, "a")
	_ = recvUpdate(t, fast, 100*time.Millisecond)

	slow := make(chan shared.Update, 2) // welcome + roster, then full
	s.Inbox() <- Join{PeerID: "b", Name: "slow", Outbox: slow}
	_ = recvUpdate(t, fast, 100*time.Millisecond) // roster [a b]

	s.Inbox() <- Propose{PeerID: "a", Name: shared.KeyGame, Value: json.RawMessage(`{}`)}
	_ = recvUpdate(t, fast, 100*time.Millisecond) // value

	roster := recvUpdate(t, fast, 100*time.Millisecond)
	if roster.Kind != shared.UpdateRoster || len(roster.Peers) != 1 {
		t.Fatalf("want roster without the slow peer, got %+v", roster)
	}
	if v := recvView(t, s); len(v.Peers) != 1 {
		t.Fatalf("expected slow peer to be dropped; peers=%+v", v.Peers)
	}
}

func TestSession_DuplicateJoinRefused(t *testing.T) {
	s := start(t, "ROOM05", Options{})
	_ = join(t, s, "a")

	dup := make(chan shared.Update, 4)
	s.Inbox() <- Join{PeerID: "a", Name: "again", Outbox: dup}
	recvClosed(t, dup, 100*time.Millisecond)

	if v := recvView(t, s); len(v.Peers) != 1 || v.Peers[0].Name != "n-a" {
		t.Fatalf("original peer should stay, got %+v", v.Peers)
	}
}

func TestSession_LastLeaveStopsAndPurges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	emptied := make(chan string, 1)
	s := start(t, "ROOM06", Options{Store: st, OnEmpty: func(code string) { emptied <- code }})

	a := join(t, s, "a")
	b := join(t, s, "b")
	s.Inbox() <- Propose{PeerID: "a", Name: shared.KeyScores, Value: json.RawMessage(`[]`)}

	s.Inbox() <- Leave{PeerID: "b"}
	recvClosed(t, b, 100*time.Millisecond)

	s.Inbox() <- Leave{PeerID: "a"}
	recvClosed(t, a, 100*time.Millisecond)

	select {
	case code := <-emptied:
		if code != "ROOM06" {
			t.Fatalf("OnEmpty code: got %q", code)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("OnEmpty not called")
	}
	<-s.Done()

	vals, err := st.Load(ctx, "ROOM06")
	if err != nil || len(vals) != 0 {
		t.Fatalf("want purged store, got %v %v", vals, err)
	}
	if err := s.Send(ctx, Leave{PeerID: "a"}); err != ErrSessionClosed {
		t.Fatalf("send after stop: want ErrSessionClosed, got %v", err)
	}
}

func TestSession_ShutdownKeepsStoredValues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemory()
	s := start(t, "ROOM07", Options{Store: st})
	out := join(t, s, "a")
	s.Inbox() <- Propose{PeerID: "a", Name: shared.KeyGame, Value: json.RawMessage(`{"round":9}`)}
	s.Inbox() <- Shutdown{}
	recvClosed(t, out, 200*time.Millisecond)
	<-s.Done()

	vals, _ := st.Load(ctx, "ROOM07")
	if len(vals) != 1 || vals[0].Version != 1 {
		t.Fatalf("want value kept for restart, got %+v", vals)
	}
}

func TestSession_NobodyJoinsStops(t *testing.T) {
	emptied := make(chan string, 1)
	s := start(t, "ROOM08", Options{JoinTimeout: 20 * time.Millisecond, OnEmpty: func(code string) { emptied <- code }})

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatalf("session without peers kept running")
	}
	if code := <-emptied; code != "ROOM08" {
		t.Fatalf("OnEmpty code: got %q", code)
	}
}

func TestSession_JoinCancelsJoinTimeout(t *testing.T) {
	s := start(t, "ROOM09", Options{JoinTimeout: 20 * time.Millisecond})
	_ = join(t, s, "a")

	time.Sleep(60 * time.Millisecond)
	if v := recvView(t, s); len(v.Peers) != 1 {
		t.Fatalf("joined session should keep running, peers=%+v", v.Peers)
	}
}
