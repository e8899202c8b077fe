package engine

import (
	"encoding/json"
	"testing"
	"time"
)

func verticalI(x, y int) *Piece {
	return &Piece{Type: PieceI, Shape: Shape{{1}, {1}, {1}, {1}}, Position: Position{X: x, Y: y}}
}

func spawned(t PieceType) *Piece {
	p := Spawn(NewSequenceSource(t))
	return &p
}

// boardWithHoles fills the bottom n rows except the given columns.
func boardWithHoles(n int, holes ...int) Board {
	var b Board
	for y := BoardHeight - n; y < BoardHeight; y++ {
		for x := 0; x < BoardWidth; x++ {
			b[y][x] = 1
		}
		for _, h := range holes {
			b[y][h] = 0
		}
	}
	return b
}

func dropUntilLocked(t *testing.T, s State, src PieceSource) (State, Piece) {
	t.Helper()
	for i := 0; i < BoardHeight+2; i++ {
		before := *s.CurrentPiece
		events, next := Apply(s, Command{Type: CmdSoftDrop}, src)
		if ContainsEvent(events, EvtPieceLocked) {
			return next, before
		}
		s = next
	}
	t.Fatalf("piece never locked")
	return State{}, Piece{}
}

func TestIsValidPosition(t *testing.T) {
	blocked := NewEmptyBoard()
	blocked[5][3] = 1

	cases := []struct {
		name  string
		board Board
		piece Piece
		pos   Position
		want  bool
	}{
		{name: "spawn on empty board", board: NewEmptyBoard(), piece: *spawned(PieceT), pos: Position{X: 4, Y: 0}, want: true},
		{name: "past left wall", board: NewEmptyBoard(), piece: *spawned(PieceI), pos: Position{X: -1, Y: 0}, want: false},
		{name: "past right wall", board: NewEmptyBoard(), piece: *spawned(PieceI), pos: Position{X: 7, Y: 0}, want: false},
		{name: "flush with right wall", board: NewEmptyBoard(), piece: *spawned(PieceI), pos: Position{X: 6, Y: 0}, want: true},
		{name: "below the floor", board: NewEmptyBoard(), piece: *spawned(PieceO), pos: Position{X: 0, Y: 19}, want: false},
		{name: "resting on the floor", board: NewEmptyBoard(), piece: *spawned(PieceO), pos: Position{X: 0, Y: 18}, want: true},
		{name: "above the board is allowed", board: NewEmptyBoard(), piece: *spawned(PieceT), pos: Position{X: 0, Y: -2}, want: true},
		{name: "above the board still bounded horizontally", board: NewEmptyBoard(), piece: *spawned(PieceT), pos: Position{X: -1, Y: -2}, want: false},
		{name: "overlaps a filled cell", board: blocked, piece: *verticalI(3, 2), pos: Position{X: 3, Y: 2}, want: false},
		{name: "partly above the board", board: blocked, piece: *verticalI(3, 0), pos: Position{X: 3, Y: -2}, want: true},
		{name: "empty shape cells ignored", board: blocked, piece: *spawned(PieceT), pos: Position{X: 3, Y: 5}, want: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidPosition(tc.board, tc.piece, tc.pos); got != tc.want {
				t.Fatalf("IsValidPosition(%v): got %v, want %v", tc.pos, got, tc.want)
			}
		})
	}
}

func TestSpawnCentresPiece(t *testing.T) {
	cases := []struct {
		typ   PieceType
		wantX int
	}{
		{PieceI, 3},
		{PieceO, 4},
		{PieceT, 4},
		{PieceL, 4},
	}
	for _, tc := range cases {
		p := Spawn(NewSequenceSource(tc.typ))
		if p.Type != tc.typ || p.Position.X != tc.wantX || p.Position.Y != 0 {
			t.Fatalf("Spawn(%s): got %+v, want x=%d y=0", tc.typ, p, tc.wantX)
		}
	}
}

func TestClearScoring(t *testing.T) {
	cases := []struct {
		name      string
		rows      int
		level     int
		lines     int
		wantScore int
	}{
		{name: "single on level 0", rows: 1, wantScore: 40},
		{name: "double on level 0", rows: 2, wantScore: 100},
		{name: "triple on level 0", rows: 3, wantScore: 300},
		{name: "tetris on level 0", rows: 4, wantScore: 1200},
		{name: "single on level 2", rows: 1, level: 2, lines: 20, wantScore: 120},
		{name: "double on level 2", rows: 2, level: 2, lines: 20, wantScore: 300},
		{name: "triple on level 2", rows: 3, level: 2, lines: 20, wantScore: 900},
		{name: "tetris on level 2", rows: 4, level: 2, lines: 20, wantScore: 3600},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := State{
				Round:        1,
				Board:        boardWithHoles(tc.rows, 0),
				CurrentPiece: verticalI(0, 16),
				NextPiece:    spawned(PieceO),
				Level:        tc.level,
				Lines:        tc.lines,
			}
			events, next := Apply(s, Command{Type: CmdSoftDrop}, NewSequenceSource(PieceT))
			if !ContainsEvent(events, EvtLinesCleared) {
				t.Fatalf("expected EvtLinesCleared, got %+v", events)
			}
			if next.Score != tc.wantScore {
				t.Fatalf("score: got %d, want %d", next.Score, tc.wantScore)
			}
			if next.Lines != tc.lines+tc.rows {
				t.Fatalf("lines: got %d, want %d", next.Lines, tc.lines+tc.rows)
			}
			if next.CurrentPiece == nil || next.CurrentPiece.Type != PieceO {
				t.Fatalf("expected queued O to be promoted, got %+v", next.CurrentPiece)
			}
			if next.NextPiece == nil || next.NextPiece.Type != PieceT {
				t.Fatalf("expected a fresh T as next piece, got %+v", next.NextPiece)
			}
		})
	}
}

func TestCalculateScoreOutOfRange(t *testing.T) {
	if got := CalculateScore(5, 0); got != 0 {
		t.Fatalf("CalculateScore(5, 0): got %d, want 0", got)
	}
}

func TestLevelFor(t *testing.T) {
	cases := map[int]int{0: 0, 9: 0, 10: 1, 19: 1, 29: 2, 100: 10}
	for lines, want := range cases {
		if got := LevelFor(lines); got != want {
			t.Fatalf("LevelFor(%d): got %d, want %d", lines, got, want)
		}
	}
}

func TestLevelRecomputedOnLock(t *testing.T) {
	s := State{
		Round:        1,
		Board:        boardWithHoles(2, 0),
		CurrentPiece: verticalI(0, 16),
		NextPiece:    spawned(PieceO),
		Lines:        9,
	}
	_, next := Apply(s, Command{Type: CmdSoftDrop}, NewSequenceSource(PieceO))
	if next.Lines != 11 || next.Level != 1 {
		t.Fatalf("got lines=%d level=%d, want lines=11 level=1", next.Lines, next.Level)
	}
	// level used for scoring is the one before the lock
	if next.Score != 100 {
		t.Fatalf("score: got %d, want 100", next.Score)
	}
}

func TestRotateFourTimesIsIdentity(t *testing.T) {
	for _, typ := range PieceTypes {
		t.Run(string(typ), func(t *testing.T) {
			orig := ShapeOf(typ)
			s := orig
			for i := 1; i <= 4; i++ {
				s = s.Rotate()
				if i == 2 && typ == PieceO && !s.Equal(orig) {
					t.Fatalf("O should be unchanged after 180°")
				}
			}
			if !s.Equal(orig) {
				t.Fatalf("360° rotation: got %v, want %v", s, orig)
			}
		})
	}
}

func TestRotateClockwise(t *testing.T) {
	got := ShapeOf(PieceT).Rotate()
	want := Shape{{1, 0}, {1, 1}, {1, 0}}
	if !got.Equal(want) {
		t.Fatalf("T rotated: got %v, want %v", got, want)
	}
}

func TestRotateDoesNotTouchCatalog(t *testing.T) {
	s := NewRound(1, NewSequenceSource(PieceT))
	_, _ = Apply(s, Command{Type: CmdRotate}, nil)
	if !ShapeOf(PieceT).Equal(Shape{{0, 1, 0}, {1, 1, 1}}) {
		t.Fatalf("catalog shape was modified")
	}
}

func TestBlockedRotationIsDiscarded(t *testing.T) {
	// horizontal I against the floor cannot stand up
	s := State{
		Round:        1,
		CurrentPiece: &Piece{Type: PieceI, Shape: ShapeOf(PieceI), Position: Position{X: 3, Y: 19}},
		NextPiece:    spawned(PieceO),
	}
	events, next := Apply(s, Command{Type: CmdRotate}, nil)
	if len(events) != 0 || next.CurrentPiece != s.CurrentPiece {
		t.Fatalf("expected rotation to be discarded, got events=%+v", events)
	}
}

func TestRotateIgnoresMalformedShapes(t *testing.T) {
	cases := []struct {
		name  string
		shape string
	}{
		{name: "ragged rows", shape: `[[1,1],[1]]`},
		{name: "short first row", shape: `[[1],[1,1,1]]`},
		{name: "empty", shape: `[]`},
		{name: "empty row", shape: `[[]]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := `{"round":1,"currentPiece":{"type":"O","shape":` + tc.shape + `,"position":{"x":4,"y":0}},` +
				`"nextPiece":{"type":"O","shape":[[1,1],[1,1]],"position":{"x":4,"y":0}}}`
			var s State
			if err := json.Unmarshal([]byte(raw), &s); err != nil {
				t.Fatalf("decode: %v", err)
			}

			events, next := Apply(s, Command{Type: CmdRotate}, NewSequenceSource(PieceO))
			if len(events) != 0 || next.CurrentPiece != s.CurrentPiece {
				t.Fatalf("expected a no-op, got events=%+v", events)
			}
			if got := s.CurrentPiece.Shape.Rotate(); !got.Equal(s.CurrentPiece.Shape) {
				t.Fatalf("Rotate changed a malformed shape: %v", got)
			}
		})
	}
}

func TestRejectedTransitionsAreNoOps(t *testing.T) {
	atWall := NewRound(1, NewSequenceSource(PieceO))
	atWall.CurrentPiece.Position.X = 0

	paused := NewRound(1, NewSequenceSource(PieceO))
	paused.Paused = true

	over := State{Round: 1, GameOver: true}

	cases := []struct {
		name string
		s    State
		cmd  CommandType
	}{
		{name: "left into the wall", s: atWall, cmd: CmdMoveLeft},
		{name: "move while paused", s: paused, cmd: CmdMoveRight},
		{name: "drop while paused", s: paused, cmd: CmdSoftDrop},
		{name: "rotate while paused", s: paused, cmd: CmdRotate},
		{name: "move after game over", s: over, cmd: CmdSoftDrop},
		{name: "rotate after game over", s: over, cmd: CmdRotate},
		{name: "unknown command", s: atWall, cmd: CommandType("Teleport")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			events, next := Apply(tc.s, Command{Type: tc.cmd}, NewSequenceSource(PieceI))
			if len(events) != 0 {
				t.Fatalf("expected no events, got %+v", events)
			}
			if next.CurrentPiece != tc.s.CurrentPiece || next != tc.s {
				t.Fatalf("expected state unchanged")
			}
		})
	}
}

func TestMoveDoesNotMutateInput(t *testing.T) {
	s := NewRound(1, NewSequenceSource(PieceT, PieceO))
	x := s.CurrentPiece.Position.X

	next := Move(s, Right, nil)
	if s.CurrentPiece.Position.X != x {
		t.Fatalf("input piece was moved in place")
	}
	if next.CurrentPiece.Position.X != x+1 {
		t.Fatalf("got x=%d, want %d", next.CurrentPiece.Position.X, x+1)
	}
}

func TestTogglePauseIgnoresGameOver(t *testing.T) {
	s := State{Round: 3, GameOver: true}
	events, next := Apply(s, Command{Type: CmdTogglePause}, nil)
	if !next.Paused || !ContainsEvent(events, EvtPauseToggled) {
		t.Fatalf("expected pause to toggle on a finished round")
	}
	if TogglePause(next).Paused {
		t.Fatalf("expected second toggle to resume")
	}
}

func TestDropToLockFillsFootprint(t *testing.T) {
	src := NewSequenceSource(PieceT, PieceO, PieceI)
	s := NewRound(1, src)

	locked, piece := dropUntilLocked(t, s, src)

	for _, c := range piece.Filled() {
		if locked.Board[c.Y][c.X] != 1 {
			t.Fatalf("cell %v not settled", c)
		}
	}
	if locked.CurrentPiece == nil || locked.CurrentPiece.Type != PieceO {
		t.Fatalf("expected O promoted, got %+v", locked.CurrentPiece)
	}
	if locked.NextPiece == nil || locked.NextPiece.Type != PieceI {
		t.Fatalf("expected I queued, got %+v", locked.NextPiece)
	}
	if s.Board != NewEmptyBoard() {
		t.Fatalf("input board was modified")
	}
}

func TestLockEndsGameWhenSpawnBlocked(t *testing.T) {
	var b Board
	b[0][4] = 1
	s := State{
		Round:        2,
		Board:        b,
		CurrentPiece: &Piece{Type: PieceI, Shape: ShapeOf(PieceI), Position: Position{X: 0, Y: 19}},
		NextPiece:    spawned(PieceO),
		Score:        40,
	}

	events, next := Apply(s, Command{Type: CmdSoftDrop}, NewSequenceSource(PieceT))
	if !ContainsEvent(events, EvtGameOver) {
		t.Fatalf("expected EvtGameOver, got %+v", events)
	}
	if !next.GameOver || next.CurrentPiece != nil || next.NextPiece != nil {
		t.Fatalf("expected game over with no pieces, got %+v", next)
	}
	if next.Score != 40 {
		t.Fatalf("score should carry over: got %d", next.Score)
	}
}

func TestResetStartsFreshRound(t *testing.T) {
	s := State{
		Round:    4,
		Board:    boardWithHoles(3, 1),
		Score:    900,
		Level:    2,
		Lines:    27,
		GameOver: true,
		Paused:   true,
	}

	events, next := Apply(s, Command{Type: CmdReset}, NewSequenceSource(PieceS, PieceZ))
	if !ContainsEvent(events, EvtRoundStarted) {
		t.Fatalf("expected EvtRoundStarted")
	}
	if next.Round != 5 {
		t.Fatalf("round: got %d, want 5", next.Round)
	}
	if next.Score != 0 || next.Lines != 0 || next.Level != 0 || next.GameOver || next.Paused {
		t.Fatalf("counters not reset: %+v", next)
	}
	if next.Board != NewEmptyBoard() {
		t.Fatalf("board not cleared")
	}
	if next.CurrentPiece == nil || next.NextPiece == nil || next.CurrentPiece == next.NextPiece {
		t.Fatalf("expected two independent pieces")
	}
	if next.CurrentPiece.Type != PieceS || next.NextPiece.Type != PieceZ {
		t.Fatalf("got %s/%s, want S/Z", next.CurrentPiece.Type, next.NextPiece.Type)
	}
}

func TestRoundOneScenario(t *testing.T) {
	src := NewSequenceSource(PieceO, PieceO, PieceO)
	s := NewInitialState(src)
	s.Board = boardWithHoles(2, 4, 5)

	locked, _ := dropUntilLocked(t, s, src)

	if locked.Score != 100 || locked.Lines != 2 {
		t.Fatalf("got score=%d lines=%d, want 100 and 2", locked.Score, locked.Lines)
	}
	if locked.Board != NewEmptyBoard() {
		t.Fatalf("expected cleared board, got %v", locked.Board)
	}
}

func TestDropInterval(t *testing.T) {
	cases := map[int]time.Duration{
		0:  800 * time.Millisecond,
		1:  750 * time.Millisecond,
		10: 300 * time.Millisecond,
		15: 50 * time.Millisecond,
		30: 50 * time.Millisecond,
	}
	for level, want := range cases {
		if got := DropInterval(level); got != want {
			t.Fatalf("DropInterval(%d): got %v, want %v", level, got, want)
		}
	}
}

func TestStateWireNames(t *testing.T) {
	b, err := json.Marshal(NewRound(1, NewSequenceSource(PieceI)))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"round", "board", "currentPiece", "nextPiece", "score", "level", "lines", "gameOver", "paused"} {
		if _, ok := raw[k]; !ok {
			t.Fatalf("missing field %q in %s", k, b)
		}
	}
}
