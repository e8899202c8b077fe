package engine

type State struct {
	Round        int    `json:"round"`
	Board        Board  `json:"board"`
	CurrentPiece *Piece `json:"currentPiece"`
	NextPiece    *Piece `json:"nextPiece"`
	Score        int    `json:"score"`
	Level        int    `json:"level"`
	Lines        int    `json:"lines"`
	GameOver     bool   `json:"gameOver"`
	Paused       bool   `json:"paused"`
}

type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
	Down  Direction = "down"
)

type CommandType string

const (
	CmdMoveLeft    CommandType = "MoveLeft"
	CmdMoveRight   CommandType = "MoveRight"
	CmdSoftDrop    CommandType = "SoftDrop"
	CmdRotate      CommandType = "Rotate"
	CmdTogglePause CommandType = "TogglePause"
	CmdReset       CommandType = "Reset"
)

/*
	CmdMoveLeft / CmdMoveRight -> EvtPieceMoved (or nothing)
	CmdSoftDrop                -> EvtPieceMoved, or EvtPieceLocked -> EvtLinesCleared? -> EvtGameOver?
	CmdRotate                  -> EvtPieceRotated (or nothing)
	CmdTogglePause             -> EvtPauseToggled
	CmdReset                   -> EvtRoundStarted
*/

type Command struct {
	Type CommandType
}

type EventType string

const (
	EvtPieceMoved   EventType = "PieceMoved"
	EvtPieceRotated EventType = "PieceRotated"
	EvtPieceLocked  EventType = "PieceLocked"
	EvtLinesCleared EventType = "LinesCleared"
	EvtGameOver     EventType = "GameOver"
	EvtPauseToggled EventType = "PauseToggled"
	EvtRoundStarted EventType = "RoundStarted"
)

type Event struct {
	Type   EventType
	Round  int
	Lines  int // rows removed, for EvtLinesCleared
	Points int // score delta, for EvtLinesCleared
}

// lineScores is the classic curve, indexed by rows cleared in one lock.
var lineScores = [5]int{0, 40, 100, 300, 1200}

// Apply runs one command against s. Illegal commands are absorbed: no events, s returned as-is.
// src is only consulted when a piece has to be spawned.
func Apply(s State, cmd Command, src PieceSource) ([]Event, State) {
	switch cmd.Type {
	case CmdMoveLeft:
		return move(s, Left, src)
	case CmdMoveRight:
		return move(s, Right, src)
	case CmdSoftDrop:
		return move(s, Down, src)

	case CmdRotate:
		next := Rotate(s)
		if next.CurrentPiece == s.CurrentPiece {
			return nil, s
		}
		return []Event{{Type: EvtPieceRotated, Round: s.Round}}, next

	case CmdTogglePause:
		next := TogglePause(s)
		return []Event{{Type: EvtPauseToggled, Round: s.Round}}, next

	case CmdReset:
		next := Reset(s, src)
		return []Event{{Type: EvtRoundStarted, Round: next.Round}}, next

	default:
		return nil, s
	}
}

// Move shifts the active piece one cell. A blocked downward move locks the piece.
func Move(s State, dir Direction, src PieceSource) State {
	_, next := move(s, dir, src)
	return next
}

func move(s State, dir Direction, src PieceSource) ([]Event, State) {
	if !canAct(s) {
		return nil, s
	}

	piece := *s.CurrentPiece
	pos := piece.Position
	switch dir {
	case Left:
		pos.X--
	case Right:
		pos.X++
	case Down:
		pos.Y++
	default:
		return nil, s
	}

	if IsValidPosition(s.Board, piece, pos) {
		piece.Position = pos
		next := s
		next.CurrentPiece = &piece
		return []Event{{Type: EvtPieceMoved, Round: s.Round}}, next
	}

	if dir != Down {
		return nil, s
	}
	return lock(s, src)
}

// lock settles the current piece, clears full rows, scores them and promotes the next piece.
func lock(s State, src PieceSource) ([]Event, State) {
	events := []Event{{Type: EvtPieceLocked, Round: s.Round}}

	board, cleared := clearLines(placePiece(s.Board, *s.CurrentPiece))
	points := CalculateScore(cleared, s.Level)

	next := s
	next.Board = board
	next.Score = s.Score + points
	next.Lines = s.Lines + cleared
	next.Level = LevelFor(next.Lines)

	if cleared > 0 {
		events = append(events, Event{Type: EvtLinesCleared, Round: s.Round, Lines: cleared, Points: points})
	}

	promoted := s.NextPiece
	if promoted == nil || !IsValidPosition(board, *promoted, promoted.Position) {
		next.CurrentPiece = nil
		next.NextPiece = nil
		next.GameOver = true
		return append(events, Event{Type: EvtGameOver, Round: s.Round}), next
	}

	fresh := Spawn(src)
	next.CurrentPiece = promoted
	next.NextPiece = &fresh
	return events, next
}

// Rotate turns the active piece in place. No kicks: a blocked rotation is discarded.
func Rotate(s State) State {
	if !canAct(s) || !s.CurrentPiece.Shape.Rectangular() {
		return s
	}
	rotated := *s.CurrentPiece
	rotated.Shape = rotated.Shape.Rotate()
	if !IsValidPosition(s.Board, rotated, rotated.Position) {
		return s
	}
	next := s
	next.CurrentPiece = &rotated
	return next
}

// TogglePause flips the paused flag, whatever the rest of the state.
func TogglePause(s State) State {
	next := s
	next.Paused = !s.Paused
	return next
}

// Reset starts the following round from scratch.
func Reset(s State, src PieceSource) State {
	return NewRound(s.Round+1, src)
}

func NewRound(round int, src PieceSource) State {
	current := Spawn(src)
	upcoming := Spawn(src)
	return State{
		Round:        round,
		Board:        NewEmptyBoard(),
		CurrentPiece: &current,
		NextPiece:    &upcoming,
	}
}

func CalculateScore(linesCleared, level int) int {
	if linesCleared < 0 || linesCleared >= len(lineScores) {
		return 0
	}
	return lineScores[linesCleared] * (level + 1)
}

func LevelFor(lines int) int {
	return lines / 10
}

func canAct(s State) bool {
	return s.CurrentPiece != nil && !s.GameOver && !s.Paused
}
