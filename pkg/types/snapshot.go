// Package types is the read-only surface a renderer draws from.
package types

import (
	"fmt"
	"strings"

	"github.com/DoyleJ11/tetris-together/internal/actionlog"
	"github.com/DoyleJ11/tetris-together/internal/engine"
	"github.com/DoyleJ11/tetris-together/internal/ledger"
	"github.com/DoyleJ11/tetris-together/internal/shared"
)

const PreviewSize = 4

type View struct {
	Round    int                           `json:"round"`
	Board    engine.Board                  `json:"board"` // locked cells with the active piece drawn in
	Next     [PreviewSize][PreviewSize]int `json:"next"`
	Score    int                           `json:"score"`
	Level    int                           `json:"level"`
	Lines    int                           `json:"lines"`
	GameOver bool                          `json:"gameOver"`
	Paused   bool                          `json:"paused"`
	Paid     bool                          `json:"paid"`
	Leader   string                        `json:"leader,omitempty"`
	IsLeader bool                          `json:"isLeader"`
	Peers    []shared.Peer                 `json:"peers"`
	Actions  []actionlog.Entry             `json:"actions"` // overlay, newest first
	Fading   []int64                       `json:"fading,omitempty"`
	Scores   []ledger.RoundScore           `json:"scores"`
}

// Compose draws the active piece onto a copy of the board. Cells off the board are skipped.
func Compose(s engine.State) engine.Board {
	b := s.Board
	if s.CurrentPiece == nil {
		return b
	}
	for _, c := range s.CurrentPiece.Filled() {
		if c.Y >= 0 && c.Y < engine.BoardHeight && c.X >= 0 && c.X < engine.BoardWidth {
			b[c.Y][c.X] = 1
		}
	}
	return b
}

func Preview(p *engine.Piece) [PreviewSize][PreviewSize]int {
	var out [PreviewSize][PreviewSize]int
	if p == nil {
		return out
	}
	for r, row := range p.Shape {
		for c, v := range row {
			if r < PreviewSize && c < PreviewSize {
				out[r][c] = v
			}
		}
	}
	return out
}

func BuildView(s engine.State) View {
	return View{
		Round:    s.Round,
		Board:    Compose(s),
		Next:     Preview(s.NextPiece),
		Score:    s.Score,
		Level:    s.Level,
		Lines:    s.Lines,
		GameOver: s.GameOver,
		Paused:   s.Paused,
	}
}

// Text is a plain terminal rendering of the board and counters.
func (v View) Text() string {
	var sb strings.Builder
	for _, row := range v.Board {
		sb.WriteByte('|')
		for _, c := range row {
			if c != 0 {
				sb.WriteString("[]")
			} else {
				sb.WriteString(" .")
			}
		}
		sb.WriteString("|\n")
	}
	sb.WriteString("+" + strings.Repeat("--", engine.BoardWidth) + "+\n")

	status := ""
	switch {
	case v.GameOver:
		status = " GAME OVER"
	case !v.Paid:
		status = " PAYMENT REQUIRED"
	case v.Paused:
		status = " PAUSED"
	}
	fmt.Fprintf(&sb, "round %d  score %d  level %d  lines %d%s\n", v.Round, v.Score, v.Level, v.Lines, status)
	for _, a := range v.Actions {
		fmt.Fprintf(&sb, "  %s %s\n", a.Nickname, a.Action)
	}
	return sb.String()
}
