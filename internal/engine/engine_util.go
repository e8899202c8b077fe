package engine

import "time"

const (
	baseDropInterval = 800 * time.Millisecond
	dropStep         = 50 * time.Millisecond
	minDropInterval  = 50 * time.Millisecond
)

func NewInitialState(src PieceSource) State {
	return NewRound(1, src)
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// DropInterval is the gravity period for a level: 800ms minus 50ms per level, floored at 50ms.
func DropInterval(level int) time.Duration {
	d := baseDropInterval - time.Duration(level)*dropStep
	if d < minDropInterval {
		return minDropInterval
	}
	return d
}

// Filled lists the board coordinates covered by the piece at its anchor.
func (p Piece) Filled() []Position {
	var out []Position
	for y, row := range p.Shape {
		for x, cell := range row {
			if cell != 0 {
				out = append(out, Position{X: p.Position.X + x, Y: p.Position.Y + y})
			}
		}
	}
	return out
}
