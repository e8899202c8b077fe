package engine

const (
	BoardWidth  = 10
	BoardHeight = 20
)

// Board is the settled cell grid, row 0 at the top. Cells are 0 (empty) or 1 (filled).
// It is an array so assigning a Board copies it.
type Board [BoardHeight][BoardWidth]int

type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func NewEmptyBoard() Board {
	return Board{}
}

// IsValidPosition reports whether every filled cell of piece, anchored at pos,
// lies inside [0,BoardWidth) horizontally, above BoardHeight, and on an empty cell.
// Rows above the board (negative y) skip the overlap check.
func IsValidPosition(b Board, piece Piece, pos Position) bool {
	for y, row := range piece.Shape {
		for x, cell := range row {
			if cell == 0 {
				continue
			}
			bx := pos.X + x
			by := pos.Y + y

			if bx < 0 || bx >= BoardWidth || by >= BoardHeight {
				return false
			}
			if by >= 0 && b[by][bx] != 0 {
				return false
			}
		}
	}
	return true
}

// placePiece stamps the piece onto a copy of b. Cells above row 0 are dropped.
func placePiece(b Board, piece Piece) Board {
	out := b
	for y, row := range piece.Shape {
		for x, cell := range row {
			if cell == 0 {
				continue
			}
			by := piece.Position.Y + y
			bx := piece.Position.X + x
			if by < 0 || by >= BoardHeight || bx < 0 || bx >= BoardWidth {
				continue
			}
			out[by][bx] = 1
		}
	}
	return out
}

// clearLines removes every full row, shifts the rest down and refills the top with empty rows.
func clearLines(b Board) (Board, int) {
	var out Board
	dst := BoardHeight - 1
	for y := BoardHeight - 1; y >= 0; y-- {
		if rowFull(b[y]) {
			continue
		}
		out[dst] = b[y]
		dst--
	}
	// rows 0..dst stay zero
	return out, dst + 1
}

func rowFull(row [BoardWidth]int) bool {
	for _, c := range row {
		if c == 0 {
			return false
		}
	}
	return true
}
