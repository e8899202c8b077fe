package engine

import "math/rand/v2"

type PieceType string

const (
	PieceI PieceType = "I"
	PieceO PieceType = "O"
	PieceT PieceType = "T"
	PieceS PieceType = "S"
	PieceZ PieceType = "Z"
	PieceJ PieceType = "J"
	PieceL PieceType = "L"
)

// PieceTypes is the closed catalog, in spawn-table order.
var PieceTypes = []PieceType{PieceI, PieceO, PieceT, PieceS, PieceZ, PieceJ, PieceL}

// Shape is a row-major occupancy matrix. Published shapes are never written to.
type Shape [][]int

var shapes = map[PieceType]Shape{
	PieceI: {{1, 1, 1, 1}},
	PieceO: {
		{1, 1},
		{1, 1},
	},
	PieceT: {
		{0, 1, 0},
		{1, 1, 1},
	},
	PieceS: {
		{0, 1, 1},
		{1, 1, 0},
	},
	PieceZ: {
		{1, 1, 0},
		{0, 1, 1},
	},
	PieceJ: {
		{1, 0, 0},
		{1, 1, 1},
	},
	PieceL: {
		{0, 0, 1},
		{1, 1, 1},
	},
}

// ShapeOf returns a fresh copy of the catalog shape for t, or nil for an unknown type.
func ShapeOf(t PieceType) Shape {
	s, ok := shapes[t]
	if !ok {
		return nil
	}
	return s.clone()
}

func (s Shape) clone() Shape {
	out := make(Shape, len(s))
	for i, row := range s {
		out[i] = append([]int(nil), row...)
	}
	return out
}

// Rotate turns the shape 90° clockwise: transpose, then reverse each row.
// A shape that is not a rectangle comes back unchanged.
func (s Shape) Rotate() Shape {
	if !s.Rectangular() {
		return s.clone()
	}
	rows, cols := len(s), len(s[0])
	out := make(Shape, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]int, rows)
		for r := 0; r < rows; r++ {
			out[c][rows-1-r] = s[r][c]
		}
	}
	return out
}

// Rectangular reports whether s has at least one cell and every row the same length.
// Shapes decoded from other peers are not guaranteed to be.
func (s Shape) Rectangular() bool {
	if len(s) == 0 || len(s[0]) == 0 {
		return false
	}
	for _, row := range s[1:] {
		if len(row) != len(s[0]) {
			return false
		}
	}
	return true
}

func (s Shape) Equal(o Shape) bool {
	if len(s) != len(o) {
		return false
	}
	for i := range s {
		if len(s[i]) != len(o[i]) {
			return false
		}
		for j := range s[i] {
			if s[i][j] != o[i][j] {
				return false
			}
		}
	}
	return true
}

type Piece struct {
	Type     PieceType `json:"type"`
	Shape    Shape     `json:"shape"`
	Position Position  `json:"position"`
}

// PieceSource picks the type of each newly spawned piece.
type PieceSource interface {
	NextType() PieceType
}

// RandomSource draws uniformly from PieceTypes.
type RandomSource struct {
	rng *rand.Rand
}

func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (r *RandomSource) NextType() PieceType {
	return PieceTypes[r.rng.IntN(len(PieceTypes))]
}

// SequenceSource replays a fixed list of types, wrapping around.
type SequenceSource struct {
	types []PieceType
	next  int
}

func NewSequenceSource(types ...PieceType) *SequenceSource {
	if len(types) == 0 {
		types = PieceTypes
	}
	return &SequenceSource{types: types}
}

func (s *SequenceSource) NextType() PieceType {
	t := s.types[s.next%len(s.types)]
	s.next++
	return t
}

// Spawn builds a piece of the next type, horizontally centred on the top row.
func Spawn(src PieceSource) Piece {
	t := src.NextType()
	shape := ShapeOf(t)
	width := 0
	if len(shape) > 0 {
		width = len(shape[0])
	}
	return Piece{
		Type:     t,
		Shape:    shape,
		Position: Position{X: BoardWidth/2 - width/2, Y: 0},
	}
}
