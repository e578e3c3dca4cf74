package board

import "fmt"

// Empty marks a cell that was cleared by a match and is waiting for refill.
const Empty = -1

type Cell struct {
	Color int `json:"color"`
}

func (c Cell) IsEmpty() bool { return c.Color < 0 }

type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Rand is the source of new cell colors. *math/rand.Rand satisfies it.
type Rand interface {
	Intn(n int) int
}

// Move is one occupied cell dropping within column X.
type Move struct {
	X     int `json:"x"`
	FromY int `json:"from_y"`
	ToY   int `json:"to_y"`
}

// Drop reports what a gravity/refill pass did, for callers that animate it.
type Drop struct {
	Moves  []Move  `json:"moves,omitempty"`
	Filled []Coord `json:"filled,omitempty"`
}

// Board is a fixed cols x rows grid stored row-major (index y*cols + x).
// Row 0 is the top; gravity pulls toward higher y.
type Board struct {
	cols   int
	rows   int
	colors int
	cells  []Cell
	rng    Rand
}

func New(cols, rows, colors int, rng Rand) (*Board, error) {
	if cols <= 0 || rows <= 0 {
		return nil, fmt.Errorf("board: invalid size %dx%d", cols, rows)
	}
	if colors <= 0 {
		return nil, fmt.Errorf("board: invalid color count %d", colors)
	}
	if rng == nil {
		return nil, fmt.Errorf("board: nil rand")
	}
	return &Board{
		cols:   cols,
		rows:   rows,
		colors: colors,
		cells:  make([]Cell, cols*rows),
		rng:    rng,
	}, nil
}

func (b *Board) Cols() int      { return b.cols }
func (b *Board) Rows() int      { return b.rows }
func (b *Board) NumColors() int { return b.colors }

func (b *Board) index(x, y int) int { return y*b.cols + x }

func (b *Board) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < b.cols && c.Y >= 0 && c.Y < b.rows
}

// Cell panics on out-of-range coordinates; callers validate first.
func (b *Board) Cell(x, y int) Cell { return b.cells[b.index(x, y)] }

func (b *Board) Set(x, y, color int) { b.cells[b.index(x, y)].Color = color }

func (b *Board) randomColor() int { return b.rng.Intn(b.colors) }

// Initialize assigns every cell an independent uniform color. Accidental
// pre-existing runs are left as they are.
func (b *Board) Initialize() {
	for i := range b.cells {
		b.cells[i].Color = b.randomColor()
	}
}

// Shuffle permutes the cells uniformly (Fisher-Yates).
func (b *Board) Shuffle() {
	for i := len(b.cells) - 1; i > 0; i-- {
		j := b.rng.Intn(i + 1)
		b.cells[i], b.cells[j] = b.cells[j], b.cells[i]
	}
}

// ClearCells marks every path cell Empty. It does not compact or refill.
func (b *Board) ClearCells(path []Coord) {
	for _, c := range path {
		b.cells[b.index(c.X, c.Y)].Color = Empty
	}
}

// ResolveGravityAndRefill compacts each column downward, keeping the relative
// order of occupied cells, then fills the freed top slots with new colors.
// A cell drops by the number of empty cells strictly below it.
func (b *Board) ResolveGravityAndRefill() Drop {
	var d Drop
	for x := 0; x < b.cols; x++ {
		write := b.rows - 1
		for y := b.rows - 1; y >= 0; y-- {
			c := b.cells[b.index(x, y)]
			if c.IsEmpty() {
				continue
			}
			if y != write {
				b.cells[b.index(x, write)] = c
				b.cells[b.index(x, y)].Color = Empty
				d.Moves = append(d.Moves, Move{X: x, FromY: y, ToY: write})
			}
			write--
		}
		for y := 0; y <= write; y++ {
			b.cells[b.index(x, y)].Color = b.randomColor()
			d.Filled = append(d.Filled, Coord{X: x, Y: y})
		}
	}
	return d
}

func (b *Board) EmptyCount() int {
	n := 0
	for _, c := range b.cells {
		if c.IsEmpty() {
			n++
		}
	}
	return n
}

// Colors returns a copy of the grid colors in row-major order.
func (b *Board) Colors() []int {
	out := make([]int, len(b.cells))
	for i, c := range b.cells {
		out[i] = c.Color
	}
	return out
}

// Load replaces the grid from row-major colors, e.g. when restoring a snapshot.
func (b *Board) Load(colors []int) error {
	if len(colors) != len(b.cells) {
		return fmt.Errorf("board: load %d cells into %dx%d grid", len(colors), b.cols, b.rows)
	}
	for i, c := range colors {
		if c >= b.colors || c < Empty {
			return fmt.Errorf("board: cell %d has color %d outside [0,%d)", i, c, b.colors)
		}
		b.cells[i].Color = c
	}
	return nil
}
