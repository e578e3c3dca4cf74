package board

import (
	"math/rand"
	"reflect"
	"sort"
	"testing"
)

// seqRand returns the queued values in order, then repeats the last one.
type seqRand struct {
	vals []int
	i    int
}

func (s *seqRand) Intn(n int) int {
	v := s.vals[len(s.vals)-1]
	if s.i < len(s.vals) {
		v = s.vals[s.i]
		s.i++
	}
	return v % n
}

func newTestBoard(t *testing.T, cols, rows int, colors []int, rng Rand) *Board {
	t.Helper()
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	b, err := New(cols, rows, 4, rng)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	if colors != nil {
		if err := b.Load(colors); err != nil {
			t.Fatalf("load: %v", err)
		}
	}
	return b
}

func TestNew_Rejects(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	if _, err := New(0, 5, 4, rng); err == nil {
		t.Fatalf("expected size error")
	}
	if _, err := New(5, 5, 0, rng); err == nil {
		t.Fatalf("expected color error")
	}
	if _, err := New(5, 5, 4, nil); err == nil {
		t.Fatalf("expected rand error")
	}
}

func TestInitialize_ColorsInRange(t *testing.T) {
	b := newTestBoard(t, 6, 7, nil, rand.New(rand.NewSource(42)))
	b.Initialize()
	seen := map[int]bool{}
	for y := 0; y < b.Rows(); y++ {
		for x := 0; x < b.Cols(); x++ {
			c := b.Cell(x, y).Color
			if c < 0 || c >= b.NumColors() {
				t.Fatalf("cell (%d,%d) color %d out of range", x, y, c)
			}
			seen[c] = true
		}
	}
	if len(seen) < 2 {
		t.Fatalf("expected more than one color on a 6x7 board, got %v", seen)
	}
}

func TestCell_RowMajor(t *testing.T) {
	b := newTestBoard(t, 3, 2, []int{
		0, 1, 2,
		3, 0, 1,
	}, nil)
	if b.Cell(2, 0).Color != 2 || b.Cell(0, 1).Color != 3 || b.Cell(2, 1).Color != 1 {
		t.Fatalf("unexpected layout: %v", b.Colors())
	}
}

func TestShuffle_IsPermutation(t *testing.T) {
	colors := []int{0, 0, 1, 1, 2, 2, 3, 3, 0, 1, 2, 3}
	b := newTestBoard(t, 4, 3, colors, rand.New(rand.NewSource(7)))
	b.Shuffle()
	got := b.Colors()
	sort.Ints(got)
	want := append([]int(nil), colors...)
	sort.Ints(want)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("shuffle changed the multiset: %v vs %v", got, want)
	}
}

func TestShuffle_CanKeepLastCell(t *testing.T) {
	// j is drawn from [0, i]: the last cell may stay in place.
	b := newTestBoard(t, 2, 1, []int{0, 1}, &seqRand{vals: []int{1}})
	b.Shuffle()
	if !reflect.DeepEqual(b.Colors(), []int{0, 1}) {
		t.Fatalf("expected identity permutation, got %v", b.Colors())
	}
}

func TestClearCells_NoCompaction(t *testing.T) {
	b := newTestBoard(t, 2, 2, []int{1, 2, 3, 0}, nil)
	b.ClearCells([]Coord{{X: 0, Y: 1}})
	if !reflect.DeepEqual(b.Colors(), []int{1, 2, Empty, 0}) {
		t.Fatalf("got %v", b.Colors())
	}
	if b.EmptyCount() != 1 {
		t.Fatalf("empty count %d", b.EmptyCount())
	}
}

func TestResolveGravityAndRefill_Column(t *testing.T) {
	// Single column, top to bottom: 0, E, 1, E, 2
	b := newTestBoard(t, 1, 5, []int{0, Empty, 1, Empty, 2}, &seqRand{vals: []int{3}})
	d := b.ResolveGravityAndRefill()
	if !reflect.DeepEqual(b.Colors(), []int{3, 3, 0, 1, 2}) {
		t.Fatalf("got %v", b.Colors())
	}
	wantMoves := []Move{
		{X: 0, FromY: 2, ToY: 3},
		{X: 0, FromY: 0, ToY: 2},
	}
	if !reflect.DeepEqual(d.Moves, wantMoves) {
		t.Fatalf("moves: %+v", d.Moves)
	}
	if !reflect.DeepEqual(d.Filled, []Coord{{0, 0}, {0, 1}}) {
		t.Fatalf("filled: %+v", d.Filled)
	}
}

func TestResolveGravityAndRefill_NoopWhenFull(t *testing.T) {
	colors := []int{0, 1, 2, 3, 0, 1}
	b := newTestBoard(t, 3, 2, colors, &seqRand{vals: []int{3}})
	d := b.ResolveGravityAndRefill()
	if len(d.Moves) != 0 || len(d.Filled) != 0 {
		t.Fatalf("expected no-op, got %+v", d)
	}
	if !reflect.DeepEqual(b.Colors(), colors) {
		t.Fatalf("grid changed: %v", b.Colors())
	}
}

func TestResolveGravityAndRefill_Conservation(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for trial := 0; trial < 200; trial++ {
		b := newTestBoard(t, 5, 6, nil, rand.New(rand.NewSource(int64(trial))))
		b.Initialize()

		var clear []Coord
		for y := 0; y < b.Rows(); y++ {
			for x := 0; x < b.Cols(); x++ {
				if rng.Intn(3) == 0 {
					clear = append(clear, Coord{X: x, Y: y})
				}
			}
		}
		b.ClearCells(clear)

		survivors := make([][]int, b.Cols())
		empties := make([]int, b.Cols())
		for x := 0; x < b.Cols(); x++ {
			for y := 0; y < b.Rows(); y++ {
				if c := b.Cell(x, y); c.IsEmpty() {
					empties[x]++
				} else {
					survivors[x] = append(survivors[x], c.Color)
				}
			}
		}

		d := b.ResolveGravityAndRefill()

		if b.EmptyCount() != 0 {
			t.Fatalf("trial %d: %d empty cells after refill", trial, b.EmptyCount())
		}
		for x := 0; x < b.Cols(); x++ {
			var bottom []int
			for y := empties[x]; y < b.Rows(); y++ {
				bottom = append(bottom, b.Cell(x, y).Color)
			}
			if len(survivors[x]) == 0 {
				survivors[x] = nil
			}
			if !reflect.DeepEqual(bottom, survivors[x]) {
				t.Fatalf("trial %d col %d: survivors %v, bottom after %v", trial, x, survivors[x], bottom)
			}
			for y := 0; y < empties[x]; y++ {
				if c := b.Cell(x, y).Color; c < 0 || c >= b.NumColors() {
					t.Fatalf("trial %d: refill color %d out of range", trial, c)
				}
			}
		}
		if len(d.Filled) != len(clear) {
			t.Fatalf("trial %d: filled %d, cleared %d", trial, len(d.Filled), len(clear))
		}
		for _, m := range d.Moves {
			below := 0
			for _, c := range clear {
				if c.X == m.X && c.Y > m.FromY {
					below++
				}
			}
			if m.ToY-m.FromY != below {
				t.Fatalf("trial %d: move %+v dropped %d, empties below %d", trial, m, m.ToY-m.FromY, below)
			}
		}
	}
}

func TestLoad_Rejects(t *testing.T) {
	b := newTestBoard(t, 2, 2, nil, nil)
	if err := b.Load([]int{0, 1, 2}); err == nil {
		t.Fatalf("expected size mismatch error")
	}
	if err := b.Load([]int{0, 1, 2, 4}); err == nil {
		t.Fatalf("expected color range error")
	}
	if err := b.Load([]int{0, 1, 2, -2}); err == nil {
		t.Fatalf("expected color range error")
	}
}
