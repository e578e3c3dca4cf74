package board

import "testing"

func TestAdjacent_Exhaustive(t *testing.T) {
	for ax := -2; ax <= 2; ax++ {
		for ay := -2; ay <= 2; ay++ {
			for bx := -2; bx <= 2; bx++ {
				for by := -2; by <= 2; by++ {
					a, b := Coord{ax, ay}, Coord{bx, by}
					want := max(abs(ax-bx), abs(ay-by)) <= 1 && a != b
					if got := Adjacent(a, b); got != want {
						t.Fatalf("Adjacent(%v,%v)=%v want %v", a, b, got, want)
					}
					if Adjacent(a, b) != Adjacent(b, a) {
						t.Fatalf("Adjacent not symmetric for %v %v", a, b)
					}
				}
			}
		}
	}
}

func TestValidPath(t *testing.T) {
	// 3x3:
	// 1 1 2
	// 1 1 2
	// 3 3 2
	b := newTestBoard(t, 3, 3, []int{
		1, 1, 2,
		1, 1, 2,
		3, 3, 2,
	}, nil)

	cases := []struct {
		name string
		path []Coord
		want bool
	}{
		{"too short", []Coord{{0, 0}, {0, 1}}, false},
		{"empty", nil, false},
		{"vertical", []Coord{{2, 0}, {2, 1}, {2, 2}}, true},
		{"diagonal turn", []Coord{{0, 0}, {1, 1}, {1, 0}, {0, 1}}, true},
		{"out of bounds", []Coord{{0, 0}, {0, 1}, {-1, 1}}, false},
		{"out of bounds high", []Coord{{2, 0}, {2, 1}, {2, 3}}, false},
		{"color break", []Coord{{0, 1}, {0, 0}, {1, 0}, {2, 0}}, false},
		{"not adjacent", []Coord{{0, 0}, {1, 0}, {0, 1}, {2, 1}}, false},
		{"jump over", []Coord{{2, 0}, {2, 2}, {2, 1}}, false},
		{"repeat cell", []Coord{{0, 0}, {0, 1}, {0, 0}}, false},
		{"stay in place", []Coord{{0, 0}, {0, 0}, {0, 1}}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := b.Colors()
			if got := b.ValidPath(tc.path); got != tc.want {
				t.Fatalf("ValidPath=%v want %v", got, tc.want)
			}
			after := b.Colors()
			for i := range before {
				if before[i] != after[i] {
					t.Fatalf("validation mutated the board")
				}
			}
		})
	}
}

func TestValidPath_UsesCurrentBoard(t *testing.T) {
	b := newTestBoard(t, 3, 1, []int{1, 1, 1}, nil)
	path := []Coord{{0, 0}, {1, 0}, {2, 0}}
	if !b.ValidPath(path) {
		t.Fatalf("expected valid")
	}
	b.Set(2, 0, 0)
	if b.ValidPath(path) {
		t.Fatalf("expected invalid after recolor")
	}
}

func TestValidPath_RejectsEmptyCells(t *testing.T) {
	b := newTestBoard(t, 3, 1, []int{Empty, Empty, Empty}, nil)
	if b.ValidPath([]Coord{{0, 0}, {1, 0}, {2, 0}}) {
		t.Fatalf("a run of empty cells is not a match")
	}
}
