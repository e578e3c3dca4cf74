package board

// MinPathLen is the shortest path that counts as a match.
const MinPathLen = 3

// Adjacent reports whether a and b touch in any of the 8 directions.
func Adjacent(a, b Coord) bool {
	if a == b {
		return false
	}
	return abs(a.X-b.X) <= 1 && abs(a.Y-b.Y) <= 1
}

// ValidPath checks path against the current grid: at least MinPathLen unique
// in-bounds coordinates, each one adjacent to the previous and holding the
// same color as the previous. The chained comparison means every cell carries
// the first cell's color. Empty cells never match. ValidPath never mutates.
func (b *Board) ValidPath(path []Coord) bool {
	if len(path) < MinPathLen {
		return false
	}
	seen := make(map[Coord]struct{}, len(path))
	for i, c := range path {
		if !b.InBounds(c) {
			return false
		}
		if _, dup := seen[c]; dup {
			return false
		}
		seen[c] = struct{}{}
		cell := b.Cell(c.X, c.Y)
		if cell.IsEmpty() {
			return false
		}
		if i == 0 {
			continue
		}
		prev := path[i-1]
		if b.Cell(prev.X, prev.Y).Color != cell.Color {
			return false
		}
		if !Adjacent(prev, c) {
			return false
		}
	}
	return true
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
