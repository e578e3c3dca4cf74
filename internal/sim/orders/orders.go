package orders

import "gemkitchen.ai/internal/sim/catalogs"

// Inventory is the source of plated items and the sink for unneeded ones.
type Inventory interface {
	Grant(code string, amount int) bool
	Ungrant(code string) bool
}

// ClearResult reports what ClearPlate did with each item.
type ClearResult struct {
	Cleared   bool     `json:"cleared"`
	Fulfilled []string `json:"fulfilled,omitempty"`
	Returned  []string `json:"returned,omitempty"`
	// SessionComplete is true only on the call that removed the last order.
	SessionComplete bool `json:"session_complete"`
}

// Tracker owns the order list and the plates.
type Tracker struct {
	initial  []string
	orders   []string
	plates   [][]string
	formulas *catalogs.FormulaIndex
	complete bool
}

func NewTracker(orders []string, plateSlots int, formulas *catalogs.FormulaIndex) *Tracker {
	if plateSlots < 0 {
		plateSlots = 0
	}
	t := &Tracker{
		initial:  append([]string(nil), orders...),
		plates:   make([][]string, plateSlots),
		formulas: formulas,
	}
	t.orders = append([]string(nil), orders...)
	return t
}

func (t *Tracker) Orders() []string { return append([]string(nil), t.orders...) }

func (t *Tracker) PlateCount() int { return len(t.plates) }

// Plates returns a deep copy of every plate's contents.
func (t *Tracker) Plates() [][]string {
	out := make([][]string, len(t.plates))
	for i, p := range t.plates {
		out[i] = append([]string{}, p...)
	}
	return out
}

func (t *Tracker) Plate(i int) ([]string, bool) {
	if i < 0 || i >= len(t.plates) {
		return nil, false
	}
	return append([]string{}, t.plates[i]...), true
}

// Complete reports whether the order list has been emptied by a plate.
func (t *Tracker) Complete() bool { return t.complete }

// PutOnPlate moves one unit of itemCode from inv onto the plate. When the
// plate then equals some item formula's ingredients, it collapses to that
// formula's output.
func (t *Tracker) PutOnPlate(inv Inventory, itemCode string, plate int) bool {
	if plate < 0 || plate >= len(t.plates) {
		return false
	}
	if !inv.Ungrant(itemCode) {
		return false
	}
	t.plates[plate] = append(t.plates[plate], itemCode)
	if f, ok := t.formulas.Combine(t.plates[plate]...); ok {
		t.plates[plate] = []string{f.OutputItemCode}
	}
	return true
}

// ClearPlate serves the plate: items that are on order fulfill one order each,
// everything else goes back to inv.
func (t *Tracker) ClearPlate(inv Inventory, plate int) ClearResult {
	if plate < 0 || plate >= len(t.plates) || len(t.plates[plate]) == 0 {
		return ClearResult{}
	}
	res := ClearResult{Cleared: true}
	for _, code := range t.plates[plate] {
		i := indexOf(t.orders, code)
		if i < 0 {
			inv.Grant(code, 1)
			res.Returned = append(res.Returned, code)
			continue
		}
		t.orders = append(t.orders[:i], t.orders[i+1:]...)
		res.Fulfilled = append(res.Fulfilled, code)
		if len(t.orders) == 0 && !t.complete {
			t.complete = true
			res.SessionComplete = true
		}
	}
	t.plates[plate] = nil
	return res
}

// Reset restores the original order list and empties every plate.
func (t *Tracker) Reset() {
	t.orders = append([]string(nil), t.initial...)
	for i := range t.plates {
		t.plates[i] = nil
	}
	t.complete = false
}

// Load restores orders, plates and the completion flag. Plates beyond the
// configured count are dropped.
func (t *Tracker) Load(orders []string, plates [][]string, complete bool) {
	t.orders = append([]string(nil), orders...)
	for i := range t.plates {
		t.plates[i] = nil
		if i < len(plates) {
			t.plates[i] = append([]string(nil), plates[i]...)
		}
	}
	t.complete = complete
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}
