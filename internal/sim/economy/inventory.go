package economy

// Slot holds every unit of one item code.
type Slot struct {
	ItemCode string `json:"item"`
	Amount   int    `json:"amount"`
}

// Inventory keeps at most one slot per item code and at most capacity distinct
// codes. Slots stay in the order they were first granted.
type Inventory struct {
	capacity int
	slots    []Slot
}

func NewInventory(capacity int) *Inventory {
	if capacity < 0 {
		capacity = 0
	}
	return &Inventory{capacity: capacity}
}

func (inv *Inventory) Capacity() int { return inv.capacity }

func (inv *Inventory) find(code string) int {
	for i := range inv.slots {
		if inv.slots[i].ItemCode == code {
			return i
		}
	}
	return -1
}

// CanAccept reports whether Grant(code) would succeed.
func (inv *Inventory) CanAccept(code string) bool {
	return inv.find(code) >= 0 || len(inv.slots) < inv.capacity
}

// Grant adds amount units (at least 1). A new code is silently refused when
// every slot is taken; an existing code is never refused.
func (inv *Inventory) Grant(code string, amount int) bool {
	if code == "" {
		return false
	}
	if amount <= 0 {
		amount = 1
	}
	if i := inv.find(code); i >= 0 {
		inv.slots[i].Amount += amount
		return true
	}
	if len(inv.slots) >= inv.capacity {
		return false
	}
	inv.slots = append(inv.slots, Slot{ItemCode: code, Amount: amount})
	return true
}

// Ungrant takes one unit of code, dropping the slot when it runs out.
func (inv *Inventory) Ungrant(code string) bool {
	i := inv.find(code)
	if i < 0 {
		return false
	}
	inv.slots[i].Amount--
	if inv.slots[i].Amount <= 0 {
		inv.slots = append(inv.slots[:i], inv.slots[i+1:]...)
	}
	return true
}

func (inv *Inventory) Amount(code string) int {
	if i := inv.find(code); i >= 0 {
		return inv.slots[i].Amount
	}
	return 0
}

func (inv *Inventory) Slots() []Slot {
	return append([]Slot(nil), inv.slots...)
}

func (inv *Inventory) Clear() { inv.slots = nil }

// Load replaces the contents. Zero and negative amounts are dropped; duplicate
// codes are merged; slots beyond capacity are kept so a restore never loses items.
func (inv *Inventory) Load(slots []Slot) {
	inv.slots = nil
	for _, s := range slots {
		if s.ItemCode == "" || s.Amount <= 0 {
			continue
		}
		if i := inv.find(s.ItemCode); i >= 0 {
			inv.slots[i].Amount += s.Amount
			continue
		}
		inv.slots = append(inv.slots, s)
	}
}
