package economy

import "gemkitchen.ai/internal/sim/catalogs"

type Balance struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

// Wallet holds one balance per currency; the set is fixed at construction.
type Wallet struct {
	balances []Balance
}

func NewWallet(codes []string) *Wallet {
	w := &Wallet{balances: make([]Balance, 0, len(codes))}
	for _, c := range codes {
		w.balances = append(w.balances, Balance{Code: c})
	}
	return w
}

func (w *Wallet) find(code string) int {
	for i := range w.balances {
		if w.balances[i].Code == code {
			return i
		}
	}
	return -1
}

// Earn credits code; unknown currencies are ignored.
func (w *Wallet) Earn(code string, amount int) bool {
	i := w.find(code)
	if i < 0 || amount < 0 {
		return false
	}
	w.balances[i].Amount += amount
	return true
}

func (w *Wallet) Balance(code string) (int, bool) {
	if i := w.find(code); i >= 0 {
		return w.balances[i].Amount, true
	}
	return 0, false
}

// CanAfford reports whether every cost is covered. Costs naming the same
// currency are summed.
func (w *Wallet) CanAfford(costs []catalogs.Cost) bool {
	need := map[string]int{}
	for _, c := range costs {
		need[c.Currency] += c.Amount
	}
	for code, n := range need {
		have, ok := w.Balance(code)
		if !ok || have < n {
			return false
		}
	}
	return true
}

func (w *Wallet) debit(costs []catalogs.Cost) {
	for _, c := range costs {
		w.balances[w.find(c.Currency)].Amount -= c.Amount
	}
}

func (w *Wallet) Balances() []Balance {
	return append([]Balance(nil), w.balances...)
}

func (w *Wallet) Reset() {
	for i := range w.balances {
		w.balances[i].Amount = 0
	}
}

// Load sets balances for known currencies; unknown codes are ignored.
func (w *Wallet) Load(balances []Balance) {
	w.Reset()
	for _, b := range balances {
		if i := w.find(b.Code); i >= 0 && b.Amount >= 0 {
			w.balances[i].Amount = b.Amount
		}
	}
}

// Economy couples the inventory and wallet under a price list.
type Economy struct {
	Inventory *Inventory
	Wallet    *Wallet

	prices map[string]catalogs.PriceDef
}

func New(capacity int, currencies []string, prices catalogs.PriceCatalog) *Economy {
	return &Economy{
		Inventory: NewInventory(capacity),
		Wallet:    NewWallet(currencies),
		prices:    prices.ByItem,
	}
}

func (e *Economy) Grant(code string, amount int) bool { return e.Inventory.Grant(code, amount) }
func (e *Economy) Ungrant(code string) bool            { return e.Inventory.Ungrant(code) }
func (e *Economy) Earn(code string, amount int) bool   { return e.Wallet.Earn(code, amount) }

func (e *Economy) Price(itemCode string) (catalogs.PriceDef, bool) {
	p, ok := e.prices[itemCode]
	return p, ok
}

// Buy pays the full price of itemCode and grants one unit. Nothing changes
// unless every cost is affordable and the inventory can take the item: a
// purchase never spends currency on an item that would be refused.
func (e *Economy) Buy(itemCode string) bool {
	p, ok := e.prices[itemCode]
	if !ok {
		return false
	}
	if !e.Wallet.CanAfford(p.Costs) {
		return false
	}
	if !e.Inventory.CanAccept(itemCode) {
		return false
	}
	e.Wallet.debit(p.Costs)
	e.Inventory.Grant(itemCode, 1)
	return true
}
