package economy

import (
	"reflect"
	"testing"

	"gemkitchen.ai/internal/sim/catalogs"
)

func TestInventory_GrantAndCapacity(t *testing.T) {
	inv := NewInventory(2)
	if !inv.Grant("beef", 0) || !inv.Grant("potato", 3) {
		t.Fatalf("grants within capacity must succeed")
	}
	if inv.Grant("lettuce", 1) {
		t.Fatalf("new code at capacity must be refused")
	}
	if inv.Amount("lettuce") != 0 {
		t.Fatalf("refused grant must not create a slot")
	}
	if !inv.Grant("beef", 2) {
		t.Fatalf("existing code is never blocked by capacity")
	}
	want := []Slot{{ItemCode: "beef", Amount: 3}, {ItemCode: "potato", Amount: 3}}
	if !reflect.DeepEqual(inv.Slots(), want) {
		t.Fatalf("slots: %+v", inv.Slots())
	}
}

func TestInventory_ZeroCapacity(t *testing.T) {
	inv := NewInventory(0)
	if inv.Grant("beef", 1) {
		t.Fatalf("zero-capacity inventory accepts nothing")
	}
}

func TestInventory_Ungrant(t *testing.T) {
	inv := NewInventory(3)
	if inv.Ungrant("beef") {
		t.Fatalf("ungrant of missing item must fail")
	}
	inv.Grant("beef", 2)
	inv.Grant("potato", 1)
	if !inv.Ungrant("beef") || inv.Amount("beef") != 1 {
		t.Fatalf("expected 1 beef left")
	}
	if !inv.Ungrant("beef") {
		t.Fatalf("expected last beef")
	}
	if inv.Amount("beef") != 0 || len(inv.Slots()) != 1 {
		t.Fatalf("empty slot must be removed: %+v", inv.Slots())
	}
	// The freed slot is reusable.
	inv.Grant("a", 1)
	inv.Grant("b", 1)
	if len(inv.Slots()) != 3 {
		t.Fatalf("expected 3 slots: %+v", inv.Slots())
	}
}

func TestInventory_Load(t *testing.T) {
	inv := NewInventory(1)
	inv.Load([]Slot{{"a", 1}, {"b", 2}, {"a", 2}, {"c", 0}, {"", 4}})
	want := []Slot{{ItemCode: "a", Amount: 3}, {ItemCode: "b", Amount: 2}}
	if !reflect.DeepEqual(inv.Slots(), want) {
		t.Fatalf("slots: %+v", inv.Slots())
	}
}

func TestWallet_Earn(t *testing.T) {
	w := NewWallet([]string{"red", "green"})
	if !w.Earn("red", 3) {
		t.Fatalf("earn red")
	}
	if w.Earn("purple", 3) {
		t.Fatalf("unknown currency must be ignored")
	}
	if n, _ := w.Balance("red"); n != 3 {
		t.Fatalf("red=%d", n)
	}
	if _, ok := w.Balance("purple"); ok {
		t.Fatalf("purple must not exist")
	}
	want := []Balance{{Code: "red", Amount: 3}, {Code: "green", Amount: 0}}
	if !reflect.DeepEqual(w.Balances(), want) {
		t.Fatalf("balances: %+v", w.Balances())
	}
}

func testPrices() catalogs.PriceCatalog {
	return catalogs.PriceCatalog{ByItem: map[string]catalogs.PriceDef{
		"beef":  {ItemCode: "beef", Costs: []catalogs.Cost{{Currency: "red", Amount: 2}}},
		"combo": {ItemCode: "combo", Costs: []catalogs.Cost{{Currency: "red", Amount: 1}, {Currency: "green", Amount: 2}}},
		"odd":   {ItemCode: "odd", Costs: []catalogs.Cost{{Currency: "purple", Amount: 1}}},
	}}
}

func TestBuy(t *testing.T) {
	e := New(3, []string{"red", "green"}, testPrices())

	if e.Buy("beef") {
		t.Fatalf("cannot afford yet")
	}
	e.Earn("red", 5)
	if !e.Buy("beef") {
		t.Fatalf("expected purchase")
	}
	if n, _ := e.Wallet.Balance("red"); n != 3 {
		t.Fatalf("red=%d", n)
	}
	if e.Inventory.Amount("beef") != 1 {
		t.Fatalf("beef=%d", e.Inventory.Amount("beef"))
	}
	if e.Buy("caviar") {
		t.Fatalf("unpriced item must fail")
	}
	if e.Buy("odd") {
		t.Fatalf("price in unknown currency must fail")
	}
}

func TestBuy_NoPartialDebit(t *testing.T) {
	e := New(3, []string{"red", "green"}, testPrices())
	e.Earn("red", 1)
	e.Earn("green", 1)
	if e.Buy("combo") {
		t.Fatalf("green is short; purchase must fail")
	}
	if r, _ := e.Wallet.Balance("red"); r != 1 {
		t.Fatalf("red debited on failed purchase: %d", r)
	}
	e.Earn("green", 1)
	if !e.Buy("combo") {
		t.Fatalf("expected purchase")
	}
	if r, _ := e.Wallet.Balance("red"); r != 0 {
		t.Fatalf("red=%d", r)
	}
	if g, _ := e.Wallet.Balance("green"); g != 0 {
		t.Fatalf("green=%d", g)
	}
}

// A full inventory refuses the purchase before any currency is debited.
func TestBuy_FullInventoryKeepsCurrency(t *testing.T) {
	e := New(1, []string{"red", "green"}, testPrices())
	e.Grant("potato", 1)
	e.Earn("red", 4)

	if e.Buy("beef") {
		t.Fatalf("inventory is full; purchase must fail")
	}
	if r, _ := e.Wallet.Balance("red"); r != 4 {
		t.Fatalf("currency spent on refused item: red=%d", r)
	}

	// Owning the item already means the slot exists, so the purchase goes through.
	e2 := New(1, []string{"red"}, testPrices())
	e2.Grant("beef", 1)
	e2.Earn("red", 2)
	if !e2.Buy("beef") || e2.Inventory.Amount("beef") != 2 {
		t.Fatalf("stacking onto an existing slot must succeed")
	}
}
