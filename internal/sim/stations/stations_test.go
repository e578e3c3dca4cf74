package stations

import (
	"reflect"
	"testing"

	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/economy"
)

const toolText = `beef * 1 + chop * 1.5 = groundedBeef
beef + stove * 2 = searedBeef
egg + stove * 0.3 = friedEgg + shell`

func setup(t *testing.T, capacity int) (*Stations, *economy.Inventory) {
	t.Helper()
	idx := catalogs.ParseFormulaIndex(toolText, "")
	return New([]string{"chop", "stove"}, idx), economy.NewInventory(capacity)
}

func TestUse_ThenAdvanceCompletes(t *testing.T) {
	s, inv := setup(t, 4)
	inv.Grant("beef", 1)

	if !s.Use(inv, "chop", "beef") {
		t.Fatalf("expected use to succeed")
	}
	if inv.Amount("beef") != 0 {
		t.Fatalf("beef should be consumed")
	}
	tool, _ := s.Tool("chop")
	if !tool.Active() || tool.ItemCode != "beef" || tool.RemainingActiveTime != 1.5 {
		t.Fatalf("tool state: %+v", tool)
	}

	if done := s.Advance(inv, 1.0); len(done) != 0 {
		t.Fatalf("not done yet: %+v", done)
	}
	tool, _ = s.Tool("chop")
	if tool.RemainingActiveTime != 0.5 {
		t.Fatalf("remaining=%v", tool.RemainingActiveTime)
	}

	done := s.Advance(inv, 0.5)
	want := []Crafted{{ToolCode: "chop", ItemCode: "beef", Outputs: []string{"groundedBeef"}, Granted: []bool{true}}}
	if !reflect.DeepEqual(done, want) {
		t.Fatalf("crafted: %+v", done)
	}
	tool, _ = s.Tool("chop")
	if tool.Active() || tool.RemainingActiveTime != 0 {
		t.Fatalf("tool should be idle: %+v", tool)
	}
	if inv.Amount("groundedBeef") != 1 {
		t.Fatalf("expected groundedBeef in inventory")
	}
}

func TestUse_Rejections(t *testing.T) {
	s, inv := setup(t, 4)

	if s.Use(inv, "chop", "beef") {
		t.Fatalf("no beef in inventory")
	}
	if tool, _ := s.Tool("chop"); tool.Active() {
		t.Fatalf("failed use must not change the tool")
	}

	inv.Grant("beef", 2)
	if s.Use(inv, "oven", "beef") {
		t.Fatalf("unknown tool")
	}
	if s.Use(inv, "chop", "potato") {
		t.Fatalf("no formula for potato on chop")
	}
	if inv.Amount("beef") != 2 {
		t.Fatalf("rejections must not consume items")
	}

	if !s.Use(inv, "chop", "beef") {
		t.Fatalf("expected use")
	}
	if s.Use(inv, "chop", "beef") {
		t.Fatalf("busy tool must refuse")
	}
	if inv.Amount("beef") != 1 {
		t.Fatalf("busy rejection consumed beef")
	}
	if !s.Use(inv, "stove", "beef") {
		t.Fatalf("other tool is independent")
	}
}

func TestAdvance_RoundsToHundredths(t *testing.T) {
	s, inv := setup(t, 4)
	inv.Grant("beef", 1)
	s.Use(inv, "stove", "beef")
	for i := 0; i < 10; i++ {
		s.Advance(inv, 0.1)
	}
	tool, _ := s.Tool("stove")
	if tool.RemainingActiveTime != 1 {
		t.Fatalf("expected exactly 1 after ten 0.1 steps, got %v", tool.RemainingActiveTime)
	}
}

func TestAdvance_OvershootCompletes(t *testing.T) {
	s, inv := setup(t, 4)
	inv.Grant("beef", 1)
	s.Use(inv, "chop", "beef")
	if done := s.Advance(inv, 10); len(done) != 1 {
		t.Fatalf("expected completion")
	}
}

func TestAdvance_OutputsGrantedIndependently(t *testing.T) {
	s, inv := setup(t, 2)
	inv.Grant("egg", 1)
	inv.Grant("salt", 1)
	s.Use(inv, "stove", "egg")
	// egg slot freed; one free slot for two outputs.
	done := s.Advance(inv, 1)
	if len(done) != 1 {
		t.Fatalf("expected one completion")
	}
	if !reflect.DeepEqual(done[0].Granted, []bool{true, false}) {
		t.Fatalf("granted: %v", done[0].Granted)
	}
	if inv.Amount("friedEgg") != 1 || inv.Amount("shell") != 0 {
		t.Fatalf("inventory: %+v", inv.Slots())
	}
	if tool, _ := s.Tool("stove"); tool.Active() {
		t.Fatalf("tool must go idle even when outputs are refused")
	}
}

func TestAdvance_IdleToolsUntouched(t *testing.T) {
	s, inv := setup(t, 2)
	if done := s.Advance(inv, 5); done != nil {
		t.Fatalf("idle tools produce nothing: %+v", done)
	}
}

func TestLoadAndReset(t *testing.T) {
	s, _ := setup(t, 2)
	s.Load([]Tool{{Code: "stove", ItemCode: "beef", RemainingActiveTime: 0.75}, {Code: "grill", ItemCode: "x"}})
	tool, _ := s.Tool("stove")
	if tool.ItemCode != "beef" || tool.RemainingActiveTime != 0.75 {
		t.Fatalf("stove: %+v", tool)
	}
	if _, ok := s.Tool("grill"); ok {
		t.Fatalf("unknown tool must not be created by Load")
	}
	s.Reset()
	for _, tool := range s.Tools() {
		if tool.Active() {
			t.Fatalf("reset left %+v active", tool)
		}
	}
}
