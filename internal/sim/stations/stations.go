package stations

import (
	"math"

	"gemkitchen.ai/internal/sim/catalogs"
)

// Inventory is what a station draws ingredients from and delivers outputs to.
type Inventory interface {
	Grant(code string, amount int) bool
	Ungrant(code string) bool
}

// Tool is idle when ItemCode is empty, active while it holds an ingredient.
type Tool struct {
	Code                string  `json:"code"`
	ItemCode            string  `json:"item,omitempty"`
	RemainingActiveTime float64 `json:"remaining"`
}

func (t Tool) Active() bool { return t.ItemCode != "" }

// Crafted is one completed tool cycle.
type Crafted struct {
	ToolCode string   `json:"tool"`
	ItemCode string   `json:"item"`
	Outputs  []string `json:"outputs"`
	// Granted[i] is false when Outputs[i] was refused by a full inventory.
	Granted []bool `json:"granted"`
}

// Stations owns one tool per configured code for the session's lifetime.
type Stations struct {
	tools    []Tool
	formulas *catalogs.FormulaIndex
}

func New(codes []string, formulas *catalogs.FormulaIndex) *Stations {
	s := &Stations{formulas: formulas}
	for _, c := range codes {
		s.tools = append(s.tools, Tool{Code: c})
	}
	return s
}

func (s *Stations) find(code string) int {
	for i := range s.tools {
		if s.tools[i].Code == code {
			return i
		}
	}
	return -1
}

func (s *Stations) Tool(code string) (Tool, bool) {
	if i := s.find(code); i >= 0 {
		return s.tools[i], true
	}
	return Tool{}, false
}

func (s *Stations) Tools() []Tool {
	return append([]Tool(nil), s.tools...)
}

// Use loads one unit of itemCode into an idle tool. It does nothing unless
// the tool exists and is idle, a formula for (itemCode, toolCode) exists,
// and the inventory can give up the item.
func (s *Stations) Use(inv Inventory, toolCode, itemCode string) bool {
	i := s.find(toolCode)
	if i < 0 || s.tools[i].Active() {
		return false
	}
	f, ok := s.formulas.Tool(itemCode, toolCode)
	if !ok {
		return false
	}
	if !inv.Ungrant(itemCode) {
		return false
	}
	s.tools[i].ItemCode = itemCode
	s.tools[i].RemainingActiveTime = f.RequireTime
	return true
}

// Advance counts every active tool down by delta. Tools that reach zero grant
// their outputs and go idle; each output is granted independently.
func (s *Stations) Advance(inv Inventory, delta float64) []Crafted {
	var done []Crafted
	for i := range s.tools {
		t := &s.tools[i]
		if !t.Active() {
			continue
		}
		if t.RemainingActiveTime-delta > 0 {
			t.RemainingActiveTime = round2(t.RemainingActiveTime - delta)
			continue
		}
		c := Crafted{ToolCode: t.Code, ItemCode: t.ItemCode}
		if f, ok := s.formulas.Tool(t.ItemCode, t.Code); ok {
			for _, out := range f.OutputItemCodes {
				c.Outputs = append(c.Outputs, out)
				c.Granted = append(c.Granted, inv.Grant(out, 1))
			}
		}
		t.ItemCode = ""
		t.RemainingActiveTime = 0
		done = append(done, c)
	}
	return done
}

func (s *Stations) Reset() {
	for i := range s.tools {
		s.tools[i].ItemCode = ""
		s.tools[i].RemainingActiveTime = 0
	}
}

// Load restores tool state by code; unknown codes are ignored.
func (s *Stations) Load(tools []Tool) {
	s.Reset()
	for _, t := range tools {
		if i := s.find(t.Code); i >= 0 {
			s.tools[i].ItemCode = t.ItemCode
			s.tools[i].RemainingActiveTime = math.Max(0, t.RemainingActiveTime)
		}
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
