package catalogs

import (
	"strconv"
	"strings"
	"unicode"
)

// ToolFormula turns one ingredient into outputs after RequireTime on a tool.
type ToolFormula struct {
	ItemCode        string   `json:"item"`
	ToolCode        string   `json:"tool"`
	ItemAmount      int      `json:"item_amount"`
	RequireTime     float64  `json:"require_time"`
	OutputItemCodes []string `json:"outputs"`
}

// ItemFormula combines an unordered multiset of items into a single output.
type ItemFormula struct {
	ItemCodes      []string `json:"items"`
	OutputItemCode string   `json:"output"`
}

type toolKey struct {
	item string
	tool string
}

// FormulaIndex is immutable after construction and safe to share between sessions.
type FormulaIndex struct {
	tools []ToolFormula
	items []ItemFormula

	byTool map[toolKey]int

	ToolsDigest string
	ItemsDigest string

	// Line numbers (1-based) that did not parse, per source text.
	SkippedToolLines []int
	SkippedItemLines []int
}

func NewFormulaIndex(tools []ToolFormula, items []ItemFormula) *FormulaIndex {
	idx := &FormulaIndex{
		tools:  append([]ToolFormula(nil), tools...),
		items:  append([]ItemFormula(nil), items...),
		byTool: make(map[toolKey]int, len(tools)),
	}
	for i, f := range idx.tools {
		k := toolKey{item: f.ItemCode, tool: f.ToolCode}
		if _, dup := idx.byTool[k]; dup {
			continue
		}
		idx.byTool[k] = i
	}
	return idx
}

// ParseFormulaIndex parses both formula texts into a ready index.
func ParseFormulaIndex(toolText, itemText string) *FormulaIndex {
	tools, skippedTools := ParseToolFormulas(toolText)
	items, skippedItems := ParseItemFormulas(itemText)
	idx := NewFormulaIndex(tools, items)
	idx.ToolsDigest = sha256Hex([]byte(toolText))
	idx.ItemsDigest = sha256Hex([]byte(itemText))
	idx.SkippedToolLines = skippedTools
	idx.SkippedItemLines = skippedItems
	return idx
}

// ParseToolFormulas reads `ingredient[*amount] + tool*time = out1[+out2...]` lines.
// Blank lines are ignored; malformed lines are skipped and reported.
func ParseToolFormulas(text string) ([]ToolFormula, []int) {
	var (
		out     []ToolFormula
		skipped []int
	)
	for i, raw := range strings.Split(text, "\n") {
		line := stripSpace(raw)
		if line == "" {
			continue
		}
		f, ok := parseToolLine(line)
		if !ok {
			skipped = append(skipped, i+1)
			continue
		}
		out = append(out, f)
	}
	return out, skipped
}

func parseToolLine(line string) (ToolFormula, bool) {
	sides := strings.Split(line, "=")
	if len(sides) < 2 {
		return ToolFormula{}, false
	}
	parts := strings.Split(sides[0], "+")
	if len(parts) < 2 {
		return ToolFormula{}, false
	}

	ingredient := strings.Split(parts[0], "*")
	f := ToolFormula{ItemCode: ingredient[0], ItemAmount: 1}
	if f.ItemCode == "" {
		return ToolFormula{}, false
	}
	if len(ingredient) > 1 {
		n, err := strconv.Atoi(ingredient[1])
		if err != nil || n <= 0 {
			return ToolFormula{}, false
		}
		f.ItemAmount = n
	}

	tool := strings.Split(parts[1], "*")
	if len(tool) < 2 || tool[0] == "" {
		return ToolFormula{}, false
	}
	t, err := strconv.ParseFloat(tool[1], 64)
	if err != nil || t < 0 {
		return ToolFormula{}, false
	}
	f.ToolCode = tool[0]
	f.RequireTime = t

	for _, o := range strings.Split(sides[1], "+") {
		if o == "" {
			return ToolFormula{}, false
		}
		f.OutputItemCodes = append(f.OutputItemCodes, o)
	}
	return f, true
}

// ParseItemFormulas reads `in1 + in2[+...] = output` lines (at least two ingredients).
func ParseItemFormulas(text string) ([]ItemFormula, []int) {
	var (
		out     []ItemFormula
		skipped []int
	)
	for i, raw := range strings.Split(text, "\n") {
		line := stripSpace(raw)
		if line == "" {
			continue
		}
		sides := strings.Split(line, "=")
		if len(sides) < 2 || sides[1] == "" {
			skipped = append(skipped, i+1)
			continue
		}
		codes := strings.Split(sides[0], "+")
		if len(codes) < 2 || containsEmpty(codes) {
			skipped = append(skipped, i+1)
			continue
		}
		out = append(out, ItemFormula{ItemCodes: codes, OutputItemCode: sides[1]})
	}
	return out, skipped
}

// Tool returns the formula for loading itemCode into toolCode.
func (idx *FormulaIndex) Tool(itemCode, toolCode string) (ToolFormula, bool) {
	if idx == nil {
		return ToolFormula{}, false
	}
	i, ok := idx.byTool[toolKey{item: itemCode, tool: toolCode}]
	if !ok {
		return ToolFormula{}, false
	}
	return idx.tools[i], true
}

// Combine returns the first item formula (definition order) whose ingredients
// equal itemCodes as a multiset.
func (idx *FormulaIndex) Combine(itemCodes ...string) (ItemFormula, bool) {
	if idx == nil {
		return ItemFormula{}, false
	}
	for _, f := range idx.items {
		if sameMultiset(itemCodes, f.ItemCodes) {
			return f, true
		}
	}
	return ItemFormula{}, false
}

// Contributes reports whether some item formula lists every given code.
// Counts are not considered; it is a hint for what may still combine.
func (idx *FormulaIndex) Contributes(itemCodes ...string) bool {
	if idx == nil {
		return false
	}
	for _, f := range idx.items {
		all := true
		for _, c := range itemCodes {
			if !contains(f.ItemCodes, c) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func (idx *FormulaIndex) ToolFormulas() []ToolFormula {
	if idx == nil {
		return nil
	}
	return append([]ToolFormula(nil), idx.tools...)
}

func (idx *FormulaIndex) ItemFormulas() []ItemFormula {
	if idx == nil {
		return nil
	}
	return append([]ItemFormula(nil), idx.items...)
}

func sameMultiset(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, c := range a {
		counts[c]++
	}
	for _, c := range b {
		if counts[c] == 0 {
			return false
		}
		counts[c]--
	}
	return true
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsEmpty(list []string) bool {
	return contains(list, "")
}
