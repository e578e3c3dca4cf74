package catalogs

import (
	"reflect"
	"testing"
)

func TestParseToolFormulas(t *testing.T) {
	text := "beef * 1 + chop * 1.5 = groundedBeef\n" +
		"beef + stove * 2 = searedBeef\n" +
		"\n" +
		"potato + chop = slicedPotato\n" + // no time
		"no equals here\n" +
		"lonely * 2 = nothing\n" + // single operand
		"fish * x + stove * 1 = bad\n" +
		"  egg\t+ stove*0.25 = friedEgg + shell  \n"

	got, skipped := ParseToolFormulas(text)
	want := []ToolFormula{
		{ItemCode: "beef", ToolCode: "chop", ItemAmount: 1, RequireTime: 1.5, OutputItemCodes: []string{"groundedBeef"}},
		{ItemCode: "beef", ToolCode: "stove", ItemAmount: 1, RequireTime: 2, OutputItemCodes: []string{"searedBeef"}},
		{ItemCode: "egg", ToolCode: "stove", ItemAmount: 1, RequireTime: 0.25, OutputItemCodes: []string{"friedEgg", "shell"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("formulas mismatch:\n got=%+v\nwant=%+v", got, want)
	}
	if !reflect.DeepEqual(skipped, []int{4, 5, 6, 7}) {
		t.Fatalf("skipped lines: got %v", skipped)
	}
}

func TestParseItemFormulas(t *testing.T) {
	text := "searedBeef + mashedPotato = steak\n" +
		"lettuce = salad\n" +
		"potato + beef\n" +
		"a + a + b = triple\n"
	got, skipped := ParseItemFormulas(text)
	want := []ItemFormula{
		{ItemCodes: []string{"searedBeef", "mashedPotato"}, OutputItemCode: "steak"},
		{ItemCodes: []string{"a", "a", "b"}, OutputItemCode: "triple"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("formulas mismatch: got=%+v", got)
	}
	if !reflect.DeepEqual(skipped, []int{2, 3}) {
		t.Fatalf("skipped lines: got %v", skipped)
	}
}

func TestFormulaIndex_ToolLookupFirstWins(t *testing.T) {
	idx := ParseFormulaIndex(
		"beef + chop * 1.5 = groundedBeef\nbeef + chop * 9 = other\n",
		"",
	)
	f, ok := idx.Tool("beef", "chop")
	if !ok {
		t.Fatalf("expected formula")
	}
	if f.RequireTime != 1.5 || f.OutputItemCodes[0] != "groundedBeef" {
		t.Fatalf("expected first definition, got %+v", f)
	}
	if _, ok := idx.Tool("chop", "beef"); ok {
		t.Fatalf("lookup must be keyed by (item, tool)")
	}
	if _, ok := idx.Tool("beef", "stove"); ok {
		t.Fatalf("unexpected formula for stove")
	}
}

func TestFormulaIndex_CombineIsMultiset(t *testing.T) {
	idx := ParseFormulaIndex("", "a + b = ab\na + a + b = aab\nb + c = bc\n")

	cases := []struct {
		in   []string
		want string
	}{
		{[]string{"a", "b"}, "ab"},
		{[]string{"b", "a"}, "ab"},
		{[]string{"a", "b", "a"}, "aab"},
		{[]string{"a", "a"}, ""},
		{[]string{"a"}, ""},
		{[]string{"a", "b", "c"}, ""},
		{[]string{"c", "b"}, "bc"},
	}
	for _, tc := range cases {
		f, ok := idx.Combine(tc.in...)
		if tc.want == "" {
			if ok {
				t.Fatalf("%v: expected no match, got %q", tc.in, f.OutputItemCode)
			}
			continue
		}
		if !ok || f.OutputItemCode != tc.want {
			t.Fatalf("%v: expected %q, got %q (ok=%v)", tc.in, tc.want, f.OutputItemCode, ok)
		}
	}
}

func TestFormulaIndex_Contributes(t *testing.T) {
	idx := ParseFormulaIndex("", "searedBeef + mashedPotato = steak\nlettuce + mashedPotato = salad\n")
	if !idx.Contributes("mashedPotato") {
		t.Fatalf("mashedPotato is an ingredient")
	}
	if !idx.Contributes("lettuce", "mashedPotato") {
		t.Fatalf("lettuce+mashedPotato is a formula")
	}
	if idx.Contributes("lettuce", "searedBeef") {
		t.Fatalf("no formula has lettuce and searedBeef")
	}
}

func TestFormulaIndex_NilSafe(t *testing.T) {
	var idx *FormulaIndex
	if _, ok := idx.Tool("a", "b"); ok {
		t.Fatalf("nil index must not match")
	}
	if _, ok := idx.Combine("a", "b"); ok {
		t.Fatalf("nil index must not match")
	}
}
