package tuning

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestLoad_RepoTuning(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.GridCols != 5 || tune.GridRows != 5 || tune.TotalColors != 4 {
		t.Fatalf("grid: %+v", tune)
	}
	if !reflect.DeepEqual(tune.Currencies, []string{"red", "green", "yellow", "blue"}) {
		t.Fatalf("currencies: %v", tune.Currencies)
	}
	if tune.MoveTimeCost != 5 {
		t.Fatalf("move time cost: %v", tune.MoveTimeCost)
	}
	if tune.SnapshotEveryTicks != 600 {
		t.Fatalf("snapshot cadence: %d", tune.SnapshotEveryTicks)
	}
}

func TestLoad_EmptyPathDefaults(t *testing.T) {
	tune, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(tune, Defaults()) {
		t.Fatalf("expected defaults")
	}
}

func TestLoad_PartialOverridesDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("grid_cols: 7\ntick_rate_hz: 0\nsnapshot_every_ticks: -5\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.GridCols != 7 || tune.GridRows != 5 {
		t.Fatalf("grid: %dx%d", tune.GridCols, tune.GridRows)
	}
	if tune.TickRateHz != 20 {
		t.Fatalf("tick rate should normalize to 20, got %d", tune.TickRateHz)
	}
	if tune.SnapshotEveryTicks != 0 {
		t.Fatalf("negative snapshot cadence should disable snapshots, got %d", tune.SnapshotEveryTicks)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Tuning){
		"zero grid":        func(t *Tuning) { t.GridRows = 0 },
		"no colors":        func(t *Tuning) { t.TotalColors = 0 },
		"few currencies":   func(t *Tuning) { t.TotalColors = 5 },
		"dup currency":     func(t *Tuning) { t.Currencies = []string{"red", "red", "a", "b"} },
		"empty tool":       func(t *Tuning) { t.Tools = []string{"chop", ""} },
		"negative move ts": func(t *Tuning) { t.MoveTimeCost = -1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			tune := Defaults()
			mutate(&tune)
			if err := tune.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
	if err := Defaults().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestDigest_ChangesWithValues(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.Digest() != b.Digest() || len(a.Digest()) != 64 {
		t.Fatalf("digest not stable: %s %s", a.Digest(), b.Digest())
	}
	b.MoveTimeCost = 7
	if a.Digest() == b.Digest() {
		t.Fatalf("digest ignores move_time_cost")
	}
}
