package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz  int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	GridCols    int `yaml:"grid_cols" json:"grid_cols"`
	GridRows    int `yaml:"grid_rows" json:"grid_rows"`
	TotalColors int `yaml:"total_colors" json:"total_colors"`

	// Currencies[i] is credited for matches of color i.
	Currencies []string `yaml:"currencies" json:"currencies"`
	Tools      []string `yaml:"tools" json:"tools"`

	MoveTimeCost float64 `yaml:"move_time_cost" json:"move_time_cost"`
	DropSettleMs int     `yaml:"drop_settle_ms" json:"drop_settle_ms"`

	// SnapshotEveryTicks saves a live session's snapshot on this cadence when
	// it has changed since the last one. 0 disables periodic snapshots.
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" json:"snapshot_every_ticks"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		GridCols:        5,
		GridRows:        5,
		TotalColors:     4,
		Currencies:      []string{"red", "green", "yellow", "blue"},
		Tools:           []string{"chop", "stove"},
		MoveTimeCost:    5,
		DropSettleMs:    200,

		SnapshotEveryTicks: 600,
	}
}

// Load reads path over the defaults. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.DropSettleMs < 0 {
		t.DropSettleMs = 0
	}
	if t.SnapshotEveryTicks < 0 {
		t.SnapshotEveryTicks = 0
	}
	for i := range t.Currencies {
		t.Currencies[i] = strings.TrimSpace(t.Currencies[i])
	}
	for i := range t.Tools {
		t.Tools[i] = strings.TrimSpace(t.Tools[i])
	}
}

func (t Tuning) Validate() error {
	if t.GridCols <= 0 || t.GridRows <= 0 {
		return fmt.Errorf("grid must be positive, got %dx%d", t.GridCols, t.GridRows)
	}
	if t.TotalColors <= 0 {
		return fmt.Errorf("total_colors must be positive")
	}
	if len(t.Currencies) < t.TotalColors {
		return fmt.Errorf("need a currency per color: %d colors, %d currencies", t.TotalColors, len(t.Currencies))
	}
	if err := uniqueNonEmpty("currencies", t.Currencies); err != nil {
		return err
	}
	if err := uniqueNonEmpty("tools", t.Tools); err != nil {
		return err
	}
	if t.MoveTimeCost < 0 {
		return fmt.Errorf("move_time_cost must be >= 0")
	}
	return nil
}

func uniqueNonEmpty(field string, list []string) error {
	seen := map[string]bool{}
	for _, v := range list {
		if v == "" {
			return fmt.Errorf("%s: empty entry", field)
		}
		if seen[v] {
			return fmt.Errorf("%s: duplicate %q", field, v)
		}
		seen[v] = true
	}
	return nil
}

// Digest is the sha256 of the JSON encoding, sent to clients next to the
// catalog digests.
func (t Tuning) Digest() string {
	b, _ := json.Marshal(t)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
