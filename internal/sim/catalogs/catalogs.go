package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

type Catalogs struct {
	Formulas *FormulaIndex
	Prices   PriceCatalog
	Maps     MapCatalog
}

type PriceCatalog struct {
	ByItem map[string]PriceDef
	Digest string
}

// PriceDef is the full cost of one unit of ItemCode; every cost must be paid.
type PriceDef struct {
	ItemCode string `json:"item"`
	Costs    []Cost `json:"costs"`
}

type Cost struct {
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

type MapCatalog struct {
	ByID   map[string]MapData
	Digest string
}

// IDs returns the map ids in sorted order.
func (m MapCatalog) IDs() []string {
	ids := make([]string, 0, len(m.ByID))
	for id := range m.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DefaultPrices mirrors the shop that ships with the stock levels.
func DefaultPrices() PriceCatalog {
	defs := []PriceDef{
		{ItemCode: "potato", Costs: []Cost{{Currency: "yellow", Amount: 2}}},
		{ItemCode: "beef", Costs: []Cost{{Currency: "red", Amount: 2}}},
		{ItemCode: "lettuce", Costs: []Cost{{Currency: "green", Amount: 2}}},
	}
	out := PriceCatalog{ByItem: map[string]PriceDef{}}
	for _, d := range defs {
		out.ByItem[d.ItemCode] = d
	}
	b, _ := json.Marshal(defs)
	out.Digest = sha256Hex(b)
	return out
}

// Load reads formulas/tools.txt, formulas/items.txt, prices.json and maps/*.json
// from configDir. prices.json and maps/ are optional.
func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	toolText, err := os.ReadFile(filepath.Join(configDir, "formulas", "tools.txt"))
	if err != nil {
		return nil, err
	}
	itemText, err := os.ReadFile(filepath.Join(configDir, "formulas", "items.txt"))
	if err != nil {
		return nil, err
	}
	c.Formulas = ParseFormulaIndex(string(toolText), string(itemText))

	if err := loadPrices(filepath.Join(configDir, "prices.json"), &c.Prices); err != nil {
		return nil, err
	}
	if err := loadMaps(filepath.Join(configDir, "maps"), &c.Maps); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadPrices(path string, out *PriceCatalog) error {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		*out = DefaultPrices()
		return nil
	}
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []PriceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("prices.json: %w", err)
	}
	out.ByItem = map[string]PriceDef{}
	for _, d := range defs {
		if d.ItemCode == "" {
			return fmt.Errorf("prices.json: empty item")
		}
		if len(d.Costs) == 0 {
			return fmt.Errorf("prices.json: %s: no costs", d.ItemCode)
		}
		for _, c := range d.Costs {
			if c.Currency == "" || c.Amount < 0 {
				return fmt.Errorf("prices.json: %s: invalid cost %+v", d.ItemCode, c)
			}
		}
		if _, dup := out.ByItem[d.ItemCode]; dup {
			return fmt.Errorf("prices.json: duplicate item %s", d.ItemCode)
		}
		out.ByItem[d.ItemCode] = d
	}
	return nil
}

func loadMaps(dir string, out *MapCatalog) error {
	out.ByID = map[string]MapData{}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		out.Digest = sha256Hex(nil)
		return nil
	}
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	h := sha256.New()
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		id := strings.TrimSuffix(name, ".json")
		m, err := ParseMap(id, raw)
		if err != nil {
			return err
		}
		out.ByID[id] = m
		h.Write([]byte(name))
		h.Write(raw)
	}
	out.Digest = hex.EncodeToString(h.Sum(nil))
	return nil
}
