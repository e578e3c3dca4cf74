package catalogs

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
)

// MapData is the per-level session configuration.
type MapData struct {
	ID                  string          `json:"id"`
	Orders              []string        `json:"orders"`
	InventorySlotAmount int             `json:"inventory_slot_amount"`
	Tools               []ToolPlacement `json:"tools"`
	PlateSlotAmount     int             `json:"plate_slot_amount"`
}

// ToolPlacement only matters to the core through Type; the rest is layout for the caller.
type ToolPlacement struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Tiled map export, reduced to the fields the levels use.
type tiledMap struct {
	Layers []tiledLayer `json:"layers"`
}

type tiledLayer struct {
	Name       string          `json:"name"`
	Properties []tiledProperty `json:"properties"`
	Objects    []tiledObject   `json:"objects"`
}

type tiledProperty struct {
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

type tiledObject struct {
	Type   string  `json:"type"`
	Class  string  `json:"class"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var orderSep = regexp.MustCompile(`[,.]`)

// ParseMap decodes a Tiled-style level: layers "inventory" and "plate" carry a
// "slot" property, "order" carries "order_list", "tool" carries tool objects.
func ParseMap(id string, raw []byte) (MapData, error) {
	var tm tiledMap
	if err := json.Unmarshal(raw, &tm); err != nil {
		return MapData{}, fmt.Errorf("map %s: %w", id, err)
	}
	m := MapData{ID: id}
	for _, l := range tm.Layers {
		switch l.Name {
		case "inventory":
			n, err := slotProperty(l)
			if err != nil {
				return MapData{}, fmt.Errorf("map %s: inventory: %w", id, err)
			}
			m.InventorySlotAmount = n
		case "plate":
			n, err := slotProperty(l)
			if err != nil {
				return MapData{}, fmt.Errorf("map %s: plate: %w", id, err)
			}
			m.PlateSlotAmount = n
		case "order":
			m.Orders = orderProperty(l)
		case "tool":
			for _, o := range l.Objects {
				typ := o.Type
				if typ == "" {
					typ = o.Class
				}
				m.Tools = append(m.Tools, ToolPlacement{Type: typ, X: o.X, Y: o.Y, Width: o.Width, Height: o.Height})
			}
		}
	}
	return m, nil
}

// Slot counts only apply when the layer actually has objects placed.
func slotProperty(l tiledLayer) (int, error) {
	if len(l.Objects) == 0 {
		return 0, nil
	}
	for _, p := range l.Properties {
		if p.Name != "slot" {
			continue
		}
		var f float64
		if err := json.Unmarshal(p.Value, &f); err != nil {
			var s string
			if err2 := json.Unmarshal(p.Value, &s); err2 != nil {
				return 0, fmt.Errorf("slot: %w", err)
			}
			if _, err := fmt.Sscanf(strings.TrimSpace(s), "%g", &f); err != nil {
				return 0, fmt.Errorf("slot %q: %w", s, err)
			}
		}
		if f < 0 || f != math.Trunc(f) {
			return 0, fmt.Errorf("slot must be a non-negative integer, got %v", f)
		}
		return int(f), nil
	}
	return 0, nil
}

func orderProperty(l tiledLayer) []string {
	for _, p := range l.Properties {
		if p.Name != "order_list" {
			continue
		}
		var s string
		if err := json.Unmarshal(p.Value, &s); err != nil {
			return nil
		}
		s = stripSpace(s)
		if s == "" {
			return nil
		}
		var out []string
		for _, code := range orderSep.Split(s, -1) {
			if code != "" {
				out = append(out, code)
			}
		}
		return out
	}
	return nil
}
