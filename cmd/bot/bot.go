package main

import (
	"fmt"

	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/catalogs"
)

// maxSearchLen bounds the path search; longer chains rarely pay off for a bot.
const maxSearchLen = 6

type bot struct {
	prices []catalogs.PriceDef
	n      int
}

// next picks the bot's move for st: the longest same-color chain it can find,
// else a purchase it can afford.
func (b *bot) next(st *protocol.StateMsg) (protocol.ActMsg, bool) {
	if st.Paused || st.Complete || st.Processing {
		return protocol.ActMsg{}, false
	}
	b.n++
	act := protocol.ActMsg{
		Type:            protocol.TypeAct,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("bot_%d", b.n),
	}
	if path := findPath(st.Grid); path != nil {
		act.Kind = protocol.ActPath
		act.Path = path
		return act, true
	}
	if item, ok := affordable(b.prices, st); ok {
		act.Kind = protocol.ActBuy
		act.Item = item
		return act, true
	}
	return protocol.ActMsg{}, false
}

// findPath returns the longest chain of 8-adjacent cells sharing one color,
// searched up to maxSearchLen, or nil when no chain reaches three cells.
func findPath(g protocol.GridObs) [][2]int {
	if g.Cols <= 0 || g.Rows <= 0 || len(g.Cells) != g.Cols*g.Rows {
		return nil
	}
	color := func(x, y int) int { return g.Cells[y*g.Cols+x] }
	visited := make([]bool, len(g.Cells))
	var best, cur [][2]int

	var walk func(x, y int)
	walk = func(x, y int) {
		visited[y*g.Cols+x] = true
		cur = append(cur, [2]int{x, y})
		if len(cur) > len(best) {
			best = append(best[:0:0], cur...)
		}
		if len(cur) < maxSearchLen {
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if (dx == 0 && dy == 0) || nx < 0 || ny < 0 || nx >= g.Cols || ny >= g.Rows {
						continue
					}
					if visited[ny*g.Cols+nx] || color(nx, ny) != color(x, y) {
						continue
					}
					walk(nx, ny)
				}
			}
		}
		cur = cur[:len(cur)-1]
		visited[y*g.Cols+x] = false
	}

	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			if color(x, y) < 0 {
				continue
			}
			walk(x, y)
			if len(best) >= maxSearchLen {
				return best
			}
		}
	}
	if len(best) < 3 {
		return nil
	}
	return best
}

// affordable returns the first item whose every cost is covered, provided the
// inventory has room for it.
func affordable(prices []catalogs.PriceDef, st *protocol.StateMsg) (string, bool) {
	room := len(st.Inventory.Slots) < st.Inventory.Capacity
	balance := map[string]int{}
	for _, c := range st.Currencies {
		balance[c.Code] = c.Amount
	}
	for _, p := range prices {
		held := false
		for _, s := range st.Inventory.Slots {
			if s.Item == p.ItemCode {
				held = true
				break
			}
		}
		if !room && !held {
			continue
		}
		ok := len(p.Costs) > 0
		for _, c := range p.Costs {
			if balance[c.Currency] < c.Amount {
				ok = false
				break
			}
		}
		if ok {
			return p.ItemCode, true
		}
	}
	return "", false
}
