package session

import (
	"errors"
	"fmt"
	"math"

	"gemkitchen.ai/internal/sim/board"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/economy"
	"gemkitchen.ai/internal/sim/orders"
	"gemkitchen.ai/internal/sim/stations"
	"gemkitchen.ai/internal/sim/tuning"
)

type Config struct {
	GridCols    int
	GridRows    int
	TotalColors int

	// Currencies[c] is credited when a path of color c is matched.
	Currencies []string
	Tools      []string

	MoveTimeCost float64
}

func ConfigFromTuning(t tuning.Tuning) Config {
	return Config{
		GridCols:     t.GridCols,
		GridRows:     t.GridRows,
		TotalColors:  t.TotalColors,
		Currencies:   append([]string(nil), t.Currencies...),
		Tools:        append([]string(nil), t.Tools...),
		MoveTimeCost: t.MoveTimeCost,
	}
}

func (c Config) validate() error {
	if c.TotalColors <= 0 {
		return errors.New("total colors must be > 0")
	}
	if len(c.Currencies) < c.TotalColors {
		return fmt.Errorf("need a currency per color: %d currencies for %d colors", len(c.Currencies), c.TotalColors)
	}
	if c.MoveTimeCost < 0 {
		return errors.New("move time cost must be >= 0")
	}
	return nil
}

// MatchResult describes the credit a path earned.
type MatchResult struct {
	Color    int    `json:"color"`
	Currency string `json:"currency"`
	Amount   int    `json:"amount"`
}

// Session is one play-through of a map. It is not safe for concurrent use;
// all methods must be called from the goroutine that owns it.
type Session struct {
	id  string
	cfg Config
	mp  catalogs.MapData

	formulas *catalogs.FormulaIndex
	digests  Digests

	board    *board.Board
	econ     *economy.Economy
	stations *stations.Stations
	orders   *orders.Tracker

	totalTime  float64
	paused     bool
	processing bool

	seq    uint64
	events EventLogger

	// Event log failures since the last EventLogFailures call.
	eventFails int
	eventErr   error
}

// Digests identifies the catalogs a session was built from.
type Digests struct {
	Tools  string `json:"tools"`
	Items  string `json:"items"`
	Prices string `json:"prices"`
}

func New(id string, cfg Config, cats *catalogs.Catalogs, mp catalogs.MapData, rng board.Rand) (*Session, error) {
	if cats == nil || cats.Formulas == nil {
		return nil, errors.New("session: missing formula catalog")
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	for _, tp := range mp.Tools {
		if !containsCode(cfg.Tools, tp.Type) {
			return nil, fmt.Errorf("session: map %q places unknown tool %q", mp.ID, tp.Type)
		}
	}
	b, err := board.New(cfg.GridCols, cfg.GridRows, cfg.TotalColors, rng)
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	b.Initialize()

	s := &Session{
		id:       id,
		cfg:      cfg,
		mp:       mp,
		formulas: cats.Formulas,
		digests: Digests{
			Tools:  cats.Formulas.ToolsDigest,
			Items:  cats.Formulas.ItemsDigest,
			Prices: cats.Prices.Digest,
		},
		board:    b,
		econ:     economy.New(mp.InventorySlotAmount, cfg.Currencies, cats.Prices),
		stations: stations.New(cfg.Tools, cats.Formulas),
		orders:   orders.NewTracker(mp.Orders, mp.PlateSlotAmount, cats.Formulas),
	}
	return s, nil
}

func (s *Session) SetEventLogger(l EventLogger) { s.events = l }

func (s *Session) ID() string                   { return s.id }
func (s *Session) MapID() string                { return s.mp.ID }
func (s *Session) Config() Config               { return s.cfg }
func (s *Session) Digests() Digests             { return s.digests }
func (s *Session) Board() *board.Board          { return s.board }
func (s *Session) Economy() *economy.Economy    { return s.econ }
func (s *Session) Stations() *stations.Stations { return s.stations }
func (s *Session) Orders() *orders.Tracker      { return s.orders }
func (s *Session) Paused() bool                 { return s.paused }
func (s *Session) Complete() bool               { return s.orders.Complete() }

func (s *Session) Formulas() *catalogs.FormulaIndex { return s.formulas }

// Processing reports whether a match has begun and not yet settled.
func (s *Session) Processing() bool { return s.processing }

// TotalTime is the elapsed play time rounded to hundredths.
func (s *Session) TotalTime() float64 { return math.Round(s.totalTime*100) / 100 }

// BeginMatch consumes a valid path: it credits the path color's currency by
// the path length, charges the move time cost and clears the cells. The board
// is left with holes until Settle. While a match is in flight every other
// match is rejected.
func (s *Session) BeginMatch(path []board.Coord) (MatchResult, bool) {
	if s.processing || !s.board.ValidPath(path) {
		return MatchResult{}, false
	}
	s.processing = true

	color := s.board.Cell(path[0].X, path[0].Y).Color
	res := MatchResult{Color: color, Currency: s.cfg.Currencies[color], Amount: len(path)}
	s.econ.Earn(res.Currency, res.Amount)
	s.totalTime += s.cfg.MoveTimeCost
	s.board.ClearCells(path)

	s.emit(KindMatch, map[string]any{"path": coordPairs(path), "color": color, "currency": res.Currency, "amount": res.Amount})
	return res, true
}

// Settle drops and refills the board and releases the match guard. It is a
// no-op when no match is in flight.
func (s *Session) Settle() (board.Drop, bool) {
	if !s.processing {
		return board.Drop{}, false
	}
	d := s.board.ResolveGravityAndRefill()
	s.processing = false
	s.emit(KindSettle, map[string]any{"filled": len(d.Filled), "moved": len(d.Moves)})
	return d, true
}

// ResolvePath runs BeginMatch and Settle back to back.
func (s *Session) ResolvePath(path []board.Coord) (MatchResult, bool) {
	res, ok := s.BeginMatch(path)
	if !ok {
		return res, false
	}
	s.Settle()
	return res, true
}

// Advance moves play time forward by delta seconds. It does nothing while
// paused.
func (s *Session) Advance(delta float64) []stations.Crafted {
	if s.paused || delta <= 0 {
		return nil
	}
	s.totalTime += delta
	done := s.stations.Advance(s.econ, delta)
	for _, c := range done {
		s.emit(KindCraft, map[string]any{"tool": c.ToolCode, "item": c.ItemCode, "outputs": c.Outputs, "granted": c.Granted})
	}
	return done
}

func (s *Session) Use(toolCode, itemCode string) bool {
	if !s.stations.Use(s.econ, toolCode, itemCode) {
		return false
	}
	s.emit(KindUse, map[string]any{"tool": toolCode, "item": itemCode})
	return true
}

func (s *Session) Buy(itemCode string) bool {
	if !s.econ.Buy(itemCode) {
		return false
	}
	s.emit(KindBuy, map[string]any{"item": itemCode})
	return true
}

func (s *Session) PutOnPlate(itemCode string, plate int) bool {
	if !s.orders.PutOnPlate(s.econ, itemCode, plate) {
		return false
	}
	contents, _ := s.orders.Plate(plate)
	s.emit(KindPlatePut, map[string]any{"item": itemCode, "plate": plate, "contents": contents})
	return true
}

// ClearPlate serves a plate. When it empties the order list the session is
// paused and the result carries SessionComplete.
func (s *Session) ClearPlate(plate int) orders.ClearResult {
	res := s.orders.ClearPlate(s.econ, plate)
	if !res.Cleared {
		return res
	}
	s.emit(KindPlateClear, map[string]any{"plate": plate, "fulfilled": res.Fulfilled, "returned": res.Returned})
	if res.SessionComplete {
		s.paused = true
		s.emit(KindComplete, map[string]any{"total_time": s.TotalTime()})
	}
	return res
}

func (s *Session) Pause() {
	if s.paused {
		return
	}
	s.paused = true
	s.emit(KindPause, nil)
}

// Resume clears the pause flag. A completed session stays paused.
func (s *Session) Resume() bool {
	if s.orders.Complete() {
		return false
	}
	if s.paused {
		s.paused = false
		s.emit(KindResume, nil)
	}
	return true
}

// Reset starts the map over: inventory, tools, plates, currencies and time are
// cleared, orders are restored and the board is shuffled.
func (s *Session) Reset() {
	s.econ.Inventory.Clear()
	s.econ.Wallet.Reset()
	s.stations.Reset()
	s.orders.Reset()
	s.totalTime = 0
	s.paused = false
	if s.processing {
		s.board.ResolveGravityAndRefill()
		s.processing = false
	}
	s.board.Shuffle()
	s.emit(KindReset, nil)
}

func (s *Session) emit(kind string, data map[string]any) {
	s.seq++
	if s.events == nil {
		return
	}
	err := s.events.WriteEvent(EventEntry{
		Seq:       s.seq,
		SessionID: s.id,
		MapID:     s.mp.ID,
		Kind:      kind,
		TotalTime: s.TotalTime(),
		Data:      data,
	})
	if err != nil {
		s.eventFails++
		if s.eventErr == nil {
			s.eventErr = err
		}
	}
}

// EventLogFailures returns how many entries the event logger rejected since
// the previous call, with the first error among them, and resets both.
func (s *Session) EventLogFailures() (int, error) {
	n, err := s.eventFails, s.eventErr
	s.eventFails, s.eventErr = 0, nil
	return n, err
}

// Seq is the number of accepted mutations so far.
func (s *Session) Seq() uint64 { return s.seq }

func coordPairs(path []board.Coord) [][2]int {
	out := make([][2]int, len(path))
	for i, c := range path {
		out[i] = [2]int{c.X, c.Y}
	}
	return out
}

func containsCode(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
