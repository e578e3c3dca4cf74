package session

import (
	"fmt"

	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/board"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/economy"
	"gemkitchen.ai/internal/sim/stations"
)

// State builds the full client view. It never mutates the session.
func (s *Session) State() protocol.StateMsg {
	st := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		SessionID:       s.id,
		MapID:           s.mp.ID,
		Seq:             s.seq,
		Grid: protocol.GridObs{
			Cols:  s.board.Cols(),
			Rows:  s.board.Rows(),
			Cells: s.board.Colors(),
		},
		Inventory: protocol.InventoryObs{
			Capacity: s.econ.Inventory.Capacity(),
			Slots:    []protocol.ItemStack{},
		},
		Plates:     s.orders.Plates(),
		Orders:     s.orders.Orders(),
		TotalTime:  s.TotalTime(),
		Paused:     s.paused,
		Complete:   s.orders.Complete(),
		Processing: s.processing,
	}
	for _, sl := range s.econ.Inventory.Slots() {
		st.Inventory.Slots = append(st.Inventory.Slots, protocol.ItemStack{Item: sl.ItemCode, Count: sl.Amount})
	}
	for _, b := range s.econ.Wallet.Balances() {
		st.Currencies = append(st.Currencies, protocol.CurrencyObs{Code: b.Code, Amount: b.Amount})
	}
	for _, t := range s.stations.Tools() {
		st.Tools = append(st.Tools, protocol.ToolObs{Code: t.Code, Item: t.ItemCode, Remaining: t.RemainingActiveTime})
	}
	if st.Orders == nil {
		st.Orders = []string{}
	}
	return st
}

// DropObs converts a settle report for the client.
func DropObs(d board.Drop) *protocol.DropObs {
	out := &protocol.DropObs{Moves: []protocol.MoveObs{}, Filled: [][2]int{}}
	for _, m := range d.Moves {
		out.Moves = append(out.Moves, protocol.MoveObs{X: m.X, FromY: m.FromY, ToY: m.ToY})
	}
	for _, c := range d.Filled {
		out.Filled = append(out.Filled, [2]int{c.X, c.Y})
	}
	return out
}

// ExportSnapshot captures everything needed to resume the session.
func (s *Session) ExportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:   snapshot.Version,
			SessionID: s.id,
			MapID:     s.mp.ID,
			Seq:       s.seq,
		},
		GridCols:          s.board.Cols(),
		GridRows:          s.board.Rows(),
		TotalColors:       s.board.NumColors(),
		Cells:             s.board.Colors(),
		InventoryCapacity: s.econ.Inventory.Capacity(),
		Plates:            s.orders.Plates(),
		Orders:            s.orders.Orders(),
		Digests: snapshot.CatalogsV1{
			Tools:  s.digests.Tools,
			Items:  s.digests.Items,
			Prices: s.digests.Prices,
		},
		TotalTime: s.totalTime,
		Paused:    s.paused,
		Complete:  s.orders.Complete(),
	}
	for _, sl := range s.econ.Inventory.Slots() {
		snap.Inventory = append(snap.Inventory, snapshot.SlotV1{Item: sl.ItemCode, Amount: sl.Amount})
	}
	for _, b := range s.econ.Wallet.Balances() {
		snap.Currencies = append(snap.Currencies, snapshot.BalanceV1{Code: b.Code, Amount: b.Amount})
	}
	for _, t := range s.stations.Tools() {
		snap.Tools = append(snap.Tools, snapshot.ToolV1{Code: t.Code, Item: t.ItemCode, Remaining: t.RemainingActiveTime})
	}
	return snap
}

// Import rebuilds a session from a snapshot against the current catalogs.
// Cells left empty by an unsettled match are refilled.
func Import(snap snapshot.SnapshotV1, cfg Config, cats *catalogs.Catalogs, mp catalogs.MapData, rng board.Rand) (*Session, error) {
	if snap.Header.MapID != mp.ID {
		return nil, fmt.Errorf("session: snapshot map %q does not match %q", snap.Header.MapID, mp.ID)
	}
	if snap.GridCols != cfg.GridCols || snap.GridRows != cfg.GridRows || snap.TotalColors != cfg.TotalColors {
		return nil, fmt.Errorf("session: snapshot grid %dx%d/%d does not match config %dx%d/%d",
			snap.GridCols, snap.GridRows, snap.TotalColors, cfg.GridCols, cfg.GridRows, cfg.TotalColors)
	}
	s, err := New(snap.Header.SessionID, cfg, cats, mp, rng)
	if err != nil {
		return nil, err
	}
	if err := s.board.Load(snap.Cells); err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if s.board.EmptyCount() > 0 {
		s.board.ResolveGravityAndRefill()
	}

	slots := make([]economy.Slot, 0, len(snap.Inventory))
	for _, sl := range snap.Inventory {
		slots = append(slots, economy.Slot{ItemCode: sl.Item, Amount: sl.Amount})
	}
	s.econ.Inventory.Load(slots)

	balances := make([]economy.Balance, 0, len(snap.Currencies))
	for _, b := range snap.Currencies {
		balances = append(balances, economy.Balance{Code: b.Code, Amount: b.Amount})
	}
	s.econ.Wallet.Load(balances)

	tools := make([]stations.Tool, 0, len(snap.Tools))
	for _, t := range snap.Tools {
		tools = append(tools, stations.Tool{Code: t.Code, ItemCode: t.Item, RemainingActiveTime: t.Remaining})
	}
	s.stations.Load(tools)

	s.orders.Load(snap.Orders, snap.Plates, snap.Complete)
	s.totalTime = snap.TotalTime
	s.paused = snap.Paused || snap.Complete
	s.seq = snap.Header.Seq
	return s, nil
}
