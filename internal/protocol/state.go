package protocol

// STATE (server -> client): the full session view.
type StateMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	MapID           string `json:"map_id"`
	Seq             uint64 `json:"seq"`

	Grid       GridObs       `json:"grid"`
	Inventory  InventoryObs  `json:"inventory"`
	Currencies []CurrencyObs `json:"currencies"`
	Tools      []ToolObs     `json:"tools"`
	Plates     [][]string    `json:"plates"`
	Orders     []string      `json:"orders"`

	TotalTime  float64 `json:"total_time"`
	Paused     bool    `json:"paused"`
	Complete   bool    `json:"complete"`
	Processing bool    `json:"processing"`

	// Drop is set on the STATE that follows a settle, for animation.
	Drop *DropObs `json:"drop,omitempty"`
}

type GridObs struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
	// Cells is row-major; -1 marks a cell waiting for refill.
	Cells []int `json:"cells"`
}

type InventoryObs struct {
	Capacity int         `json:"capacity"`
	Slots    []ItemStack `json:"slots"`
}

type ItemStack struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type CurrencyObs struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

type ToolObs struct {
	Code      string  `json:"code"`
	Item      string  `json:"item,omitempty"`
	Remaining float64 `json:"remaining"`
}

type DropObs struct {
	Moves  []MoveObs `json:"moves"`
	Filled [][2]int  `json:"filled"`
}

type MoveObs struct {
	X     int `json:"x"`
	FromY int `json:"from_y"`
	ToY   int `json:"to_y"`
}
