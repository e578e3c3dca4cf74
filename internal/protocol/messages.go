package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MapID           string `json:"map_id"`
	PlayerName      string `json:"player_name,omitempty"`
	// Seed fixes the board's random source; zero picks one.
	Seed int64 `json:"seed,omitempty"`
	// ResumeSession continues a session from its latest snapshot.
	ResumeSession string `json:"resume_session,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	SessionID       string         `json:"session_id"`
	MapID           string         `json:"map_id"`
	Resumed         bool           `json:"resumed,omitempty"`
	Params          SessionParams  `json:"params"`
	Catalogs        CatalogDigests `json:"catalogs"`
}

type SessionParams struct {
	TickRateHz   int      `json:"tick_rate_hz"`
	GridCols     int      `json:"grid_cols"`
	GridRows     int      `json:"grid_rows"`
	TotalColors  int      `json:"total_colors"`
	Currencies   []string `json:"currencies"`
	Tools        []string `json:"tools"`
	MoveTimeCost float64  `json:"move_time_cost"`
	DropSettleMs int      `json:"drop_settle_ms"`
}

type CatalogDigests struct {
	ToolFormulasDigest string `json:"tool_formulas_digest"`
	ItemFormulasDigest string `json:"item_formulas_digest"`
	PricesDigest       string `json:"prices_digest"`
	MapsDigest         string `json:"maps_digest,omitempty"`
	TuningDigest       string `json:"tuning_digest,omitempty"`
}

// CATALOG (server -> client): a chunk of catalog data.
// Each catalog is sent as a single part.
type CatalogMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	Name            string      `json:"name"`   // "tool_formulas", "item_formulas", "prices"
	Digest          string      `json:"digest"` // sha256 hex
	Part            int         `json:"part"`
	TotalParts      int         `json:"total_parts"`
	Data            interface{} `json:"data"`
}

// ACT (client -> server): one player action.
type ActMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              string   `json:"id,omitempty"`
	Kind            string   `json:"kind"`
	Path            [][2]int `json:"path,omitempty"`
	Tool            string   `json:"tool,omitempty"`
	Item            string   `json:"item,omitempty"`
	Plate           *int     `json:"plate,omitempty"`
}

type AckMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	AckFor          string  `json:"ack_for"`
	Kind            string  `json:"kind,omitempty"`
	Accepted        bool    `json:"accepted"`
	Code            string  `json:"code,omitempty"`
	Message         string  `json:"message,omitempty"`
	TotalTime       float64 `json:"total_time"`
}

// COMPLETE (server -> client): the last order was served.
type CompleteMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	MapID           string  `json:"map_id"`
	TotalTime       float64 `json:"total_time"`
	BestTime        float64 `json:"best_time,omitempty"`
}
