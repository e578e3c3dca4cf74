package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeCatalog  = "CATALOG"
	TypeAct      = "ACT"
	TypeAck      = "ACK"
	TypeState    = "STATE"
	TypeComplete = "COMPLETE"
)

// ACT kinds.
const (
	ActPath       = "path"
	ActUse        = "use"
	ActBuy        = "buy"
	ActPlatePut   = "plate_put"
	ActPlateClear = "plate_clear"
	ActPause      = "pause"
	ActResume     = "resume"
	ActReset      = "reset"
)

var actKinds = map[string]struct{}{
	ActPath: {}, ActUse: {}, ActBuy: {}, ActPlatePut: {},
	ActPlateClear: {}, ActPause: {}, ActResume: {}, ActReset: {},
}

// IsActKind reports whether kind is one of the ACT kinds above.
func IsActKind(kind string) bool {
	_, ok := actKinds[kind]
	return ok
}

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
