package session

// Event kinds written to the EventLogger.
const (
	KindMatch      = "match"
	KindSettle     = "settle"
	KindCraft      = "craft"
	KindUse        = "use"
	KindBuy        = "buy"
	KindPlatePut   = "plate_put"
	KindPlateClear = "plate_clear"
	KindComplete   = "complete"
	KindPause      = "pause"
	KindResume     = "resume"
	KindReset      = "reset"
)

// EventLogger receives one entry per accepted mutation. Implemented in
// internal/persistence/*.
type EventLogger interface {
	WriteEvent(entry EventEntry) error
}

type EventEntry struct {
	Seq       uint64         `json:"seq"`
	SessionID string         `json:"session_id"`
	MapID     string         `json:"map_id"`
	Kind      string         `json:"kind"`
	TotalTime float64        `json:"total_time"`
	Data      map[string]any `json:"data,omitempty"`
}

type multiLogger []EventLogger

// MultiLogger fans entries out to every non-nil logger. The first error is
// returned after all loggers have been called.
func MultiLogger(loggers ...EventLogger) EventLogger {
	var m multiLogger
	for _, l := range loggers {
		if l != nil {
			m = append(m, l)
		}
	}
	return m
}

func (m multiLogger) WriteEvent(e EventEntry) error {
	var first error
	for _, l := range m {
		if err := l.WriteEvent(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
