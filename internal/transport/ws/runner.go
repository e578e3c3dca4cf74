package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/board"
	"gemkitchen.ai/internal/sim/session"
)

// Recorder persists a completed session and reports the map's best time.
// It is called on the runner goroutine.
type Recorder interface {
	Completed(s *session.Session) (best float64, ok bool)
}

// Snapshotter writes a live session's snapshot. *sessionstore.Store implements it.
type Snapshotter interface {
	SaveSnapshot(s *session.Session) (string, snapshot.SnapshotV1, error)
}

type RunnerConfig struct {
	TickRateHz int
	DropSettle time.Duration

	// SnapshotEveryTicks saves through Snapshots on this cadence when the
	// session changed since the last save. 0 disables it.
	SnapshotEveryTicks int
	Snapshots          Snapshotter
}

type watchRequest struct {
	id  string
	out chan []byte
}

// Runner owns one Session. Every mutation happens on the Run goroutine; the
// connection only feeds the inbox and drains Out.
type Runner struct {
	cfg  RunnerConfig
	sess *session.Session
	rec  Recorder
	met  *Metrics
	log  logrus.FieldLogger

	inbox   chan protocol.ActMsg
	out     chan []byte
	watch   chan watchRequest
	unwatch chan string
	done    chan struct{}

	watchers  map[string]chan []byte
	settle    *time.Timer
	settleC   <-chan time.Time
	completed bool

	ticks    int
	savedSeq uint64
	savedAt  float64
}

func NewRunner(cfg RunnerConfig, sess *session.Session, rec Recorder, met *Metrics, logger logrus.FieldLogger) *Runner {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 20
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Runner{
		cfg:      cfg,
		sess:     sess,
		rec:      rec,
		met:      met,
		log:      logger.WithFields(logrus.Fields{"session": sess.ID(), "map": sess.MapID()}),
		inbox:    make(chan protocol.ActMsg, 64),
		out:      make(chan []byte, 256),
		watch:    make(chan watchRequest, 8),
		unwatch:  make(chan string, 8),
		done:     make(chan struct{}),
		watchers: map[string]chan []byte{},
	}
}

func (r *Runner) Inbox() chan<- protocol.ActMsg { return r.inbox }
func (r *Runner) Out() <-chan []byte            { return r.out }
func (r *Runner) Done() <-chan struct{}         { return r.done }
func (r *Runner) SessionID() string             { return r.sess.ID() }

// Watch subscribes a read-only observer to STATE broadcasts.
func (r *Runner) Watch(id string, out chan []byte) bool {
	select {
	case r.watch <- watchRequest{id: id, out: out}:
		return true
	case <-r.done:
		return false
	}
}

func (r *Runner) Unwatch(id string) {
	select {
	case r.unwatch <- id:
	case <-r.done:
	}
}

// Run drives the session until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer close(r.done)
	interval := time.Second / time.Duration(r.cfg.TickRateHz)
	dt := interval.Seconds()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer r.stopSettle()

	r.savedSeq, r.savedAt = r.sess.Seq(), r.sess.TotalTime()
	r.publishState(nil)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case act := <-r.inbox:
			r.handle(ctx, act)
			r.reportEventLog()
		case <-r.settleC:
			r.settleC = nil
			r.settle = nil
			if d, ok := r.sess.Settle(); ok {
				r.publishState(session.DropObs(d))
			}
		case <-ticker.C:
			crafted := r.sess.Advance(dt)
			for _, c := range crafted {
				r.met.craft(c.ToolCode)
			}
			if len(crafted) > 0 {
				r.publishState(nil)
			}
			r.reportEventLog()
			r.ticks++
			if n := r.cfg.SnapshotEveryTicks; n > 0 && r.ticks%n == 0 {
				r.snapshot()
			}
		case w := <-r.watch:
			r.watchers[w.id] = w.out
			if b, err := json.Marshal(r.sess.State()); err == nil {
				sendLatest(w.out, b)
			}
		case id := <-r.unwatch:
			delete(r.watchers, id)
		}
	}
}

func (r *Runner) handle(ctx context.Context, act protocol.ActMsg) {
	code, msg := r.apply(act)
	r.met.action(act.Kind, code)
	ack := protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          act.ID,
		Kind:            act.Kind,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		TotalTime:       r.sess.TotalTime(),
	}
	r.send(ctx, ack)
	if code != "" {
		return
	}
	if r.completed {
		r.completed = false
		r.complete(ctx)
	}

	// A path leaves holes that settle later; everything else is final now.
	r.publishState(nil)
	if act.Kind == protocol.ActPath && r.sess.Processing() {
		if r.cfg.DropSettle <= 0 {
			if d, ok := r.sess.Settle(); ok {
				r.publishState(session.DropObs(d))
			}
		} else {
			r.settle = time.NewTimer(r.cfg.DropSettle)
			r.settleC = r.settle.C
		}
	}
}

// apply runs one action against the session and returns the rejection code.
func (r *Runner) apply(act protocol.ActMsg) (code, message string) {
	s := r.sess
	switch act.Kind {
	case protocol.ActPause, protocol.ActResume, protocol.ActReset:
	default:
		if s.Complete() {
			return protocol.ErrPaused, "session complete"
		}
		if s.Paused() {
			return protocol.ErrPaused, "session paused"
		}
	}

	switch act.Kind {
	case protocol.ActPath:
		if s.Processing() {
			return protocol.ErrBusy, "board is settling"
		}
		path := make([]board.Coord, len(act.Path))
		for i, p := range act.Path {
			path[i] = board.Coord{X: p[0], Y: p[1]}
		}
		res, ok := s.BeginMatch(path)
		if !ok {
			return protocol.ErrInvalidPath, "path must be adjacent, unique and one color"
		}
		r.met.match(res.Currency, res.Amount)
		return "", ""

	case protocol.ActUse:
		t, ok := s.Stations().Tool(act.Tool)
		if !ok {
			return protocol.ErrInvalidTarget, "unknown tool"
		}
		if t.Active() {
			return protocol.ErrBusy, "tool is working"
		}
		if !s.Use(act.Tool, act.Item) {
			return protocol.ErrNoResource, "no formula or item missing"
		}
		return "", ""

	case protocol.ActBuy:
		if _, ok := s.Economy().Price(act.Item); !ok {
			return protocol.ErrInvalidTarget, "item not for sale"
		}
		if !s.Buy(act.Item) {
			return protocol.ErrNoResource, "cannot afford or inventory full"
		}
		return "", ""

	case protocol.ActPlatePut:
		if act.Plate == nil || *act.Plate < 0 || *act.Plate >= s.Orders().PlateCount() {
			return protocol.ErrInvalidTarget, "no such plate"
		}
		if !s.PutOnPlate(act.Item, *act.Plate) {
			return protocol.ErrNoResource, "item not in inventory"
		}
		return "", ""

	case protocol.ActPlateClear:
		if act.Plate == nil || *act.Plate < 0 || *act.Plate >= s.Orders().PlateCount() {
			return protocol.ErrInvalidTarget, "no such plate"
		}
		res := s.ClearPlate(*act.Plate)
		if !res.Cleared {
			return protocol.ErrInvalidTarget, "plate is empty"
		}
		r.completed = res.SessionComplete
		return "", ""

	case protocol.ActPause:
		s.Pause()
		return "", ""

	case protocol.ActResume:
		if !s.Resume() {
			return protocol.ErrInvalidTarget, "session complete"
		}
		return "", ""

	case protocol.ActReset:
		r.stopSettle()
		s.Reset()
		return "", ""
	}
	return protocol.ErrBadRequest, "unknown kind"
}

func (r *Runner) complete(ctx context.Context) {
	r.stopSettle()
	if r.sess.Processing() {
		r.sess.Settle()
	}
	total := r.sess.TotalTime()
	r.met.completed(r.sess.MapID(), total)
	msg := protocol.CompleteMsg{
		Type:            protocol.TypeComplete,
		ProtocolVersion: protocol.Version,
		SessionID:       r.sess.ID(),
		MapID:           r.sess.MapID(),
		TotalTime:       total,
	}
	if r.rec != nil {
		if best, ok := r.rec.Completed(r.sess); ok {
			msg.BestTime = best
		}
	}
	r.log.WithField("total_time", total).Info("session complete")
	r.send(ctx, msg)
}

// snapshot saves the session if anything moved since the previous save.
func (r *Runner) snapshot() {
	if r.cfg.Snapshots == nil {
		return
	}
	seq, total := r.sess.Seq(), r.sess.TotalTime()
	if seq == r.savedSeq && total == r.savedAt {
		return
	}
	path, _, err := r.cfg.Snapshots.SaveSnapshot(r.sess)
	if err != nil {
		r.log.WithError(err).Error("periodic snapshot")
		return
	}
	r.savedSeq, r.savedAt = seq, total
	r.log.WithField("path", path).Debug("snapshot saved")
}

func (r *Runner) reportEventLog() {
	if n, err := r.sess.EventLogFailures(); n > 0 {
		r.log.WithError(err).WithField("failed", n).Error("event log write failed")
	}
}

func (r *Runner) stopSettle() {
	if r.settle != nil {
		r.settle.Stop()
	}
	r.settle = nil
	r.settleC = nil
}

func (r *Runner) publishState(drop *protocol.DropObs) {
	st := r.sess.State()
	st.Drop = drop
	b, err := json.Marshal(st)
	if err != nil {
		r.log.WithError(err).Error("encode state")
		return
	}
	r.sendBytes(context.Background(), b)
	for _, w := range r.watchers {
		sendLatest(w, b)
	}
}

func (r *Runner) send(ctx context.Context, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		r.log.WithError(err).Error("encode message")
		return
	}
	r.sendBytes(ctx, b)
}

// sendBytes never blocks the loop for long: a client that stops reading
// loses messages and will resync from the next STATE.
func (r *Runner) sendBytes(ctx context.Context, b []byte) {
	select {
	case r.out <- b:
		return
	default:
	}
	timer := time.NewTimer(50 * time.Millisecond)
	defer timer.Stop()
	select {
	case r.out <- b:
	case <-timer.C:
		r.log.Warn("client queue full; dropping message")
	case <-ctx.Done():
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
