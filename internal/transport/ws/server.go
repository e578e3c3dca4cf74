package ws

import (
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/protocol"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/session"
	"gemkitchen.ai/internal/sim/tuning"
)

// Store persists sessions. *sessionstore.Store implements it.
type Store interface {
	Recorder
	OpenEventLog(id string) (session.EventLogger, io.Closer)
	SaveSnapshot(s *session.Session) (string, snapshot.SnapshotV1, error)
	LatestSnapshot(id string) (string, bool)
}

type Options struct {
	Catalogs *catalogs.Catalogs
	Tuning   tuning.Tuning
	Store    Store
	Metrics  *Metrics
	Logger   logrus.FieldLogger
}

// SessionInfo describes a live session for admin listings.
type SessionInfo struct {
	SessionID string `json:"session_id"`
	MapID     string `json:"map_id"`
	Remote    string `json:"remote"`
	StartedAt string `json:"started_at"`
}

type liveSession struct {
	runner *Runner
	info   SessionInfo
}

type Server struct {
	cats  *catalogs.Catalogs
	tune  tuning.Tuning
	store Store
	met   *Metrics
	log   logrus.FieldLogger
	val   *protocol.Validator

	upgrader websocket.Upgrader

	baseCtx    context.Context
	baseCancel context.CancelFunc
	handlers   sync.WaitGroup

	mu      sync.Mutex
	live    map[string]liveSession
	closing bool
}

func NewServer(opts Options) (*Server, error) {
	val, err := protocol.NewValidator()
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &Server{
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		cats:  opts.Catalogs,
		tune:  opts.Tuning,
		store: opts.Store,
		met:   opts.Metrics,
		log:   logger,
		val:   val,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		live: map[string]liveSession{},
	}, nil
}

// Runner returns the runner of a live session.
func (s *Server) Runner(id string) (*Runner, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ls, ok := s.live[id]
	return ls.runner, ok
}

func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	out := make([]SessionInfo, 0, len(s.live))
	for _, ls := range s.live {
		out = append(out, ls.info)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

// Shutdown stops accepting sessions, disconnects the live ones and waits until
// each has written its final snapshot or ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.baseCancel()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			http.Error(rw, "server shutting down", http.StatusServiceUnavailable)
			return
		}
		s.handlers.Add(1)
		s.mu.Unlock()
		defer s.handlers.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		log := s.log.WithField("remote", r.RemoteAddr)

		sess, resumed, ok := s.handshake(conn, log)
		if !ok {
			return
		}
		log = log.WithFields(logrus.Fields{"session": sess.ID(), "map": sess.MapID()})

		var closer io.Closer
		if s.store != nil {
			var events session.EventLogger
			events, closer = s.store.OpenEventLog(sess.ID())
			sess.SetEventLogger(events)
		}

		if err := s.greet(conn, sess, resumed); err != nil {
			if closer != nil {
				_ = closer.Close()
			}
			return
		}

		var rec Recorder
		if s.store != nil {
			rec = s.store
		}
		runner := NewRunner(RunnerConfig{
			TickRateHz:         s.tune.TickRateHz,
			DropSettle:         time.Duration(s.tune.DropSettleMs) * time.Millisecond,
			SnapshotEveryTicks: s.tune.SnapshotEveryTicks,
			Snapshots:          s.store,
		}, sess, rec, s.met, log)

		if !s.register(runner, sess, r.RemoteAddr) {
			writeJSON(conn, rejectAck("", protocol.ErrBusy, "session already connected"))
			if closer != nil {
				_ = closer.Close()
			}
			return
		}
		s.met.sessionOpened()
		log.WithField("resumed", resumed).Info("session started")

		ctx, cancel := context.WithCancel(s.baseCtx)
		go func() {
			if err := runner.Run(ctx); err != nil && err != context.Canceled {
				log.WithError(err).Warn("runner stopped")
			}
		}()

		// Unblock the reader when the session ends from our side.
		go func() {
			<-ctx.Done()
			if s.baseCtx.Err() != nil {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
			}
			_ = conn.Close()
		}()

		replies := make(chan []byte, 16)

		// Writer goroutine.
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-runner.Out():
				case b = <-replies:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			act, code, reason := s.decodeAct(msg)
			if code != "" {
				s.met.action(kindInvalid, code)
				if b, err := json.Marshal(rejectAck(act.ID, code, reason)); err == nil {
					sendLatest(replies, b)
				}
				continue
			}
			select {
			case runner.Inbox() <- act:
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				break
			}
		}

		// Cleanup.
		cancel()
		<-runner.Done()
		<-writerDone
		s.unregister(sess.ID())
		s.met.sessionClosed()
		if s.store != nil {
			if _, _, err := s.store.SaveSnapshot(sess); err != nil {
				log.WithError(err).Error("snapshot on disconnect")
			}
			_ = closer.Close()
		}
		log.Info("session closed")
	}
}

func (s *Server) decodeAct(msg []byte) (protocol.ActMsg, string, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.ActMsg{}, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeAct {
		return protocol.ActMsg{}, protocol.ErrProtoBadRequest, "expected ACT"
	}
	if base.ProtocolVersion != "" && base.ProtocolVersion != protocol.Version {
		return protocol.ActMsg{}, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	act, err := s.val.DecodeAct(msg)
	if err != nil {
		var partial protocol.ActMsg
		_ = json.Unmarshal(msg, &partial)
		return partial, protocol.ErrProtoBadRequest, err.Error()
	}
	return act, "", ""
}

func (s *Server) handshake(conn *websocket.Conn, log logrus.FieldLogger) (*session.Session, bool, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil, false, false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil, false, false
	}
	hello, err := s.val.DecodeHello(msg)
	if err != nil {
		writeJSON(conn, rejectAck("", protocol.ErrProtoBadRequest, err.Error()))
		return nil, false, false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil, false, false
	}

	mp, ok := s.cats.Maps.ByID[hello.MapID]
	if !ok {
		writeJSON(conn, rejectAck("", protocol.ErrMapNotFound, "unknown map "+hello.MapID))
		return nil, false, false
	}

	seed := hello.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	cfg := session.ConfigFromTuning(s.tune)

	if hello.ResumeSession != "" && s.store != nil {
		if path, found := s.store.LatestSnapshot(hello.ResumeSession); found {
			sess, err := resume(path, cfg, s.cats, mp, rng)
			if err == nil {
				return sess, true, true
			}
			log.WithError(err).WithField("snapshot", path).Warn("resume failed; starting fresh")
		}
	}

	sess, err := session.New(uuid.NewString(), cfg, s.cats, mp, rng)
	if err != nil {
		log.WithError(err).Error("new session")
		writeJSON(conn, rejectAck("", protocol.ErrInternal, "cannot start session"))
		return nil, false, false
	}
	return sess, false, true
}

func resume(path string, cfg session.Config, cats *catalogs.Catalogs, mp catalogs.MapData, rng *rand.Rand) (*session.Session, error) {
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, err
	}
	return session.Import(snap, cfg, cats, mp, rng)
}

// greet sends WELCOME followed by one CATALOG message per catalog.
func (s *Server) greet(conn *websocket.Conn, sess *session.Session, resumed bool) error {
	cfg := sess.Config()
	d := sess.Digests()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sess.ID(),
		MapID:           sess.MapID(),
		Resumed:         resumed,
		Params: protocol.SessionParams{
			TickRateHz:   s.tune.TickRateHz,
			GridCols:     cfg.GridCols,
			GridRows:     cfg.GridRows,
			TotalColors:  cfg.TotalColors,
			Currencies:   cfg.Currencies,
			Tools:        cfg.Tools,
			MoveTimeCost: cfg.MoveTimeCost,
			DropSettleMs: s.tune.DropSettleMs,
		},
		Catalogs: protocol.CatalogDigests{
			ToolFormulasDigest: d.Tools,
			ItemFormulasDigest: d.Items,
			PricesDigest:       d.Prices,
			MapsDigest:         s.cats.Maps.Digest,
			TuningDigest:       s.tune.Digest(),
		},
	}
	if err := writeJSON(conn, welcome); err != nil {
		return err
	}
	for _, c := range catalogMsgs(s.cats) {
		if err := writeJSON(conn, c); err != nil {
			return err
		}
	}
	return nil
}

func catalogMsgs(cats *catalogs.Catalogs) []protocol.CatalogMsg {
	prices := make([]catalogs.PriceDef, 0, len(cats.Prices.ByItem))
	for _, p := range cats.Prices.ByItem {
		prices = append(prices, p)
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].ItemCode < prices[j].ItemCode })

	mk := func(name, digest string, data any) protocol.CatalogMsg {
		return protocol.CatalogMsg{
			Type:            protocol.TypeCatalog,
			ProtocolVersion: protocol.Version,
			Name:            name,
			Digest:          digest,
			Part:            1,
			TotalParts:      1,
			Data:            data,
		}
	}
	return []protocol.CatalogMsg{
		mk("tool_formulas", cats.Formulas.ToolsDigest, cats.Formulas.ToolFormulas()),
		mk("item_formulas", cats.Formulas.ItemsDigest, cats.Formulas.ItemFormulas()),
		mk("prices", cats.Prices.Digest, prices),
	}
}

func (s *Server) register(r *Runner, sess *session.Session, remote string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.live[sess.ID()]; dup {
		return false
	}
	s.live[sess.ID()] = liveSession{
		runner: r,
		info: SessionInfo{
			SessionID: sess.ID(),
			MapID:     sess.MapID(),
			Remote:    remote,
			StartedAt: time.Now().UTC().Format(time.RFC3339),
		},
	}
	return true
}

func (s *Server) unregister(id string) {
	s.mu.Lock()
	delete(s.live, id)
	s.mu.Unlock()
}

func rejectAck(ref, code, message string) protocol.AckMsg {
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ref,
		Accepted:        false,
		Code:            code,
		Message:         message,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
