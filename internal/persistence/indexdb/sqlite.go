package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/session"
	"gemkitchen.ai/internal/sim/tuning"
)

// Result is one completed session: the completion-time metric.
type Result struct {
	SessionID  string  `json:"session_id"`
	MapID      string  `json:"map_id"`
	TotalTime  float64 `json:"total_time"`
	Seq        uint64  `json:"seq"`
	RecordedAt string  `json:"recorded_at"`
}

// Stats exposes queue health for metrics.
type Stats struct {
	QueueDepth    int
	QueueCapacity int

	DropEventTotal    uint64
	DropSnapshotTotal uint64
	DropResultTotal   uint64
}

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	// sendMu orders sends on ch against close(ch).
	sendMu sync.RWMutex
	closed atomic.Bool

	dropEvent    atomic.Uint64
	dropSnapshot atomic.Uint64
	dropResult   atomic.Uint64
}

type reqKind int

const (
	reqEvent reqKind = iota + 1
	reqSnapshot
	reqResult
	reqFlush
)

type req struct {
	kind reqKind

	event    session.EventEntry
	snapshot snapshotRow
	result   Result
	done     chan struct{}
}

type snapshotRow struct {
	SessionID string
	Seq       uint64
	MapID     string
	Path      string
	TotalTime float64
	Complete  bool
}

var ErrClosed = errors.New("index closed")

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection for the writer goroutine, one for readers (WAL).
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS events (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			map_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			total_time REAL NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_kind ON events(kind, session_id);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			map_id TEXT NOT NULL,
			path TEXT NOT NULL,
			total_time REAL NOT NULL,
			complete INTEGER NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			session_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			map_id TEXT NOT NULL,
			total_time REAL NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (session_id, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_results_map_time ON results(map_id, total_time);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.sendMu.Lock()
		s.closed.Store(true)
		close(s.ch)
		s.sendMu.Unlock()
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEventTotal:    s.dropEvent.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropResultTotal:   s.dropResult.Load(),
	}
}

// WriteEvent implements session.EventLogger. Entries are dropped when the
// writer falls behind; the JSONL logs remain the source of truth.
func (s *SQLiteIndex) WriteEvent(entry session.EventEntry) error {
	if s == nil {
		return nil
	}
	s.trySend(req{kind: reqEvent, event: entry}, &s.dropEvent)
	return nil
}

// trySend queues r without blocking, counting it in drops when the queue is
// full. Sends after Close are ignored.
func (s *SQLiteIndex) trySend(r req, drops *atomic.Uint64) {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		SessionID: snap.Header.SessionID,
		Seq:       snap.Header.Seq,
		MapID:     snap.Header.MapID,
		Path:      path,
		TotalTime: snap.TotalTime,
		Complete:  snap.Complete,
	}
	s.trySend(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordResult stores a completion time. A completion is keyed by session and
// seq, so a replayed write is ignored while a run after reset is kept.
func (s *SQLiteIndex) RecordResult(r Result) {
	if s == nil || s.closed.Load() {
		return
	}
	if r.SessionID == "" || r.MapID == "" {
		return
	}
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.trySend(req{kind: reqResult, result: r}, &s.dropResult)
}

// Flush waits until every request queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil {
		return ErrClosed
	}
	done := make(chan struct{})
	s.sendMu.RLock()
	if s.closed.Load() {
		s.sendMu.RUnlock()
		return ErrClosed
	}
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		s.sendMu.RUnlock()
		return ctx.Err()
	}
	s.sendMu.RUnlock()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BestTime returns the lowest recorded completion time for mapID.
func (s *SQLiteIndex) BestTime(ctx context.Context, mapID string) (float64, bool, error) {
	if err := s.Flush(ctx); err != nil {
		return 0, false, err
	}
	var best sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(total_time) FROM results WHERE map_id=?`, mapID).Scan(&best)
	if err != nil {
		return 0, false, err
	}
	return best.Float64, best.Valid, nil
}

// Results lists the fastest completions for mapID.
func (s *SQLiteIndex) Results(ctx context.Context, mapID string, limit int) ([]Result, error) {
	if err := s.Flush(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id,map_id,total_time,seq,recorded_at FROM results WHERE map_id=? ORDER BY total_time ASC, recorded_at ASC LIMIT ?`,
		mapID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Result
	for rows.Next() {
		var r Result
		var seq int64
		if err := rows.Scan(&r.SessionID, &r.MapID, &r.TotalTime, &seq, &r.RecordedAt); err != nil {
			return nil, err
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil || cats == nil {
		return nil
	}
	rows := catalogRows(configDir, cats, tune)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.Exec(r.name, r.digest, string(r.data), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

type catalogRow struct {
	name   string
	digest string
	data   []byte
}

// catalogRows collects the raw catalog sources plus the tuning actually applied.
func catalogRows(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) []catalogRow {
	var rows []catalogRow
	read := func(name, digest, path string) {
		if configDir == "" || digest == "" {
			return
		}
		b, err := os.ReadFile(filepath.Join(configDir, path))
		if err != nil || len(b) == 0 {
			return
		}
		if name != "prices" {
			// Formula texts are stored as a JSON string.
			b, _ = json.Marshal(string(b))
		}
		rows = append(rows, catalogRow{name: name, digest: digest, data: b})
	}
	if cats.Formulas != nil {
		read("tool_formulas", cats.Formulas.ToolsDigest, filepath.Join("formulas", "tools.txt"))
		read("item_formulas", cats.Formulas.ItemsDigest, filepath.Join("formulas", "items.txt"))
	}
	read("prices", cats.Prices.Digest, "prices.json")

	if len(cats.Maps.ByID) > 0 {
		if b, err := json.Marshal(cats.Maps.ByID); err == nil {
			rows = append(rows, catalogRow{name: "maps", digest: cats.Maps.Digest, data: b})
		}
	}
	if b, err := json.Marshal(tune); err == nil {
		rows = append(rows, catalogRow{name: "tuning", digest: tune.Digest(), data: b})
	}
	return rows
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEvent, _ := s.db.Prepare(`INSERT OR REPLACE INTO events(session_id,seq,map_id,kind,total_time,raw_json) VALUES(?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(session_id,seq,map_id,path,total_time,complete) VALUES(?,?,?,?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR IGNORE INTO results(session_id,map_id,total_time,seq,recorded_at) VALUES(?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertEvent, insertSnapshot, insertResult} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		case r, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			if r.kind == reqFlush {
				commit()
				close(r.done)
				continue
			}
			begin()
			if tx == nil {
				continue
			}
			switch r.kind {
			case reqEvent:
				e := r.event
				raw, _ := json.Marshal(e)
				exec(insertEvent, e.SessionID, int64(e.Seq), e.MapID, e.Kind, e.TotalTime, string(raw))
			case reqSnapshot:
				sn := r.snapshot
				exec(insertSnapshot, sn.SessionID, int64(sn.Seq), sn.MapID, sn.Path, sn.TotalTime, sn.Complete)
			case reqResult:
				re := r.result
				exec(insertResult, re.SessionID, re.MapID, re.TotalTime, int64(re.Seq), re.RecordedAt)
			}
			if opCount >= commitEvery {
				commit()
			}
		}
	}
}
