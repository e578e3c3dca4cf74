package sessionstore

import (
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"gemkitchen.ai/internal/persistence/archive"
	"gemkitchen.ai/internal/persistence/indexdb"
	persistlog "gemkitchen.ai/internal/persistence/log"
	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/session"
)

type fakeMirror struct {
	mu    sync.Mutex
	paths []string
}

func (m *fakeMirror) Enqueue(p string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths = append(m.paths, p)
}

func newSession(t *testing.T, id string) *session.Session {
	t.Helper()
	cfg := session.Config{
		GridCols:     4,
		GridRows:     4,
		TotalColors:  3,
		Currencies:   []string{"red", "green", "yellow"},
		Tools:        []string{"stove"},
		MoveTimeCost: 5,
	}
	cats := &catalogs.Catalogs{
		Formulas: catalogs.ParseFormulaIndex("beef + stove * 2 = searedBeef", ""),
		Prices:   catalogs.DefaultPrices(),
	}
	mp := catalogs.MapData{ID: "m1", Orders: []string{"beef"}, InventorySlotAmount: 2, PlateSlotAmount: 1}
	s, err := session.New(id, cfg, cats, mp, rand.New(rand.NewSource(3)))
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	return s
}

func TestStore_CompletedWritesSnapshotArchiveAndResult(t *testing.T) {
	dataDir := t.TempDir()
	idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index", "sessions.sqlite"))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()

	mirror := &fakeMirror{}
	st := New(Options{DataDir: dataDir, Index: idx, Best: idx, Mirror: mirror})

	id := uuid.NewString()
	sess := newSession(t, id)
	events, closer := st.OpenEventLog(id)
	sess.SetEventLogger(events)

	sess.Economy().Grant("beef", 1)
	if !sess.PutOnPlate("beef", 0) {
		t.Fatalf("put on plate")
	}
	if res := sess.ClearPlate(0); !res.SessionComplete {
		t.Fatalf("expected completion: %+v", res)
	}

	best, ok := st.Completed(sess)
	if !ok || best != sess.TotalTime() {
		t.Fatalf("best=%v ok=%v", best, ok)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close events: %v", err)
	}

	snapPath, found := st.LatestSnapshot(id)
	if !found {
		t.Fatalf("expected a snapshot")
	}
	snap, err := snapshot.ReadSnapshot(snapPath)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if !snap.Complete || snap.Header.SessionID != id || snap.Header.Seq != sess.Seq() {
		t.Fatalf("snapshot header=%+v complete=%v", snap.Header, snap.Complete)
	}

	meta, err := archive.ReadMeta(filepath.Join(st.SessionDir(id), "archive", "meta.json"))
	if err != nil {
		t.Fatalf("archive meta: %v", err)
	}
	if meta.SessionID != id || meta.MapID != "m1" {
		t.Fatalf("meta=%+v", meta)
	}

	files, err := persistlog.EventFiles(st.SessionDir(id))
	if err != nil || len(files) != 1 {
		t.Fatalf("event files=%v err=%v", files, err)
	}

	mirror.mu.Lock()
	defer mirror.mu.Unlock()
	// snapshot, archived snapshot, meta.json, closed event segment
	if len(mirror.paths) != 4 {
		t.Fatalf("mirrored=%v", mirror.paths)
	}
}

func TestStore_LatestSnapshotPicksHighestSeq(t *testing.T) {
	st := New(Options{DataDir: t.TempDir()})
	id := uuid.NewString()
	sess := newSession(t, id)

	first, _, err := st.SaveSnapshot(sess)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	sess.Pause()
	sess.Resume()
	second, _, err := st.SaveSnapshot(sess)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct snapshot files")
	}
	if err := os.WriteFile(filepath.Join(filepath.Dir(first), "junk.snap.zst"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	got, ok := st.LatestSnapshot(id)
	if !ok || got != second {
		t.Fatalf("latest=%s ok=%v want %s", got, ok, second)
	}
	if _, ok := st.LatestSnapshot("../etc"); ok {
		t.Fatalf("invalid id must not resolve")
	}
}

func TestStore_CompletedWithoutIndex(t *testing.T) {
	st := New(Options{DataDir: t.TempDir()})
	sess := newSession(t, uuid.NewString())
	if _, ok := st.Completed(sess); ok {
		t.Fatalf("no best time without an index")
	}
	if _, ok := st.LatestSnapshot(sess.ID()); !ok {
		t.Fatalf("snapshot still written without an index")
	}
}
