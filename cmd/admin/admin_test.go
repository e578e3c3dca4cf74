package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gemkitchen.ai/internal/persistence/archive"
	"gemkitchen.ai/internal/persistence/indexdb"
	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/session"
)

func seedIndex(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	_ = idx.WriteEvent(session.EventEntry{Seq: 1, SessionID: "s1", MapID: "1", Kind: session.KindMatch})
	_ = idx.WriteEvent(session.EventEntry{Seq: 2, SessionID: "s1", MapID: "1", Kind: session.KindBuy})
	_ = idx.WriteEvent(session.EventEntry{Seq: 3, SessionID: "s1", MapID: "1", Kind: session.KindMatch})
	idx.RecordSnapshot("/data/sessions/s1/snapshots/3.snap.zst", snapshot.SnapshotV1{
		Header: snapshot.Header{SessionID: "s1", MapID: "1", Seq: 3}, TotalTime: 4, Complete: true,
	})
	idx.RecordResult(indexdb.Result{SessionID: "s1", MapID: "1", TotalTime: 4, Seq: 3})
	idx.RecordResult(indexdb.Result{SessionID: "s2", MapID: "2", TotalTime: 9, Seq: 5})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := idx.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestRunQuery(t *testing.T) {
	db := seedIndex(t)

	cases := []struct {
		what  string
		q     dbQuery
		lines int
		want  string
	}{
		{what: "results", lines: 2, want: `"session_id":"s1"`},
		{what: "results", q: dbQuery{mapID: "2"}, lines: 1, want: `"total_time":9`},
		{what: "snapshots", q: dbQuery{session: "s1"}, lines: 1, want: `"complete":true`},
		{what: "events", q: dbQuery{session: "s1", limit: 2}, lines: 2, want: `"kind":"match"`},
		{what: "kinds", q: dbQuery{session: "s1"}, lines: 2, want: `{"kind":"match","count":2}`},
	}
	for _, tc := range cases {
		t.Run(tc.what+"/"+tc.q.mapID+tc.q.session, func(t *testing.T) {
			var out bytes.Buffer
			if err := runQuery(db, tc.what, tc.q, &out); err != nil {
				t.Fatalf("runQuery: %v", err)
			}
			got := strings.TrimSpace(out.String())
			if n := len(strings.Split(got, "\n")); n != tc.lines {
				t.Fatalf("lines=%d want=%d:\n%s", n, tc.lines, got)
			}
			if !strings.Contains(got, tc.want) {
				t.Fatalf("output missing %s:\n%s", tc.want, got)
			}
		})
	}

	if err := runQuery(db, "events", dbQuery{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("events without session should fail")
	}
	if err := runQuery(db, "players", dbQuery{}, &bytes.Buffer{}); err == nil {
		t.Fatalf("unknown query should fail")
	}
}

func TestListSessions(t *testing.T) {
	data := t.TempDir()
	dir := filepath.Join(data, "sessions", "s1")
	snapPath := filepath.Join(dir, "snapshots", "7.snap.zst")
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, SessionID: "s1", MapID: "2", Seq: 7},
		TotalTime: 12.5,
		Complete:  true,
	}
	if err := snapshot.WriteSnapshot(snapPath, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	if _, _, ok, err := archive.ArchiveCompletedSession(dir, snapPath, snap); err != nil || !ok {
		t.Fatalf("archive: ok=%v err=%v", ok, err)
	}
	if err := os.MkdirAll(filepath.Join(data, "sessions", "s2"), 0o755); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := listSessions(data, &out); err != nil {
		t.Fatalf("listSessions: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%v", lines)
	}
	if lines[0] != "s1\tmap=2\tseq=7\ttotal_time=12.50\tcompleted=12.50" {
		t.Fatalf("s1 line=%q", lines[0])
	}
	if lines[1] != "s2\tmap=-\tseq=-\ttotal_time=-\tcompleted=-" {
		t.Fatalf("s2 line=%q", lines[1])
	}
}
