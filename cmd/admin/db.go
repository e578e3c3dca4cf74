package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type dbQuery struct {
	session string
	mapID   string
	limit   int
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	dbPath := fs.String("db", "", "sqlite db path (default: <data>/index/sessions.sqlite)")
	var q dbQuery
	fs.StringVar(&q.session, "session", "", "session_id filter (snapshots, events, kinds)")
	fs.StringVar(&q.mapID, "map", "", "map_id filter (results)")
	fs.IntVar(&q.limit, "limit", 20, "result limit")
	_ = fs.Parse(args)

	what := "results"
	if fs.NArg() > 0 {
		what = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		path = filepath.Join(*dataDir, "index", "sessions.sqlite")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := runQuery(db, what, q, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "query:", err)
		os.Exit(1)
	}
}

// runQuery prints one json object per row of the named index query.
func runQuery(db *sql.DB, what string, q dbQuery, out io.Writer) error {
	if q.limit <= 0 {
		q.limit = 20
	}
	enc := json.NewEncoder(out)

	switch what {
	case "results":
		rows, err := db.Query(`SELECT session_id,map_id,total_time,seq,recorded_at FROM results
			WHERE (?='' OR map_id=?) ORDER BY total_time ASC LIMIT ?`, q.mapID, q.mapID, q.limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SessionID  string  `json:"session_id"`
				MapID      string  `json:"map_id"`
				TotalTime  float64 `json:"total_time"`
				Seq        int64   `json:"seq"`
				RecordedAt string  `json:"recorded_at"`
			}
			if err := rows.Scan(&r.SessionID, &r.MapID, &r.TotalTime, &r.Seq, &r.RecordedAt); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "snapshots":
		rows, err := db.Query(`SELECT session_id,seq,map_id,path,total_time,complete FROM snapshots
			WHERE (?='' OR session_id=?) ORDER BY seq DESC LIMIT ?`, q.session, q.session, q.limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				SessionID string  `json:"session_id"`
				Seq       int64   `json:"seq"`
				MapID     string  `json:"map_id"`
				Path      string  `json:"path"`
				TotalTime float64 `json:"total_time"`
				Complete  bool    `json:"complete"`
			}
			if err := rows.Scan(&r.SessionID, &r.Seq, &r.MapID, &r.Path, &r.TotalTime, &r.Complete); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "events":
		if q.session == "" {
			return fmt.Errorf("events needs -session")
		}
		rows, err := db.Query(`SELECT raw_json FROM events WHERE session_id=? ORDER BY seq DESC LIMIT ?`, q.session, q.limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw string
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			fmt.Fprintln(out, raw)
		}
		return rows.Err()

	case "kinds":
		rows, err := db.Query(`SELECT kind, COUNT(*) FROM events WHERE (?='' OR session_id=?) GROUP BY kind ORDER BY kind`, q.session, q.session)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind  string `json:"kind"`
				Count int64  `json:"count"`
			}
			if err := rows.Scan(&r.Kind, &r.Count); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	case "catalogs":
		rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Name      string `json:"name"`
				Digest    string `json:"digest"`
				UpdatedAt string `json:"updated_at"`
			}
			if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
				return err
			}
			_ = enc.Encode(r)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unknown query: %s (want results, snapshots, events, kinds, catalogs)", what)
	}
}
