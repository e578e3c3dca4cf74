package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gemkitchen.ai/internal/persistence/archive"
	"gemkitchen.ai/internal/persistence/snapshot"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "list":
			listCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	if err := listSessions(*dataDir, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
}

// listSessions prints one line per session dir: id, map, latest snapshot seq,
// total time and whether a completion was archived.
func listSessions(dataDir string, out io.Writer) error {
	base := filepath.Join(dataDir, "sessions")
	entries, err := os.ReadDir(base)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		dir := filepath.Join(base, name)
		mapID, seq, total := "-", "-", "-"
		if p := latestSnapshot(dir); p != "" {
			snap, err := snapshot.ReadSnapshot(p)
			if err != nil {
				fmt.Fprintf(out, "%s\tunreadable snapshot: %v\n", name, err)
				continue
			}
			mapID = snap.Header.MapID
			seq = strconv.FormatUint(snap.Header.Seq, 10)
			total = strconv.FormatFloat(snap.TotalTime, 'f', 2, 64)
		}
		best := "-"
		meta, err := archive.ReadMeta(filepath.Join(dir, "archive", "meta.json"))
		switch {
		case err == nil:
			best = strconv.FormatFloat(meta.TotalTime, 'f', 2, 64)
			mapID = meta.MapID
		case !errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("%s: archive meta: %w", name, err)
		}
		fmt.Fprintf(out, "%s\tmap=%s\tseq=%s\ttotal_time=%s\tcompleted=%s\n", name, mapID, seq, total, best)
	}
	return nil
}

func latestSnapshot(sessionDir string) string {
	files, err := filepath.Glob(filepath.Join(sessionDir, "snapshots", "*.snap.zst"))
	if err != nil {
		return ""
	}
	best, bestSeq := "", int64(-1)
	for _, f := range files {
		n, err := strconv.ParseInt(strings.TrimSuffix(filepath.Base(f), ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if n > bestSeq {
			best, bestSeq = f, n
		}
	}
	return best
}
