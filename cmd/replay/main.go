package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	persistlog "gemkitchen.ai/internal/persistence/log"
	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/session"
)

type options struct {
	sessionDir string
	snapPath   string
	configDir  string
	fromSeq    uint64
	toSeq      uint64
	kind       string
	dump       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.sessionDir, "session", "", "session dir (data/sessions/<id>)")
	flag.StringVar(&opts.snapPath, "snapshot", "", "path to .snap.zst (default: latest under -session)")
	flag.StringVar(&opts.configDir, "configs", "", "config directory to check catalog digests against (optional)")
	flag.Uint64Var(&opts.fromSeq, "from_seq", 0, "first event seq to report (inclusive)")
	flag.Uint64Var(&opts.toSeq, "to_seq", 0, "last event seq to report (inclusive, 0 = all)")
	flag.StringVar(&opts.kind, "kind", "", "only dump events of this kind")
	flag.BoolVar(&opts.dump, "dump", false, "print every event as a json line")
	flag.Parse()

	if opts.sessionDir == "" && opts.snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -session or -snapshot")
		os.Exit(2)
	}
	if err := run(opts, os.Stdout); err != nil {
		logrus.WithError(err).Fatal("replay failed")
	}
}

func run(opts options, out io.Writer) error {
	snapPath := opts.snapPath
	if snapPath == "" {
		snapPath = latestSnapshot(opts.sessionDir)
	}

	var snap *snapshot.SnapshotV1
	if snapPath != "" {
		s, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		snap = &s
		fmt.Fprintf(out, "snapshot v%d session=%s map=%s seq=%d total_time=%.2f grid=%dx%d orders=%d plates=%d paused=%t complete=%t\n",
			s.Header.Version, s.Header.SessionID, s.Header.MapID, s.Header.Seq, s.TotalTime,
			s.GridCols, s.GridRows, len(s.Orders), len(s.Plates), s.Paused, s.Complete)
		if opts.configDir != "" {
			if err := checkDigests(opts.configDir, s.Digests, out); err != nil {
				return err
			}
		}
	}

	if opts.sessionDir == "" {
		return nil
	}
	files, err := persistlog.EventFiles(opts.sessionDir)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no event files under %s", filepath.Join(opts.sessionDir, "events"))
	}

	v := verifier{counts: map[string]int{}}
	if snap != nil {
		v.sessionID = snap.Header.SessionID
	}
	enc := json.NewEncoder(out)
	for _, path := range files {
		err := persistlog.ReadEvents(path, func(e session.EventEntry) error {
			if err := v.observe(e); err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			if !opts.dump || e.Seq < opts.fromSeq || (opts.toSeq != 0 && e.Seq > opts.toSeq) {
				return nil
			}
			if opts.kind != "" && e.Kind != opts.kind {
				return nil
			}
			return enc.Encode(e)
		})
		if err != nil {
			return err
		}
	}
	if snap != nil && snap.Header.Seq > v.lastSeq {
		return fmt.Errorf("snapshot seq %d is ahead of the event log (last seq %d)", snap.Header.Seq, v.lastSeq)
	}

	kinds := make([]string, 0, len(v.counts))
	for k := range v.counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, k+"="+strconv.Itoa(v.counts[k]))
	}
	fmt.Fprintf(out, "events ok: files=%d events=%d seq=%d..%d completions=%d %s\n",
		len(files), v.total, v.firstSeq, v.lastSeq, v.counts[session.KindComplete], strings.Join(parts, " "))
	return nil
}

// verifier checks that one session's event log is ordered and self-consistent.
type verifier struct {
	sessionID string
	firstSeq  uint64
	lastSeq   uint64
	total     int
	counts    map[string]int
}

func (v *verifier) observe(e session.EventEntry) error {
	if v.sessionID == "" {
		v.sessionID = e.SessionID
	}
	if e.SessionID != v.sessionID {
		return fmt.Errorf("seq %d belongs to session %s, want %s", e.Seq, e.SessionID, v.sessionID)
	}
	if v.total > 0 && e.Seq <= v.lastSeq {
		return fmt.Errorf("seq went backwards: %d after %d", e.Seq, v.lastSeq)
	}
	if v.total == 0 {
		v.firstSeq = e.Seq
	}
	v.lastSeq = e.Seq
	v.total++
	v.counts[e.Kind]++
	return nil
}

func checkDigests(configDir string, got snapshot.CatalogsV1, out io.Writer) error {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	var errs []error
	if got.Tools != cats.Formulas.ToolsDigest {
		errs = append(errs, errors.New("tool formulas changed since snapshot"))
	}
	if got.Items != cats.Formulas.ItemsDigest {
		errs = append(errs, errors.New("item formulas changed since snapshot"))
	}
	if got.Prices != cats.Prices.Digest {
		errs = append(errs, errors.New("prices changed since snapshot"))
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	fmt.Fprintln(out, "catalog digests match")
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
