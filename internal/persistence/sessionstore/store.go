package sessionstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/archive"
	"gemkitchen.ai/internal/persistence/indexdb"
	persistlog "gemkitchen.ai/internal/persistence/log"
	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/session"
)

// Index is the read-model sink. Both index backends satisfy it.
type Index interface {
	session.EventLogger
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordResult(r indexdb.Result)
}

// BestTimes answers best completion time queries; only the sqlite index can.
type BestTimes interface {
	BestTime(ctx context.Context, mapID string) (float64, bool, error)
}

// Mirror ships finished files to object storage.
type Mirror interface {
	Enqueue(localPath string)
}

type Options struct {
	DataDir      string
	Index        Index
	Best         BestTimes
	Mirror       Mirror
	RotateLayout string
	Logger       logrus.FieldLogger
}

// Store lays out session artifacts under DataDir/sessions/<id>/.
type Store struct {
	dataDir string
	index   Index
	best    BestTimes
	mirror  Mirror
	layout  string
	log     logrus.FieldLogger
}

func New(opts Options) *Store {
	l := opts.Logger
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &Store{
		dataDir: opts.DataDir,
		index:   opts.Index,
		best:    opts.Best,
		mirror:  opts.Mirror,
		layout:  opts.RotateLayout,
		log:     l,
	}
}

// ValidID reports whether id is a session id this store issued.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *Store) SessionDir(id string) string {
	return filepath.Join(s.dataDir, "sessions", id)
}

// OpenEventLog returns the logger to attach to a session and a closer for its
// file segments. Index writes ride along when an index is configured.
func (s *Store) OpenEventLog(id string) (session.EventLogger, io.Closer) {
	opts := persistlog.LoggerOptions{RotateLayout: s.layout}
	if s.mirror != nil {
		opts.OnClose = s.mirror.Enqueue
	}
	fileLog := persistlog.NewEventLoggerWithOptions(s.SessionDir(id), opts)
	if s.index == nil {
		return fileLog, fileLog
	}
	return session.MultiLogger(fileLog, s.index), fileLog
}

// SaveSnapshot writes the session state as snapshots/<seq>.snap.zst.
func (s *Store) SaveSnapshot(sess *session.Session) (string, snapshot.SnapshotV1, error) {
	snap := sess.ExportSnapshot()
	path := filepath.Join(s.SessionDir(sess.ID()), "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Seq))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		return "", snap, err
	}
	if s.index != nil {
		s.index.RecordSnapshot(path, snap)
	}
	if s.mirror != nil {
		s.mirror.Enqueue(path)
	}
	return path, snap, nil
}

// LatestSnapshot finds the highest-seq snapshot of a session.
func (s *Store) LatestSnapshot(id string) (string, bool) {
	if !ValidID(id) {
		return "", false
	}
	dir := filepath.Join(s.SessionDir(id), "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(dir, name)
		}
	}
	return best, best != ""
}

// Completed records a finished session: result row, final snapshot and
// archive copy. It returns the best time for the map when one is known.
func (s *Store) Completed(sess *session.Session) (float64, bool) {
	fields := logrus.Fields{"session": sess.ID(), "map": sess.MapID(), "total_time": sess.TotalTime()}
	if s.index != nil {
		s.index.RecordResult(indexdb.Result{
			SessionID: sess.ID(),
			MapID:     sess.MapID(),
			TotalTime: sess.TotalTime(),
			Seq:       sess.Seq(),
		})
	}

	path, snap, err := s.SaveSnapshot(sess)
	if err != nil {
		s.log.WithError(err).WithFields(fields).Error("final snapshot write failed")
	} else if archived, meta, ok, err := archive.ArchiveCompletedSession(s.SessionDir(sess.ID()), path, snap); err != nil {
		s.log.WithError(err).WithFields(fields).Error("archive session failed")
	} else if ok && s.mirror != nil {
		s.mirror.Enqueue(archived)
		s.mirror.Enqueue(meta)
	}
	s.log.WithFields(fields).Info("session complete")

	if s.best == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	best, ok, err := s.best.BestTime(ctx, sess.MapID())
	if err != nil {
		s.log.WithError(err).WithFields(fields).Warn("best time lookup failed")
		return 0, false
	}
	return best, ok
}
