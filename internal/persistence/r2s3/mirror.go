package r2s3

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Uploader puts a local file under an object key. *Client implements it.
type Uploader interface {
	PutFile(ctx context.Context, objectKey, localPath string) error
}

var errOutsideDataDir = errors.New("outside data dir")

type MirrorOptions struct {
	// DataDir is the root that object keys are made relative to. Files
	// outside it are never uploaded.
	DataDir string
	Prefix  string

	Workers       int
	QueueCapacity int
	// EnqueueWait bounds how long Enqueue blocks on a full queue before the
	// file is dropped.
	EnqueueWait time.Duration

	Attempts      int
	RetryBase     time.Duration
	UploadTimeout time.Duration

	Logger logrus.FieldLogger
}

func (o *MirrorOptions) withDefaults() {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 2048
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = 25 * time.Millisecond
	}
	if o.Attempts <= 0 {
		o.Attempts = 4
	}
	if o.RetryBase <= 0 {
		o.RetryBase = 200 * time.Millisecond
	}
	if o.UploadTimeout <= 0 {
		o.UploadTimeout = 2 * time.Minute
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
}

// MirrorStats is a point-in-time view of the upload pipeline.
type MirrorStats struct {
	Pending  int
	Capacity int

	Queued    uint64
	Coalesced uint64
	Rejected  uint64
	Dropped   uint64
	Uploaded  uint64
	Failed    uint64

	LastUpload  time.Time
	LastFailure time.Time
}

type upload struct {
	local string
	key   string
}

// Mirror copies session artifacts (snapshots, event segments, archives and
// meta files) from the data dir to an object store in the background.
//
// A file already waiting in the queue is not queued twice; a later Enqueue of
// the same path after its upload started queues it again, since meta files
// are rewritten in place.
type Mirror struct {
	up     Uploader
	opts   MirrorOptions
	root   string
	prefix string

	sendMu  sync.RWMutex
	closed  bool
	queue   chan upload
	workers sync.WaitGroup

	waitMu  sync.Mutex
	waiting map[string]struct{}
	lastOK  time.Time
	lastErr time.Time

	queued, coalesced, rejected, dropped, uploaded, failed atomic.Uint64
}

func NewMirror(up Uploader, opts MirrorOptions) *Mirror {
	opts.withDefaults()
	root, err := filepath.Abs(opts.DataDir)
	if err != nil {
		root = filepath.Clean(opts.DataDir)
	}
	m := &Mirror{
		up:      up,
		opts:    opts,
		root:    root,
		prefix:  strings.Trim(strings.ReplaceAll(opts.Prefix, "\\", "/"), "/"),
		queue:   make(chan upload, opts.QueueCapacity),
		waiting: map[string]struct{}{},
	}
	for i := 0; i < opts.Workers; i++ {
		m.workers.Add(1)
		go m.work()
	}
	return m
}

// Enqueue schedules localPath for upload. It never blocks longer than
// EnqueueWait and is safe to call on a nil Mirror.
func (m *Mirror) Enqueue(localPath string) {
	if m == nil || m.up == nil {
		return
	}
	key, err := m.keyFor(localPath)
	if err != nil {
		m.rejected.Add(1)
		m.opts.Logger.WithError(err).WithField("local", localPath).Warn("mirror: not uploading")
		return
	}

	m.waitMu.Lock()
	if _, dup := m.waiting[localPath]; dup {
		m.waitMu.Unlock()
		m.coalesced.Add(1)
		return
	}
	m.waiting[localPath] = struct{}{}
	m.waitMu.Unlock()

	if !m.push(upload{local: localPath, key: key}) {
		m.waitMu.Lock()
		delete(m.waiting, localPath)
		m.waitMu.Unlock()
		n := m.dropped.Add(1)
		m.opts.Logger.WithFields(logrus.Fields{"local": localPath, "dropped": n}).Warn("mirror: queue full, file dropped")
		return
	}
	m.queued.Add(1)
}

func (m *Mirror) push(u upload) bool {
	m.sendMu.RLock()
	defer m.sendMu.RUnlock()
	if m.closed {
		return false
	}
	select {
	case m.queue <- u:
		return true
	default:
	}
	t := time.NewTimer(m.opts.EnqueueWait)
	defer t.Stop()
	select {
	case m.queue <- u:
		return true
	case <-t.C:
		return false
	}
}

// Close stops accepting files and waits until everything queued is uploaded
// or has used up its attempts.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.sendMu.Lock()
	if !m.closed {
		m.closed = true
		close(m.queue)
	}
	m.sendMu.Unlock()
	m.workers.Wait()
}

func (m *Mirror) Stats() MirrorStats {
	if m == nil {
		return MirrorStats{}
	}
	m.waitMu.Lock()
	lastOK, lastErr := m.lastOK, m.lastErr
	m.waitMu.Unlock()
	return MirrorStats{
		Pending:     len(m.queue),
		Capacity:    cap(m.queue),
		Queued:      m.queued.Load(),
		Coalesced:   m.coalesced.Load(),
		Rejected:    m.rejected.Load(),
		Dropped:     m.dropped.Load(),
		Uploaded:    m.uploaded.Load(),
		Failed:      m.failed.Load(),
		LastUpload:  lastOK,
		LastFailure: lastErr,
	}
}

func (m *Mirror) work() {
	defer m.workers.Done()
	for u := range m.queue {
		m.waitMu.Lock()
		delete(m.waiting, u.local)
		m.waitMu.Unlock()

		log := m.opts.Logger.WithFields(logrus.Fields{"key": u.key, "local": u.local})
		err := m.put(u)
		now := time.Now().UTC()
		m.waitMu.Lock()
		if err != nil {
			m.lastErr = now
		} else {
			m.lastOK = now
		}
		m.waitMu.Unlock()
		if err != nil {
			m.failed.Add(1)
			log.WithError(err).Error("mirror: upload failed")
			continue
		}
		m.uploaded.Add(1)
		log.Debug("mirror: uploaded")
	}
}

// put tries the upload up to Attempts times, sleeping RetryBase*n² after the
// n-th failure.
func (m *Mirror) put(u upload) error {
	var err error
	for n := 1; ; n++ {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.UploadTimeout)
		err = m.up.PutFile(ctx, u.key, u.local)
		cancel()
		if err == nil || n >= m.opts.Attempts {
			return err
		}
		time.Sleep(time.Duration(n*n) * m.opts.RetryBase)
	}
}

// keyFor maps a file under the data dir to its object key.
func (m *Mirror) keyFor(localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("empty path")
	}
	abs, err := filepath.Abs(localPath)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil {
		return "", err
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return "", fmt.Errorf("%s: %w %s", abs, errOutsideDataDir, m.root)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", err
	}
	if m.prefix == "" {
		return rel, nil
	}
	return path.Join(m.prefix, rel), nil
}
