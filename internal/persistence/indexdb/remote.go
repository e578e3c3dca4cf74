package indexdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"gemkitchen.ai/internal/persistence/snapshot"
	"gemkitchen.ai/internal/sim/catalogs"
	"gemkitchen.ai/internal/sim/session"
	"gemkitchen.ai/internal/sim/tuning"
)

// RemoteConfig configures an HTTP ingest endpoint that receives index rows in
// JSON batches.
type RemoteConfig struct {
	Endpoint      string
	Token         string
	ServerID      string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	// MaxRetained bounds how many undelivered rows are kept while the endpoint
	// is failing; the oldest are dropped first.
	MaxRetained int
	Logger      logrus.FieldLogger
}

type RemoteStats struct {
	QueueDepth        int
	QueueCapacity     int
	QueueDroppedTotal uint64
	FlushFailTotal    uint64
	RetainedDropTotal uint64
}

// RemoteIndex is a write-only index that forwards rows to a remote service.
type RemoteIndex struct {
	cfg        RemoteConfig
	httpClient *http.Client

	ch   chan remoteRow
	wg   sync.WaitGroup
	once sync.Once

	// sendMu orders enqueues against close(ch).
	sendMu sync.RWMutex
	closed atomic.Bool

	queueDropped atomic.Uint64
	flushFail    atomic.Uint64
	retainedDrop atomic.Uint64
}

type remoteRow struct {
	Kind     string `json:"kind"`
	ServerID string `json:"server_id"`
	Payload  any    `json:"payload"`
}

type remoteSnapshotPayload struct {
	SessionID string  `json:"session_id"`
	MapID     string  `json:"map_id"`
	Seq       uint64  `json:"seq"`
	Path      string  `json:"path"`
	TotalTime float64 `json:"total_time"`
	Complete  bool    `json:"complete"`
}

type remoteCatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

func OpenRemote(cfg RemoteConfig) (*RemoteIndex, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.ServerID = strings.TrimSpace(cfg.ServerID)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty remote index endpoint")
	}
	if cfg.ServerID == "" {
		return nil, fmt.Errorf("empty server id")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.MaxRetained < cfg.BatchSize {
		cfg.MaxRetained = 16 * cfg.BatchSize
	}
	if cfg.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		cfg.Logger = l
	}

	d := &RemoteIndex{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan remoteRow, 32768),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

func (d *RemoteIndex) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.sendMu.Lock()
		d.closed.Store(true)
		close(d.ch)
		d.sendMu.Unlock()
		d.wg.Wait()
	})
	return nil
}

func (d *RemoteIndex) Stats() RemoteStats {
	if d == nil {
		return RemoteStats{}
	}
	return RemoteStats{
		QueueDepth:        len(d.ch),
		QueueCapacity:     cap(d.ch),
		QueueDroppedTotal: d.queueDropped.Load(),
		FlushFailTotal:    d.flushFail.Load(),
		RetainedDropTotal: d.retainedDrop.Load(),
	}
}

func (d *RemoteIndex) WriteEvent(entry session.EventEntry) error {
	d.enqueue("event", entry)
	return nil
}

func (d *RemoteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	d.enqueue("snapshot", remoteSnapshotPayload{
		SessionID: snap.Header.SessionID,
		MapID:     snap.Header.MapID,
		Seq:       snap.Header.Seq,
		Path:      path,
		TotalTime: snap.TotalTime,
		Complete:  snap.Complete,
	})
}

func (d *RemoteIndex) RecordResult(r Result) {
	if r.SessionID == "" || r.MapID == "" {
		return
	}
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	d.enqueue("result", r)
}

func (d *RemoteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if cats == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, r := range catalogRows(configDir, cats, tune) {
		d.enqueue("catalog", remoteCatalogPayload{Name: r.name, Digest: r.digest, JSON: string(r.data), UpdatedAt: now})
	}
	return nil
}

func (d *RemoteIndex) enqueue(kind string, payload any) {
	if d == nil {
		return
	}
	d.sendMu.RLock()
	defer d.sendMu.RUnlock()
	if d.closed.Load() {
		return
	}
	select {
	case d.ch <- remoteRow{Kind: kind, ServerID: d.cfg.ServerID, Payload: payload}:
	default:
		d.queueDropped.Add(1)
		d.cfg.Logger.WithField("kind", kind).Warn("remote index queue full; dropping row")
	}
}

func (d *RemoteIndex) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	var (
		pending []remoteRow
		backoff time.Duration
		retryAt time.Time
	)
	maxBackoff := 64 * d.cfg.FlushInterval

	// flush sends pending rows in chunks of at most BatchSize. The first failure
	// keeps the rest for a later tick and pushes retryAt out.
	flush := func() {
		for len(pending) > 0 {
			n := min(len(pending), d.cfg.BatchSize)
			if err := d.sendBatch(pending[:n]); err != nil {
				d.flushFail.Add(1)
				if backoff == 0 {
					backoff = d.cfg.FlushInterval
				} else {
					backoff = min(2*backoff, maxBackoff)
				}
				retryAt = time.Now().Add(backoff)
				d.cfg.Logger.WithError(err).WithFields(logrus.Fields{
					"batch":   n,
					"pending": len(pending),
					"retry":   backoff,
				}).Warn("remote index flush failed")
				return
			}
			pending = append(pending[:0], pending[n:]...)
			backoff = 0
			retryAt = time.Time{}
		}
	}
	failing := func() bool { return backoff > 0 && time.Now().Before(retryAt) }

	for {
		select {
		case row, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			pending = append(pending, row)
			if over := len(pending) - d.cfg.MaxRetained; over > 0 {
				d.retainedDrop.Add(uint64(over))
				pending = append(pending[:0], pending[over:]...)
			}
			if len(pending) >= d.cfg.BatchSize && !failing() {
				flush()
			}
		case <-ticker.C:
			if !failing() {
				flush()
			}
		}
	}
}

func (d *RemoteIndex) sendBatch(rows []remoteRow) error {
	body := struct {
		Rows []remoteRow `json:"rows"`
	}{Rows: rows}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("content-type", "application/json")
	if d.cfg.Token != "" {
		req.Header.Set("authorization", "Bearer "+d.cfg.Token)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
