package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gemkitchen.ai/internal/persistence/snapshot"
)

type SessionArchiveMeta struct {
	SessionID string  `json:"session_id"`
	MapID     string  `json:"map_id"`
	Seq       uint64  `json:"seq"`
	TotalTime float64 `json:"total_time"`
	Snapshot  string  `json:"snapshot"`
	CreatedAt string  `json:"created_at"`
	Prices    string  `json:"prices_digest,omitempty"`
	Tools     string  `json:"tool_formulas_digest,omitempty"`
	Items     string  `json:"item_formulas_digest,omitempty"`
}

// ArchiveCompletedSession copies the final snapshot of a completed session into
// `sessionDir/archive/` next to a meta.json. Incomplete sessions are skipped.
func ArchiveCompletedSession(sessionDir, snapshotPath string, snap snapshot.SnapshotV1) (archivedPath, metaPath string, archived bool, err error) {
	if !snap.Complete {
		return "", "", false, nil
	}
	archiveDir := filepath.Join(sessionDir, "archive")
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return "", "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return "", "", false, err
	}

	meta := SessionArchiveMeta{
		SessionID: snap.Header.SessionID,
		MapID:     snap.Header.MapID,
		Seq:       snap.Header.Seq,
		TotalTime: snap.TotalTime,
		Snapshot:  filepath.Base(dst),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
		Prices:    snap.Digests.Prices,
		Tools:     snap.Digests.Tools,
		Items:     snap.Digests.Items,
	}
	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", "", false, fmt.Errorf("archive meta: %w", err)
	}
	metaPath = filepath.Join(archiveDir, "meta.json")
	if err := os.WriteFile(metaPath, b, 0o644); err != nil {
		return "", "", false, err
	}
	return dst, metaPath, true, nil
}

// ReadMeta loads an archive meta.json.
func ReadMeta(path string) (SessionArchiveMeta, error) {
	var m SessionArchiveMeta
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
