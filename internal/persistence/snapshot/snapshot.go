package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version   int    `json:"version"`
	SessionID string `json:"session_id"`
	MapID     string `json:"map_id"`
	Seq       uint64 `json:"seq"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	GridCols    int   `json:"grid_cols"`
	GridRows    int   `json:"grid_rows"`
	TotalColors int   `json:"total_colors"`
	Cells       []int `json:"cells"`

	InventoryCapacity int         `json:"inventory_capacity"`
	Inventory         []SlotV1    `json:"inventory"`
	Currencies        []BalanceV1 `json:"currencies"`
	Tools             []ToolV1    `json:"tools"`
	Plates            [][]string  `json:"plates"`
	Orders            []string    `json:"orders"`
	Digests           CatalogsV1  `json:"digests"`

	TotalTime float64 `json:"total_time"`
	Paused    bool    `json:"paused"`
	Complete  bool    `json:"complete"`
}

type SlotV1 struct {
	Item   string `json:"item"`
	Amount int    `json:"amount"`
}

type BalanceV1 struct {
	Code   string `json:"code"`
	Amount int    `json:"amount"`
}

type ToolV1 struct {
	Code      string  `json:"code"`
	Item      string  `json:"item,omitempty"`
	Remaining float64 `json:"remaining"`
}

// CatalogsV1 records the catalog digests the session ran against so a restore
// can detect changed formulas or prices.
type CatalogsV1 struct {
	Tools  string `json:"tools"`
	Items  string `json:"items"`
	Prices string `json:"prices"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	defer enc.Close()

	bw := bufio.NewWriterSize(enc, 64*1024)
	defer bw.Flush()

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}

	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// The header line is a copy for tools that do not speak gob.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}
