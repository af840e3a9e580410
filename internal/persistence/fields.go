package persistence

import (
	"bytes"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/talgya/flowgrid/internal/entity"
	"github.com/talgya/flowgrid/internal/pathfind"
)

// ErrNoSnapshot is returned by LoadField when a kind was never saved.
var ErrNoSnapshot = errors.New("no field snapshot")

// keepSnapshots is how many snapshots per kind survive a save.
const keepSnapshots = 3

type snapshotRow struct {
	ID      int64  `db:"id"`
	Kind    string `db:"kind"`
	RunID   string `db:"run_id"`
	Tick    uint64 `db:"tick"`
	Cells   int    `db:"cells"`
	Entries []byte `db:"entries"`
}

// SaveField stores snap as a compressed blob and prunes older snapshots
// of the same kind.
func (db *DB) SaveField(snap pathfind.Snapshot, tick uint64) error {
	blob, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO field_snapshots (kind, run_id, tick, cells, entries) VALUES (?, ?, ?, ?, ?)",
		string(snap.Kind), db.RunID, tick, len(snap.Entries), blob,
	)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	_, err = tx.Exec(`DELETE FROM field_snapshots WHERE kind = ? AND id NOT IN
		(SELECT id FROM field_snapshots WHERE kind = ? ORDER BY id DESC LIMIT ?)`,
		string(snap.Kind), string(snap.Kind), keepSnapshots,
	)
	if err != nil {
		return fmt.Errorf("prune snapshots: %w", err)
	}
	return tx.Commit()
}

// LoadField returns the newest snapshot for kind.
func (db *DB) LoadField(kind entity.Kind) (pathfind.Snapshot, error) {
	var row snapshotRow
	err := db.conn.Get(&row,
		"SELECT * FROM field_snapshots WHERE kind = ? ORDER BY id DESC LIMIT 1",
		string(kind),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return pathfind.Snapshot{}, fmt.Errorf("%w: %s", ErrNoSnapshot, kind)
	}
	if err != nil {
		return pathfind.Snapshot{}, err
	}
	snap, err := decodeSnapshot(row.Entries)
	if err != nil {
		return pathfind.Snapshot{}, fmt.Errorf("snapshot %d (run %s): %w", row.ID, row.RunID, err)
	}
	snap.Kind = kind
	return snap, nil
}

func encodeSnapshot(snap pathfind.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	if err := gob.NewEncoder(enc).Encode(&snap); err != nil {
		enc.Close()
		return nil, fmt.Errorf("gob encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeSnapshot(blob []byte) (pathfind.Snapshot, error) {
	var snap pathfind.Snapshot
	dec, err := zstd.NewReader(bytes.NewReader(blob))
	if err != nil {
		return snap, err
	}
	defer dec.Close()
	if err := gob.NewDecoder(dec).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}
