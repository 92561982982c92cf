package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqInput}

	s.WriteInput(protocol.Input{Type: protocol.InputDeposit})
	s.RecordCheckpoint("", snapshot.New(1000), "d")
	s.RecordRollback(RollbackRow{Timeline: "predicted"})

	st := s.Stats()
	if st.DropInputTotal != 1 || st.DropCheckpointTotal != 1 || st.DropRollbackTotal != 1 {
		t.Fatalf("stats=%+v", st)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.WriteInput(protocol.Input{})
	s.RecordCheckpoint("", snapshot.New(0), "")
	s.RecordRollback(RollbackRow{})
	if err := s.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if st := s.Stats(); st.QueueCapacity != 0 {
		t.Fatalf("stats=%+v", st)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSQLiteIndex_PersistsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.sqlite")
	s, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.UpsertTuning(tuning.Defaults()); err != nil {
		t.Fatalf("upsert tuning: %v", err)
	}

	snap := snapshot.New(2000)
	snap.Bubbles = append(snap.Bubbles, snapshot.BubbleV1{ID: "B1", Mass: 3})
	snap.Portals = append(snap.Portals, snapshot.PortalV1{ID: "P", Mass: 7})
	s.WriteInput(protocol.Input{Type: protocol.InputDeposit, Timestamp: 1500, Actor: "0xabc", Amount: 2})
	s.RecordCheckpoint("snapshots/2000.snap.zst", snap, "abcd")
	s.RecordRollback(RollbackRow{Timeline: "predicted", From: 2400, To: 1500, SnapshotAt: 1000, Replayed: 3})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM inputs WHERE actor='0xabc' AND type='DEPOSIT'`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("inputs=%d err=%v", n, err)
	}
	var digest string
	var mass float64
	if err := db.QueryRow(`SELECT digest,total_mass FROM checkpoints WHERE timestamp=2000`).Scan(&digest, &mass); err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if digest != "abcd" || mass != 10 {
		t.Fatalf("digest=%s mass=%v", digest, mass)
	}
	var tuneDigest string
	if err := db.QueryRow(`SELECT value FROM meta WHERE key='tuning_digest'`).Scan(&tuneDigest); err != nil || len(tuneDigest) != 64 {
		t.Fatalf("tuning digest=%q err=%v", tuneDigest, err)
	}
}

func TestSQLiteIndex_Queries(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "index.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	// Write synchronously through the same statements the loop uses.
	for _, ts := range []int64{0, 1000, 2000} {
		if _, err := s.db.Exec(`INSERT INTO checkpoints(timestamp,digest,path,users,bubbles,portals,resources,total_mass) VALUES(?,?,?,?,?,?,?,?)`,
			ts, "d", "", 0, 0, 0, 0, 0.0); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if _, err := s.db.Exec(`INSERT INTO rollbacks(timeline,from_ts,to_ts,snapshot_ts,replayed,gap,recorded_at) VALUES('confirmed',1,0,0,0,0,'x')`); err != nil {
		t.Fatalf("seed rollback: %v", err)
	}

	ctx := context.Background()
	cps, err := s.LatestCheckpoints(ctx, 2)
	if err != nil || len(cps) != 2 || cps[0].Timestamp != 2000 {
		t.Fatalf("checkpoints=%+v err=%v", cps, err)
	}
	if _, ok, err := s.CheckpointDigest(ctx, 500); ok || err != nil {
		t.Fatalf("missing checkpoint ok=%v err=%v", ok, err)
	}
	if d, ok, _ := s.CheckpointDigest(ctx, 1000); !ok || d != "d" {
		t.Fatalf("digest=%q ok=%v", d, ok)
	}
	if n, err := s.RollbackCount(ctx, "confirmed"); err != nil || n != 1 {
		t.Fatalf("rollbacks=%d err=%v", n, err)
	}
}
