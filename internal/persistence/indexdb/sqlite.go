package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the confirmed timeline. The
// ledger log stays the source of truth; writes are queued and dropped when
// the writer falls behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropInput      atomic.Uint64
	dropCheckpoint atomic.Uint64
	dropRollback   atomic.Uint64
}

type reqKind int

const (
	reqInput reqKind = iota + 1
	reqCheckpoint
	reqRollback
)

type req struct {
	kind reqKind

	input      protocol.Input
	checkpoint CheckpointRow
	rollback   RollbackRow
}

type CheckpointRow struct {
	Timestamp int64
	Digest    string
	Path      string
	Users     int
	Bubbles   int
	Portals   int
	Resources int
	TotalMass float64
}

type RollbackRow struct {
	Timeline   string
	From       int64
	To         int64
	SnapshotAt int64
	Replayed   int
	Gap        bool
	RecordedAt string
}

type Stats struct {
	QueueDepth          int
	QueueCapacity       int
	DropInputTotal      uint64
	DropCheckpointTotal uint64
	DropRollbackTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS inputs (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			input_key TEXT NOT NULL,
			type TEXT NOT NULL,
			actor TEXT NOT NULL,
			entity_id TEXT,
			amount REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_actor_ts ON inputs(actor, timestamp);`,
		`CREATE INDEX IF NOT EXISTS idx_inputs_ts ON inputs(timestamp);`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			timestamp INTEGER PRIMARY KEY,
			digest TEXT NOT NULL,
			path TEXT NOT NULL,
			users INTEGER NOT NULL,
			bubbles INTEGER NOT NULL,
			portals INTEGER NOT NULL,
			resources INTEGER NOT NULL,
			total_mass REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS rollbacks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			timeline TEXT NOT NULL,
			from_ts INTEGER NOT NULL,
			to_ts INTEGER NOT NULL,
			snapshot_ts INTEGER NOT NULL,
			replayed INTEGER NOT NULL,
			gap INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		QueueCapacity:       cap(s.ch),
		DropInputTotal:      s.dropInput.Load(),
		DropCheckpointTotal: s.dropCheckpoint.Load(),
		DropRollbackTotal:   s.dropRollback.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	if s.closed.Load() {
		return
	}
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteInput(in protocol.Input) {
	if s == nil {
		return
	}
	s.enqueue(req{kind: reqInput, input: in}, &s.dropInput)
}

// RecordCheckpoint indexes a confirmed snapshot. path is where the snapshot
// file was written, or empty when only the digest was kept.
func (s *SQLiteIndex) RecordCheckpoint(path string, snap *snapshot.Snapshot, digest string) {
	if s == nil {
		return
	}
	r := CheckpointRow{
		Timestamp: snap.Timestamp,
		Digest:    digest,
		Path:      path,
		Users:     len(snap.Users),
		Bubbles:   len(snap.Bubbles),
		Portals:   len(snap.Portals),
		Resources: len(snap.Resources),
		TotalMass: snapshotMass(snap),
	}
	s.enqueue(req{kind: reqCheckpoint, checkpoint: r}, &s.dropCheckpoint)
}

func (s *SQLiteIndex) RecordRollback(r RollbackRow) {
	if s == nil {
		return
	}
	if r.RecordedAt == "" {
		r.RecordedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.enqueue(req{kind: reqRollback, rollback: r}, &s.dropRollback)
}

func snapshotMass(s *snapshot.Snapshot) float64 {
	var m float64
	for _, b := range s.Bubbles {
		m += b.Mass
	}
	for _, p := range s.Portals {
		m += p.Mass
	}
	for _, n := range s.Nodes {
		m += n.Mass
	}
	for _, r := range s.Resources {
		m += r.Mass
	}
	return m
}

// UpsertTuning stores the constants the node runs with, so index readers can
// tell which parameters produced the recorded digests.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows := [][2]string{
		{"schema_version", "1"},
		{"tuning", string(b)},
		{"tuning_digest", hex.EncodeToString(sum[:])},
	}
	for _, kv := range rows {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, kv[0], kv[1]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertInput, _ := s.db.Prepare(`INSERT INTO inputs(timestamp,input_key,type,actor,entity_id,amount,raw_json) VALUES(?,?,?,?,?,?,?)`)
	insertCheckpoint, _ := s.db.Prepare(`INSERT OR REPLACE INTO checkpoints(timestamp,digest,path,users,bubbles,portals,resources,total_mass) VALUES(?,?,?,?,?,?,?,?)`)
	insertRollback, _ := s.db.Prepare(`INSERT INTO rollbacks(timeline,from_ts,to_ts,snapshot_ts,replayed,gap,recorded_at) VALUES(?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertInput, insertCheckpoint, insertRollback} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	// Readers share the single connection, so an idle open tx is committed
	// on the ticker rather than held until the next write.
	tick := time.NewTicker(commitMaxWait)
	defer tick.Stop()

	for {
		var r req
		select {
		case <-tick.C:
			commit()
			continue
		case rr, ok := <-s.ch:
			if !ok {
				commit()
				return
			}
			r = rr
		}
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqInput:
			in := r.input
			raw, _ := json.Marshal(in)
			exec(insertInput, in.Timestamp, in.Key(), string(in.Type), in.Actor, in.EntityID, in.Amount, string(raw))
		case reqCheckpoint:
			c := r.checkpoint
			exec(insertCheckpoint, c.Timestamp, c.Digest, c.Path, c.Users, c.Bubbles, c.Portals, c.Resources, c.TotalMass)
		case reqRollback:
			rb := r.rollback
			gap := 0
			if rb.Gap {
				gap = 1
			}
			exec(insertRollback, rb.Timeline, rb.From, rb.To, rb.SnapshotAt, rb.Replayed, gap, rb.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}
}
