package node

import (
	"log"
	"strconv"

	"bubbles.ai/internal/persistence/archive"
	"bubbles.ai/internal/persistence/indexdb"
	plog "bubbles.ai/internal/persistence/log"
	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/timeline"
)

// Persister records the confirmed timeline: inputs and checkpoint digests go
// to the ledger log, snapshots to the archive, and both to the SQLite index.
// Any field may be nil.
type Persister struct {
	Ledger  *plog.LedgerLogger
	Archive *archive.Checkpoints
	Index   *indexdb.SQLiteIndex
	Log     *log.Logger
}

var _ timeline.Observer = (*Persister)(nil)

func (p *Persister) logf(format string, args ...any) {
	if p.Log != nil {
		p.Log.Printf(format, args...)
	}
}

func (p *Persister) ConfirmedInput(in protocol.Input) {
	if p.Ledger != nil {
		if err := p.Ledger.WriteInput(in); err != nil {
			checkpointErrors.Inc()
			p.logf("[persist] ledger log %s: %v", in.Key(), err)
		}
	}
	p.Index.WriteInput(in)
}

func (p *Persister) Checkpoint(s *snapshot.Snapshot, digest string) {
	var path string
	if p.Archive != nil {
		var err error
		path, err = p.Archive.Write(s, digest)
		if err != nil {
			checkpointErrors.Inc()
			p.logf("[persist] checkpoint %d: %v", s.Timestamp, err)
		}
	}
	if p.Ledger != nil {
		if err := p.Ledger.WriteCheckpoint(s.Timestamp, digest); err != nil {
			checkpointErrors.Inc()
			p.logf("[persist] ledger checkpoint %d: %v", s.Timestamp, err)
		}
	}
	p.Index.RecordCheckpoint(path, s, digest)
}

func (p *Persister) Rollback(r timeline.RollbackInfo) {
	rollbacksTotal.WithLabelValues(r.Timeline, strconv.FormatBool(r.Gap)).Inc()
	rollbackReplayed.Observe(float64(r.Replayed))
	p.logf("[persist] rollback %s from=%d to=%d snapshot=%d replayed=%d gap=%v",
		r.Timeline, r.From, r.To, r.SnapshotAt, r.Replayed, r.Gap)
	p.Index.RecordRollback(indexdb.RollbackRow{
		Timeline:   r.Timeline,
		From:       r.From,
		To:         r.To,
		SnapshotAt: r.SnapshotAt,
		Replayed:   r.Replayed,
		Gap:        r.Gap,
	})
}

// Close flushes the ledger log and the index.
func (p *Persister) Close() error {
	var first error
	if p.Ledger != nil {
		first = p.Ledger.Close()
	}
	if p.Index != nil {
		if err := p.Index.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
