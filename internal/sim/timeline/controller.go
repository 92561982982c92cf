package timeline

import (
	"fmt"
	"log"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
	"bubbles.ai/internal/sim/world"
)

// Observer receives controller side effects worth persisting or counting.
// Every method is called synchronously from the goroutine driving the
// Controller.
type Observer interface {
	ConfirmedInput(in protocol.Input)
	Checkpoint(s *snapshot.Snapshot, digest string)
	Rollback(r RollbackInfo)
}

type RollbackInfo struct {
	Timeline string // "predicted" or "confirmed"
	// From is the clock before the rollback, To the requested restore point.
	From int64
	To   int64
	// SnapshotAt is the timestamp actually restored.
	SnapshotAt int64
	Replayed   int
	Gap        bool
}

type Config struct {
	Tuning   tuning.Tuning
	Logger   *log.Logger
	Observer Observer
	// PredictionTimeoutMs drops predictions the ledger has not confirmed
	// this long after their timestamp. Zero keeps them forever.
	PredictionTimeoutMs int64
}

// Controller owns the confirmed and predicted worlds and reconciles them.
// It is not safe for concurrent use.
type Controller struct {
	cfg    Config
	origin int64

	confirmed *world.World
	predicted *world.World

	store *Store
	// log holds confirmed inputs in ledger order, trimmed to what the
	// oldest retained snapshot still needs.
	log []protocol.Input

	pending      map[string]protocol.Input
	pendingOrder []string

	restoreAt  int64
	hasRestore bool

	out []protocol.Event
}

// New starts both timelines from base.
func New(cfg Config, base *snapshot.Snapshot) (*Controller, error) {
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	c := &Controller{
		cfg:     cfg,
		origin:  base.Timestamp,
		store:   NewStore(cfg.Tuning.SnapshotRetention),
		pending: map[string]protocol.Input{},
	}
	cw, err := world.ImportState(cfg.Tuning, base)
	if err != nil {
		return nil, fmt.Errorf("confirmed: %w", err)
	}
	pw, err := world.ImportState(cfg.Tuning, base)
	if err != nil {
		return nil, fmt.Errorf("predicted: %w", err)
	}
	c.adoptConfirmed(cw)
	c.predicted = pw
	c.confirmed.Advance(c.origin)
	return c, nil
}

func (c *Controller) logf(format string, args ...any) {
	if c.cfg.Logger != nil {
		c.cfg.Logger.Printf(format, args...)
	}
}

func (c *Controller) adoptConfirmed(w *world.World) {
	w.SetBoundaryHook(c.capture)
	c.confirmed = w
}

// capture is the confirmed world's boundary hook.
func (c *Controller) capture(w *world.World) {
	every := c.cfg.Tuning.SnapshotEveryMs
	if c.store.Len() > 0 && (w.Clock()-c.origin)%every != 0 {
		return
	}
	s := w.CreateState()
	c.store.Put(s)
	c.trimLog()
	if c.cfg.Observer != nil {
		c.cfg.Observer.Checkpoint(s, w.Digest())
	}
}

// trimLog drops confirmed inputs already applied in every retained snapshot.
func (c *Controller) trimLog() {
	oldest, ok := c.store.Oldest()
	if !ok {
		return
	}
	cut := oldest.Timestamp - c.cfg.Tuning.StepMillis
	i := 0
	for i < len(c.log) && c.log[i].Timestamp <= cut {
		i++
	}
	if i > 0 {
		c.log = append(c.log[:0], c.log[i:]...)
	}
}

func (c *Controller) requestRollback(ts int64) {
	if !c.hasRestore || ts < c.restoreAt {
		c.restoreAt = ts
		c.hasRestore = true
	}
}

func (c *Controller) addPending(in protocol.Input) {
	k := in.Key()
	if _, ok := c.pending[k]; !ok {
		c.pendingOrder = append(c.pendingOrder, k)
	}
	c.pending[k] = in
}

func (c *Controller) removePending(k string) {
	if _, ok := c.pending[k]; !ok {
		return
	}
	delete(c.pending, k)
	for i, x := range c.pendingOrder {
		if x == k {
			c.pendingOrder = append(c.pendingOrder[:i], c.pendingOrder[i+1:]...)
			break
		}
	}
}

func (c *Controller) earliestPending() (int64, bool) {
	var min int64
	found := false
	for _, k := range c.pendingOrder {
		if ts := c.pending[k].Timestamp; !found || ts < min {
			min, found = ts, true
		}
	}
	return min, found
}

// Predict applies a locally issued input to the predicted timeline only.
func (c *Controller) Predict(in protocol.Input) error {
	in.Prediction = true
	if err := in.Check(); err != nil {
		return fmt.Errorf("%w: %v", world.ErrInvalidInput, err)
	}
	c.addPending(in)
	if c.predicted.IsLate(in.Timestamp) {
		c.requestRollback(c.restorePoint(in.Timestamp))
		return nil
	}
	return c.predicted.Schedule(in)
}

// Confirm applies a ledger-finalized input to the confirmed timeline and
// reconciles the predicted one.
func (c *Controller) Confirm(in protocol.Input) error {
	in.Prediction = false
	if err := in.Check(); err != nil {
		return fmt.Errorf("%w: %v", world.ErrInvalidInput, err)
	}
	c.log = append(c.log, in)
	if c.cfg.Observer != nil {
		c.cfg.Observer.ConfirmedInput(in)
	}

	var confirmErr error
	if c.confirmed.IsLate(in.Timestamp) {
		confirmErr = c.rollbackConfirmed(in.Timestamp)
	} else if err := c.confirmed.Schedule(in); err != nil {
		confirmErr = err
	}

	key := in.Key()
	pred, predicted := c.pending[key]
	c.removePending(key)
	switch {
	case predicted && protocol.Equivalent(pred, in):
		// Already in the predicted timeline.
	case predicted:
		to := pred.Timestamp
		if in.Timestamp < to {
			to = in.Timestamp
		}
		c.requestRollback(c.restorePoint(to))
	case c.predicted.IsLate(in.Timestamp):
		c.requestRollback(c.restorePoint(in.Timestamp))
	default:
		if err := c.predicted.Schedule(in); err != nil && confirmErr == nil {
			confirmErr = err
		}
	}
	return confirmErr
}

// restorePoint moves ts back so that no pending prediction falls before the
// restored snapshot.
func (c *Controller) restorePoint(ts int64) int64 {
	if e, ok := c.earliestPending(); ok && e < ts {
		return e
	}
	return ts
}

// rollbackConfirmed rebuilds the confirmed world from the store and replays
// the confirmed log up to its previous clock.
func (c *Controller) rollbackConfirmed(ts int64) error {
	from := c.confirmed.Clock()
	snap, err := c.store.At(ts)
	if err != nil {
		c.logf("[timeline] confirmed input at %d behind retention (clock %d); applying at next boundary", ts, from)
		_ = c.confirmed.Schedule(c.log[len(c.log)-1])
		return fmt.Errorf("confirmed rollback to %d: %w", ts, err)
	}
	w, err := world.ImportState(c.cfg.Tuning, snap)
	if err != nil {
		return fmt.Errorf("confirmed rollback: %w", err)
	}
	w.ClearPending()
	replayed := c.scheduleLog(w, snap.Timestamp)
	c.store.TruncateFrom(snap.Timestamp + 1)
	c.adoptConfirmed(w)
	w.Events().SetMuted(true)
	w.Advance(from)
	w.Events().SetMuted(false)

	info := RollbackInfo{Timeline: "confirmed", From: from, To: ts, SnapshotAt: snap.Timestamp, Replayed: replayed}
	c.logf("[timeline] confirmed rollback %d -> %d (snapshot %d, %d inputs)", from, ts, snap.Timestamp, replayed)
	if c.cfg.Observer != nil {
		c.cfg.Observer.Rollback(info)
	}
	return nil
}

// scheduleLog queues every confirmed input not yet applied at snapshot time.
func (c *Controller) scheduleLog(w *world.World, snapTs int64) int {
	cut := snapTs - c.cfg.Tuning.StepMillis
	n := 0
	for _, in := range c.log {
		if in.Timestamp > cut {
			_ = w.Schedule(in)
			n++
		}
	}
	return n
}

// Finalize advances the confirmed timeline to the ledger time and expires
// predictions the ledger never confirmed.
func (c *Controller) Finalize(ledgerTime int64) {
	c.confirmed.Advance(ledgerTime)
	for _, ev := range c.confirmed.Events().Drain() {
		if ev.Type == world.EventInputRejected {
			c.logf("[timeline] confirmed input %s rejected at %d: %s", ev.ID, ev.Timestamp, ev.Code)
		}
	}
	if c.cfg.PredictionTimeoutMs <= 0 {
		return
	}
	deadline := ledgerTime - c.cfg.PredictionTimeoutMs
	for _, k := range append([]string(nil), c.pendingOrder...) {
		in := c.pending[k]
		if in.Timestamp >= deadline {
			continue
		}
		c.removePending(k)
		c.requestRollback(c.restorePoint(in.Timestamp))
		c.out = append(c.out, protocol.Event{
			Type:      world.EventInputRejected,
			ID:        k,
			Timestamp: ledgerTime,
			Code:      protocol.ErrStale,
			Actor:     in.Actor,
		})
	}
}

// Advance runs any pending rollback, then moves the predicted timeline to now.
func (c *Controller) Advance(now int64) error {
	var err error
	if c.hasRestore {
		err = c.rollbackPredicted(c.restoreAt)
		c.hasRestore = false
	}
	c.predicted.Advance(now)
	return err
}

// rollbackPredicted discards the predicted world and rebuilds it from the
// confirmed store, or from the confirmed world itself on a replay gap.
func (c *Controller) rollbackPredicted(to int64) error {
	old := c.predicted
	from := old.Clock()
	c.out = append(c.out, old.Events().Drain()...)
	before := displayIndex(old)

	info := RollbackInfo{Timeline: "predicted", From: from, To: to}
	var (
		w   *world.World
		err error
	)
	snap, gapErr := c.store.At(to)
	if gapErr != nil {
		info.Gap = true
		full := c.confirmed.CreateState()
		info.SnapshotAt = full.Timestamp
		if w, err = world.ImportState(c.cfg.Tuning, full); err != nil {
			return fmt.Errorf("predicted rebuild: %w", err)
		}
		for _, k := range c.pendingOrder {
			_ = w.Schedule(c.pending[k])
			info.Replayed++
		}
		c.logf("[timeline] replay gap at %d; rebuilt predicted from confirmed state at %d", to, full.Timestamp)
	} else {
		info.SnapshotAt = snap.Timestamp
		if w, err = world.ImportState(c.cfg.Tuning, snap); err != nil {
			return fmt.Errorf("predicted rollback: %w", err)
		}
		w.ClearPending()
		info.Replayed = c.scheduleLog(w, snap.Timestamp)
		cut := snap.Timestamp - c.cfg.Tuning.StepMillis
		for _, k := range c.pendingOrder {
			if in := c.pending[k]; in.Timestamp > cut {
				_ = w.Schedule(in)
				info.Replayed++
			}
		}
	}

	w.Events().SetMuted(true)
	w.Advance(from)
	w.Events().SetMuted(false)
	c.predicted = w

	c.out = append(c.out, diffDisplay(before, displayIndex(w), w.Clock())...)
	c.logf("[timeline] predicted rollback %d -> %d (snapshot %d, %d inputs)", from, to, info.SnapshotAt, info.Replayed)
	if c.cfg.Observer != nil {
		c.cfg.Observer.Rollback(info)
	}
	if info.Gap {
		return fmt.Errorf("rollback to %d: %w", to, ErrReplayGap)
	}
	return nil
}

// Events returns presentation events since the last call.
func (c *Controller) Events() []protocol.Event {
	out := append(c.out, c.predicted.Events().Drain()...)
	c.out = nil
	return out
}

// Display is a by-value capture of the predicted timeline.
func (c *Controller) Display() *snapshot.Snapshot { return c.predicted.CreateState() }

// ConfirmedState is a by-value capture of the confirmed timeline.
func (c *Controller) ConfirmedState() *snapshot.Snapshot { return c.confirmed.CreateState() }

func (c *Controller) PredictedClock() int64 { return c.predicted.Clock() }
func (c *Controller) ConfirmedClock() int64 { return c.confirmed.Clock() }
func (c *Controller) ConfirmedDigest() string { return c.confirmed.Digest() }
func (c *Controller) PredictedDigest() string { return c.predicted.Digest() }
func (c *Controller) PendingPredictions() int { return len(c.pending) }
func (c *Controller) RollbackPending() bool { return c.hasRestore }
func (c *Controller) StoredSnapshots() int { return c.store.Len() }
