package timeline

import (
	"errors"
	"math"
	"sort"
	"testing"

	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/protocol"
	"bubbles.ai/internal/sim/tuning"
	"bubbles.ai/internal/sim/world"
)

const alice = "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"

type recorder struct {
	confirmed   []protocol.Input
	checkpoints []int64
	rollbacks   []RollbackInfo
}

func (r *recorder) ConfirmedInput(in protocol.Input) { r.confirmed = append(r.confirmed, in) }
func (r *recorder) Checkpoint(s *snapshot.Snapshot, digest string) {
	r.checkpoints = append(r.checkpoints, s.Timestamp)
}
func (r *recorder) Rollback(info RollbackInfo) { r.rollbacks = append(r.rollbacks, info) }

// baseWithBubble returns a snapshot at t=0 holding one bubble of mass 10.
func baseWithBubble(t *testing.T, tune tuning.Tuning) (*snapshot.Snapshot, string) {
	t.Helper()
	w, err := world.New(tune, 0)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	b, err := w.CreateBubble(alice, world.Vec2{X: 200, Y: 200}, world.Vec2{}, 10)
	if err != nil {
		t.Fatalf("bubble: %v", err)
	}
	return w.CreateState(), b.ID
}

func newController(t *testing.T, tune tuning.Tuning, timeout int64) (*Controller, string, *recorder) {
	t.Helper()
	base, id := baseWithBubble(t, tune)
	rec := &recorder{}
	c, err := New(Config{Tuning: tune, Observer: rec, PredictionTimeoutMs: timeout}, base)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return c, id, rec
}

func bubbleMasses(s *snapshot.Snapshot) []float64 {
	out := make([]float64, 0, len(s.Bubbles))
	for _, b := range s.Bubbles {
		out = append(out, b.Mass)
	}
	sort.Float64s(out)
	return out
}

func sameMasses(got []float64, want ...float64) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func emit(id string, ts int64, amount float64, nonce uint64) protocol.Input {
	return protocol.Input{
		Type:      protocol.InputEmit,
		Timestamp: ts,
		Actor:     alice,
		Nonce:     nonce,
		EntityID:  id,
		Amount:    amount,
		Direction: protocol.Vec2{X: 1},
	}
}

func hasEvent(evs []protocol.Event, typ protocol.EventType) bool {
	for _, e := range evs {
		if e.Type == typ {
			return true
		}
	}
	return false
}

func TestController_ConfirmationCorrectsPrediction(t *testing.T) {
	c, id, rec := newController(t, tuning.Defaults(), 0)

	if err := c.Predict(emit(id, 1000, 4, 1)); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if err := c.Advance(1000); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := bubbleMasses(c.Display()); !sameMasses(got, 4, 6) {
		t.Fatalf("predicted masses=%v", got)
	}

	if err := c.Confirm(emit(id, 1000, 3, 1)); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !c.RollbackPending() {
		t.Fatalf("diverging confirmation did not request a rollback")
	}
	if err := c.Advance(1000); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := bubbleMasses(c.Display()); !sameMasses(got, 3, 7) {
		t.Fatalf("after rollback masses=%v", got)
	}
	if c.PendingPredictions() != 0 {
		t.Fatalf("pending=%d", c.PendingPredictions())
	}
	if len(rec.rollbacks) != 1 || rec.rollbacks[0].Timeline != "predicted" || rec.rollbacks[0].SnapshotAt != 0 {
		t.Fatalf("rollbacks=%+v", rec.rollbacks)
	}

	c.Finalize(1000)
	if c.ConfirmedDigest() != c.PredictedDigest() {
		t.Fatalf("timelines disagree after reconciliation")
	}
}

func TestController_EquivalentConfirmationKeepsPrediction(t *testing.T) {
	c, id, rec := newController(t, tuning.Defaults(), 0)
	in := emit(id, 1000, 4, 7)
	_ = c.Predict(in)
	_ = c.Advance(1000)
	created := len(c.Events())

	if err := c.Confirm(in); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if c.RollbackPending() || c.PendingPredictions() != 0 {
		t.Fatalf("rollback=%v pending=%d", c.RollbackPending(), c.PendingPredictions())
	}
	_ = c.Advance(1000)
	if len(rec.rollbacks) != 0 {
		t.Fatalf("rollbacks=%+v", rec.rollbacks)
	}
	if created != 1 || len(c.Events()) != 0 {
		t.Fatalf("events re-announced")
	}
	if len(rec.confirmed) != 1 || rec.confirmed[0].Prediction {
		t.Fatalf("confirmed=%+v", rec.confirmed)
	}
}

func TestController_LatePredictionRewinds(t *testing.T) {
	c, id, _ := newController(t, tuning.Defaults(), 0)
	_ = c.Advance(1500)
	if err := c.Predict(emit(id, 500, 2, 1)); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if !c.RollbackPending() {
		t.Fatalf("late prediction scheduled in the past")
	}
	if err := c.Advance(1500); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := bubbleMasses(c.Display()); !sameMasses(got, 2, 8) {
		t.Fatalf("masses=%v", got)
	}
	if c.PredictedClock() != 1500 {
		t.Fatalf("clock=%d", c.PredictedClock())
	}
}

func TestController_LateConfirmationMatchesInOrderHistory(t *testing.T) {
	late, id, rec := newController(t, tuning.Defaults(), 0)
	late.Finalize(2000)
	if err := late.Confirm(emit(id, 1000, 2, 1)); err != nil {
		t.Fatalf("late confirm: %v", err)
	}
	if len(rec.rollbacks) == 0 || rec.rollbacks[0].Timeline != "confirmed" || rec.rollbacks[0].SnapshotAt != 1000 {
		t.Fatalf("rollbacks=%+v", rec.rollbacks)
	}

	inOrder, _, _ := newController(t, tuning.Defaults(), 0)
	_ = inOrder.Confirm(emit(id, 1000, 2, 1))
	inOrder.Finalize(2000)

	if late.ConfirmedClock() != 2000 || late.ConfirmedDigest() != inOrder.ConfirmedDigest() {
		t.Fatalf("late replay diverged from in-order history")
	}
}

func TestController_GapRebuildsFromConfirmed(t *testing.T) {
	tune := tuning.Defaults()
	tune.SnapshotEveryMs = 20
	tune.SnapshotRetention = 2
	c, _, rec := newController(t, tune, 0)

	c.Finalize(1000)
	_ = c.Advance(1000)
	if err := c.Predict(protocol.Input{Type: protocol.InputDeposit, Timestamp: 100, Actor: alice, Amount: 5}); err != nil {
		t.Fatalf("predict: %v", err)
	}
	err := c.Advance(1000)
	if !errors.Is(err, ErrReplayGap) {
		t.Fatalf("err=%v", err)
	}
	if len(rec.rollbacks) != 1 || !rec.rollbacks[0].Gap {
		t.Fatalf("rollbacks=%+v", rec.rollbacks)
	}
	users := c.Display().Users
	if len(users) != 1 || users[0].Balance != 5 {
		t.Fatalf("users=%+v", users)
	}
	if c.StoredSnapshots() != 2 {
		t.Fatalf("stored=%d", c.StoredSnapshots())
	}
}

func TestController_StalePredictionExpires(t *testing.T) {
	c, id, _ := newController(t, tuning.Defaults(), 500)
	_ = c.Predict(emit(id, 100, 4, 1))
	_ = c.Advance(200)
	if len(c.Display().Bubbles) != 2 {
		t.Fatalf("prediction not applied")
	}

	c.Finalize(700)
	if c.PendingPredictions() != 0 || !c.RollbackPending() {
		t.Fatalf("pending=%d rollback=%v", c.PendingPredictions(), c.RollbackPending())
	}
	if err := c.Advance(700); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := bubbleMasses(c.Display()); !sameMasses(got, 10) {
		t.Fatalf("masses=%v", got)
	}

	evs := c.Events()
	var stale bool
	for _, e := range evs {
		if e.Type == world.EventInputRejected && e.Code == protocol.ErrStale {
			stale = true
		}
	}
	if !stale || !hasEvent(evs, world.EventDestroyBubble) {
		t.Fatalf("events=%+v", evs)
	}
}

func TestController_CheckpointsOnInterval(t *testing.T) {
	c, _, rec := newController(t, tuning.Defaults(), 0)
	c.Finalize(3500)
	want := []int64{0, 1000, 2000, 3000}
	if len(rec.checkpoints) != len(want) {
		t.Fatalf("checkpoints=%v", rec.checkpoints)
	}
	for i := range want {
		if rec.checkpoints[i] != want[i] {
			t.Fatalf("checkpoints=%v", rec.checkpoints)
		}
	}
	if c.StoredSnapshots() != 4 || c.ConfirmedClock() != 3500 {
		t.Fatalf("stored=%d clock=%d", c.StoredSnapshots(), c.ConfirmedClock())
	}
}

func TestController_RejectsMalformedInput(t *testing.T) {
	c, _, _ := newController(t, tuning.Defaults(), 0)
	err := c.Predict(protocol.Input{Type: "JUMP", Actor: alice})
	if !errors.Is(err, world.ErrInvalidInput) {
		t.Fatalf("err=%v", err)
	}
	if c.PendingPredictions() != 0 {
		t.Fatalf("malformed input kept")
	}
}

func TestDiffDisplay_OrdersDestroysBeforeCreates(t *testing.T) {
	before := map[string]displayEntry{
		"B2": {world.EventCreateBubble, world.EventDestroyBubble, world.Vec2{X: 1}},
		"B1": {world.EventCreateBubble, world.EventDestroyBubble, world.Vec2{}},
		"P":  {world.EventCreatePortal, "", world.Vec2{}},
	}
	after := map[string]displayEntry{
		"B1": before["B1"],
		"R1": {world.EventCreateResource, world.EventDestroyResource, world.Vec2{Y: 2}},
	}
	evs := diffDisplay(before, after, 40)
	if len(evs) != 2 {
		t.Fatalf("events=%+v", evs)
	}
	if evs[0].Type != world.EventDestroyBubble || evs[0].ID != "B2" || evs[0].Position.X != 1 {
		t.Fatalf("first=%+v", evs[0])
	}
	if evs[1].Type != world.EventCreateResource || evs[1].Timestamp != 40 {
		t.Fatalf("second=%+v", evs[1])
	}
}

func TestController_LatePredictionKeepsOlderPending(t *testing.T) {
	late, id, _ := newController(t, tuning.Defaults(), 0)
	_ = late.Predict(emit(id, 100, 4, 1))
	late.Finalize(2000)
	_ = late.Advance(2500)
	second := emit(id, 1500, 2, 2)
	second.Direction = protocol.Vec2{X: -1}
	if err := late.Predict(second); err != nil {
		t.Fatalf("predict: %v", err)
	}
	if err := late.Advance(2500); err != nil {
		t.Fatalf("advance: %v", err)
	}

	inOrder, _, _ := newController(t, tuning.Defaults(), 0)
	_ = inOrder.Predict(emit(id, 100, 4, 1))
	_ = inOrder.Predict(second)
	inOrder.Finalize(2000)
	_ = inOrder.Advance(2500)

	if n := len(late.Display().Bubbles); n != 3 {
		t.Fatalf("bubbles=%d", n)
	}
	if late.PredictedDigest() != inOrder.PredictedDigest() {
		t.Fatalf("late prediction diverged from in-order history")
	}
}
