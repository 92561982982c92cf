package timeline

import (
	"errors"
	"sort"

	"bubbles.ai/internal/persistence/snapshot"
)

// ErrReplayGap means no retained snapshot is old enough for a restore point.
var ErrReplayGap = errors.New("replay gap")

// Store is a bounded, timestamp-ordered ring of immutable snapshots.
type Store struct {
	capacity int
	snaps    []*snapshot.Snapshot
}

func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{capacity: capacity}
}

// Put stores s. Snapshots at or after s.Timestamp belong to a superseded
// history and are dropped first. It reports how many old snapshots were
// evicted for capacity.
func (st *Store) Put(s *snapshot.Snapshot) int {
	st.TruncateFrom(s.Timestamp)
	st.snaps = append(st.snaps, s)
	evicted := 0
	if over := len(st.snaps) - st.capacity; over > 0 {
		for i := 0; i < over; i++ {
			st.snaps[i] = nil
		}
		st.snaps = append(st.snaps[:0], st.snaps[over:]...)
		evicted = over
	}
	return evicted
}

// TruncateFrom drops every snapshot with timestamp >= ts.
func (st *Store) TruncateFrom(ts int64) {
	i := sort.Search(len(st.snaps), func(i int) bool { return st.snaps[i].Timestamp >= ts })
	for j := i; j < len(st.snaps); j++ {
		st.snaps[j] = nil
	}
	st.snaps = st.snaps[:i]
}

// At returns the latest snapshot with timestamp <= ts. The result is shared
// and must not be modified.
func (st *Store) At(ts int64) (*snapshot.Snapshot, error) {
	i := sort.Search(len(st.snaps), func(i int) bool { return st.snaps[i].Timestamp > ts })
	if i == 0 {
		return nil, ErrReplayGap
	}
	return st.snaps[i-1], nil
}

func (st *Store) Len() int { return len(st.snaps) }

func (st *Store) Oldest() (*snapshot.Snapshot, bool) {
	if len(st.snaps) == 0 {
		return nil, false
	}
	return st.snaps[0], true
}

func (st *Store) Latest() (*snapshot.Snapshot, bool) {
	if len(st.snaps) == 0 {
		return nil, false
	}
	return st.snaps[len(st.snaps)-1], true
}
