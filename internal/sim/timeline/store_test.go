package timeline

import (
	"errors"
	"testing"

	"bubbles.ai/internal/persistence/snapshot"
)

func TestStore_AtPicksLatestNotAfter(t *testing.T) {
	st := NewStore(10)
	for _, ts := range []int64{0, 1000, 2000} {
		st.Put(snapshot.New(ts))
	}
	cases := map[int64]int64{0: 0, 999: 0, 1000: 1000, 1500: 1000, 5000: 2000}
	for q, want := range cases {
		s, err := st.At(q)
		if err != nil || s.Timestamp != want {
			t.Fatalf("At(%d)=%v,%v want %d", q, s, err, want)
		}
	}
	if _, err := st.At(-1); !errors.Is(err, ErrReplayGap) {
		t.Fatalf("err=%v", err)
	}
}

func TestStore_EvictsOldest(t *testing.T) {
	st := NewStore(2)
	st.Put(snapshot.New(0))
	st.Put(snapshot.New(1000))
	if n := st.Put(snapshot.New(2000)); n != 1 {
		t.Fatalf("evicted=%d", n)
	}
	if _, err := st.At(500); !errors.Is(err, ErrReplayGap) {
		t.Fatalf("retention not enforced: %v", err)
	}
	if o, _ := st.Oldest(); o.Timestamp != 1000 {
		t.Fatalf("oldest=%d", o.Timestamp)
	}
}

func TestStore_PutSupersedesLaterHistory(t *testing.T) {
	st := NewStore(10)
	for _, ts := range []int64{0, 1000, 2000, 3000} {
		st.Put(snapshot.New(ts))
	}
	st.Put(snapshot.New(1000))
	if st.Len() != 2 {
		t.Fatalf("len=%d", st.Len())
	}
	if l, _ := st.Latest(); l.Timestamp != 1000 {
		t.Fatalf("latest=%d", l.Timestamp)
	}
}
