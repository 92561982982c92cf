// Package log keeps the confirmed ledger log: every input the ledger
// finalized and the confirmed timeline's digest at each checkpoint, in the
// order the node observed them. The log is split into numbered zstd JSONL
// segments (<prefix>-000001.jsonl.zst, ...). A segment is sealed after
// SegmentEntries lines, and a reopened log always starts a fresh segment, so
// replaying the segments in name order reproduces write order.
package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"

	"bubbles.ai/internal/protocol"
)

// SegmentEntries is the default number of lines per segment.
const SegmentEntries = 50000

type segmentWriter struct {
	dir        string
	prefix     string
	maxEntries int

	mu    sync.Mutex
	seq   int
	lines int
	f     *os.File
	enc   *zstd.Encoder
	bw    *bufio.Writer
}

func newSegmentWriter(dir, prefix string, maxEntries int) *segmentWriter {
	if maxEntries <= 0 {
		maxEntries = SegmentEntries
	}
	return &segmentWriter{dir: dir, prefix: prefix, maxEntries: maxEntries, seq: -1}
}

func (w *segmentWriter) append(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.bw == nil || w.lines >= w.maxEntries {
		if err := w.sealLocked(); err != nil {
			return err
		}
		if err := w.openNextLocked(); err != nil {
			return err
		}
	}
	b = append(b, '\n')
	if _, err := w.bw.Write(b); err != nil {
		return err
	}
	w.lines++
	return w.bw.Flush()
}

func (w *segmentWriter) openNextLocked() error {
	if w.seq < 0 {
		last, err := lastSegment(w.dir, w.prefix)
		if err != nil {
			return err
		}
		w.seq = last
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return err
	}
	w.seq++
	f, err := os.OpenFile(segmentPath(w.dir, w.prefix, w.seq), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f, w.enc, w.bw, w.lines = f, enc, bufio.NewWriter(enc), 0
	return nil
}

// sealLocked finishes the open segment, if any.
func (w *segmentWriter) sealLocked() error {
	if w.f == nil {
		return nil
	}
	err := w.bw.Flush()
	if cerr := w.enc.Close(); err == nil {
		err = cerr
	}
	if cerr := w.f.Close(); err == nil {
		err = cerr
	}
	w.f, w.enc, w.bw = nil, nil, nil
	return err
}

func (w *segmentWriter) close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealLocked()
}

func segmentPath(dir, prefix string, seq int) string {
	return filepath.Join(dir, fmt.Sprintf("%s-%06d.jsonl.zst", prefix, seq))
}

// lastSegment returns the highest segment number under dir, 0 if none.
func lastSegment(dir, prefix string) (int, error) {
	ents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	last := 0
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, ".jsonl.zst") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), ".jsonl.zst"))
		if err == nil && n > last {
			last = n
		}
	}
	return last, nil
}

const (
	KindInput      = "input"
	KindCheckpoint = "checkpoint"
)

// Entry is one ledger log line: a confirmed input, or the confirmed
// timeline's digest at a snapshot boundary.
type Entry struct {
	Kind      string          `json:"kind"`
	Timestamp int64           `json:"timestamp"`
	Input     *protocol.Input `json:"input,omitempty"`
	Digest    string          `json:"digest,omitempty"`
}

// LedgerLogger records the confirmed timeline under <dataDir>/ledger.
type LedgerLogger struct{ w *segmentWriter }

func NewLedgerLogger(dataDir string) *LedgerLogger {
	return &LedgerLogger{w: newSegmentWriter(LedgerDir(dataDir), "ledger", SegmentEntries)}
}

func LedgerDir(dataDir string) string { return filepath.Join(dataDir, "ledger") }

func (l *LedgerLogger) WriteInput(in protocol.Input) error {
	return l.w.append(Entry{Kind: KindInput, Timestamp: in.Timestamp, Input: &in})
}

func (l *LedgerLogger) WriteCheckpoint(ts int64, digest string) error {
	return l.w.append(Entry{Kind: KindCheckpoint, Timestamp: ts, Digest: digest})
}

func (l *LedgerLogger) Close() error { return l.w.close() }
