package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"bubbles.ai/internal/persistence/snapshot"
)

// LatestMeta is written next to the checkpoint files so operators and the
// replay tool can find the newest one without listing the directory.
type LatestMeta struct {
	Timestamp int64  `json:"timestamp"`
	Digest    string `json:"digest"`
	Snapshot  string `json:"snapshot"`
	CreatedAt string `json:"created_at"`
}

// Checkpoints keeps the newest confirmed snapshots on disk as
// <dir>/<timestamp>.snap.zst.
type Checkpoints struct {
	dir  string
	keep int
}

func NewCheckpoints(dataDir string, keep int) *Checkpoints {
	return &Checkpoints{dir: Dir(dataDir), keep: keep}
}

func Dir(dataDir string) string { return filepath.Join(dataDir, "snapshots") }

// Write stores snap, updates latest.json and prunes files beyond keep.
func (c *Checkpoints) Write(snap *snapshot.Snapshot, digest string) (string, error) {
	path := filepath.Join(c.dir, fmt.Sprintf("%d.snap.zst", snap.Timestamp))
	if err := snapshot.WriteSnapshot(path, snap, digest); err != nil {
		return "", err
	}
	meta := LatestMeta{
		Timestamp: snap.Timestamp,
		Digest:    digest,
		Snapshot:  filepath.Base(path),
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(c.dir, "latest.json"), b, 0o644)
	}
	if c.keep > 0 {
		if err := c.prune(); err != nil {
			return path, err
		}
	}
	return path, nil
}

func (c *Checkpoints) prune() error {
	ts, err := List(c.dir)
	if err != nil {
		return err
	}
	for len(ts) > c.keep {
		if err := os.Remove(filepath.Join(c.dir, fmt.Sprintf("%d.snap.zst", ts[0]))); err != nil && !os.IsNotExist(err) {
			return err
		}
		ts = ts[1:]
	}
	return nil
}

// List returns the checkpoint timestamps present in dir, oldest first.
func List(dir string) ([]int64, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []int64
	for _, e := range ents {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		ts, err := strconv.ParseInt(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Latest loads the newest checkpoint at or before maxTs; maxTs < 0 means any.
func Latest(dir string, maxTs int64) (*snapshot.Snapshot, snapshot.Header, error) {
	ts, err := List(dir)
	if err != nil {
		return nil, snapshot.Header{}, err
	}
	for i := len(ts) - 1; i >= 0; i-- {
		if maxTs >= 0 && ts[i] > maxTs {
			continue
		}
		return snapshot.ReadSnapshot(filepath.Join(dir, fmt.Sprintf("%d.snap.zst", ts[i])))
	}
	return nil, snapshot.Header{}, os.ErrNotExist
}
