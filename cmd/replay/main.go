package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"bubbles.ai/internal/persistence/archive"
	"bubbles.ai/internal/persistence/indexdb"
	persistlog "bubbles.ai/internal/persistence/log"
	"bubbles.ai/internal/persistence/snapshot"
	"bubbles.ai/internal/sim/tuning"
	"bubbles.ai/internal/sim/world"
)

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst (default: oldest checkpoint in -data, else genesis)")
		dataDir   = flag.String("data", "./data", "runtime data directory holding ledger/ and snapshots/")
		configDir = flag.String("configs", "./configs", "config directory")
		indexPath = flag.String("index", "", "sqlite index to cross-check checkpoint digests against (optional)")
		toTs      = flag.Int64("to", 0, "stop at this ledger time (default: last logged entry)")
	)
	flag.Parse()

	tune, err := tuning.Load(filepath.Join(*configDir, "tuning.yaml"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	snap, err := startSnapshot(tune, *snapPath, *dataDir, *configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "start snapshot:", err)
		os.Exit(1)
	}
	fmt.Printf("snapshot v%d ts=%d users=%d bubbles=%d portals=%d nodes=%d resources=%d mass=%.6f\n",
		snap.Version, snap.Timestamp, len(snap.Users), len(snap.Bubbles), len(snap.Portals),
		len(snap.Nodes), len(snap.Resources), snap.TotalMass())

	entries, err := persistlog.ReadLedger(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read ledger:", err)
		os.Exit(1)
	}

	var idx *indexdb.SQLiteIndex
	if *indexPath != "" {
		if idx, err = indexdb.OpenSQLite(*indexPath); err != nil {
			fmt.Fprintln(os.Stderr, "open index:", err)
			os.Exit(1)
		}
		defer idx.Close()
	}

	res, err := replay(tune, snap, entries, *toTs, idx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: inputs=%d checked=%d checkpoints clock=%d digest=%s\n", res.Inputs, res.Checked, res.Clock, res.Digest)
}

func startSnapshot(tune tuning.Tuning, snapPath, dataDir, configDir string) (*snapshot.Snapshot, error) {
	if snapPath != "" {
		s, _, err := snapshot.ReadSnapshot(snapPath)
		return s, err
	}
	dir := archive.Dir(dataDir)
	if ts, err := archive.List(dir); err == nil && len(ts) > 0 {
		s, _, err := snapshot.ReadSnapshot(filepath.Join(dir, fmt.Sprintf("%d.snap.zst", ts[0])))
		return s, err
	}
	w, err := world.New(tune, 0)
	if err != nil {
		return nil, err
	}
	g, err := tuning.LoadGenesis(filepath.Join(configDir, "genesis.yaml"))
	if err != nil {
		return nil, err
	}
	if err := w.ApplyGenesis(g); err != nil {
		return nil, err
	}
	return w.CreateState(), nil
}

type result struct {
	Inputs  int
	Checked int
	Clock   int64
	Digest  string
}

// replay rebuilds the confirmed timeline from snap and the logged inputs and
// compares every boundary that has a logged checkpoint. A rollback re-logs a
// checkpoint, so the last digest per timestamp wins.
func replay(tune tuning.Tuning, snap *snapshot.Snapshot, entries []persistlog.Entry, to int64, idx *indexdb.SQLiteIndex) (result, error) {
	w, err := world.ImportState(tune, snap)
	if err != nil {
		return result{}, err
	}
	w.ClearPending()

	var res result
	want := map[int64]string{}
	end := snap.Timestamp
	cut := snap.Timestamp - tune.StepMillis
	for _, e := range entries {
		switch e.Kind {
		case persistlog.KindCheckpoint:
			want[e.Timestamp] = e.Digest
		case persistlog.KindInput:
			if e.Input == nil || e.Input.Timestamp <= cut {
				continue
			}
			if err := w.Schedule(*e.Input); err != nil {
				return res, fmt.Errorf("schedule %s: %w", e.Input.Key(), err)
			}
			res.Inputs++
		}
		if e.Timestamp > end {
			end = e.Timestamp
		}
	}
	if to > 0 {
		end = to
	}

	var mismatch error
	w.SetBoundaryHook(func(w *world.World) {
		if mismatch != nil {
			return
		}
		ts := w.Clock()
		d, ok := want[ts]
		if !ok {
			return
		}
		got := w.Digest()
		if got != d {
			mismatch = fmt.Errorf("digest mismatch at %d: log=%s replay=%s", ts, d, got)
			return
		}
		if idx != nil {
			if id, found, err := idx.CheckpointDigest(context.Background(), ts); err == nil && found && id != got {
				mismatch = fmt.Errorf("digest mismatch at %d: index=%s replay=%s", ts, id, got)
				return
			}
		}
		res.Checked++
	})
	w.Advance(end)
	if mismatch != nil {
		return res, mismatch
	}
	res.Clock = w.Clock()
	res.Digest = w.Digest()
	return res, nil
}
