package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"bubbles.ai/internal/persistence/indexdb"
	"bubbles.ai/internal/sim/tuning"
)

// openIndex opens the read-model index. It never affects the simulation, so
// a node runs fine without one.
func openIndex(dataDir string, disableDB bool, tune tuning.Tuning, logger *log.Logger) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}
	backend := strings.ToLower(strings.TrimSpace(os.Getenv("BUBBLES_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}
	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
	default:
		return nil, fmt.Errorf("unsupported BUBBLES_INDEX_BACKEND=%q", backend)
	}

	path := filepath.Join(dataDir, "index", "bubbles.sqlite")
	idx, err := indexdb.OpenSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := idx.UpsertTuning(tune); err != nil {
		logger.Printf("index: upsert tuning: %v", err)
	}
	logger.Printf("index: sqlite %s", path)
	return idx, nil
}
