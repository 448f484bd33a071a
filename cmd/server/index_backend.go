package main

import (
	"fmt"
	"os"
	"strings"

	"voxelstamp.ai/internal/persistence/indexdb"
)

// openIndex opens the read-model index. A nil index with a nil error means indexing is off.
func openIndex(path string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported VS_INDEX_BACKEND: %s", backend)
	}
}
