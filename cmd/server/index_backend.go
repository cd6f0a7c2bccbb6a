package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"evita/internal/persistence/indexdb"
)

// openRuntimeIndex selects the index backend from EVITA_INDEX_BACKEND
// (sqlite, postgres or none). A nil index is valid and ignores writes.
func openRuntimeIndex(runDir, runID string, disableDB bool) (*indexdb.Index, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("EVITA_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	opts := indexdb.Options{
		RunID:     runID,
		QueueSize: envInt("EVITA_INDEX_QUEUE", 0),
		Logger:    log.New(os.Stdout, "[index] ", log.LstdFlags|log.Lmicroseconds),
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(runDir, "index", "run.sqlite"), opts)
	case "postgres", "postgresql":
		dsn := strings.TrimSpace(os.Getenv("EVITA_INDEX_POSTGRES_DSN"))
		if dsn == "" {
			return nil, fmt.Errorf("EVITA_INDEX_BACKEND=postgres but EVITA_INDEX_POSTGRES_DSN is empty")
		}
		return indexdb.OpenPostgres(dsn, opts)
	default:
		return nil, fmt.Errorf("unsupported EVITA_INDEX_BACKEND: %s", backend)
	}
}
