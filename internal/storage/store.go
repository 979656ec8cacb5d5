package storage

import (
	"fmt"
	"path/filepath"
)

// CacheFileName is the name of the CSV cache inside the data directory.
const CacheFileName = "analysis_cache.csv"

// Open returns the Store for the named backend ("csv" or "sqlite") rooted at
// dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case "", "csv":
		return OpenCSV(filepath.Join(dataDir, CacheFileName))
	case "sqlite":
		return OpenSQLite(dataDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want csv or sqlite)", backend)
	}
}
