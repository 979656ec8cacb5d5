package storage

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jszwec/csvutil"
)

// CSVStore keeps the cache as a flat CSV file. Every write replaces the file;
// readers load the whole file on each call.
type CSVStore struct {
	path string
	mu   sync.RWMutex
}

// OpenCSV opens the cache file at path, creating its directory and a
// header-only file if they do not exist yet.
func OpenCSV(path string) (*CSVStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	s := &CSVStore{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := s.WriteAll(nil); err != nil {
			return nil, fmt.Errorf("initializing cache file: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("checking cache file: %w", err)
	}
	return s, nil
}

// Path returns the location of the cache file.
func (s *CSVStore) Path() string {
	return s.path
}

// WriteAll overwrites the cache file with records. The new content is
// written to a temp file in the same directory and renamed into place.
func (s *CSVStore) WriteAll(records []Record) error {
	data, err := encodeRecords(records)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".cache-*.csv")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cache file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing cache file: %w", err)
	}
	return nil
}

// Get scans the cache for the first record with segmentKey.
func (s *CSVStore) Get(segmentKey string) (Record, error) {
	records, err := s.All()
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.SegmentKey == segmentKey {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// All returns every cached record in file order. encoding/csv turns \r\n
// inside quoted fields into \n, so CRLF text comes back with LF endings.
func (s *CSVStore) All() ([]Record, error) {
	s.mu.RLock()
	data, err := os.ReadFile(s.path)
	s.mu.RUnlock()
	if errors.Is(err, os.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading cache file: %w", err)
	}

	records := []Record{}
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}
	if err := csvutil.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decoding cache file: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Close is a no-op; the file is not held open between calls.
func (s *CSVStore) Close() error {
	return nil
}

func encodeRecords(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	enc := csvutil.NewEncoder(w)

	if err := enc.EncodeHeader(Record{}); err != nil {
		return nil, fmt.Errorf("encoding cache header: %w", err)
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encoding record %s: %w", r.SegmentKey, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flushing cache file: %w", err)
	}
	return buf.Bytes(), nil
}
