package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/marketlens/internal/segment"
)

func testRecord(name, vp string) Record {
	return Record{
		Timestamp:        "2026-01-02T03:04:05.000000",
		QueryHash:        "abcd1234",
		SegmentName:      name,
		SegmentKey:       segment.Key(name, vp),
		DetailedAnalysis: "Revenue Potential: $5 million/year\n- Avg Purchase: $50",
		RevenueAnalysis:  "",
		Persona:          "You are Dana, a 34-year-old designer, \"picky\" about quality.",
		ValueProposition: vp,
	}
}

// backends returns a fresh store per backend so every behavior test runs
// against both implementations.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	csvStore, err := OpenCSV(filepath.Join(t.TempDir(), "cache", CacheFileName))
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	t.Cleanup(func() { csvStore.Close() })

	return map[string]Store{
		"csv":    csvStore,
		"sqlite": openTestSQLite(t),
	}
}

func TestStore_EmptyOnOpen(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if all == nil || len(all) != 0 {
				t.Errorf("All() = %#v, want empty non-nil slice", all)
			}
		})
	}
}

func TestStore_WriteAndGet(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			want := testRecord("Urban Professionals", "Save time")
			if err := s.WriteAll([]Record{want, testRecord("Students", "Cheap")}); err != nil {
				t.Fatalf("WriteAll: %v", err)
			}

			got, err := s.Get(want.SegmentKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got != want {
				t.Errorf("Get() = %+v, want %+v", got, want)
			}

			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != 2 {
				t.Fatalf("got %d records, want 2", len(all))
			}
			if all[0].SegmentName != "Urban Professionals" || all[1].SegmentName != "Students" {
				t.Errorf("records out of order: %q, %q", all[0].SegmentName, all[1].SegmentName)
			}
		})
	}
}

func TestStore_WriteAllReplaces(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			old := testRecord("Old Segment", "old")
			if err := s.WriteAll([]Record{old}); err != nil {
				t.Fatalf("first WriteAll: %v", err)
			}

			fresh := testRecord("New Segment", "new")
			if err := s.WriteAll([]Record{fresh}); err != nil {
				t.Fatalf("second WriteAll: %v", err)
			}

			if _, err := s.Get(old.SegmentKey); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(old) error = %v, want ErrNotFound", err)
			}
			if _, err := s.Get(fresh.SegmentKey); err != nil {
				t.Errorf("Get(new): %v", err)
			}

			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != 1 {
				t.Errorf("got %d records after overwrite, want 1", len(all))
			}
		})
	}
}

func TestStore_WriteEmptyClears(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.WriteAll([]Record{testRecord("A", "a")}); err != nil {
				t.Fatalf("WriteAll: %v", err)
			}
			if err := s.WriteAll(nil); err != nil {
				t.Fatalf("WriteAll(nil): %v", err)
			}
			all, err := s.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(all) != 0 {
				t.Errorf("got %d records, want 0", len(all))
			}
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get("deadbeef")
			if !errors.Is(err, ErrNotFound) {
				t.Errorf("error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_GetReturnsFirstDuplicate(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			first := testRecord("Twins", "same")
			second := first
			second.Persona = "second persona"
			if err := s.WriteAll([]Record{first, second}); err != nil {
				t.Fatalf("WriteAll: %v", err)
			}
			got, err := s.Get(first.SegmentKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Persona != first.Persona {
				t.Errorf("Persona = %q, want first record's persona", got.Persona)
			}
		})
	}
}

func TestOpenCSV_CreatesHeaderOnlyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", CacheFileName)

	if _, err := OpenCSV(path); err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading cache file: %v", err)
	}
	want := strings.Join(Columns, ",") + "\n"
	if string(data) != want {
		t.Errorf("file = %q, want %q", string(data), want)
	}
}

func TestOpenCSV_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)

	s1, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	rec := testRecord("Keep", "me")
	if err := s1.WriteAll([]Record{rec}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	s2, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if _, err := s2.Get(rec.SegmentKey); err != nil {
		t.Errorf("record lost on reopen: %v", err)
	}
}

func TestCSVStore_EmptyFileReadsAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), CacheFileName)
	s, err := OpenCSV(path)
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	all, err := s.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("got %d records, want 0", len(all))
	}
}

func TestCSVStore_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	s, err := OpenCSV(filepath.Join(dir, CacheFileName))
	if err != nil {
		t.Fatalf("OpenCSV: %v", err)
	}
	if err := s.WriteAll([]Record{testRecord("A", "a")}); err != nil {
		t.Fatalf("WriteAll: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != CacheFileName {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("directory contains %v, want only %s", names, CacheFileName)
	}
}

func TestOpen_Backends(t *testing.T) {
	dir := t.TempDir()

	s, err := Open("csv", dir)
	if err != nil {
		t.Fatalf("Open(csv): %v", err)
	}
	cs, ok := s.(*CSVStore)
	if !ok {
		t.Fatalf("Open(csv) returned %T", s)
	}
	if want := filepath.Join(dir, CacheFileName); cs.Path() != want {
		t.Errorf("Path() = %q, want %q", cs.Path(), want)
	}

	s, err = Open("sqlite", dir)
	if err != nil {
		t.Fatalf("Open(sqlite): %v", err)
	}
	defer s.Close()
	if _, ok := s.(*SQLiteStore); !ok {
		t.Errorf("Open(sqlite) returned %T", s)
	}

	if _, err := Open("parquet", dir); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestStore_LineEndings(t *testing.T) {
	rec := testRecord("Line endings", "crlf")
	rec.Persona = "A, \"b\"\r\nc"

	// encoding/csv reads \r\n inside a quoted field back as \n; sqlite keeps
	// the text byte for byte.
	want := map[string]string{
		"csv":    "A, \"b\"\nc",
		"sqlite": "A, \"b\"\r\nc",
	}

	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := s.WriteAll([]Record{rec}); err != nil {
				t.Fatalf("WriteAll: %v", err)
			}
			got, err := s.Get(rec.SegmentKey)
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if got.Persona != want[name] {
				t.Errorf("Persona = %q, want %q", got.Persona, want[name])
			}
		})
	}
}
