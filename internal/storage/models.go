package storage

import "errors"

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Record is one cached segment of the last analysis. Field order matches the
// column order of the cache file.
type Record struct {
	Timestamp        string `csv:"timestamp" json:"timestamp"`
	QueryHash        string `csv:"query_hash" json:"query_hash"`
	SegmentName      string `csv:"segment_name" json:"segment_name"`
	SegmentKey       string `csv:"segment_key" json:"segment_key"`
	DetailedAnalysis string `csv:"detailed_analysis" json:"detailed_analysis"` // segment body
	RevenueAnalysis  string `csv:"revenue_analysis" json:"revenue_analysis"`   // grounding data
	Persona          string `csv:"persona" json:"persona"`
	ValueProposition string `csv:"value_proposition" json:"value_proposition"`
}

// Columns lists the cache file header in order.
var Columns = []string{
	"timestamp",
	"query_hash",
	"segment_name",
	"segment_key",
	"detailed_analysis",
	"revenue_analysis",
	"persona",
	"value_proposition",
}

// Store is a single-slot cache of the last analysis performed. WriteAll
// replaces everything previously stored.
type Store interface {
	WriteAll(records []Record) error
	Get(segmentKey string) (Record, error)
	All() ([]Record, error)
	Close() error
}
