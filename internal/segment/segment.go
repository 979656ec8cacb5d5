// Package segment extracts customer segments from model output formatted as
// "[Segment Name]body[Value Proposition]" blocks.
package segment

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
)

// keyLength is the number of hex characters kept from the md5 digest.
const keyLength = 8

var errNoNameMarker = errors.New("segment name has no closing bracket")

// Segment is one customer subgroup recovered from the segmentation text.
type Segment struct {
	Name             string `json:"segment_name"`
	Body             string `json:"body"`
	ValueProposition string `json:"value_proposition"`
}

// Key returns the segment key for this segment.
func (s Segment) Key() string {
	return Key(s.Name, s.ValueProposition)
}

// Parse splits text on '[' and treats every odd-indexed element as the start
// of a segment. The element that follows a segment start carries its value
// proposition. Segments that cannot be parsed are logged and skipped.
//
// The format is produced by prompt instructions, not a grammar: unbalanced
// brackets yield partially garbled fields rather than an error.
func Parse(text string) []Segment {
	parts := strings.Split(text, "[")

	var out []Segment
	for i := 1; i < len(parts); i += 2 {
		raw := parts[i]
		if i+1 < len(parts) {
			raw += "[" + parts[i+1]
		}

		seg, err := parseOne(raw)
		if err != nil {
			slog.Warn("skipping segment", "index", i, "error", err, "text", truncate(raw, 80))
			continue
		}
		out = append(out, seg)
	}
	return out
}

// parseOne parses "Name]body[Value Proposition]".
func parseOne(raw string) (Segment, error) {
	nameEnd := strings.Index(raw, "]")
	if nameEnd < 0 {
		return Segment{}, errNoNameMarker
	}

	seg := Segment{Name: strings.TrimSpace(raw[:nameEnd])}

	// Value proposition sits between the last '[' and the last ']'.
	vpStart := strings.LastIndex(raw, "[")
	vpEnd := strings.LastIndex(raw, "]")
	if vpStart > nameEnd && vpEnd > vpStart {
		seg.ValueProposition = strings.TrimSpace(raw[vpStart+1 : vpEnd])
	}

	rest := raw[nameEnd+1:]
	if next := strings.IndexAny(rest, "[]"); next >= 0 {
		rest = rest[:next]
	}
	seg.Body = strings.TrimSpace(rest)

	return seg, nil
}

// Key derives the short cache key of a segment from its name and value
// proposition. Only 8 hex characters are kept, so collisions are possible
// across large caches.
func Key(name, valueProposition string) string {
	return shortHash(name + ":" + valueProposition)
}

// QueryHash identifies the request an analysis was produced for.
func QueryHash(hasImage bool, text string) string {
	b, _ := json.Marshal(struct {
		Image bool   `json:"image"`
		Text  string `json:"text"`
	}{hasImage, text})
	return shortHash(string(b))
}

func shortHash(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:keyLength]
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
